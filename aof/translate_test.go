package aof

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bs(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestTranslateExpireToPexpireat(t *testing.T) {
	recs := TranslateForLog(bs("EXPIRE", "k", "10"), 1000)
	require.Len(t, recs, 1)
	require.Equal(t, bs("PEXPIREAT", "k", "11000"), recs[0])
}

func TestTranslatePexpireToPexpireat(t *testing.T) {
	recs := TranslateForLog(bs("PEXPIRE", "k", "500"), 1000)
	require.Len(t, recs, 1)
	require.Equal(t, bs("PEXPIREAT", "k", "1500"), recs[0])
}

func TestTranslateExpireatToPexpireat(t *testing.T) {
	recs := TranslateForLog(bs("EXPIREAT", "k", "5"), 1000)
	require.Len(t, recs, 1)
	require.Equal(t, bs("PEXPIREAT", "k", "5000"), recs[0])
}

func TestTranslateSetexSplitsIntoSetAndPexpireat(t *testing.T) {
	recs := TranslateForLog(bs("SETEX", "k", "10", "v"), 1000)
	require.Len(t, recs, 2)
	require.Equal(t, bs("SET", "k", "v"), recs[0])
	require.Equal(t, bs("PEXPIREAT", "k", "11000"), recs[1])
}

func TestTranslatePsetexSplitsIntoSetAndPexpireat(t *testing.T) {
	recs := TranslateForLog(bs("PSETEX", "k", "500", "v"), 1000)
	require.Len(t, recs, 2)
	require.Equal(t, bs("SET", "k", "v"), recs[0])
	require.Equal(t, bs("PEXPIREAT", "k", "1500"), recs[1])
}

func TestTranslatePassesOtherCommandsThrough(t *testing.T) {
	recs := TranslateForLog(bs("LPUSH", "k", "a", "b"), 1000)
	require.Len(t, recs, 1)
	require.Equal(t, bs("LPUSH", "k", "a", "b"), recs[0])
}

func TestTranslateCaseInsensitiveCommandName(t *testing.T) {
	recs := TranslateForLog(bs("expire", "k", "10"), 1000)
	require.Equal(t, bs("PEXPIREAT", "k", "11000"), recs[0])
}
