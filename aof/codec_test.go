package aof

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	args := [][]byte{[]byte("SET"), []byte("k"), []byte("v")}
	encoded := EncodeCommand(args)
	require.Equal(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", string(encoded))

	got, err := ReadCommand(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	require.Equal(t, args, got)
}

func TestReadCommandCleanEOFBetweenRecords(t *testing.T) {
	_, err := ReadCommand(bufio.NewReader(bytes.NewReader(nil)))
	require.ErrorIs(t, err, io.EOF)
}

func TestReadCommandTruncatedMidRecordIsCorrupt(t *testing.T) {
	full := EncodeCommand([][]byte{[]byte("SET"), []byte("k"), []byte("v")})
	truncated := full[:len(full)-3] // cut off mid last bulk body

	_, err := ReadCommand(bufio.NewReader(bytes.NewReader(truncated)))
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReadCommandTwoRecordsThenEOF(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(EncodeCommand([][]byte{[]byte("SELECT"), []byte("0")}))
	buf.Write(EncodeCommand([][]byte{[]byte("SET"), []byte("k"), []byte("v")}))

	br := bufio.NewReader(&buf)
	first, err := ReadCommand(br)
	require.NoError(t, err)
	require.Equal(t, "SELECT", string(first[0]))

	second, err := ReadCommand(br)
	require.NoError(t, err)
	require.Equal(t, "SET", string(second[0]))

	_, err = ReadCommand(br)
	require.ErrorIs(t, err, io.EOF)
}
