package migrations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyRunsEachMigrationOnceAndRecordsIt(t *testing.T) {
	dir := t.TempDir()
	var calls int
	m := &Migrator{Migrations: []Migration{
		{Name: "count-calls", Up: func(string) error { calls++; return nil }},
	}}

	require.NoError(t, m.Apply(dir))
	require.NoError(t, m.Apply(dir))
	require.Equal(t, 1, calls)

	data, err := os.ReadFile(filepath.Join(dir, appliedFileName))
	require.NoError(t, err)
	require.Equal(t, "count-calls\n", string(data))
}

func TestApplyStopsAtFirstFailingMigration(t *testing.T) {
	dir := t.TempDir()
	var ran []string
	m := &Migrator{Migrations: []Migration{
		{Name: "a", Up: func(string) error { ran = append(ran, "a"); return nil }},
		{Name: "b", Up: func(string) error { return os.ErrPermission }},
		{Name: "c", Up: func(string) error { ran = append(ran, "c"); return nil }},
	}}

	err := m.Apply(dir)
	require.Error(t, err)
	require.Equal(t, []string{"a"}, ran)
}

func TestStampRDBHeaderVersionRewritesOlderVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, snapshotFileName)
	require.NoError(t, os.WriteFile(path, []byte("REDIS0010rest-of-file-unchanged"), 0644))

	require.NoError(t, stampRDBHeaderVersion(dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "REDIS0011rest-of-file-unchanged", string(data))
}

func TestStampRDBHeaderVersionIsNoopWhenAlreadyCurrent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, snapshotFileName)
	original := "REDIS0011payload"
	require.NoError(t, os.WriteFile(path, []byte(original), 0644))

	require.NoError(t, stampRDBHeaderVersion(dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, string(data))
}

func TestStampRDBHeaderVersionIsNoopWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, stampRDBHeaderVersion(dir))
}

func TestStampRDBHeaderVersionIgnoresNonRDBFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, snapshotFileName)
	require.NoError(t, os.WriteFile(path, []byte("NOTREDISxxxx"), 0644))

	require.NoError(t, stampRDBHeaderVersion(dir))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "NOTREDISxxxx", string(data))
}

func TestPruneStaleRewriteTempFilesRemovesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "temp-rewriteaof-bg-12345.aof")
	keep := filepath.Join(dir, "appendonly.aof")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(keep, []byte("live"), 0644))

	require.NoError(t, pruneStaleRewriteTempFiles(dir))

	_, err := os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(keep)
	require.NoError(t, err)
}

func TestPruneStaleRewriteTempFilesIsNoopWhenDirMissing(t *testing.T) {
	require.NoError(t, pruneStaleRewriteTempFiles(filepath.Join(t.TempDir(), "nope")))
}
