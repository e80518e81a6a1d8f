package migrations

import (
	"io"
	"os"
	"path/filepath"
)

// rdbMagic and the version token this build's rdb package writes,
// duplicated rather than imported: migrations must keep recognizing
// and rewriting an older version's header byte-for-byte even after a
// future build changes rdb.formatVersion again, so it intentionally
// does not track rdb's current constant.
const (
	rdbMagic         = "REDIS"
	currentVersion   = "0011"
	rdbHeaderLen     = len(rdbMagic) + len(currentVersion)
	snapshotFileName = "dump.rdb"
)

// stampRDBHeaderVersion rewrites an older-version snapshot header's
// 4-digit version field to the current one in place. The wire layout
// this build reads/writes has not changed since version "0010"; only
// the header's own version token needs updating so a future migration
// can tell, from the file alone, that this one has already run.
func stampRDBHeaderVersion(dataDir string) error {
	path := filepath.Join(dataDir, snapshotFileName)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	header := make([]byte, rdbHeaderLen)
	n, err := f.ReadAt(header, 0)
	if err != nil {
		if err == io.EOF && n < rdbHeaderLen {
			return nil // file shorter than a full header: nothing to stamp, not corrupt
		}
		return err
	}
	if string(header[:len(rdbMagic)]) != rdbMagic {
		return nil // not our format; leave untouched
	}
	if string(header[len(rdbMagic):]) == currentVersion {
		return nil // already current
	}

	_, err = f.WriteAt([]byte(currentVersion), int64(len(rdbMagic)))
	return err
}
