package migrations

import (
	"os"
	"path/filepath"
	"strings"
)

// pruneStaleRewriteTempFiles removes leftover "temp-rewriteaof-bg-*"
// files (rewrite.Session's private output path, see rewrite/pipeline.go)
// from a rewrite that never reached its rename step — a prior crash,
// per spec.md §4.8's own failure path ("temp file unlinked, rewrite-
// buffer reset"). Safe unconditionally: the live log is only ever
// replaced by the atomic rename at the end of a successful rewrite, so
// a temp file still present at startup was never live.
func pruneStaleRewriteTempFiles(dataDir string) error {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "temp-rewriteaof-bg-") {
			if err := os.Remove(filepath.Join(dataDir, e.Name())); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}
