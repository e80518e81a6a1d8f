// Package migrations applies one-time, idempotent upgrades to the
// on-disk artifacts a data directory accumulates across builds:
// rewriting a stale snapshot header version in place, and cleaning up
// rewrite temp files a prior crash left behind. Applied migrations are
// recorded in a small sidecar file so each one runs at most once.
//
// Repurposed from an ethdb-bucket-migration Migrator
// (migrations.go): same "ordered list, skip what's already applied,
// Up funcs must be idempotent" shape, retargeted from
// ethdb.Database/dbutils buckets to this module's data-directory
// artifacts (rdb snapshot headers, aof rewrite temp files), since this
// module keeps no on-disk bucket store to record progress in the way
// a dbutils.Migrations bucket did.
package migrations

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/coreworks/memkv/log"
)

// Migration is one named, idempotent upgrade step, matching a
// Migration{Name, Up} pair.
type Migration struct {
	Name string
	Up   func(dataDir string) error
}

// migrations apply sequentially in this order; skips already-applied
// entries per the sidecar file. Every Up func is expected to be
// idempotent regardless.
var migrations = []Migration{
	{Name: "stamp-rdb-header-version", Up: stampRDBHeaderVersion},
	{Name: "prune-stale-rewrite-temp-files", Up: pruneStaleRewriteTempFiles},
}

// appliedFileName is the sidecar recording which migrations have run,
// living alongside the snapshot/log files themselves.
const appliedFileName = "applied-migrations"

// Migrator runs the registered migrations against a data directory.
type Migrator struct {
	Migrations []Migration
}

// NewMigrator returns a Migrator configured with every registered
// migration, in order.
func NewMigrator() *Migrator {
	return &Migrator{Migrations: migrations}
}

// Apply runs every not-yet-applied migration against dataDir in
// order, recording each by name in the sidecar file as it completes.
func (m *Migrator) Apply(dataDir string) error {
	if len(m.Migrations) == 0 {
		return nil
	}

	appliedPath := filepath.Join(dataDir, appliedFileName)
	applied, err := readApplied(appliedPath)
	if err != nil {
		return err
	}

	for _, mg := range m.Migrations {
		if applied[mg.Name] {
			continue
		}
		log.Info("apply migration", "name", mg.Name)
		if err := mg.Up(dataDir); err != nil {
			return err
		}
		applied[mg.Name] = true
		if err := appendApplied(appliedPath, mg.Name); err != nil {
			return err
		}
		log.Info("applied migration", "name", mg.Name)
	}
	return nil
}

func readApplied(path string) (map[string]bool, error) {
	applied := map[string]bool{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applied, nil
		}
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name != "" {
			applied[name] = true
		}
	}
	return applied, sc.Err()
}

func appendApplied(path, name string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(name + "\n")
	return err
}
