package rdb

import (
	"bufio"
	"bytes"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/database"
)

// SaveFile writes a snapshot to path, buffering writes rather than
// issuing one syscall per record.
func SaveFile(path string, dbs []*database.DB, compressor Compressor) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	if err := Save(bw, dbs, compressor); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// LoadFile loads a snapshot from path by memory-mapping it read-only
// (spec.md §4.6 loader behavior: the whole file is parsed start to
// finish, so mmap avoids a buffered-read copy for what is usually a
// multi-gigabyte sequential scan).
func LoadFile(path string, dbByID func(id int) *database.DB, cfg *config.Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return err
	}
	defer m.Unmap()

	return Load(bytes.NewReader([]byte(m)), dbByID, cfg)
}
