package aof

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/log"
)

// initialBufferCap sizes the in-memory pending-write buffer so a
// typical burst of commands between event-loop iterations doesn't
// force a reallocation.
var initialBufferCap = 64 * datasize.KB

// Writer implements spec.md §4.7's write pipeline: commands are
// translated into log form and appended to an in-memory buffer;
// Flush issues the single per-iteration write() and enforces the
// fsync policy.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  bytes.Buffer
	cfg  *config.Config

	selectedDB   int
	haveSelected bool

	fileSize int64 // size on disk as of the last successful Flush

	rewriteActive int32 // atomic bool, toggled by the rewrite package
	fsyncing      int32 // atomic bool: a background fsync is in flight

	diffSink         func(dbID int, args [][]byte)
	diffSelectedDB   int
	diffHaveSelected bool

	lastWriteErr error
	stopFsync    chan struct{}
}

// SetDiffSink installs (or, with nil, removes) a callback invoked with
// every translated record Append produces, mirroring spec.md §4.8's
// "parent appends the same formatted command to the rewrite buffer"
// rule. The rewrite pipeline installs this for the duration of a
// background rewrite so it can capture writes applied concurrently
// with its own cooperative dataset walk. The diff stream tracks its
// own SELECT state independent of the main log's, since it starts
// fresh every time a rewrite begins.
func (w *Writer) SetDiffSink(sink func(dbID int, args [][]byte)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.diffSink = sink
	w.diffHaveSelected = false
}

// Open opens (creating if necessary) the log file at cfg.AofPath for
// appending and starts the background fsync worker if the configured
// policy is "everysec".
func Open(cfg *config.Config) (*Writer, error) {
	f, err := os.OpenFile(cfg.AofPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &Writer{file: f, cfg: cfg, fileSize: info.Size(), selectedDB: -1}
	w.buf.Grow(int(initialBufferCap.Bytes()))

	if cfg.AofFsync == config.FsyncEverysec {
		w.stopFsync = make(chan struct{})
		go w.backgroundFsync()
	}
	return w, nil
}

// Append encodes one applied write for dbID into the pending buffer,
// emitting an implicit SELECT first if the log's current database
// differs from dbID (spec.md §4.7). nowMs resolves EXPIRE's relative
// forms to an absolute PEXPIREAT deadline.
func (w *Writer) Append(dbID int, args [][]byte, nowMs int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.haveSelected || w.selectedDB != dbID {
		w.buf.Write(EncodeCommand([][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbID))}))
		w.selectedDB = dbID
		w.haveSelected = true
	}
	recs := TranslateForLog(args, nowMs)
	if w.diffSink != nil {
		if !w.diffHaveSelected || w.diffSelectedDB != dbID {
			w.diffSink(dbID, [][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbID))})
			w.diffSelectedDB = dbID
			w.diffHaveSelected = true
		}
	}
	for _, rec := range recs {
		w.buf.Write(EncodeCommand(rec))
		if w.diffSink != nil {
			w.diffSink(dbID, rec)
		}
	}
}

// Flush issues the single write() of spec.md §4.7 point 2. A partial
// write truncates the file back to its previous size; under "always"
// fsync that is fatal, otherwise the unwritten suffix stays buffered
// for the next call.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if w.buf.Len() == 0 {
		return nil
	}
	pending := w.buf.Bytes()
	n, err := w.file.Write(pending)
	if err != nil || n < len(pending) {
		truncated := true
		if terr := w.file.Truncate(w.fileSize); terr != nil {
			log.Error("aof: ftruncate after partial write failed", "err", terr)
			truncated = false
		}
		if w.cfg.AofFsync == config.FsyncAlways {
			w.buf.Reset()
			w.lastWriteErr = fmt.Errorf("aof: partial write under always fsync is fatal: %w", err)
			return w.lastWriteErr
		}
		if !truncated {
			// the written prefix stayed on disk: drop it, keep the rest for retry
			w.buf.Next(n)
			w.fileSize += int64(n)
		}
		w.lastWriteErr = err
		return err
	}

	w.fileSize += int64(n)
	w.buf.Reset()
	w.lastWriteErr = nil
	if w.cfg.AofFsync == config.FsyncAlways {
		return w.fsyncLocked()
	}
	return nil
}

func (w *Writer) fsyncLocked() error {
	return w.file.Sync()
}

// LastWriteError reports the last Flush failure, so callers can
// implement spec.md §8's "further writes may be refused until it
// clears" rule.
func (w *Writer) LastWriteError() error { return w.lastWriteErr }

// SetRewriteActive is called by the rewrite pipeline while a child is
// live, so the background fsync worker can honor
// aof-no-fsync-on-rewrite (spec.md §4.7 point 4).
func (w *Writer) SetRewriteActive(active bool) {
	var v int32
	if active {
		v = 1
	}
	atomic.StoreInt32(&w.rewriteActive, v)
}

func (w *Writer) rewriteInProgress() bool {
	return atomic.LoadInt32(&w.rewriteActive) == 1
}

// backgroundFsync implements the "everysec" policy: fsync once per
// second unless a rewrite child is active and no-fsync-on-rewrite is
// set; if a fsync is already running when the tick fires, the flush
// may be postponed up to cfg.EverysecMaxPostpone before being forced
// (spec.md §4.7 point 3).
func (w *Writer) backgroundFsync() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var inFlightSince time.Time
	for {
		select {
		case <-w.stopFsync:
			return
		case <-ticker.C:
			if w.cfg.AofNoFsyncOnRewrite && w.rewriteInProgress() {
				continue
			}
			if atomic.LoadInt32(&w.fsyncing) == 1 {
				if !inFlightSince.IsZero() && time.Since(inFlightSince) > w.cfg.EverysecMaxPostpone {
					w.forceFsync()
				}
				continue
			}
			atomic.StoreInt32(&w.fsyncing, 1)
			inFlightSince = time.Now()
			w.forceFsync()
			atomic.StoreInt32(&w.fsyncing, 0)
			inFlightSince = time.Time{}
		}
	}
}

func (w *Writer) forceFsync() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fsyncLocked(); err != nil {
		log.Warn("aof: background fsync failed", "err", err)
	}
}

// Close flushes any pending bytes, stops the background fsync worker
// if running, and closes the file.
func (w *Writer) Close() error {
	if w.stopFsync != nil {
		close(w.stopFsync)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}
