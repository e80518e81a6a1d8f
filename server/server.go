// Package server assembles the keyspace core's components (B–L) into
// the single-process object an external command dispatcher drives.
// spec.md §1 explicitly keeps the dispatcher, the client I/O loop, and
// the command table itself out of this module's scope — Server owns
// no command table and decodes no argv itself. It only constructs the
// per-database state, wires the narrow interfaces the components
// already expose (types.Notifier, expire.Notifier, aof.Dispatcher,
// txn.Executor, pubsub.Subscriber) to each other, runs startup
// migrations/restore, and exposes the handful of whole-server
// operations that are in scope regardless of the dispatcher: SAVE,
// BGSAVE, BGREWRITEAOF, and clean shutdown.
//
// Concurrency model, per SPEC_FULL §5: Server is a non-reentrant type.
// Every method documented here must be called from the single goroutine
// that owns command execution, the same contract database.DB itself
// carries: no internal locking, ownership is by convention and
// documentation, not a mutex.
package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreworks/memkv/aof"
	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/expire"
	"github.com/coreworks/memkv/log"
	"github.com/coreworks/memkv/migrations"
	"github.com/coreworks/memkv/pubsub"
	"github.com/coreworks/memkv/rdb"
	"github.com/coreworks/memkv/rewrite"
	"github.com/coreworks/memkv/txn"
	"github.com/coreworks/memkv/types"
)

// activeExpirePacePerSecond bounds how many keys Server's caller may
// inspect per second via Expire().ActiveCycle, scheduling itself being
// the out-of-scope dispatcher's job (spec.md §1).
const activeExpirePacePerSecond = 20000

// Server owns every in-memory database plus the durability and
// fan-out machinery around them.
type Server struct {
	cfg     *config.Config
	dataDir string

	dbs []*database.DB
	ops []*types.Ops

	expireEngine *expire.Engine
	aofWriter    *aof.Writer
	rewriteCoord *rewrite.Coordinator
	pubsubRouter *pubsub.Router
	migrator     *migrations.Migrator

	hub *notifyHub
}

// New constructs a Server from cfg, rooted at dataDir (where the
// snapshot, log, and migration sidecar files live). It opens the
// append-only log if configured on but does not load any data yet —
// call Restore to do that.
// New resolves cfg.RDBPath and cfg.AofPath relative to dataDir (they
// are expected to be bare filenames, as config.Default() provides) and
// constructs a Server. The caller's cfg is not mutated; Server keeps
// its own copy with the resolved paths.
func New(cfg *config.Config, dataDir string) (*Server, error) {
	resolved := *cfg
	resolved.RDBPath = filepath.Join(dataDir, cfg.RDBPath)
	resolved.AofPath = filepath.Join(dataDir, cfg.AofPath)

	s := &Server{
		cfg:          &resolved,
		dataDir:      dataDir,
		pubsubRouter: pubsub.NewRouter(),
		rewriteCoord: rewrite.NewCoordinator(),
		migrator:     migrations.NewMigrator(),
	}

	s.dbs = make([]*database.DB, resolved.DBNum)
	for i := range s.dbs {
		s.dbs[i] = database.New(i)
	}

	if resolved.AofState == config.AofOn || resolved.AofState == config.AofWaitRewrite {
		w, err := aof.Open(s.cfg)
		if err != nil {
			return nil, fmt.Errorf("server: opening append-only log: %w", err)
		}
		s.aofWriter = w
	}

	s.hub = &notifyHub{router: s.pubsubRouter, aofWriter: s.aofWriter}

	s.ops = make([]*types.Ops, resolved.DBNum)
	for i, db := range s.dbs {
		s.ops[i] = &types.Ops{DB: db, Cfg: s.cfg, Notifier: s.hub}
	}

	s.expireEngine = expire.NewEngine(s.hub, activeExpirePacePerSecond)
	for _, db := range s.dbs {
		db.Expire = s.expireEngine.Hook(db)
	}

	return s, nil
}

// DB returns the id'th logical database, or nil if id is out of range.
func (s *Server) DB(id int) *database.DB {
	if id < 0 || id >= len(s.dbs) {
		return nil
	}
	return s.dbs[id]
}

// Ops returns the typed-operations bundle for the id'th database, or
// nil if id is out of range.
func (s *Server) Ops(id int) *types.Ops {
	if id < 0 || id >= len(s.ops) {
		return nil
	}
	return s.ops[id]
}

// Expire returns the shared expiration engine (component F).
func (s *Server) Expire() *expire.Engine { return s.expireEngine }

// PubSub returns the shared pub/sub router (component L). The
// dispatcher calls Router.NewClient per connection.
func (s *Server) PubSub() *pubsub.Router { return s.pubsubRouter }

// NewTxnClient returns a fresh transaction-queue client (component K)
// bound to this server's databases, for the dispatcher to hand one
// connection.
func (s *Server) NewTxnClient() *txn.Client {
	return txn.NewClient(func(id int) *database.DB { return s.DB(id) })
}

// AOF returns the append-only log writer, or nil if the log is not
// currently enabled.
func (s *Server) AOF() *aof.Writer { return s.aofWriter }

func (s *Server) rdbPath() string { return s.cfg.RDBPath }
func (s *Server) aofPath() string { return s.cfg.AofPath }

// Restore applies pending data-directory migrations, then reconstructs
// every database from the append-only log if it is enabled (spec.md
// §4.7's "prefer the log, it is the more complete record"), otherwise
// from the snapshot if one exists.
//
// Restore does not itself decode command argv from the log: replaying
// a write-command log back into mutations is the dispatcher's command
// table (spec.md §1 scope cut) reused in replay mode, via the
// aof.Dispatcher interface — Restore's caller supplies that dispatcher.
// With a nil dispatcher the log is not replayed, even when it is
// enabled, and the snapshot is loaded instead. The expire engine
// reports loading for the duration of Restore.
func (s *Server) Restore(dispatch aof.Dispatcher) error {
	prevLoading := s.expireEngine.Loading
	s.expireEngine.Loading = func() bool { return true }
	defer func() { s.expireEngine.Loading = prevLoading }()

	if err := s.migrator.Apply(s.dataDir); err != nil {
		return fmt.Errorf("server: applying migrations: %w", err)
	}

	if s.cfg.AofState == config.AofOn && dispatch != nil {
		if err := aof.Load(s.aofPath(), dispatch, s.cfg.AofLoadTruncated); err != nil {
			return fmt.Errorf("server: replaying append-only log: %w", err)
		}
		return nil
	}

	f, err := os.Open(s.rdbPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("server: opening snapshot: %w", err)
	}
	defer f.Close()

	if err := rdb.Load(f, s.DB, s.cfg); err != nil {
		return fmt.Errorf("server: loading snapshot: %w", err)
	}
	return nil
}

// Save performs a foreground, synchronous snapshot of every database
// to the configured RDB path (the SAVE command, spec.md §4.6). It
// blocks the caller for the duration of the walk — BGSave is the
// non-blocking counterpart.
func (s *Server) Save() error {
	release, ok := s.rewriteCoord.TryBegin()
	if !ok {
		return fmt.Errorf("server: a snapshot or rewrite child is already running")
	}
	defer release()
	return s.saveLocked()
}

func (s *Server) saveLocked() error {
	tmp := s.rdbPath() + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	var compressor rdb.Compressor
	if s.cfg.RDBCompression {
		compressor = rdb.SnappyCompressor
	}
	if err := rdb.Save(f, s.dbs, compressor); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, s.rdbPath())
}

// BGSave runs Save on a background goroutine, matching spec.md §4.9's
// forked-child snapshot. This runtime has no fork(): since database.DB
// is not safe for concurrent use (spec.md §5, a single executor owns
// all state), the caller must not invoke any further mutating
// operation on s until done is closed — there is no cooperative
// per-key iterator here the way rewrite.Session provides for
// BGREWRITEAOF, because a snapshot's own wire format (unlike the
// append-only log) has no natural append point to resume from if the
// walk is interrupted partway. result receives the single completion
// error.
func (s *Server) BGSave() (done <-chan struct{}, result <-chan error) {
	doneCh := make(chan struct{})
	resultCh := make(chan error, 1)
	release, ok := s.rewriteCoord.TryBegin()
	if !ok {
		resultCh <- fmt.Errorf("server: a snapshot or rewrite child is already running")
		close(doneCh)
		return doneCh, resultCh
	}
	go func() {
		defer release()
		defer close(doneCh)
		err := s.saveLocked()
		if err != nil {
			log.Error("background save failed", "error", err)
		} else {
			log.Info("background save finished", "path", s.rdbPath())
		}
		resultCh <- err
	}()
	return doneCh, resultCh
}

// BeginRewrite acquires the single-child coordinator and returns a
// rewrite.Session snapshotting every database's current key list
// (component J, spec.md §4.8's BGREWRITEAOF). The caller's event loop
// must call Step repeatedly (interleaved with command execution, never
// concurrently with it) until done, then Finish. release must be
// called exactly once, after Finish or Abort.
func (s *Server) BeginRewrite() (session *rewrite.Session, release func(), err error) {
	release, ok := s.rewriteCoord.TryBegin()
	if !ok {
		return nil, nil, fmt.Errorf("server: a snapshot or rewrite child is already running")
	}
	sess := rewrite.Begin(s.dbs, s.aofPath())
	if s.aofWriter != nil {
		s.aofWriter.SetRewriteActive(true)
		s.aofWriter.SetDiffSink(sess.DiffSink())
	}
	return sess, func() {
		if s.aofWriter != nil {
			s.aofWriter.SetDiffSink(nil)
			s.aofWriter.SetRewriteActive(false)
		}
		release()
	}, nil
}

// Close flushes and closes the append-only log, if enabled.
func (s *Server) Close() error {
	if s.aofWriter == nil {
		return nil
	}
	return s.aofWriter.Close()
}
