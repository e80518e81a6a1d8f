// Command keydb-server is the thin process wiring config.Config into a
// server.Server, grounded on the cobra root-command/RunE shape of
// cmd/rpcdaemon/main.go. It does not itself speak any client
// protocol — the command dispatcher and network I/O loop are explicit
// Non-goals of the core this binary wires (spec.md §1) — so running it
// with no subcommand restores the data directory, then idles,
// performing only the maintenance this process's own lifecycle owns
// (periodic active expiration, a SAVE on graceful shutdown). The
// `save`, `bgsave`, and `bgrewriteaof` subcommands are one-shot admin
// operations against the data directory, matching spec.md §6.1's
// SAVE/BGSAVE/BGREWRITEAOF commands without requiring a dispatcher to
// issue them.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/log"
	"github.com/coreworks/memkv/server"
)

var flags struct {
	dataDir        string
	dbNum          int
	rdbPath        string
	aofPath        string
	aofState       string
	aofFsync       string
	rdbCompression bool
	rdbChecksum    bool
}

func buildConfig() (*config.Config, error) {
	var aofState config.AofState
	switch flags.aofState {
	case "on":
		aofState = config.AofOn
	case "off":
		aofState = config.AofOff
	case "waiting-for-rewrite":
		aofState = config.AofWaitRewrite
	default:
		return nil, fmt.Errorf("unrecognized --aof-state %q", flags.aofState)
	}

	var fsync config.FsyncPolicy
	switch flags.aofFsync {
	case "always":
		fsync = config.FsyncAlways
	case "everysec":
		fsync = config.FsyncEverysec
	case "no":
		fsync = config.FsyncNo
	default:
		return nil, fmt.Errorf("unrecognized --aof-fsync %q", flags.aofFsync)
	}

	return config.New(
		config.WithDBNum(flags.dbNum),
		config.WithRDBPath(flags.rdbPath),
		config.WithAofPath(flags.aofPath),
		config.WithAofState(aofState),
		config.WithAofFsync(fsync),
		config.WithRDBCompression(flags.rdbCompression),
		config.WithRDBChecksum(flags.rdbChecksum),
	), nil
}

func newServer() (*server.Server, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(flags.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s, err := server.New(cfg, flags.dataDir)
	if err != nil {
		return nil, err
	}
	// No command dispatcher is wired in this binary, so an enabled
	// append-only log cannot be replayed here; Restore falls back to
	// the RDB snapshot in that case (server.Server.Restore's doc).
	if err := s.Restore(nil); err != nil {
		s.Close()
		return nil, fmt.Errorf("restoring data directory: %w", err)
	}
	return s, nil
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keydb-server",
		Short: "in-memory keyspace core process",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newServer()
			if err != nil {
				return err
			}
			defer s.Close()
			log.Info("keydb-server ready", "data-dir", flags.dataDir, "databases", flags.dbNum)
			return idle(s)
		},
	}
	cmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "./data", "directory holding the snapshot, log, and migration state")
	cmd.PersistentFlags().IntVar(&flags.dbNum, "databases", 16, "number of logical databases")
	cmd.PersistentFlags().StringVar(&flags.rdbPath, "rdb-file", "dump.rdb", "snapshot filename, resolved under --data-dir")
	cmd.PersistentFlags().StringVar(&flags.aofPath, "aof-file", "appendonly.aof", "append-only log filename, resolved under --data-dir")
	cmd.PersistentFlags().StringVar(&flags.aofState, "aof-state", "off", "on|off|waiting-for-rewrite")
	cmd.PersistentFlags().StringVar(&flags.aofFsync, "aof-fsync", "everysec", "always|everysec|no")
	cmd.PersistentFlags().BoolVar(&flags.rdbCompression, "rdb-compression", true, "compress snapshot string values")
	cmd.PersistentFlags().BoolVar(&flags.rdbChecksum, "rdb-checksum", true, "verify the snapshot's CRC-64 footer on load")

	cmd.AddCommand(saveCommand(), bgSaveCommand(), bgRewriteAofCommand())
	return cmd
}

// idle keeps the process alive, performing the maintenance a real
// dispatcher would otherwise schedule between commands, until an
// interrupt or termination signal requests a graceful shutdown.
func idle(s *server.Server) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for i := 0; i < flags.dbNum; i++ {
				s.Expire().ActiveCycle(s.DB(i), nil)
			}
		case <-sig:
			log.Info("keydb-server shutting down, saving", "data-dir", flags.dataDir)
			if err := s.Save(); err != nil {
				log.Error("shutdown save failed", "error", err)
			}
			return nil
		}
	}
}

func saveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "synchronously write a snapshot of the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newServer()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Save()
		},
	}
}

func bgSaveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bgsave",
		Short: "write a snapshot in the background and wait for it to finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newServer()
			if err != nil {
				return err
			}
			defer s.Close()
			done, result := s.BGSave()
			<-done
			return <-result
		},
	}
}

func bgRewriteAofCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bgrewriteaof",
		Short: "compact the append-only log in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newServer()
			if err != nil {
				return err
			}
			defer s.Close()

			sess, release, err := s.BeginRewrite()
			if err != nil {
				return err
			}
			defer release()

			const stepBudget = 256
			for {
				done, err := sess.Step(stepBudget)
				if err != nil {
					sess.Abort()
					return err
				}
				if done {
					break
				}
			}
			return sess.Finish()
		},
	}
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
