// Package config carries the recognized configuration of spec.md
// §6.5 as a single plain struct, constructed with functional options,
// following the plain-struct-into-constructor convention
// (NewBolt()..., NewMemDatabase()) rather than a generic config
// framework.
package config

import "time"

// FsyncPolicy selects the append-only log's fsync discipline
// (spec.md §4.7).
type FsyncPolicy string

const (
	FsyncAlways   FsyncPolicy = "always"
	FsyncEverysec FsyncPolicy = "everysec"
	FsyncNo       FsyncPolicy = "no"
)

// AofState mirrors spec.md §6.5's aof_state tri-state.
type AofState string

const (
	AofOff           AofState = "off"
	AofOn            AofState = "on"
	AofWaitRewrite   AofState = "waiting-for-rewrite"
)

// Config is the full set of options the core reads, per spec.md §6.5.
type Config struct {
	DBNum int

	ListMaxZiplistEntries int
	ListMaxZiplistValue   int
	SetMaxIntsetEntries   int
	HashMaxZiplistEntries int
	HashMaxZiplistValue   int
	ZsetMaxZiplistEntries int
	ZsetMaxZiplistValue   int

	RDBCompression bool
	RDBChecksum    bool
	RDBPath        string

	AofState                AofState
	AofFsync                FsyncPolicy
	AofPath                 string
	AofRewriteIncrementalFsyncEvery int64 // bytes, spec.md: 32MB
	AofLoadTruncated        bool
	AofNoFsyncOnRewrite     bool

	EverysecMaxPostpone time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

// Default returns the documented defaults (spec.md §3.2 invariant 3,
// §6.5 table).
func Default() *Config {
	return &Config{
		DBNum:                 16,
		ListMaxZiplistEntries: 128,
		ListMaxZiplistValue:   64,
		SetMaxIntsetEntries:   512,
		HashMaxZiplistEntries: 128,
		HashMaxZiplistValue:   64,
		ZsetMaxZiplistEntries: 128,
		ZsetMaxZiplistValue:   64,
		RDBCompression:        true,
		RDBChecksum:           true,
		RDBPath:               "dump.rdb",
		AofState:              AofOff,
		AofFsync:              FsyncEverysec,
		AofPath:               "appendonly.aof",
		AofRewriteIncrementalFsyncEvery: 32 * 1024 * 1024,
		EverysecMaxPostpone:   2 * time.Second,
	}
}

// New builds a Config from Default() with the given options applied.
func New(opts ...Option) *Config {
	c := Default()
	for _, o := range opts {
		o(c)
	}
	return c
}

func WithDBNum(n int) Option            { return func(c *Config) { c.DBNum = n } }
func WithRDBPath(p string) Option       { return func(c *Config) { c.RDBPath = p } }
func WithAofPath(p string) Option       { return func(c *Config) { c.AofPath = p } }
func WithAofState(s AofState) Option    { return func(c *Config) { c.AofState = s } }
func WithAofFsync(p FsyncPolicy) Option { return func(c *Config) { c.AofFsync = p } }
func WithRDBCompression(b bool) Option  { return func(c *Config) { c.RDBCompression = b } }
func WithRDBChecksum(b bool) Option     { return func(c *Config) { c.RDBChecksum = b } }
