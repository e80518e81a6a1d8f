package rewrite

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreworks/memkv/aof"
	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/types"
)

// replayDispatcher applies the reconstruction commands rewrite
// produces against a fresh set of databases, the same role the
// not-yet-built command executor plays in production.
type replayDispatcher struct {
	dbs map[int]*database.DB
	cfg *config.Config
}

func (d *replayDispatcher) InMulti() bool { return false }

func (d *replayDispatcher) Dispatch(dbID int, args [][]byte) error {
	db, ok := d.dbs[dbID]
	if !ok {
		db = database.New(dbID)
		d.dbs[dbID] = db
	}
	ops := &types.Ops{DB: db, Cfg: d.cfg}
	name := string(args[0])
	switch name {
	case "SET":
		ops.String().Set(string(args[1]), args[2])
	case "RPUSH":
		if _, err := ops.List().Push(string(args[1]), false, args[2:]...); err != nil {
			return err
		}
	case "SADD":
		members := make([]string, len(args)-2)
		for i, a := range args[2:] {
			members[i] = string(a)
		}
		if _, err := ops.Set().Add(string(args[1]), members...); err != nil {
			return err
		}
	case "HMSET":
		rest := args[2:]
		for i := 0; i+1 < len(rest); i += 2 {
			if _, err := ops.Hash().Set(string(args[1]), string(rest[i]), rest[i+1]); err != nil {
				return err
			}
		}
	case "ZADD":
		rest := args[2:]
		pairs := make(map[string]float64, len(rest)/2)
		for i := 0; i+1 < len(rest); i += 2 {
			score, err := strconv.ParseFloat(string(rest[i]), 64)
			if err != nil {
				return err
			}
			pairs[string(rest[i+1])] = score
		}
		if _, err := ops.ZSet().Add(string(args[1]), pairs); err != nil {
			return err
		}
	case "PEXPIREAT":
		deadline, err := strconv.ParseInt(string(args[2]), 10, 64)
		if err != nil {
			return err
		}
		db.SetExpireAt(string(args[1]), deadline)
	default:
		return fmt.Errorf("replayDispatcher: unhandled command %q", name)
	}
	return nil
}

func runAndReplay(t *testing.T, s *Session, finalPath string) *replayDispatcher {
	t.Helper()
	for {
		done, err := s.Step(1000)
		require.NoError(t, err)
		if done {
			break
		}
	}
	require.NoError(t, s.Finish())

	cfg := config.Default()
	dispatch := &replayDispatcher{dbs: map[int]*database.DB{}, cfg: cfg}
	require.NoError(t, aof.Load(finalPath, dispatch, false))
	return dispatch
}

func TestSessionReconstructsAllTypesAcrossDatabases(t *testing.T) {
	cfg := config.Default()

	db0 := database.New(0)
	ops0 := &types.Ops{DB: db0, Cfg: cfg}
	ops0.String().Set("greeting", []byte("hello"))
	db0.SetExpireAt("greeting", 5000)

	db1 := database.New(1)
	ops1 := &types.Ops{DB: db1, Cfg: cfg}
	if _, err := ops1.List().Push("mylist", false, []byte("a"), []byte("b")); err != nil {
		t.Fatal(err)
	}
	if _, err := ops1.Set().Add("myset", "x", "y", "z"); err != nil {
		t.Fatal(err)
	}
	if _, err := ops1.Hash().Set("myhash", "f", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if _, err := ops1.ZSet().Add("myzset", map[string]float64{"m": 3.5}); err != nil {
		t.Fatal(err)
	}

	finalPath := filepath.Join(t.TempDir(), "appendonly.aof")
	s := Begin([]*database.DB{db0, db1}, finalPath)
	dispatch := runAndReplay(t, s, finalPath)

	dstOps0 := &types.Ops{DB: dispatch.dbs[0], Cfg: cfg}
	v, ok, err := dstOps0.String().Get("greeting")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)
	deadline, ok := dispatch.dbs[0].GetExpireAt("greeting")
	require.True(t, ok)
	require.Equal(t, int64(5000), deadline)

	dstOps1 := &types.Ops{DB: dispatch.dbs[1], Cfg: cfg}
	elems, err := dstOps1.List().Range("mylist", 0, -1)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, elems)

	members, err := dstOps1.Set().Members("myset")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"x", "y", "z"}, members)

	hv, ok, err := dstOps1.Hash().Get("myhash", "f")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), hv)

	score, ok, err := dstOps1.ZSet().Score("myzset", "m")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3.5, score)
}

func TestSessionSkipsKeyDeletedAfterSnapshotTaken(t *testing.T) {
	cfg := config.Default()
	db := database.New(0)
	ops := &types.Ops{DB: db, Cfg: cfg}
	ops.String().Set("ghost", []byte("gone soon"))
	ops.String().Set("keeper", []byte("still here"))

	finalPath := filepath.Join(t.TempDir(), "appendonly.aof")
	s := Begin([]*database.DB{db}, finalPath)

	db.Delete("ghost")

	dispatch := runAndReplay(t, s, finalPath)
	require.False(t, dispatch.dbs[0].Exists("ghost"))
	require.True(t, dispatch.dbs[0].Exists("keeper"))
}

func TestSessionBatchesLargeCollectionsAtItemsPerCmd(t *testing.T) {
	cfg := config.Default()
	db := database.New(0)
	ops := &types.Ops{DB: db, Cfg: cfg}

	members := make([]string, 200)
	for i := range members {
		members[i] = strconv.Itoa(i)
	}
	if _, err := ops.Set().Add("bigset", members...); err != nil {
		t.Fatal(err)
	}

	finalPath := filepath.Join(t.TempDir(), "appendonly.aof")
	s := Begin([]*database.DB{db}, finalPath)
	dispatch := runAndReplay(t, s, finalPath)

	got, err := (&types.Ops{DB: dispatch.dbs[0], Cfg: cfg}).Set().Members("bigset")
	require.NoError(t, err)
	require.ElementsMatch(t, members, got)
}

func TestSessionCapturesConcurrentWritesViaDiffSink(t *testing.T) {
	cfg := config.Default()
	db := database.New(0)
	ops := &types.Ops{DB: db, Cfg: cfg}
	ops.String().Set("before", []byte("v1"))

	finalPath := filepath.Join(t.TempDir(), "appendonly.aof")
	s := Begin([]*database.DB{db}, finalPath)

	awriter, err := aof.Open(&config.Config{AofPath: filepath.Join(t.TempDir(), "live.aof"), AofFsync: config.FsyncNo})
	require.NoError(t, err)
	t.Cleanup(func() { awriter.Close() })
	awriter.SetDiffSink(s.DiffSink())

	// simulate a write applied by the executor while the rewrite walk is in progress
	ops.String().Set("during", []byte("v2"))
	awriter.Append(0, [][]byte{[]byte("SET"), []byte("during"), []byte("v2")}, 1000)

	dispatch := runAndReplay(t, s, finalPath)
	v, ok, err := (&types.Ops{DB: dispatch.dbs[0], Cfg: cfg}).String().Get("before")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	v, ok, err = (&types.Ops{DB: dispatch.dbs[0], Cfg: cfg}).String().Get("during")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
}

func TestCoordinatorAllowsOnlyOneChildAtATime(t *testing.T) {
	c := NewCoordinator()
	release1, ok := c.TryBegin()
	require.True(t, ok)

	_, ok = c.TryBegin()
	require.False(t, ok)

	release1()

	release2, ok := c.TryBegin()
	require.True(t, ok)
	release2()
}

func TestAbortRemovesTempFile(t *testing.T) {
	cfg := config.Default()
	db := database.New(0)
	ops := &types.Ops{DB: db, Cfg: cfg}
	ops.String().Set("k", []byte("v"))

	finalPath := filepath.Join(t.TempDir(), "appendonly.aof")
	s := Begin([]*database.DB{db}, finalPath)
	for {
		done, err := s.Step(1000)
		require.NoError(t, err)
		if done {
			break
		}
	}

	// Write the temp file out of band to prove Abort removes it.
	require.NoError(t, os.WriteFile(s.TempPath(), []byte("partial"), 0644))
	s.Abort()
	_, err := os.Stat(s.TempPath())
	require.True(t, os.IsNotExist(err))
}
