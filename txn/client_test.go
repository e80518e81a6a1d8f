package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/value"
)

func resolverFor(dbs ...*database.DB) DBResolver {
	return func(id int) *database.DB {
		for _, db := range dbs {
			if db.ID == id {
				return db
			}
		}
		return nil
	}
}

func TestMultiSetsInMultiAndRejectsNesting(t *testing.T) {
	c := NewClient(resolverFor())
	require.NoError(t, c.Multi())
	require.True(t, c.InMulti())
	require.ErrorIs(t, c.Multi(), ErrNestedMulti)
}

func TestWatchInsideMultiIsRejected(t *testing.T) {
	db := database.New(0)
	c := NewClient(resolverFor(db))
	require.NoError(t, c.Multi())
	require.ErrorIs(t, c.Watch(0, "k"), ErrWatchInsideMulti)
}

func TestExecWithoutMultiIsRejected(t *testing.T) {
	c := NewClient(resolverFor())
	_, err := c.Exec(nil)
	require.ErrorIs(t, err, ErrExecWithoutMulti)
}

type fakeExecutor struct {
	writes      map[string]bool
	loggedBegin bool
	loggedEnd   bool
	applied     [][]byte
}

func (f *fakeExecutor) Execute(dbID int, args [][]byte) (interface{}, error) {
	f.applied = append(f.applied, args[0])
	return string(args[0]), nil
}

func (f *fakeExecutor) IsWrite(args [][]byte) bool {
	return f.writes[string(args[0])]
}

func (f *fakeExecutor) LogTransactionBoundary(begin bool) {
	if begin {
		f.loggedBegin = true
	} else {
		f.loggedEnd = true
	}
}

func TestExecRunsQueuedCommandsInOrderAndFramesWrites(t *testing.T) {
	db := database.New(0)
	c := NewClient(resolverFor(db))
	require.NoError(t, c.Multi())
	c.Enqueue(0, [][]byte{[]byte("GET"), []byte("k")})
	c.Enqueue(0, [][]byte{[]byte("SET"), []byte("k"), []byte("v")})

	exec := &fakeExecutor{writes: map[string]bool{"SET": true}}
	replies, err := c.Exec(exec)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	require.Equal(t, "GET", replies[0].Value)
	require.Equal(t, "SET", replies[1].Value)
	require.True(t, exec.loggedBegin)
	require.True(t, exec.loggedEnd)
	require.False(t, c.InMulti())
}

func TestExecWithNoWritesNeverFramesBoundary(t *testing.T) {
	db := database.New(0)
	c := NewClient(resolverFor(db))
	require.NoError(t, c.Multi())
	c.Enqueue(0, [][]byte{[]byte("GET"), []byte("k")})

	exec := &fakeExecutor{writes: map[string]bool{}}
	_, err := c.Exec(exec)
	require.NoError(t, err)
	require.False(t, exec.loggedBegin)
	require.False(t, exec.loggedEnd)
}

func TestExecAbortsWithDirtyQueueAsExecAbort(t *testing.T) {
	db := database.New(0)
	c := NewClient(resolverFor(db))
	require.NoError(t, c.Multi())
	c.MarkQueueDirty()
	c.Enqueue(0, [][]byte{[]byte("SET"), []byte("k"), []byte("v")})

	exec := &fakeExecutor{writes: map[string]bool{"SET": true}}
	replies, err := c.Exec(exec)
	require.Nil(t, replies)
	require.ErrorIs(t, err, ErrExecAbort)
	require.Empty(t, exec.applied)
	require.False(t, c.InMulti())
}

func TestWatchedKeyMutationDirtiesExecToNilArray(t *testing.T) {
	db := database.New(0)
	db.Add("k", value.NewValue(value.TypeString, value.EncIntInline, int64(1)))

	c := NewClient(resolverFor(db))
	require.NoError(t, c.Watch(0, "k"))
	require.NoError(t, c.Multi())
	c.Enqueue(0, [][]byte{[]byte("INCR"), []byte("k")})

	// a concurrent mutation of the watched key between WATCH and EXEC
	db.Set("k", value.NewValue(value.TypeString, value.EncIntInline, int64(2)))

	exec := &fakeExecutor{writes: map[string]bool{"INCR": true}}
	replies, err := c.Exec(exec)
	require.Nil(t, replies)
	require.ErrorIs(t, err, ErrDirtyWatch)
	require.Empty(t, exec.applied)
}

func TestUnwatchedKeyMutationDoesNotDirtyExec(t *testing.T) {
	db := database.New(0)
	db.Add("k", value.NewValue(value.TypeString, value.EncIntInline, int64(1)))
	db.Add("other", value.NewValue(value.TypeString, value.EncIntInline, int64(1)))

	c := NewClient(resolverFor(db))
	require.NoError(t, c.Watch(0, "k"))
	require.NoError(t, c.Multi())
	c.Enqueue(0, [][]byte{[]byte("GET"), []byte("k")})

	db.Set("other", value.NewValue(value.TypeString, value.EncIntInline, int64(99)))

	exec := &fakeExecutor{}
	replies, err := c.Exec(exec)
	require.NoError(t, err)
	require.Len(t, replies, 1)
}

func TestUnwatchDeregistersFromWatchIndex(t *testing.T) {
	db := database.New(0)
	db.Add("k", value.NewValue(value.TypeString, value.EncIntInline, int64(1)))

	c := NewClient(resolverFor(db))
	require.NoError(t, c.Watch(0, "k"))
	c.Unwatch()

	// after Unwatch, mutating k must not dirty a freshly started transaction
	db.Set("k", value.NewValue(value.TypeString, value.EncIntInline, int64(2)))
	require.NoError(t, c.Multi())
	c.Enqueue(0, [][]byte{[]byte("GET"), []byte("k")})

	exec := &fakeExecutor{}
	replies, err := c.Exec(exec)
	require.NoError(t, err)
	require.Len(t, replies, 1)
}

func TestDiscardClearsQueueWatchesAndFlags(t *testing.T) {
	db := database.New(0)
	db.Add("k", value.NewValue(value.TypeString, value.EncIntInline, int64(1)))

	c := NewClient(resolverFor(db))
	require.NoError(t, c.Watch(0, "k"))
	require.NoError(t, c.Multi())
	c.Enqueue(0, [][]byte{[]byte("GET"), []byte("k")})

	c.Discard()
	require.False(t, c.InMulti())

	// the watch must have been torn down too
	db.Set("k", value.NewValue(value.TypeString, value.EncIntInline, int64(2)))
	require.NoError(t, c.Multi())
	exec := &fakeExecutor{}
	replies, err := c.Exec(exec)
	require.NoError(t, err)
	require.Empty(t, replies)
}

func TestRepeatedWatchOfSameKeyIsNoop(t *testing.T) {
	db := database.New(0)
	db.Add("k", value.NewValue(value.TypeString, value.EncIntInline, int64(1)))

	c := NewClient(resolverFor(db))
	require.NoError(t, c.Watch(0, "k"))
	require.NoError(t, c.Watch(0, "k"))
	require.Len(t, c.watched, 1)
}
