package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefcount(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("hello"))
	require.EqualValues(t, 1, v.Refcount())
	v.Retain()
	require.EqualValues(t, 2, v.Refcount())
	require.EqualValues(t, 1, v.Release())
}

func TestSharedIntPoolReusesHandle(t *testing.T) {
	a := SharedInt(42)
	b := SharedInt(42)
	require.Same(t, a, b)
	require.GreaterOrEqual(t, a.Refcount(), int32(2))
}

func TestSharedIntOutsideRangeIsFresh(t *testing.T) {
	a := SharedInt(sharedIntegerPoolSize + 1)
	b := SharedInt(sharedIntegerPoolSize + 1)
	require.NotSame(t, a, b)
}

func TestTouchPausedDoesNotAdvance(t *testing.T) {
	v := NewValue(TypeString, EncRaw, []byte("x"))
	before := v.LRU()
	v.Touch(false)
	require.Equal(t, before, v.LRU())
}
