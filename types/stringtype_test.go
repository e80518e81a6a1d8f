package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/database"
	"github.com/coreworks/memkv/value"
)

func newTestOps() *Ops {
	return &Ops{DB: database.New(0), Cfg: config.Default()}
}

func TestSetAndGetRoundtrip(t *testing.T) {
	o := newTestOps()
	s := o.String()
	s.Set("k", []byte("hello"))

	got, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), got)
}

func TestSetIntegerUsesCompactEncoding(t *testing.T) {
	o := newTestOps()
	s := o.String()
	s.Set("k", []byte("42"))

	v, ok := o.DB.LookupForRead("k", false)
	require.True(t, ok)
	require.Equal(t, value.EncIntInline, v.Encoding)

	got, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("42"), got)
}

func TestSetNonCanonicalIntegerStaysRaw(t *testing.T) {
	o := newTestOps()
	s := o.String()
	s.Set("k", []byte("007"))

	v, ok := o.DB.LookupForRead("k", false)
	require.True(t, ok)
	require.Equal(t, value.EncRaw, v.Encoding)
}

func TestSetClearsExpiry(t *testing.T) {
	o := newTestOps()
	s := o.String()
	s.Set("k", []byte("v1"))
	o.DB.SetExpireAt("k", 123456)

	s.Set("k", []byte("v2"))
	_, ok := o.DB.GetExpireAt("k")
	require.False(t, ok)
}

func TestSetNXDoesNotOverwrite(t *testing.T) {
	o := newTestOps()
	s := o.String()
	require.True(t, s.SetNX("k", []byte("first")))
	require.False(t, s.SetNX("k", []byte("second")))

	got, _, _ := s.Get("k")
	require.Equal(t, []byte("first"), got)
}

func TestAppendCreatesKeyIfMissing(t *testing.T) {
	o := newTestOps()
	s := o.String()
	n, err := s.Append("k", []byte("ab"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = s.Append("k", []byte("cd"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	got, _, _ := s.Get("k")
	require.Equal(t, []byte("abcd"), got)
}

func TestAppendUnsharesSharedIntHandle(t *testing.T) {
	o1 := newTestOps()
	o2 := newTestOps()
	s1, s2 := o1.String(), o2.String()
	s1.Set("a", []byte("5"))
	s2.Set("b", []byte("5"))

	_, err := s1.Append("a", []byte("x"))
	require.NoError(t, err)

	got, _, _ := s2.Get("b")
	require.Equal(t, []byte("5"), got, "unsharing a's handle must not mutate b's shared value")
}

func TestAppendWrongTypeErrors(t *testing.T) {
	o := newTestOps()
	o.DB.Add("k", value.NewValue(value.TypeList, value.EncListLinked, nil))
	_, err := o.String().Append("k", []byte("x"))
	require.Error(t, err)
}

func TestIncrByOnMissingKeyStartsAtZero(t *testing.T) {
	o := newTestOps()
	s := o.String()
	n, err := s.IncrBy("counter", 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	n, err = s.IncrBy("counter", -2)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestIncrByNonIntegerErrors(t *testing.T) {
	o := newTestOps()
	s := o.String()
	s.Set("k", []byte("notanumber"))
	_, err := s.IncrBy("k", 1)
	require.Error(t, err)
}

func TestIncrByFloat(t *testing.T) {
	o := newTestOps()
	s := o.String()
	f, err := s.IncrByFloat("k", 1.5)
	require.NoError(t, err)
	require.Equal(t, 1.5, f)

	f, err = s.IncrByFloat("k", 2.25)
	require.NoError(t, err)
	require.Equal(t, 3.75, f)
}

func TestLenOnMissingKeyIsZero(t *testing.T) {
	o := newTestOps()
	n, err := o.String().Len("missing")
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
