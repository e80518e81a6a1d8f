package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreworks/memkv/config"
)

func testConfig() *config.Config {
	return config.New(config.WithDBNum(4))
}

func TestNewWiresConfiguredNumberOfDatabases(t *testing.T) {
	dir := t.TempDir()
	s, err := New(testConfig(), dir)
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.DB(0))
	require.NotNil(t, s.DB(3))
	require.Nil(t, s.DB(4))
	require.NotNil(t, s.Ops(0))
	require.Nil(t, s.Ops(-1))
}

func TestSaveThenRestoreRoundtripsData(t *testing.T) {
	dir := t.TempDir()
	s, err := New(testConfig(), dir)
	require.NoError(t, err)
	defer s.Close()

	s.Ops(0).String().Set("greeting", []byte("hello"))
	_, err = s.Ops(1).Set().Add("myset", "a", "b")
	require.NoError(t, err)

	require.NoError(t, s.Save())

	s2, err := New(testConfig(), dir)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.Restore(nil))

	val, ok, err := s2.Ops(0).String().Get("greeting")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), val)

	members, err := s2.Ops(1).Set().Members("myset")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, members)
}

func TestBGSaveProducesLoadableSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := New(testConfig(), dir)
	require.NoError(t, err)
	defer s.Close()

	s.Ops(0).String().Set("k", []byte("v"))

	done, result := s.BGSave()
	<-done
	require.NoError(t, <-result)

	s2, err := New(testConfig(), dir)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.Restore(nil))
	val, ok, err := s2.Ops(0).String().Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), val)
}

func TestSaveRejectsConcurrentRewrite(t *testing.T) {
	dir := t.TempDir()
	s, err := New(testConfig(), dir)
	require.NoError(t, err)
	defer s.Close()

	_, release, err := s.BeginRewrite()
	require.NoError(t, err)
	defer release()

	require.Error(t, s.Save())
}

func TestNotifyKeyspaceEventPublishesBothChannels(t *testing.T) {
	dir := t.TempDir()
	s, err := New(testConfig(), dir)
	require.NoError(t, err)
	defer s.Close()

	rec := &recordingSubscriber{}
	sub := s.PubSub().NewClient(rec)
	sub.PSubscribe("__key*@0__:*")

	s.Ops(0).String().Set("hello", []byte("world"))
	// Set notifies as well; the assertions below pick out the pair of
	// messages SADD publishes.
	n, err := s.Ops(0).Set().Add("myset", "m")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, rec.messages, "__key*@0__:*|__keyspace@0__:myset:sadd")
	require.Contains(t, rec.messages, "__key*@0__:*|__keyevent@0__:sadd:myset")
}

type recordingSubscriber struct {
	messages []string
}

func (r *recordingSubscriber) ReceiveMessage(channel, message string) {
	r.messages = append(r.messages, channel+":"+message)
}

func (r *recordingSubscriber) ReceivePatternMessage(pattern, channel, message string) {
	r.messages = append(r.messages, pattern+"|"+channel+":"+message)
}
