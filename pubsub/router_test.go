package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSubscriber struct {
	messages        [][2]string
	patternMessages [][3]string
}

func (r *recordingSubscriber) ReceiveMessage(channel, message string) {
	r.messages = append(r.messages, [2]string{channel, message})
}

func (r *recordingSubscriber) ReceivePatternMessage(pattern, channel, message string) {
	r.patternMessages = append(r.patternMessages, [3]string{pattern, channel, message})
}

func TestSubscribeAndPublishDeliversToChannelSubscriber(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.Subscribe("news")

	n := r.Publish("news", "hello")
	require.Equal(t, 1, n)
	require.Equal(t, [][2]string{{"news", "hello"}}, sub.messages)
}

func TestPublishToChannelWithNoSubscribersReturnsZero(t *testing.T) {
	r := NewRouter()
	require.Equal(t, 0, r.Publish("nobody-home", "msg"))
}

func TestPatternSubscriberReceivesMatchingPublish(t *testing.T) {
	r := NewRouter()
	channelSub := &recordingSubscriber{}
	patternSub := &recordingSubscriber{}

	c1 := r.NewClient(channelSub)
	c1.Subscribe("news")
	c2 := r.NewClient(patternSub)
	c2.PSubscribe("n*")

	n := r.Publish("news", "hi")
	require.Equal(t, 2, n)
	require.Equal(t, [][2]string{{"news", "hi"}}, channelSub.messages)
	require.Equal(t, [][3]string{{"n*", "news", "hi"}}, patternSub.patternMessages)
}

func TestUnsubscribeWithNoArgsRemovesAllChannels(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.Subscribe("a", "b", "c")

	removed := c.Unsubscribe()
	require.ElementsMatch(t, []string{"a", "b", "c"}, removed)
	require.Equal(t, 0, r.Publish("a", "x"))
	require.Empty(t, sub.messages)
}

func TestUnsubscribeRemovesEmptyChannelFromRouter(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.Subscribe("news")
	c.Unsubscribe("news")

	require.Empty(t, r.Channels("*"))
	require.Equal(t, 0, r.NumSub("news"))
}

func TestPUnsubscribeWithNoArgsRemovesAllPatterns(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.PSubscribe("a*", "b*")
	require.Equal(t, 2, r.NumPat())

	removed := c.PUnsubscribe()
	require.ElementsMatch(t, []string{"a*", "b*"}, removed)
	require.Equal(t, 0, r.NumPat())
}

func TestPUnsubscribeSpecificPatternLeavesOthersIntact(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.PSubscribe("a*", "b*")

	c.PUnsubscribe("a*")
	require.Equal(t, 1, r.NumPat())

	n := r.Publish("boom", "x")
	require.Equal(t, 1, n)
	require.Len(t, sub.patternMessages, 1)
	require.Equal(t, "b*", sub.patternMessages[0][0])
}

func TestCloseDeregistersChannelsAndPatterns(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.Subscribe("news")
	c.PSubscribe("n*")

	c.Close()
	require.Equal(t, 0, r.Publish("news", "x"))
	require.Empty(t, sub.messages)
	require.Empty(t, sub.patternMessages)
}

func TestPubsubChannelsFiltersByPattern(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.Subscribe("news.sports", "news.weather", "chat.general")

	require.ElementsMatch(t, []string{"news.sports", "news.weather"}, r.Channels("news.*"))
	require.ElementsMatch(t, []string{"news.sports", "news.weather", "chat.general"}, r.Channels("*"))
}

func TestNumSubCountsMultipleSubscribers(t *testing.T) {
	r := NewRouter()
	c1 := r.NewClient(&recordingSubscriber{})
	c2 := r.NewClient(&recordingSubscriber{})
	c1.Subscribe("room")
	c2.Subscribe("room")

	require.Equal(t, 2, r.NumSub("room"))
}

func TestRepeatedSubscribeToSameChannelIsNoop(t *testing.T) {
	r := NewRouter()
	sub := &recordingSubscriber{}
	c := r.NewClient(sub)
	c.Subscribe("news")
	c.Subscribe("news")

	require.Equal(t, 1, r.NumSub("news"))
	n := r.Publish("news", "x")
	require.Equal(t, 1, n)
}
