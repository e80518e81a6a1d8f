// Package pubsub implements the publish/subscribe router of spec.md
// §4.11 (component L): channel and glob-pattern subscription tables
// and PUBLISH fan-out, independent of the connection/command layer
// that owns the actual client objects.
//
// Grounded on database.go's watch-index shape (a global map keyed by
// the subscribed-to thing, pointing at a set of subscriber handles) —
// the same "global table + per-client reverse list, torn down
// symmetrically" discipline this package needs for channels, adapted
// to add the pattern list §4.11 calls for alongside it.
package pubsub

import (
	mapset "github.com/deckarep/golang-set"

	"github.com/coreworks/memkv/common"
)

// Subscriber receives delivered messages. Implemented by whatever
// connection/client type the not-yet-built server layer uses; this
// package only needs the two delivery shapes spec.md §4.11 names.
type Subscriber interface {
	ReceiveMessage(channel, message string)
	ReceivePatternMessage(pattern, channel, message string)
}

type patternEntry struct {
	client  *Client
	pattern string
}

// Router owns the two global tables of spec.md §4.11: channel ->
// subscriber set, and the pattern subscription list.
type Router struct {
	channels map[string]mapset.Set // channel -> set of *Client
	patterns []patternEntry
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{channels: make(map[string]mapset.Set)}
}

// Client is one connection's subscription state: the channel set and
// pattern list spec.md §4.11 calls channels_subscribed/patterns_subscribed.
type Client struct {
	router   *Router
	sub      Subscriber
	channels mapset.Set // channel strings
	patterns []string
}

// NewClient returns a Client delivering to sub, registered against r.
func (r *Router) NewClient(sub Subscriber) *Client {
	return &Client{router: r, sub: sub, channels: mapset.NewSet()}
}

// Subscribe adds client to each channel's global subscriber list,
// creating the list on first subscriber; repeated subscription to an
// already-subscribed channel is a no-op.
func (c *Client) Subscribe(channels ...string) {
	for _, ch := range channels {
		if c.channels.Contains(ch) {
			continue
		}
		c.channels.Add(ch)
		set, ok := c.router.channels[ch]
		if !ok {
			set = mapset.NewSet()
			c.router.channels[ch] = set
		}
		set.Add(c)
	}
}

// Unsubscribe removes client from each named channel, or from every
// channel it is subscribed to if channels is empty (spec.md §4.11:
// "empty arg means all of the client's channels"). A channel whose
// subscriber list becomes empty is removed from the router. Returns
// the channels named (or, with no arguments, every channel the client
// held), including named channels it was not subscribed to, for the
// UNSUBSCRIBE reply.
func (c *Client) Unsubscribe(channels ...string) []string {
	if len(channels) == 0 {
		channels = stringSlice(c.channels)
	}
	for _, ch := range channels {
		if !c.channels.Contains(ch) {
			continue
		}
		c.channels.Remove(ch)
		if set, ok := c.router.channels[ch]; ok {
			set.Remove(c)
			if set.Cardinality() == 0 {
				delete(c.router.channels, ch)
			}
		}
	}
	return channels
}

// PSubscribe appends (client, pattern) to the router's global pattern
// list for each pattern and records it on the client.
func (c *Client) PSubscribe(patterns ...string) {
	for _, p := range patterns {
		c.patterns = append(c.patterns, p)
		c.router.patterns = append(c.router.patterns, patternEntry{c, p})
	}
}

// PUnsubscribe removes (client, pattern) entries, or every pattern the
// client holds if patterns is empty. Returns the patterns named (or
// every pattern the client held), whether or not each was held.
func (c *Client) PUnsubscribe(patterns ...string) []string {
	if len(patterns) == 0 {
		patterns = append([]string(nil), c.patterns...)
	}
	remove := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		remove[p] = true
	}

	keptClient := c.patterns[:0]
	for _, p := range c.patterns {
		if !remove[p] {
			keptClient = append(keptClient, p)
		}
	}
	c.patterns = keptClient

	keptGlobal := c.router.patterns[:0]
	for _, pe := range c.router.patterns {
		if pe.client == c && remove[pe.pattern] {
			continue
		}
		keptGlobal = append(keptGlobal, pe)
	}
	c.router.patterns = keptGlobal

	return patterns
}

// Close deregisters client from every channel and pattern it holds,
// for connection teardown.
func (c *Client) Close() {
	c.Unsubscribe()
	c.PUnsubscribe()
}

// Publish delivers message to every subscriber of channel, then to
// every pattern subscriber whose pattern glob-matches channel, and
// returns the total number of deliveries (spec.md §4.11 PUBLISH).
func (r *Router) Publish(channel, message string) int {
	count := 0
	if set, ok := r.channels[channel]; ok {
		for v := range set.Iter() {
			v.(*Client).sub.ReceiveMessage(channel, message)
			count++
		}
	}
	for _, pe := range r.patterns {
		if common.GlobMatch(pe.pattern, channel) {
			pe.client.sub.ReceivePatternMessage(pe.pattern, channel, message)
			count++
		}
	}
	return count
}

// Channels returns every channel with at least one subscriber,
// filtered to those matching pattern ("*" or "" matches all) — PUBSUB
// CHANNELS [pattern].
func (r *Router) Channels(pattern string) []string {
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		if pattern == "" || pattern == "*" || common.GlobMatch(pattern, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// NumSub returns the subscriber count for channel — PUBSUB NUMSUB.
func (r *Router) NumSub(channel string) int {
	if set, ok := r.channels[channel]; ok {
		return set.Cardinality()
	}
	return 0
}

// NumPat returns the total number of pattern subscriptions across all
// clients — PUBSUB NUMPAT.
func (r *Router) NumPat() int { return len(r.patterns) }

func stringSlice(s mapset.Set) []string {
	out := make([]string, 0, s.Cardinality())
	for v := range s.Iter() {
		out = append(out, v.(string))
	}
	return out
}
