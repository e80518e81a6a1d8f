// Package metrics wraps prometheus/client_golang the way
// common/dbutils/bucket.go consumed a metrics package
// (metrics.NewRegisteredCounter(name, nil)).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewRegisteredCounter creates and registers a counter with the
// default registry, ignoring the labels argument (kept only to mirror
// that call signature; this core has no per-label metrics).
func NewRegisteredCounter(name string, _ interface{}) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: sanitize(name),
		Help: name,
	})
	_ = prometheus.Register(c)
	return c
}

// NewRegisteredGauge creates and registers a gauge with the default
// registry.
func NewRegisteredGauge(name string, _ interface{}) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: sanitize(name),
		Help: name,
	})
	_ = prometheus.Register(g)
	return g
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// Counters used across the core, registered once at package init.
var (
	KeyspaceHits    = NewRegisteredCounter("keyspace/hits", nil)
	KeyspaceMisses  = NewRegisteredCounter("keyspace/misses", nil)
	ExpiredKeys     = NewRegisteredCounter("keyspace/expired", nil)
	DirtyCounter    = NewRegisteredGauge("keyspace/dirty", nil)
	CommandsTotal   = NewRegisteredCounter("commands/total", nil)
	RewriteDuration = NewRegisteredGauge("rewrite/lastDurationMs", nil)
	SnapshotDuration = NewRegisteredGauge("snapshot/lastDurationMs", nil)
)
