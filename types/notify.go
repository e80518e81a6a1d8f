// Package types implements the per-type operations of spec.md §4.3
// (component D): string, list, set, hash and zset commands, each
// validating the stored type, checking compact-encoding thresholds on
// mutation, upgrading in place, touching watches, and emitting a
// keyspace-event notification on successful mutation.
//
// Grounded on ethdb/bitmapdb/dbutils.go's "append, check size
// threshold, upgrade representation" shape, generalized from disk
// bitmap sharding to in-memory value-encoding upgrades.
package types

import (
	"github.com/coreworks/memkv/config"
	"github.com/coreworks/memkv/database"
)

// Notifier receives the keyspace-event notification string spec.md
// §4.3 requires on every successful mutation. The network/pub-sub
// fan-out of these events is the out-of-scope dispatcher's job; this
// package only decides *that* and *what* to notify.
type Notifier interface {
	NotifyKeyspaceEvent(dbID int, event, key string)
}

// Ops bundles the per-database context every typed operation needs:
// the database itself, the size-threshold configuration driving
// encoding upgrades, and the notification sink.
type Ops struct {
	DB       *database.DB
	Cfg      *config.Config
	Notifier Notifier
}

func (o *Ops) notify(event, key string) {
	if o.Notifier != nil {
		o.Notifier.NotifyKeyspaceEvent(o.DB.ID, event, key)
	}
	o.DB.TouchWatchedKey(key)
}

// deleteIfEmpty implements spec.md §4.3's "aggregate empty-becomes-
// absent" law: callers that just removed the last element of a
// list/set/hash/zset call this to drop the key (and its expiry).
func (o *Ops) deleteIfEmpty(key string, empty bool) {
	if empty {
		o.DB.Delete(key)
	}
}
