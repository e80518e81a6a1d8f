// Package value implements the tagged polymorphic value object of
// spec.md §3.1 (component B): every key in a database points at one
// of these. The natural Go shape for "type + encoding + payload" is a
// small struct carrying an enum pair plus an untyped payload that the
// types/ package downcasts — a tagged-value dispatch generalized from
// core/vm/absint_valueset.go's "abstract
// interpreter value" to "stored value".
package value

import (
	"sync/atomic"

	"github.com/aristanetworks/goarista/monotime"
)

// Type is the logical type of a value (spec.md §3.1).
type Type uint8

const (
	TypeString Type = iota
	TypeList
	TypeSet
	TypeHash
	TypeZSet
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeHash:
		return "hash"
	case TypeZSet:
		return "zset"
	default:
		return "unknown"
	}
}

// Encoding is the concrete representation backing a Type (spec.md
// §3.1 table). Encoding may only move "right" (compact -> general)
// during a value's lifetime; it never downgrades.
type Encoding uint8

const (
	EncIntInline    Encoding = iota // string: inline 64-bit integer
	EncRaw                          // string: raw byte-string (also forced on unshare-before-mutate)
	EncListZiplist                 // list: packed contiguous array
	EncListLinked                  // list: doubly linked list
	EncSetIntset                   // set: sorted packed integer array
	EncSetRoaring                  // set: roaring-bitmap acceleration tier (SPEC_FULL §3)
	EncSetHashtable                // set: hash-table
	EncHashZiplist                 // hash: packed contiguous pairs
	EncHashtable                   // hash: hash-table
	EncZsetZiplist                 // zset: packed contiguous pairs
	EncZsetSkiplist                // zset: skip-list + companion map
)

// UserFacing returns the encoding name as OBJECT ENCODING reports it.
// The roaring-bitmap set tier is an internal acceleration of the
// general set representation (SPEC_FULL §3) and is never surfaced as a
// distinct value: it reports as "hashtable", identical to
// EncSetHashtable, preserving spec.md's two documented set encodings.
func (e Encoding) UserFacing() string {
	switch e {
	case EncIntInline:
		return "int"
	case EncRaw:
		return "raw"
	case EncListZiplist:
		return "ziplist"
	case EncListLinked:
		return "linkedlist"
	case EncSetIntset:
		return "intset"
	case EncSetRoaring, EncSetHashtable:
		return "hashtable"
	case EncHashZiplist:
		return "ziplist"
	case EncHashtable:
		return "hashtable"
	case EncZsetZiplist:
		return "ziplist"
	case EncZsetSkiplist:
		return "skiplist"
	default:
		return "unknown"
	}
}

// Value is the tagged union described in spec.md §3.1. Data holds the
// type+encoding-specific payload; the types/ package is the only
// place that type-asserts it.
type Value struct {
	Type     Type
	Encoding Encoding
	Data     interface{}

	refcount int32
	lru      uint32
}

// NewValue wraps data as an owned, singly-referenced value.
func NewValue(t Type, enc Encoding, data interface{}) *Value {
	v := &Value{Type: t, Encoding: enc, Data: data, refcount: 1}
	v.Touch(true)
	return v
}

// Refcount returns the number of owners; a value with Refcount() > 1
// is shared and must be copied before an in-place mutation (spec.md
// §4.3 "string unshare-before-mutate").
func (v *Value) Refcount() int32 { return atomic.LoadInt32(&v.refcount) }

// Retain records a new owner (e.g. the small-shared-integer pool
// handing the same *Value to two keys).
func (v *Value) Retain() *Value {
	atomic.AddInt32(&v.refcount, 1)
	return v
}

// Release drops one owner; callers that drove refcount to zero are
// responsible for discarding their last handle (Go's GC reclaims the
// memory — Release exists so shared-object bookkeeping, not manual
// freeing, stays correct).
func (v *Value) Release() int32 {
	return atomic.AddInt32(&v.refcount, -1)
}

// LRU returns the coarse monotonic stamp last recorded by Touch.
func (v *Value) LRU() uint32 { return atomic.LoadUint32(&v.lru) }

// Touch refreshes the LRU stamp when force is true and leaves it
// unchanged otherwise — callers pass false while a snapshot or rewrite
// child is active, per
// spec.md §3.1 ("updated on read iff no background save/rewrite is in
// flight; the pause exists to avoid dirtying copy-on-write pages").
func (v *Value) Touch(force bool) {
	if !force {
		return
	}
	atomic.StoreUint32(&v.lru, uint32(monotime.Now()/1e6))
}

// Clone produces an independent copy of v with its own Data, for the
// unshare-before-mutate path (spec.md §4.3). The types/ package
// supplies the actual deep copy of Data since only it knows the
// payload shape; Clone copies the envelope.
func (v *Value) Clone(newData interface{}) *Value {
	return NewValue(v.Type, v.Encoding, newData)
}
