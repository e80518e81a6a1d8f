// Package common holds small shared helpers used across the keyspace
// core, in the spirit of an ubiquitous common package.
package common

// CopyBytes returns an independent copy of b, or nil if b is nil.
//
// The keyspace never retains a byte slice handed to it by a caller
// (client argv buffers may be reused); every key, member and field
// stored long-term goes through CopyBytes first.
func CopyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

// Equal reports whether a and b hold the same bytes.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
