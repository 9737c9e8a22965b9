package model

import "fmt"

// Version identifies a point in the log's total order. Versions are assigned
// monotonically across all entity keys in one log, starting at 0.
type Version int64

// NoVersion is the sentinel for "no version yet" (empty log, uninitialized
// watermark). Real versions are always >= 0.
const NoVersion Version = -1

// Kind is an entity type tag. The set of valid kinds is closed: every kind the
// cache handles must be registered with a codec up front.
type Kind string

// EntityKey uniquely names one versioned entity.
type EntityKey struct {
	Kind Kind
	ID   string
}

// String returns the composite form used in log output and error messages.
func (k EntityKey) String() string {
	return fmt.Sprintf("%s/%s", k.Kind, k.ID)
}

// KeyVersion pairs an entity key with the version at which it was written.
// Range scans over the log return one KeyVersion per distinct key, carrying
// the key's maximum version inside the scanned range.
type KeyVersion struct {
	Key     EntityKey
	Version Version
}

// Record is a single row of the versioned log: the payload (or tombstone)
// written for Key at exactly Version.
type Record struct {
	Key     EntityKey
	Version Version
	Data    []byte
	Deleted bool // true if this version is a tombstone
}

// Snapshot is an immutable chain node memoized by the cache: the record
// written at some (key, version) plus the back-pointer to the key's greatest
// prior version. Snapshots are never mutated after creation, which is what
// makes the entry store safe to read without synchronization.
type Snapshot struct {
	Data        []byte
	Deleted     bool
	PrevVersion Version
	HasPrev     bool // false means this is the key's first recorded version
}
