// Package versionedlog defines the contract the snapshot cache consumes from
// the durable, append-only, globally-ordered log of entity versions.
//
// Two backends implement the contract: a relational one on SQLite and a
// key-value one on Pebble. Both uphold the same ordering guarantee: appends
// are totally ordered, and a version never becomes visible to readers before
// all smaller versions are visible. That guarantee is what lets the cache
// assume monotonic catch-up is always complete.
package versionedlog

import (
	"context"

	"github.com/chronomint/verscache/internal/model"
)

// Log is the read contract of the versioned log, plus the append operation
// used by loaders and tests. The snapshot cache itself only reads.
type Log interface {
	// LatestVersion returns the highest version in the log. The boolean is
	// false when the log is empty; an empty log is not an error.
	LatestVersion(ctx context.Context) (model.Version, bool, error)

	// VersionsInRange returns, for every entity key written at least once in
	// [from, to], the maximum version of that key within the range. It is a
	// pure, repeatable function of log contents up to "to".
	VersionsInRange(ctx context.Context, from, to model.Version) ([]model.KeyVersion, error)

	// SnapshotAt returns the exact record written at version for key, plus
	// the greatest prior version < version at which key was written. The
	// version must be one at which key was actually written; violating that
	// is a contract error, not a normal not-found.
	SnapshotAt(ctx context.Context, key model.EntityKey, version model.Version) (*model.Snapshot, error)

	// Append claims the next version (max existing + 1) and writes a payload
	// or tombstone for key at it, returning the assigned version.
	Append(ctx context.Context, key model.EntityKey, data []byte, delete bool) (model.Version, error)

	// Close releases the underlying store.
	Close() error
}
