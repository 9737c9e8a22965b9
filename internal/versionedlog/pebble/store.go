// Package pebble provides the key-value backend of the versioned log.
//
// Records live under a record keyspace ordered by an order-preserving version
// sort key, with a per-entity index keyspace enabling direct fetch and
// previous-version lookup. Appends are serialized through a single writer and
// guarded by a duplicate-version existence check before the synced commit, so
// a version never becomes visible before all smaller versions. Reads are
// consistent by construction: the store is embedded in-process.
package pebble

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/chronomint/verscache/internal/errors"
	"github.com/chronomint/verscache/internal/model"
)

const (
	recordPrefix = "r!"
	entityPrefix = "e!"
	keySep       = "!"
)

// Store persists the versioned log in Pebble
type Store struct {
	db     *pebble.DB
	logger *zap.Logger

	// appendMu serializes version assignment. The contract requires the next
	// append to observe the previous one; a single writer plus the existence
	// check below guarantees that.
	appendMu sync.Mutex
}

// Open opens (creating if absent) a Pebble-backed log at dir
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.InvalidArgument("log directory is required", nil)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.StorageFailed("open pebble log", err)
	}

	logger.Info("Opened pebble versioned log", zap.String("dir", dir))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the Pebble handle
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(v model.Version) []byte {
	return []byte(recordPrefix + encodeVersionKey(v))
}

func entityKeyPrefix(key model.EntityKey) string {
	return entityPrefix + string(key.Kind) + keySep + key.ID + keySep
}

func entityIndexKey(key model.EntityKey, v model.Version) []byte {
	return []byte(entityKeyPrefix(key) + encodeVersionKey(v))
}

// LatestVersion returns the highest version in the log, or ok=false when the
// log is empty
func (s *Store) LatestVersion(ctx context.Context) (model.Version, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, errors.StorageFailed("latest version", err)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(recordPrefix),
		UpperBound: upperBound(recordPrefix),
	})
	if err != nil {
		return 0, false, errors.StorageFailed("open record iterator", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return 0, false, errors.StorageFailed("seek last record", err)
		}
		return 0, false, nil
	}

	v, err := decodeVersionKey(string(iter.Key()[len(recordPrefix):]))
	if err != nil {
		return 0, false, errors.CorruptedData("decode latest record key", err)
	}
	return v, true, nil
}

// VersionsInRange returns the maximum in-range version for every key written
// in [from, to]
func (s *Store) VersionsInRange(ctx context.Context, from, to model.Version) ([]model.KeyVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.StorageFailed("versions in range", err)
	}
	if to < from {
		return nil, nil
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: recordKey(from),
		UpperBound: recordKey(to + 1),
	})
	if err != nil {
		return nil, errors.StorageFailed("open range iterator", err)
	}
	defer iter.Close()

	// Records are scanned in ascending version order, so the last write per
	// key inside the range is its in-range maximum.
	latest := make(map[model.EntityKey]model.Version)
	var order []model.EntityKey
	for iter.First(); iter.Valid(); iter.Next() {
		v, err := decodeVersionKey(string(iter.Key()[len(recordPrefix):]))
		if err != nil {
			return nil, errors.CorruptedData("decode record key", err)
		}
		key, _, _, err := decodeRecord(iter.Value())
		if err != nil {
			return nil, errors.CorruptedData(fmt.Sprintf("decode record at version %d", v), err)
		}
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = v
	}
	if err := iter.Error(); err != nil {
		return nil, errors.StorageFailed("iterate range", err)
	}

	result := make([]model.KeyVersion, 0, len(order))
	for _, key := range order {
		result = append(result, model.KeyVersion{Key: key, Version: latest[key]})
	}
	return result, nil
}

// SnapshotAt returns the record written at exactly (key, version) plus the
// key's greatest prior version
func (s *Store) SnapshotAt(ctx context.Context, key model.EntityKey, version model.Version) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.StorageFailed("snapshot at", err)
	}

	raw, closer, err := s.db.Get(recordKey(version))
	if stderrors.Is(err, pebble.ErrNotFound) {
		return nil, errors.ContractViolation(
			fmt.Sprintf("no record for %s at version %d", key, version))
	}
	if err != nil {
		return nil, errors.StorageFailed("fetch record", err)
	}
	recKey, data, deleted, err := decodeRecord(raw)
	closer.Close()
	if err != nil {
		return nil, errors.CorruptedData(fmt.Sprintf("decode record at version %d", version), err)
	}
	if recKey != key {
		return nil, errors.ContractViolation(
			fmt.Sprintf("version %d belongs to %s, not %s", version, recKey, key))
	}

	prev, hasPrev, err := s.previousVersion(key, version)
	if err != nil {
		return nil, err
	}

	return &model.Snapshot{
		Data:        data,
		Deleted:     deleted,
		PrevVersion: prev,
		HasPrev:     hasPrev,
	}, nil
}

// previousVersion finds the greatest version < before at which key was
// written, via reverse iteration over the entity index
func (s *Store) previousVersion(key model.EntityKey, before model.Version) (model.Version, bool, error) {
	prefix := entityKeyPrefix(key)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: entityIndexKey(key, before),
	})
	if err != nil {
		return 0, false, errors.StorageFailed("open entity index iterator", err)
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return 0, false, errors.StorageFailed("seek entity index", err)
		}
		return 0, false, nil
	}

	v, err := decodeVersionKey(string(iter.Key()[len(prefix):]))
	if err != nil {
		return 0, false, errors.CorruptedData("decode entity index key", err)
	}
	return v, true, nil
}

// Append claims max+1 under the writer lock and commits the record and its
// entity index entry in one synced batch
func (s *Store) Append(ctx context.Context, key model.EntityKey, data []byte, delete bool) (model.Version, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	latest, ok, err := s.LatestVersion(ctx)
	if err != nil {
		return 0, err
	}
	next := model.Version(0)
	if ok {
		next = latest + 1
	}

	// Conditional-write guard: the claimed version must not exist yet.
	_, closer, err := s.db.Get(recordKey(next))
	if err == nil {
		closer.Close()
		return 0, errors.StorageFailed(
			fmt.Sprintf("version %d already assigned", next), nil)
	}
	if !stderrors.Is(err, pebble.ErrNotFound) {
		return 0, errors.StorageFailed("check version availability", err)
	}

	batch := s.db.NewBatch()
	if err := batch.Set(recordKey(next), encodeRecord(key, data, delete), nil); err != nil {
		return 0, errors.StorageFailed("stage record", err)
	}
	if err := batch.Set(entityIndexKey(key, next), nil, nil); err != nil {
		return 0, errors.StorageFailed("stage entity index entry", err)
	}
	if err := s.db.Apply(batch, pebble.Sync); err != nil {
		return 0, errors.StorageFailed("commit append", err)
	}

	s.logger.Debug("Appended record",
		zap.String("key", key.String()),
		zap.Int64("version", int64(next)),
		zap.Bool("delete", delete))

	return next, nil
}

// upperBound returns the exclusive upper bound covering every key with the
// given prefix
func upperBound(prefix string) []byte {
	b := []byte(prefix)
	b[len(b)-1]++
	return b
}
