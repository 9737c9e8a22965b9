// Package sqlite provides the relational backend of the versioned log.
//
// Versions live in a single table keyed by an INTEGER PRIMARY KEY. The next
// version is computed as max existing + 1 inside an immediate transaction, so
// the gap between the old maximum and infinity is locked against concurrent
// appenders and no version ever becomes visible out of order.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chronomint/verscache/internal/errors"
	"github.com/chronomint/verscache/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	version   INTEGER PRIMARY KEY,
	kind      TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	deleted   INTEGER NOT NULL DEFAULT 0,
	data      BLOB
);
CREATE INDEX IF NOT EXISTS idx_records_entity ON records(kind, entity_id, version);
`

// Store persists the versioned log in SQLite
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if absent) a SQLite-backed log at path
func Open(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.InvalidArgument("log path is required", nil)
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.StorageFailed("open sqlite log", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.StorageFailed("ping sqlite log", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.StorageFailed("apply log schema", err)
	}

	logger.Info("Opened sqlite versioned log", zap.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

// Close closes the SQLite handle
func (s *Store) Close() error {
	return s.db.Close()
}

// LatestVersion returns the highest version in the log, or ok=false when the
// log is empty
func (s *Store) LatestVersion(ctx context.Context) (model.Version, bool, error) {
	var latest sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM records`).Scan(&latest)
	if err != nil {
		return 0, false, errors.StorageFailed("query latest version", err)
	}
	if !latest.Valid {
		return 0, false, nil
	}
	return model.Version(latest.Int64), true, nil
}

// VersionsInRange returns the maximum in-range version for every key written
// in [from, to]
func (s *Store) VersionsInRange(ctx context.Context, from, to model.Version) ([]model.KeyVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, entity_id, MAX(version)
		FROM records
		WHERE version >= ? AND version <= ?
		GROUP BY kind, entity_id`,
		int64(from), int64(to))
	if err != nil {
		return nil, errors.StorageFailed("query versions in range", err)
	}
	defer rows.Close()

	var result []model.KeyVersion
	for rows.Next() {
		var kind, id string
		var version int64
		if err := rows.Scan(&kind, &id, &version); err != nil {
			return nil, errors.StorageFailed("scan range row", err)
		}
		result = append(result, model.KeyVersion{
			Key:     model.EntityKey{Kind: model.Kind(kind), ID: id},
			Version: model.Version(version),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageFailed("iterate range rows", err)
	}
	return result, nil
}

// SnapshotAt returns the record written at exactly (key, version) plus the
// key's greatest prior version
func (s *Store) SnapshotAt(ctx context.Context, key model.EntityKey, version model.Version) (*model.Snapshot, error) {
	var deleted bool
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT deleted, data FROM records
		WHERE kind = ? AND entity_id = ? AND version = ?`,
		string(key.Kind), key.ID, int64(version)).Scan(&deleted, &data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ContractViolation(
			fmt.Sprintf("no record for %s at version %d", key, version))
	}
	if err != nil {
		return nil, errors.StorageFailed("query snapshot record", err)
	}

	var prev sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT MAX(version) FROM records
		WHERE kind = ? AND entity_id = ? AND version < ?`,
		string(key.Kind), key.ID, int64(version)).Scan(&prev)
	if err != nil {
		return nil, errors.StorageFailed("query previous version", err)
	}

	snap := &model.Snapshot{
		Data:    data,
		Deleted: deleted,
	}
	if prev.Valid {
		snap.PrevVersion = model.Version(prev.Int64)
		snap.HasPrev = true
	}
	return snap, nil
}

// Append claims max+1 inside an immediate transaction and writes the record
func (s *Store) Append(ctx context.Context, key model.EntityKey, data []byte, delete bool) (model.Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.StorageFailed("begin append transaction", err)
	}
	defer tx.Rollback()

	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), -1) + 1 FROM records`).Scan(&next); err != nil {
		return 0, errors.StorageFailed("compute next version", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (version, kind, entity_id, deleted, data)
		VALUES (?, ?, ?, ?, ?)`,
		next, string(key.Kind), key.ID, delete, data); err != nil {
		return 0, errors.StorageFailed("insert record", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.StorageFailed("commit append", err)
	}

	s.logger.Debug("Appended record",
		zap.String("key", key.String()),
		zap.Int64("version", next),
		zap.Bool("delete", delete))

	return model.Version(next), nil
}
