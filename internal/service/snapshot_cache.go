package service

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronomint/verscache/internal/codec"
	"github.com/chronomint/verscache/internal/errors"
	"github.com/chronomint/verscache/internal/metrics"
	"github.com/chronomint/verscache/internal/model"
	"github.com/chronomint/verscache/internal/versionedlog"
)

// SnapshotCache answers "what was the state of entity E at version V" against
// a versioned log, storing one immutable chain node per distinct (key, version)
// ever visited rather than one snapshot per queried version.
//
// The entity version index and the watermark move forward only. Chain nodes
// are published once and never mutated, so concurrent readers need no
// synchronization beyond the publish itself: duplicate fetches for the same
// node race harmlessly because the log is append-only and every computation
// of a node yields the same value.
type SnapshotCache struct {
	log      versionedlog.Log
	registry *codec.Registry
	config   *SnapshotCacheConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// mu guards index and watermark. The watermark is only advanced after the
	// index entries for the newly covered range have all been applied, so a
	// reader that observes watermark >= V also observes every index entry
	// implied by versions <= V.
	mu        sync.RWMutex
	index     map[model.EntityKey]model.Version
	watermark model.Version

	// entries memoizes chain nodes keyed by (entity key, version).
	// LoadOrStore keeps the first published node; losers of the race discard
	// an identical value.
	entries   sync.Map
	nodeCount atomic.Int64
}

// SnapshotCacheConfig holds snapshot cache configuration
type SnapshotCacheConfig struct {
	MaxParallelResolve int
}

// Entity is one enumeration result: an entity id with its decoded payload
type Entity struct {
	ID    string      `json:"id"`
	Value interface{} `json:"value"`
}

// Stats describes the cache's current state
type Stats struct {
	Watermark         int64 `json:"watermark"` // -1 until the first catch-up
	IndexedEntities   int   `json:"indexed_entities"`
	MaterializedNodes int   `json:"materialized_nodes"`
}

type entryKey struct {
	key     model.EntityKey
	version model.Version
}

// NewSnapshotCache creates a new snapshot cache over the given log. Metrics
// may be nil.
func NewSnapshotCache(
	log versionedlog.Log,
	registry *codec.Registry,
	cfg *SnapshotCacheConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SnapshotCache {
	if cfg == nil {
		cfg = &SnapshotCacheConfig{}
	}
	if cfg.MaxParallelResolve <= 0 {
		cfg.MaxParallelResolve = 8
	}
	return &SnapshotCache{
		log:       log,
		registry:  registry,
		config:    cfg,
		metrics:   m,
		logger:    logger,
		index:     make(map[model.EntityKey]model.Version),
		watermark: model.NoVersion,
	}
}

// Get returns the state of the entity at the greatest version <= target. A
// NotFound error means the entity had no live version by then: never written
// yet, or deleted.
func (c *SnapshotCache) Get(ctx context.Context, key model.EntityKey, target model.Version) (interface{}, error) {
	start := time.Now()
	value, err := c.get(ctx, key, target)
	c.observeQuery("get", start, err)
	return value, err
}

func (c *SnapshotCache) get(ctx context.Context, key model.EntityKey, target model.Version) (interface{}, error) {
	if target < 0 {
		return nil, errors.InvalidVersion(int64(target), "must be non-negative")
	}
	if !c.registry.Supports(key.Kind) {
		return nil, errors.UnsupportedKind(string(key.Kind))
	}
	if err := c.ensureWatermark(ctx, target); err != nil {
		return nil, err
	}

	c.mu.RLock()
	cursor, ok := c.index[key]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound(string(key.Kind), key.ID, int64(target))
	}

	// Walk the backward chain from the latest known version until a version
	// at or below target. PrevVersion strictly decreases, so this terminates;
	// each node is fetched from the log at most once per process lifetime.
	depth := 0
	for {
		depth++
		snap, err := c.nodeAt(ctx, key, cursor)
		if err != nil {
			return nil, err
		}
		if cursor <= target {
			c.observeDepth(depth)
			if snap.Deleted {
				return nil, errors.NotFound(string(key.Kind), key.ID, int64(target))
			}
			return c.registry.Decode(key.Kind, snap.Data)
		}
		if !snap.HasPrev {
			// The entity's first version is beyond target: it did not exist yet.
			c.observeDepth(depth)
			return nil, errors.NotFound(string(key.Kind), key.ID, int64(target))
		}
		cursor = snap.PrevVersion
	}
}

// GetAll returns every entity of the given kind that has a live (non-deleted)
// version at or below target, sorted by id.
func (c *SnapshotCache) GetAll(ctx context.Context, kind model.Kind, target model.Version) ([]Entity, error) {
	start := time.Now()
	entities, err := c.getAll(ctx, kind, target)
	c.observeQuery("get_all", start, err)
	return entities, err
}

func (c *SnapshotCache) getAll(ctx context.Context, kind model.Kind, target model.Version) ([]Entity, error) {
	if target < 0 {
		return nil, errors.InvalidVersion(int64(target), "must be non-negative")
	}
	if !c.registry.Supports(kind) {
		return nil, errors.UnsupportedKind(string(kind))
	}
	if err := c.ensureWatermark(ctx, target); err != nil {
		return nil, err
	}

	// The index holds every key ever seen, which is what makes enumeration
	// complete; index entries are never evicted.
	c.mu.RLock()
	keys := make([]model.EntityKey, 0)
	for key := range c.index {
		if key.Kind == kind {
			keys = append(keys, key)
		}
	}
	c.mu.RUnlock()

	results := make([]*Entity, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MaxParallelResolve)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			value, err := c.get(gctx, key, target)
			if err != nil {
				if errors.IsNotFound(err) {
					return nil
				}
				return err
			}
			results[i] = &Entity{ID: key.ID, Value: value}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(results))
	for _, e := range results {
		if e != nil {
			entities = append(entities, *e)
		}
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	return entities, nil
}

// Latest returns the log's current highest version, or ok=false when the log
// is empty. Callers use it as the target for "state as of now" queries.
func (c *SnapshotCache) Latest(ctx context.Context) (model.Version, bool, error) {
	c.countLogFetch("latest_version")
	return c.log.LatestVersion(ctx)
}

// Stats returns cache statistics
func (c *SnapshotCache) Stats() Stats {
	c.mu.RLock()
	wm := c.watermark
	indexed := len(c.index)
	c.mu.RUnlock()

	return Stats{
		Watermark:         int64(wm),
		IndexedEntities:   indexed,
		MaterializedNodes: int(c.nodeCount.Load()),
	}
}

// ensureWatermark makes the index complete up to target. Concurrent callers
// on overlapping ranges may each fetch and apply redundantly; values only
// move forward, so the race is harmless. Nothing is applied when the range
// fetch fails.
func (c *SnapshotCache) ensureWatermark(ctx context.Context, target model.Version) error {
	c.mu.RLock()
	cur := c.watermark
	c.mu.RUnlock()
	if target <= cur {
		return nil
	}

	// Clamp to the log's current end. The watermark must never pass versions
	// that do not exist yet: a later append at a skipped version would land
	// below the watermark and be invisible to every future catch-up.
	c.countLogFetch("latest_version")
	latest, ok, err := c.log.LatestVersion(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if target > latest {
		target = latest
	}
	if target <= cur {
		return nil
	}

	start := time.Now()
	c.countLogFetch("versions_in_range")
	kvs, err := c.log.VersionsInRange(ctx, cur+1, target)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for _, kv := range kvs {
		// The returned version is already the max in range, and ranges only
		// advance, so index values cannot regress.
		if existing, ok := c.index[kv.Key]; !ok || kv.Version > existing {
			c.index[kv.Key] = kv.Version
		}
	}
	if target > c.watermark {
		c.watermark = target
	}
	wm := c.watermark
	indexed := len(c.index)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CatchUpDuration.Observe(time.Since(start).Seconds())
		c.metrics.WatermarkVersion.Set(float64(wm))
		c.metrics.IndexedEntities.Set(float64(indexed))
	}
	c.logger.Debug("Watermark advanced",
		zap.Int64("watermark", int64(wm)),
		zap.Int("applied", len(kvs)),
		zap.Int("indexed_entities", indexed))

	return nil
}

// nodeAt returns the memoized chain node for (key, version), fetching it from
// the log on first use
func (c *SnapshotCache) nodeAt(ctx context.Context, key model.EntityKey, version model.Version) (*model.Snapshot, error) {
	ek := entryKey{key: key, version: version}
	if v, ok := c.entries.Load(ek); ok {
		if c.metrics != nil {
			c.metrics.NodeHitsTotal.Inc()
		}
		return v.(*model.Snapshot), nil
	}

	if c.metrics != nil {
		c.metrics.NodeMissesTotal.Inc()
	}
	c.countLogFetch("snapshot_at")
	snap, err := c.log.SnapshotAt(ctx, key, version)
	if err != nil {
		return nil, err
	}

	actual, loaded := c.entries.LoadOrStore(ek, snap)
	if !loaded {
		n := c.nodeCount.Add(1)
		if c.metrics != nil {
			c.metrics.MaterializedNodes.Set(float64(n))
		}
	}
	return actual.(*model.Snapshot), nil
}

func (c *SnapshotCache) countLogFetch(op string) {
	if c.metrics != nil {
		c.metrics.LogFetchesTotal.WithLabelValues(op).Inc()
	}
}

func (c *SnapshotCache) observeDepth(depth int) {
	if c.metrics != nil {
		c.metrics.ChainWalkDepth.Observe(float64(depth))
	}
}

func (c *SnapshotCache) observeQuery(op string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "found"
	switch {
	case errors.IsNotFound(err):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	c.metrics.QueriesTotal.WithLabelValues(op, outcome).Inc()
	c.metrics.QueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
