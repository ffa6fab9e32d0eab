// Package cache keeps the most recent score of every job in a key-value store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/metrics"
	"github.com/openjobs/jobmatch/internal/scoring"
	"github.com/openjobs/jobmatch/internal/storage"
)

const (
	DefaultKey    = "jobmatch.scores"
	DefaultMaxAge = 24 * time.Hour
)

type Option func(*ScoreCache)

func WithKey(key string) Option {
	return func(c *ScoreCache) { c.key = key }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *ScoreCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *ScoreCache) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *ScoreCache) { c.now = now }
}

// ScoreCache maps job ids to their latest score. The whole map is persisted
// as one JSON document under a single store key by Flush and Teardown; Put
// and purges only touch memory. Store failures are logged and never returned.
type ScoreCache struct {
	mu      sync.Mutex
	store   storage.Store
	key     string
	entries map[string]json.RawMessage
	dirty   bool

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(store storage.Store, opts ...Option) *ScoreCache {
	c := &ScoreCache{
		store:   store,
		key:     DefaultKey,
		entries: make(map[string]json.RawMessage),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entry shadows the integer score so that non-integral and invalid values
// can be told apart on read.
type entry struct {
	scoring.Result
	Score *float64 `json:"score"`
}

// Init loads the persisted entries, replacing what is in memory.
func (c *ScoreCache) Init(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]json.RawMessage)
	c.dirty = false

	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		c.logger.Warn("failed to load score cache", zap.Error(err))
		return
	}

	if err := json.Unmarshal([]byte(raw), &c.entries); err != nil {
		c.logger.Warn("dropping corrupted score cache", zap.Error(err))
		c.entries = make(map[string]json.RawMessage)
		if err := c.store.Remove(ctx, c.key); err != nil {
			c.logger.Warn("failed to remove score cache", zap.Error(err))
		}
		return
	}

	c.logger.Debug("score cache loaded", zap.Int("entries", len(c.entries)))
}

// Flush writes the entries to the store if they changed since the last write.
func (c *ScoreCache) Flush(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dirty {
		c.persist(ctx)
	}
}

// Teardown flushes the entries to the store.
func (c *ScoreCache) Teardown(ctx context.Context) {
	c.Flush(ctx)
}

// Get returns the cached result for jobID, or nil when it is absent, older
// than maxAge or malformed. Expired and malformed entries are deleted.
// A non-positive maxAge means DefaultMaxAge.
func (c *ScoreCache) Get(_ context.Context, jobID string, maxAge time.Duration) *scoring.Result {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.entries[jobID]
	if !ok {
		c.metrics.CacheLookup(metrics.CacheMiss)
		return nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Score == nil || !scoring.ValidScore(*e.Score) {
		c.logger.Warn("purging invalid cache entry", zap.String("job_id", jobID))
		c.metrics.CacheLookup(metrics.CacheInvalid)
		c.evict(jobID)
		return nil
	}

	age := c.now().Sub(time.UnixMilli(e.Timestamp))
	if age > maxAge {
		c.logger.Debug("cache entry expired", zap.String("job_id", jobID), zap.Duration("age", age))
		c.metrics.CacheLookup(metrics.CacheExpired)
		c.evict(jobID)
		return nil
	}

	c.metrics.CacheLookup(metrics.CacheHit)
	res := e.Result
	res.Score = int(math.Round(*e.Score))
	return &res
}

// Put stamps result with the current time and stores a copy under jobID,
// replacing any previous entry.
func (c *ScoreCache) Put(_ context.Context, jobID string, result *scoring.Result) {
	if result == nil || jobID == "" {
		return
	}

	stored := *result
	stored.JobID = jobID
	stored.Timestamp = c.now().UnixMilli()

	raw, err := json.Marshal(&stored)
	if err != nil {
		c.logger.Warn("failed to encode score", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[jobID] = raw
	c.dirty = true
}

// Clear drops every entry.
func (c *ScoreCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]json.RawMessage)
	c.dirty = false
	if err := c.store.Remove(ctx, c.key); err != nil {
		c.logger.Warn("failed to clear score cache", zap.Error(err))
	}
}

// Len is the number of entries, valid or not.
func (c *ScoreCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *ScoreCache) evict(jobID string) {
	delete(c.entries, jobID)
	c.dirty = true
}

// persist must be called with mu held.
func (c *ScoreCache) persist(ctx context.Context) {
	raw, err := json.Marshal(c.entries)
	if err != nil {
		c.logger.Warn("failed to encode score cache", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.key, string(raw)); err != nil {
		c.logger.Warn("failed to persist score cache", zap.Error(err))
		return
	}
	c.dirty = false
}
