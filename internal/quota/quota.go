// Package quota counts remote scoring requests per calendar day.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/storage"
)

const (
	DefaultKey   = "jobmatch.ai-quota"
	DefaultLimit = 50

	dateLayout = "2006-01-02"
)

// ErrExhausted is returned by Consume once the daily limit is reached.
var ErrExhausted = ai.NewError(ai.CodeQuotaExhausted, "daily AI request quota exhausted", nil)

type Option func(*Tracker)

func WithKey(key string) Option {
	return func(t *Tracker) { t.key = key }
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

type usage struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Tracker persists the number of requests made today. A limit of zero or
// less disables the quota. A nil *Tracker never limits.
type Tracker struct {
	mu     sync.Mutex
	store  storage.Store
	key    string
	limit  int
	last   usage
	logger *zap.Logger
	now    func() time.Time
}

func New(store storage.Store, limit int, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		key:    DefaultKey,
		limit:  limit,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Limit() int {
	if t == nil {
		return 0
	}
	return t.limit
}

// Used returns the number of requests counted today.
func (t *Tracker) Used(ctx context.Context) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.load(ctx).Count
}

// Remaining returns how many requests are left today, or -1 when unlimited.
func (t *Tracker) Remaining(ctx context.Context) int {
	if t == nil || t.limit <= 0 {
		return -1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	return max(t.limit-t.load(ctx).Count, 0)
}

// Allow reports whether at least one request is left today.
func (t *Tracker) Allow(ctx context.Context) bool {
	return t.Remaining(ctx) != 0
}

// Consume counts one request, or returns ErrExhausted without counting when
// the limit is already reached.
func (t *Tracker) Consume(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	u := t.load(ctx)
	if t.limit > 0 && u.Count >= t.limit {
		return ErrExhausted
	}
	u.Count++
	t.save(ctx, u)

	t.logger.Debug("ai quota consumed", zap.Int("used", u.Count), zap.Int("limit", t.limit))
	return nil
}

// load returns today's usage. A stored counter from another day resets to
// zero. Store failures fall back to the last known value.
func (t *Tracker) load(ctx context.Context) usage {
	today := t.now().Format(dateLayout)

	u := t.last
	if t.store != nil {
		raw, err := t.store.Get(ctx, t.key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			u = usage{}
		case err != nil:
			t.logger.Warn("reading ai quota", zap.Error(err))
		default:
			var stored usage
			if err := json.Unmarshal([]byte(raw), &stored); err != nil {
				t.logger.Warn("discarding corrupted ai quota", zap.Error(err))
				stored = usage{}
			}
			u = stored
		}
	}

	if u.Date != today {
		u = usage{Date: today}
	}
	t.last = u
	return u
}

func (t *Tracker) save(ctx context.Context, u usage) {
	t.last = u
	if t.store == nil {
		return
	}

	data, err := json.Marshal(u)
	if err != nil {
		t.logger.Warn("encoding ai quota", zap.Error(err))
		return
	}
	if err := t.store.Set(ctx, t.key, string(data)); err != nil {
		t.logger.Warn("writing ai quota", zap.Error(err))
	}
}
