// Package matcher scores jobs with a remote text generator, one at a time or
// in batches, and falls back to local scoring when the generator fails.
package matcher

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/cache"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/jsonrepair"
	"github.com/openjobs/jobmatch/internal/logger"
	"github.com/openjobs/jobmatch/internal/metrics"
	"github.com/openjobs/jobmatch/internal/profile"
	"github.com/openjobs/jobmatch/internal/quota"
	"github.com/openjobs/jobmatch/internal/scoring"
	"github.com/openjobs/jobmatch/internal/storage"
	"github.com/openjobs/jobmatch/internal/utils"
)

const (
	DefaultTemperature float32 = 0.1
	DefaultMaxTokens   int32   = 8000

	defaultMaxLogLength = 200
)

var (
	ErrNoProfile    = errors.New("matcher: no profile available")
	ErrMissingJobID = errors.New("matcher: job has no id")
)

// DefaultRetrySchedule is how long a rate-limited batch waits before each
// retry.
var DefaultRetrySchedule = []time.Duration{60 * time.Second, 300 * time.Second, 600 * time.Second}

// WaitObserver is told the whole seconds left, once per second, while a
// rate-limited batch waits for its next attempt.
type WaitObserver interface {
	Waiting(secondsRemaining int)
}

// WaitFunc adapts a function to WaitObserver.
type WaitFunc func(secondsRemaining int)

func (f WaitFunc) Waiting(secondsRemaining int) { f(secondsRemaining) }

// Options tune ScoreOne.
type Options struct {
	// Force skips the cache and any generator-side response cache.
	Force bool
	// ExtraInfo is appended to the prompt. Setting it skips the cache.
	ExtraInfo string
	// CustomPrompt replaces the default template. Setting it skips the cache.
	CustomPrompt string
	MaxTokens    int32
	// Temperature overrides DefaultTemperature when set; zero is a valid value.
	Temperature *float32
}

type countdownFunc func(ctx context.Context, d time.Duration, tick func(remaining int)) error

type Option func(*Matcher)

func WithLogger(log *zap.Logger) Option {
	return func(m *Matcher) {
		if log != nil {
			m.logger = log
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Matcher) { m.metrics = mt }
}

func WithQuota(t *quota.Tracker) Option {
	return func(m *Matcher) { m.quota = t }
}

// WithMaxAge sets how old a cached AI score may be to be reused.
func WithMaxAge(d time.Duration) Option {
	return func(m *Matcher) { m.maxAge = d }
}

func WithMaxLogLength(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.maxLogLen = n
		}
	}
}

func WithRetrySchedule(schedule []time.Duration) Option {
	return func(m *Matcher) { m.retrySchedule = schedule }
}

func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

type Matcher struct {
	generator ai.Generator
	profiles  profile.Source
	scorer    *scoring.Scorer
	scores    *cache.ScoreCache
	quota     *quota.Tracker
	metrics   *metrics.Metrics
	logger    *zap.Logger

	maxAge        time.Duration
	maxLogLen     int
	retrySchedule []time.Duration
	countdown     countdownFunc
	now           func() time.Time
}

// New creates a Matcher. A nil generator leaves AI scoring unavailable and
// every ScoreOne falls back to scorer.
func New(generator ai.Generator, profiles profile.Source, scorer *scoring.Scorer, scores *cache.ScoreCache, opts ...Option) *Matcher {
	m := &Matcher{
		generator:     generator,
		profiles:      profiles,
		scorer:        scorer,
		scores:        scores,
		logger:        zap.NewNop(),
		maxAge:        cache.DefaultMaxAge,
		maxLogLen:     defaultMaxLogLength,
		retrySchedule: DefaultRetrySchedule,
		countdown:     utils.Countdown,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.scorer == nil {
		m.scorer = scoring.New()
	}
	if m.scores == nil {
		m.scores = cache.New(storage.NewMemory())
	}
	if m.generator != nil {
		m.logger = logger.WithCommonFields(m.logger, "", m.generator.Model())
	}
	return m
}

func (m *Matcher) profile() *profile.Profile {
	if m.profiles == nil {
		return nil
	}
	return m.profiles.Profile()
}

// Available reports whether a remote request can be attempted right now.
// It never calls the generator.
func (m *Matcher) Available(ctx context.Context) ai.Availability {
	switch {
	case m.generator == nil:
		return ai.Availability{Reason: string(ai.CodeNoAPIKey) + ": no AI provider configured"}
	case m.profile() == nil:
		return ai.Availability{Reason: "no profile loaded"}
	case !m.quota.Allow(ctx):
		return ai.Availability{Reason: string(ai.CodeQuotaExhausted) + ": daily AI quota exhausted"}
	}
	return ai.Availability{Available: true}
}

// ScoreOne scores job with a single remote request. A cached AI score is
// returned unless opts changes the request. Any remote or parse failure
// yields the local score with Error set; the returned error is reserved for
// a missing profile or job id.
func (m *Matcher) ScoreOne(ctx context.Context, job *jobs.Job, opts Options) (*scoring.Result, error) {
	if job == nil || strings.TrimSpace(job.ID) == "" {
		return nil, ErrMissingJobID
	}
	p := m.profile()
	if p == nil {
		return nil, ErrNoProfile
	}

	log := logger.WithJob(m.logger, job.ID)

	useCache := !opts.Force && opts.ExtraInfo == "" && opts.CustomPrompt == ""
	if useCache {
		if cached := m.scores.Get(ctx, job.ID, m.maxAge); cached != nil && cached.IsAIScore {
			log.Debug("using cached ai score", zap.Int("score", cached.Score))
			return cached, nil
		}
	}

	if av := m.Available(ctx); !av.Available {
		return m.fallback(p, job, av.Reason, log), nil
	}
	if err := m.quota.Consume(ctx); err != nil {
		return m.fallback(p, job, err.Error(), log), nil
	}

	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	prompt := BuildPrompt(p, job, opts.ExtraInfo, opts.CustomPrompt)
	log.Debug("ai score request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	raw, err := m.generator.GenerateContent(ctx, prompt, ai.Options{
		Temperature:     &temperature,
		MaxOutputTokens: maxTokens,
		SkipCache:       opts.Force,
	})
	if err != nil {
		m.metrics.AIRequest(metrics.ModeSingle, outcome(err))
		return m.fallback(p, job, err.Error(), log), nil
	}

	log.Debug("ai score response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	data, err := jsonrepair.Parse(raw)
	if err != nil {
		m.metrics.AIRequest(metrics.ModeSingle, metrics.OutcomeInvalidJSON)
		return m.fallback(p, job, ai.NewError(ai.CodeInvalidJSON, "unreadable AI response", err).Error(), log), nil
	}
	m.metrics.AIRequest(metrics.ModeSingle, metrics.OutcomeOK)

	res := normalize(job.ID, data, m.now().UnixMilli())
	m.scores.Put(ctx, job.ID, res)
	m.scores.Flush(ctx)
	m.metrics.Score(metrics.KindAI)

	log.Info("ai score", zap.Int("score", res.Score))
	return res, nil
}

// fallback scores job locally and records why the remote score is missing.
// The result is not cached.
func (m *Matcher) fallback(p *profile.Profile, job *jobs.Job, reason string, log *zap.Logger) *scoring.Result {
	log.Warn("falling back to local score", zap.String("reason", reason))

	res := m.scorer.Score(p, job)
	res.Error = reason
	m.metrics.Score(metrics.KindFallback)
	return res
}

// ScoreBatch scores every job with one remote request. A rate-limited
// request is retried after each wait of the retry schedule, reporting the
// countdown to observer; any other failure is returned at once. One daily
// quota unit is consumed per attempt. Jobs the reply does not mention are
// absent from the returned map.
func (m *Matcher) ScoreBatch(ctx context.Context, list []*jobs.Job, observer WaitObserver) (map[string]*scoring.Result, error) {
	results := make(map[string]*scoring.Result, len(list))
	if len(list) == 0 {
		return results, nil
	}

	p := m.profile()
	if p == nil {
		return nil, ErrNoProfile
	}
	for _, job := range list {
		if job == nil || strings.TrimSpace(job.ID) == "" {
			return nil, ErrMissingJobID
		}
	}
	if m.generator == nil {
		return nil, ai.NewError(ai.CodeNotAvailable, "no AI provider configured", nil)
	}

	log := logger.WithBatch(m.logger, uuid.NewString())
	prompt := BuildBatchPrompt(p, list)

	start := m.now()
	defer func() { m.metrics.ObserveBatch(m.now().Sub(start)) }()

	log.Debug("ai batch request",
		zap.Int("jobs", len(list)),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, m.maxLogLen)),
	)

	temperature := DefaultTemperature
	var raw string
	for attempt := 0; ; attempt++ {
		if err := m.quota.Consume(ctx); err != nil {
			return nil, err
		}

		var err error
		raw, err = m.generator.GenerateContent(ctx, prompt, ai.Options{
			Temperature:     &temperature,
			MaxOutputTokens: DefaultMaxTokens,
		})
		if err == nil {
			break
		}
		m.metrics.AIRequest(metrics.ModeBatch, outcome(err))

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !ai.IsRateLimited(err) || attempt >= len(m.retrySchedule) {
			log.Warn("ai batch failed", zap.Int("attempt", attempt+1), zap.Error(err))
			return nil, err
		}

		delay := m.retrySchedule[attempt]
		log.Warn("ai batch rate limited, waiting",
			zap.Int("attempt", attempt+1),
			zap.Int("wait_seconds", int(delay/time.Second)),
		)
		m.metrics.RateLimitWait()

		tick := func(remaining int) {
			if observer != nil {
				observer.Waiting(remaining)
			}
		}
		if err := m.countdown(ctx, delay, tick); err != nil {
			return nil, err
		}
	}

	log.Debug("ai batch response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, m.maxLogLen)),
	)

	text, strategy, err := jsonrepair.Repair(raw)
	if err != nil {
		m.metrics.AIRequest(metrics.ModeBatch, metrics.OutcomeInvalidJSON)
		return nil, ai.NewError(ai.CodeInvalidJSON, "unreadable AI batch response", err)
	}
	m.metrics.AIRequest(metrics.ModeBatch, metrics.OutcomeOK)
	if strategy != jsonrepair.Pipeline[0].Name {
		log.Debug("ai batch response repaired", zap.String("strategy", strategy))
	}

	wanted := make(map[string]bool, len(list))
	for _, job := range list {
		wanted[job.ID] = true
	}

	now := m.now().UnixMilli()
	gjson.Parse(text).ForEach(func(key, value gjson.Result) bool {
		id := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key.String()), JobIDMarker))
		if !wanted[id] || !value.IsObject() {
			log.Debug("ignoring ai batch entry", zap.String("key", key.String()))
			return true
		}
		data, ok := value.Value().(map[string]any)
		if !ok {
			return true
		}

		res := normalize(id, data, now)
		results[id] = res
		m.scores.Put(ctx, id, res)
		m.metrics.Score(metrics.KindAI)
		return true
	})
	m.scores.Flush(ctx)

	for _, job := range list {
		if _, ok := results[job.ID]; !ok {
			log.Warn("job missing from ai batch response", zap.String(logger.FieldJobID, job.ID))
		}
	}

	log.Info("ai batch scored", zap.Int("jobs", len(list)), zap.Int("scored", len(results)))
	return results, nil
}

func outcome(err error) string {
	if ai.IsRateLimited(err) {
		return metrics.OutcomeRateLimited
	}
	return metrics.OutcomeError
}
