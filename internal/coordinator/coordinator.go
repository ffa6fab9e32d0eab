// Package coordinator scores a set of jobs locally and escalates the most
// promising ones to AI scoring in bounded batches.
package coordinator

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/cache"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/logger"
	"github.com/openjobs/jobmatch/internal/matcher"
	"github.com/openjobs/jobmatch/internal/metrics"
	"github.com/openjobs/jobmatch/internal/profile"
	"github.com/openjobs/jobmatch/internal/scoring"
	"github.com/openjobs/jobmatch/internal/utils"
)

// State is how far a job has been scored. It only moves forward.
type State int

const (
	Unscored State = iota
	LocallyScored
	AIScored
)

func (s State) String() string {
	switch s {
	case LocallyScored:
		return "local"
	case AIScored:
		return "ai"
	default:
		return "unscored"
	}
}

type Config struct {
	// PromotionThreshold is the minimum local score for AI escalation.
	PromotionThreshold int `mapstructure:"promotion-threshold" validate:"gte=0,lte=100"`
	// BatchSize is the number of jobs per AI request.
	BatchSize int `mapstructure:"batch-size" validate:"gte=0"`
	// MaxAIJobs caps the jobs escalated in one run.
	MaxAIJobs int `mapstructure:"max-jobs" validate:"gte=0"`
	// BatchDelay separates consecutive AI requests.
	BatchDelay time.Duration `mapstructure:"batch-delay"`
	// Concurrency bounds the local scoring pass.
	Concurrency int `mapstructure:"concurrency" validate:"gte=0"`
	// MaxAge is how old a cached score may be to be reused.
	MaxAge time.Duration `mapstructure:"max-age"`
	// Force ignores cached scores, so AI scores may be replaced by local ones.
	Force bool `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		PromotionThreshold: 60,
		BatchSize:          5,
		MaxAIJobs:          10,
		BatchDelay:         2 * time.Second,
		Concurrency:        8,
		MaxAge:             cache.DefaultMaxAge,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAIJobs <= 0 {
		c.MaxAIJobs = d.MaxAIJobs
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	return c
}

// BatchScorer is the AI side of a run, implemented by *matcher.Matcher.
type BatchScorer interface {
	Available(ctx context.Context) ai.Availability
	ScoreBatch(ctx context.Context, list []*jobs.Job, observer matcher.WaitObserver) (map[string]*scoring.Result, error)
}

type Option func(*Coordinator)

func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.logger = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

type Coordinator struct {
	scorer   *scoring.Scorer
	scores   *cache.ScoreCache
	ai       BatchScorer
	profiles profile.Source
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	wait     func(ctx context.Context, d time.Duration) error
}

// New creates a Coordinator. A nil aiScorer restricts runs to local scoring.
func New(scorer *scoring.Scorer, scores *cache.ScoreCache, aiScorer BatchScorer, profiles profile.Source, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		scorer:   scorer,
		scores:   scores,
		ai:       aiScorer,
		profiles: profiles,
		cfg:      cfg.withDefaults(),
		logger:   zap.NewNop(),
		wait:     utils.WaitFor,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.scorer == nil {
		c.scorer = scoring.New()
	}
	return c
}

// Entry is the outcome of a run for one job.
type Entry struct {
	Job    *jobs.Job
	Result *scoring.Result
	State  State
}

type Report struct {
	// Entries are ordered by descending score; ties keep input order.
	Entries  []*Entry
	Promoted int
	AIScored int
	Batches  int
	// Stopped explains why AI escalation did not run or ended early.
	Stopped string
}

// Results maps job ids to their final result.
func (r *Report) Results() map[string]*scoring.Result {
	out := make(map[string]*scoring.Result, len(r.Entries))
	for _, e := range r.Entries {
		if e.Job.ID != "" {
			out[e.Job.ID] = e.Result
		}
	}
	return out
}

// Assessments converts the results for jobs.Jobs.ReportByEmployer.
func (r *Report) Assessments() map[string]*jobs.Assessment {
	out := make(map[string]*jobs.Assessment, len(r.Entries))
	for _, e := range r.Entries {
		if e.Job.ID == "" || e.Result == nil {
			continue
		}
		out[e.Job.ID] = &jobs.Assessment{
			Score:   e.Result.Score,
			IsAI:    e.Result.IsAIScore,
			Summary: e.Result.Summary,
			Error:   e.Result.Error,
		}
	}
	return out
}

// Run scores every job, then escalates the best local scores to AI scoring.
// Escalation stops early when the quota is exhausted, the rate-limit retries
// run out or the provider rejects the API key; the report explains why. The
// error is non-nil only for a missing profile or a cancelled ctx.
func (c *Coordinator) Run(ctx context.Context, list []*jobs.Job, observer matcher.WaitObserver) (*Report, error) {
	p := c.profiles.Profile()
	if p == nil {
		return nil, matcher.ErrNoProfile
	}

	if c.scores != nil {
		defer c.scores.Flush(context.WithoutCancel(ctx))
	}

	report := &Report{}
	entries := make([]*Entry, 0, len(list))
	for _, job := range list {
		if job != nil {
			entries = append(entries, &Entry{Job: job})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c.scoreLocal(gctx, p, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	defer sortEntries(entries, report)

	if c.ai == nil {
		report.Stopped = "AI scoring disabled"
		return report, nil
	}
	if av := c.ai.Available(ctx); !av.Available {
		report.Stopped = av.Reason
		c.logger.Info("skipping ai scoring", zap.String("reason", av.Reason))
		return report, nil
	}

	candidates := c.promote(entries)
	report.Promoted = len(candidates)
	if len(candidates) == 0 {
		return report, nil
	}
	c.logger.Info("escalating jobs to ai scoring",
		zap.Int("jobs", len(candidates)),
		zap.Int("threshold", c.cfg.PromotionThreshold),
	)

	for start := 0; start < len(candidates); start += c.cfg.BatchSize {
		if start > 0 {
			if err := c.wait(ctx, c.cfg.BatchDelay); err != nil {
				return report, err
			}
		}

		batch := candidates[start:min(start+c.cfg.BatchSize, len(candidates))]
		list := make([]*jobs.Job, len(batch))
		for i, e := range batch {
			list[i] = e.Job
		}

		results, err := c.ai.ScoreBatch(ctx, list, observer)
		report.Batches++
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if stopsEscalation(err) {
				report.Stopped = err.Error()
				c.logger.Warn("stopping ai scoring", zap.Error(err))
				return report, nil
			}
			c.logger.Warn("ai batch failed, keeping local scores", zap.Int("batch", report.Batches), zap.Error(err))
			continue
		}

		for _, e := range batch {
			if res, ok := results[e.Job.ID]; ok {
				e.Result = res
				e.State = AIScored
				report.AIScored++
			}
		}
	}

	return report, nil
}

func (c *Coordinator) scoreLocal(ctx context.Context, p *profile.Profile, e *Entry) {
	id := e.Job.ID
	if id != "" && !c.cfg.Force && c.scores != nil {
		if cached := c.scores.Get(ctx, id, c.cfg.MaxAge); cached != nil {
			e.Result = cached
			e.State = LocallyScored
			if cached.IsAIScore {
				e.State = AIScored
			}
			return
		}
	}

	e.Result = c.scorer.Score(p, e.Job)
	e.State = LocallyScored
	c.metrics.Score(metrics.KindLocal)
	logger.WithJob(c.logger, id).Debug("local score", zap.Int("score", e.Result.Score))

	if id != "" && c.scores != nil {
		c.scores.Put(ctx, id, e.Result)
	}
}

// promote returns the locally scored jobs at or above the threshold, best
// first, at most MaxAIJobs of them.
func (c *Coordinator) promote(entries []*Entry) []*Entry {
	var out []*Entry
	for _, e := range entries {
		if e.State == LocallyScored && e.Job.ID != "" && e.Result.Score >= c.cfg.PromotionThreshold {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Result.Score > out[j].Result.Score
	})
	if len(out) > c.cfg.MaxAIJobs {
		out = out[:c.cfg.MaxAIJobs]
	}
	return out
}

func stopsEscalation(err error) bool {
	switch ai.CodeOf(err) {
	case ai.CodeQuotaExhausted, ai.CodeNoAPIKey:
		return true
	}
	return ai.IsRateLimited(err)
}

func sortEntries(entries []*Entry, report *Report) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Result.Score > entries[j].Result.Score
	})
	report.Entries = entries
}
