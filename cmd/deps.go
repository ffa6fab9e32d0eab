package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/ai/gemini"
	"github.com/openjobs/jobmatch/internal/cache"
	"github.com/openjobs/jobmatch/internal/coordinator"
	"github.com/openjobs/jobmatch/internal/geo"
	"github.com/openjobs/jobmatch/internal/matcher"
	"github.com/openjobs/jobmatch/internal/metrics"
	"github.com/openjobs/jobmatch/internal/profile"
	"github.com/openjobs/jobmatch/internal/quota"
	"github.com/openjobs/jobmatch/internal/scoring"
	"github.com/openjobs/jobmatch/internal/secrets"
	"github.com/openjobs/jobmatch/internal/storage"
)

// deps is the component graph shared by the commands.
type deps struct {
	logger  *zap.Logger
	config  *Config
	metrics *metrics.Metrics

	store       storage.Store
	scores      *cache.ScoreCache
	quota       *quota.Tracker
	profiles    profile.Source
	scorer      *scoring.Scorer
	matcher     *matcher.Matcher
	coordinator *coordinator.Coordinator
}

func newDeps(ctx context.Context, config *Config, logger *zap.Logger, force bool) (*deps, error) {
	d := &deps{
		logger:  logger,
		config:  config,
		metrics: metrics.New(),
	}

	cacheCfg := CacheConfig{}
	if config.Cache != nil {
		cacheCfg = *config.Cache
	}
	store, err := storage.Open(ctx, cacheCfg.Config)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cacheCfg.Backend, err)
	}
	d.store = store

	cacheOpts := []cache.Option{cache.WithLogger(logger), cache.WithMetrics(d.metrics)}
	if cacheCfg.Key != "" {
		cacheOpts = append(cacheOpts, cache.WithKey(cacheCfg.Key))
	}
	d.scores = cache.New(store, cacheOpts...)
	d.scores.Init(ctx)

	p, err := loadProfile(config.Profile, logger)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}
	d.profiles = profile.Static(p)

	scorerOpts := []scoring.Option{scoring.WithLogger(logger)}
	if config.Location != nil {
		scorerOpts = append(scorerOpts, scoring.WithUserLocation(&geo.Point{Lat: config.Location.Lat, Lon: config.Location.Lon}))
	}
	d.scorer = scoring.New(scorerOpts...)

	aiCfg := config.AI
	if aiCfg == nil {
		aiCfg = &AIConfig{}
	}

	generator, err := newGenerator(ctx, aiCfg, logger)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}

	maxLogLength := 0
	if aiCfg.Gemini != nil {
		maxLogLength = aiCfg.Gemini.MaxLogLength
	}
	d.quota = quota.New(store, aiCfg.DailyQuota, quota.WithLogger(logger))
	d.matcher = matcher.New(generator, d.profiles, d.scorer, d.scores,
		matcher.WithLogger(logger),
		matcher.WithMetrics(d.metrics),
		matcher.WithQuota(d.quota),
		matcher.WithMaxAge(cacheCfg.MaxAge),
		matcher.WithMaxLogLength(maxLogLength),
	)

	coordCfg := aiCfg.Config
	coordCfg.Force = force
	if coordCfg.MaxAge == 0 {
		coordCfg.MaxAge = cacheCfg.MaxAge
	}

	var batch coordinator.BatchScorer
	if generator != nil {
		batch = d.matcher
	}
	d.coordinator = coordinator.New(d.scorer, d.scores, batch, d.profiles, coordCfg,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(d.metrics),
	)

	return d, nil
}

// Close flushes the score cache and releases the store.
func (d *deps) Close(ctx context.Context) {
	if d.scores != nil {
		d.scores.Teardown(ctx)
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing store", zap.Error(err))
		}
	}
}

// scoreOptions are the per-request options from config shared by explain and serve.
func (d *deps) scoreOptions() (matcher.Options, error) {
	opts := matcher.Options{}
	if d.config.AI == nil {
		return opts, nil
	}
	opts.Temperature = d.config.AI.Temperature
	opts.MaxTokens = d.config.AI.MaxTokens

	if path := strings.TrimSpace(d.config.AI.PromptFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return opts, fmt.Errorf("reading prompt file: %w", err)
		}
		opts.CustomPrompt = string(raw)
	}
	return opts, nil
}

// loadProfile reads the profile file. No path is not an error: scoring then
// reports itself unavailable.
func loadProfile(path string, logger *zap.Logger) (*profile.Profile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		logger.Warn("no profile configured", zap.String("hint", "set --profile, the 'profile' key or JOBMATCH_PROFILE"))
		return nil, nil
	}

	p, err := profile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	logger.Info("profile loaded",
		zap.String("path", path),
		zap.Int("skills", len(p.Skills)),
		zap.Int("keywords", len(p.Keywords)),
	)
	return p, nil
}

// newGenerator returns nil without error when AI scoring is disabled or no
// API key is configured.
func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	if !cfg.Enabled {
		logger.Info("ai scoring disabled by configuration")
		return nil, nil
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	gcfg := GeminiConfig{}
	if cfg.Gemini != nil {
		gcfg = *cfg.Gemini
	}

	apiKey, err := secrets.Optional(secrets.Source{
		Name:  "gemini api key",
		Value: gcfg.APIKey,
		File:  gcfg.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}
	if apiKey == "" {
		logger.Warn("no gemini api key, ai scoring unavailable",
			zap.String("hint", "set GEMINI_API_KEY or GEMINI_API_KEY_FILE"),
		)
		return nil, nil
	}

	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:        apiKey,
		Model:         gcfg.Model,
		MaxRetries:    gcfg.MaxRetries,
		MaxLogLength:  gcfg.MaxLogLength,
		ResponseCache: gcfg.ResponseCache,
	}, logger.With(zap.Int("ai_retry_attempts", gcfg.MaxRetries)))
	if err != nil {
		return nil, err
	}
	return generator, nil
}
