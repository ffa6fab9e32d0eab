package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/logger"
	"github.com/openjobs/jobmatch/internal/utils"
)

const (
	Provider = "gemini"

	defaultModel        = "gemini-2.5-flash"
	defaultMaxRetries   = 3
	defaultMaxLogLength = 200
	retryBaseDelay      = 2 * time.Second

	responseCacheSize  = 100
	responseCacheEvict = 20
)

var wait = utils.WaitFor

type modelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey       string
	Model        string
	MaxRetries   int
	MaxLogLength int
	// ResponseCache keeps recent responses keyed by prompt.
	ResponseCache bool
}

// Generator implements ai.Generator on the Gemini API.
type Generator struct {
	models     modelsClient
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
	cache      *responseCache
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a Generator for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ai.NewError(ai.CodeNoAPIKey, "gemini api key is required", nil)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(client.Models, cfg, log), nil
}

func newGenerator(models modelsClient, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	g := &Generator{
		models:     models,
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLen,
		logger:     logger.WithCommonFields(log, Provider, model),
	}
	if cfg.ResponseCache {
		g.cache = newResponseCache(responseCacheSize, responseCacheEvict)
	}
	return g
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent sends prompt to Gemini and returns the concatenated text of
// the response. Server errors and transport failures are retried; a 429 is
// returned at once as ai.CodeRateLimited so callers can apply their own backoff.
func (g *Generator) GenerateContent(ctx context.Context, prompt string, opts ai.Options) (string, error) {
	if g == nil || g.models == nil {
		return "", ai.NewError(ai.CodeNotAvailable, "gemini generator is not initialized", nil)
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	key := promptKey(prompt)
	if g.cache != nil && !opts.SkipCache {
		if cached, ok := g.cache.get(key); ok {
			g.logger.Debug("gemini response cache hit", zap.String("prompt_hash", key[:12]))
			return cached, nil
		}
	}

	config := &genai.GenerateContentConfig{Temperature: opts.Temperature}
	if opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = opts.MaxOutputTokens
	}

	g.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err == nil {
			output, err := responseText(resp)
			if err != nil {
				return "", err
			}
			g.logger.Debug("gemini generate content response",
				zap.Int("attempt", attempt),
				zap.Int("response_length", utf8.RuneCountInString(output)),
				zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
			)
			if g.cache != nil {
				g.cache.put(key, output)
			}
			return output, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		lastErr = classify(err)
		if !retryable(err) || attempt == g.maxRetries {
			break
		}

		delay := time.Duration(attempt) * retryBaseDelay
		g.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ai.NewError(ai.CodeNotAvailable, "gemini api returned no response", nil)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ai.NewError(ai.CodeNotAvailable, "gemini api returned empty response", nil)
	}
	return output, nil
}

func apiError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func retryable(err error) bool {
	apiErr, ok := apiError(err)
	if !ok {
		return true
	}
	return apiErr.Code >= http.StatusInternalServerError
}

// classify maps a Gemini failure onto an ai.Error.
func classify(err error) error {
	apiErr, ok := apiError(err)
	if !ok {
		return ai.NewError(ai.CodeNetworkError, "gemini request failed", err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return ai.NewError(ai.CodeRateLimited, "gemini rate limit reached (429)", err)
	case apiErr.Code == http.StatusUnauthorized,
		apiErr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "api key"):
		return ai.NewError(ai.CodeNoAPIKey, "gemini rejected the api key", err)
	case apiErr.Code >= http.StatusInternalServerError:
		return ai.NewError(ai.CodeNetworkError, "gemini server error", err)
	default:
		return ai.NewError(ai.CodeNotAvailable, "gemini request rejected", err)
	}
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// responseCache keeps at most size responses; when full the evict oldest
// entries are dropped at once.
type responseCache struct {
	mu      sync.Mutex
	size    int
	evict   int
	entries map[string]string
	order   []string
}

func newResponseCache(size, evict int) *responseCache {
	return &responseCache{
		size:    size,
		evict:   evict,
		entries: make(map[string]string, size),
	}
}

func (c *responseCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	return v, ok
}

func (c *responseCache) put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return
	}

	if len(c.order) >= c.size {
		n := min(c.evict, len(c.order))
		for _, old := range c.order[:n] {
			delete(c.entries, old)
		}
		c.order = append([]string(nil), c.order[n:]...)
	}

	c.entries[key] = value
	c.order = append(c.order, key)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
