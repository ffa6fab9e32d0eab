package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/genai"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/logger"
)

type fakeResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type callRecord struct {
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

type fakeModels struct {
	mu    sync.Mutex
	calls []callRecord
	queue []fakeResponse
}

func (f *fakeModels) enqueue(resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fakeResponse{resp: resp, err: err})
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prompt := ""
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		prompt = contents[0].Parts[0].Text
	}
	f.calls = append(f.calls, callRecord{model: model, prompt: prompt, config: config})

	if len(f.queue) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := f.queue[0]
	f.queue = f.queue[1:]
	return res.resp, res.err
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}
}

func noWait(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	original := wait
	wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { wait = original })
	return &waits
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	waits := noWait(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	models.enqueue(textResponse("retry", "ok"), nil)

	g := newGenerator(models, Config{Model: "gemini-pro", MaxRetries: 2}, zap.NewNop())

	output, err := g.GenerateContent(context.Background(), "prompt", ai.Options{Temperature: genai.Ptr[float32](0.1), MaxOutputTokens: 8000})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "retry\nok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
	if len(*waits) != 1 || (*waits)[0] != retryBaseDelay {
		t.Fatalf("unexpected waits %v", *waits)
	}

	for _, call := range models.calls {
		if call.model != "gemini-pro" || call.prompt != "prompt" {
			t.Fatalf("unexpected call %+v", call)
		}
		if call.config.Temperature == nil || *call.config.Temperature != 0.1 {
			t.Fatalf("expected temperature to be set")
		}
		if call.config.MaxOutputTokens != 8000 {
			t.Fatalf("unexpected max tokens %d", call.config.MaxOutputTokens)
		}
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	noWait(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})
	models.enqueue(nil, genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"})

	g := newGenerator(models, Config{MaxRetries: 2}, zap.NewNop())

	_, err := g.GenerateContent(context.Background(), "prompt", ai.Options{})
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if ai.CodeOf(err) != ai.CodeNetworkError {
		t.Fatalf("unexpected code %q", ai.CodeOf(err))
	}
	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryRateLimit(t *testing.T) {
	waits := noWait(t)

	models := &fakeModels{}
	models.enqueue(nil, genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	})

	g := newGenerator(models, Config{MaxRetries: 3}, zap.NewNop())

	_, err := g.GenerateContent(context.Background(), "prompt", ai.Options{})
	if !ai.IsRateLimited(err) || ai.CodeOf(err) != ai.CodeRateLimited {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
	if len(*waits) != 0 {
		t.Fatalf("expected no waits, got %v", *waits)
	}
}

func TestGeneratorClassifiesErrors(t *testing.T) {
	tests := []struct {
		err  error
		want ai.ErrorCode
	}{
		{genai.APIError{Code: http.StatusUnauthorized}, ai.CodeNoAPIKey},
		{genai.APIError{Code: http.StatusBadRequest, Message: "API key not valid. Please pass a valid API key."}, ai.CodeNoAPIKey},
		{genai.APIError{Code: http.StatusForbidden}, ai.CodeNotAvailable},
		{fmt.Errorf("wrapped: %w", genai.APIError{Code: http.StatusTooManyRequests}), ai.CodeRateLimited},
		{errors.New("connection reset by peer"), ai.CodeNetworkError},
	}

	for _, tt := range tests {
		if got := ai.CodeOf(classify(tt.err)); got != tt.want {
			t.Fatalf("classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestGeneratorResponseCache(t *testing.T) {
	models := &fakeModels{}
	models.enqueue(textResponse("first"), nil)
	models.enqueue(textResponse("second"), nil)

	g := newGenerator(models, Config{ResponseCache: true}, zap.NewNop())
	ctx := context.Background()

	for range 2 {
		out, err := g.GenerateContent(ctx, "same prompt", ai.Options{})
		if err != nil || out != "first" {
			t.Fatalf("unexpected result %q, %v", out, err)
		}
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected cached second call, got %d calls", len(models.calls))
	}

	out, err := g.GenerateContent(ctx, "same prompt", ai.Options{SkipCache: true})
	if err != nil || out != "second" {
		t.Fatalf("expected cache bypass, got %q, %v", out, err)
	}
}

func TestResponseCacheEvictsOldest(t *testing.T) {
	c := newResponseCache(5, 2)
	for i := range 5 {
		c.put(fmt.Sprint(i), "v")
	}
	c.put("5", "v")

	if c.len() != 4 {
		t.Fatalf("expected 4 entries after eviction, got %d", c.len())
	}
	for _, key := range []string{"0", "1"} {
		if _, ok := c.get(key); ok {
			t.Fatalf("expected %s to be evicted", key)
		}
	}
	for _, key := range []string{"2", "3", "4", "5"} {
		if _, ok := c.get(key); !ok {
			t.Fatalf("expected %s to be kept", key)
		}
	}
}

func TestGeneratorRejectsEmptyInput(t *testing.T) {
	if _, err := NewGenerator(context.Background(), Config{APIKey: "  "}, nil); ai.CodeOf(err) != ai.CodeNoAPIKey {
		t.Fatalf("expected NO_API_KEY, got %v", err)
	}

	g := newGenerator(&fakeModels{}, Config{}, nil)
	if _, err := g.GenerateContent(context.Background(), "   ", ai.Options{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if g.Model() != defaultModel {
		t.Fatalf("unexpected default model %q", g.Model())
	}

	models := &fakeModels{}
	models.enqueue(textResponse("   "), nil)
	g = newGenerator(models, Config{}, nil)
	if _, err := g.GenerateContent(context.Background(), "prompt", ai.Options{}); ai.CodeOf(err) != ai.CodeNotAvailable {
		t.Fatalf("expected NOT_AVAILABLE for empty response, got %v", err)
	}
}

func TestGeneratorLogsCommonFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	models := &fakeModels{}
	models.enqueue(textResponse("ok"), nil)
	g := newGenerator(models, Config{Model: "gemini-x"}, zap.New(core))

	if _, err := g.GenerateContent(context.Background(), "prompt", ai.Options{}); err != nil {
		t.Fatal(err)
	}

	entries := logs.FilterMessage("gemini generate content response").All()
	if len(entries) != 1 {
		t.Fatalf("expected response log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields[logger.FieldProvider] != Provider || fields[logger.FieldModel] != "gemini-x" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
