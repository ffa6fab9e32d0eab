package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/cache"
	"github.com/openjobs/jobmatch/internal/coordinator"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/matcher"
	"github.com/openjobs/jobmatch/internal/metrics"
	"github.com/openjobs/jobmatch/internal/profile"
	"github.com/openjobs/jobmatch/internal/scoring"
	"github.com/openjobs/jobmatch/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testProfile = &profile.Profile{
	Headline: "Développeur Go",
	Skills:   []profile.Skill{{Name: "Go"}, {Name: "PostgreSQL"}},
}

type stubExplainer struct {
	availability ai.Availability
	opts         []matcher.Options
	err          error
}

func (s *stubExplainer) Available(context.Context) ai.Availability { return s.availability }

func (s *stubExplainer) ScoreOne(_ context.Context, job *jobs.Job, opts matcher.Options) (*scoring.Result, error) {
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	if job.ID == "" {
		return nil, matcher.ErrMissingJobID
	}
	return &scoring.Result{JobID: job.ID, Score: 81, IsAIScore: true, Summary: "bon profil"}, nil
}

func newRouter(p *profile.Profile, explainer Explainer) (*gin.Engine, *metrics.Metrics) {
	m := metrics.New()
	c := coordinator.New(nil, cache.New(storage.NewMemory()), nil, profile.Static(p), coordinator.DefaultConfig(),
		coordinator.WithMetrics(m))
	return NewRouter(Deps{Coordinator: c, Explainer: explainer, Metrics: m}), m
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	reader := bytes.NewReader(nil)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(testProfile, nil)
	rec, resp := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), resp.RequestID)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestScore(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(testProfile, nil)
	body := map[string]any{"jobs": []map[string]any{
		{"numerooffre": "A1", "titreoffre": "Développeur Go", "descriptionoffre": "Services backend en Go et PostgreSQL pour une plateforme de paiement."},
		{"numerooffre": "B2", "titreoffre": "Boulanger", "descriptionoffre": "Préparation du pain et des viennoiseries dans un atelier artisanal."},
	}}

	rec, resp := do(t, r, http.MethodPost, "/v1/score", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)

	var data scoreResponse
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &data))

	require.Len(t, data.Jobs, 2)
	assert.Equal(t, "A1", data.Jobs[0].ID)
	assert.Equal(t, "local", data.Jobs[0].State)
	assert.True(t, data.Jobs[0].Result.IsLocalScore)
	assert.Greater(t, data.Jobs[0].Result.Score, data.Jobs[1].Result.Score)
	assert.Equal(t, "AI scoring disabled", data.Stopped)
}

func TestScoreRejectsBadRequests(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(testProfile, nil)

	rec, resp := do(t, r, http.MethodPost, "/v1/score", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid request body", resp.Message)

	many := make([]map[string]any, 201)
	for i := range many {
		many[i] = map[string]any{"id": i}
	}
	rec, _ = do(t, r, http.MethodPost, "/v1/score", map[string]any{"jobs": many})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noProfile, _ := newRouter(nil, nil)
	rec, resp = do(t, noProfile, http.MethodPost, "/v1/score", map[string]any{"jobs": []map[string]any{{"id": "1"}}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, resp.Error, "no profile")
}

func TestAvailability(t *testing.T) {
	t.Parallel()

	r, _ := newRouter(testProfile, nil)
	_, resp := do(t, r, http.MethodGet, "/v1/availability", nil)
	assert.Equal(t, "unavailable", resp.Message)
	assert.Equal(t, map[string]any{"available": false, "reason": "AI scoring disabled"}, resp.Data)

	stub := &stubExplainer{availability: ai.Availability{Available: true}}
	r, _ = newRouter(testProfile, stub)
	_, resp = do(t, r, http.MethodGet, "/v1/availability", nil)
	assert.Equal(t, "available", resp.Message)
}

func TestExplain(t *testing.T) {
	t.Parallel()

	stub := &stubExplainer{}
	r, _ := newRouter(testProfile, stub)

	rec, resp := do(t, r, http.MethodPost, "/v1/explain", map[string]any{
		"job":       map[string]any{"numerooffre": "A1", "titreoffre": "Développeur Go"},
		"extraInfo": "  télétravail partiel  ",
		"force":     true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A1", data["jobId"])
	assert.EqualValues(t, 81, data["score"])
	require.Len(t, stub.opts, 1)
	assert.Equal(t, matcher.Options{Force: true, ExtraInfo: "télétravail partiel"}, stub.opts[0])

	rec, _ = do(t, r, http.MethodPost, "/v1/explain", map[string]any{"job": map[string]any{"titreoffre": "Sans id"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stub.err = matcher.ErrNoProfile
	rec, _ = do(t, r, http.MethodPost, "/v1/explain", map[string]any{"job": map[string]any{"id": "1"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	disabled, _ := newRouter(testProfile, nil)
	rec, _ = do(t, disabled, http.MethodPost, "/v1/explain", map[string]any{"job": map[string]any{"id": "1"}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	r, m := newRouter(testProfile, nil)
	m.Score(metrics.KindLocal)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `jobmatch_scores_total{kind="local"} 1`)
}

func TestExplainUsesDefaultOptions(t *testing.T) {
	t.Parallel()

	stub := &stubExplainer{}
	temperature := float32(0.3)
	c := coordinator.New(nil, cache.New(storage.NewMemory()), nil, profile.Static(testProfile), coordinator.DefaultConfig())
	r := NewRouter(Deps{
		Coordinator: c,
		Explainer:   stub,
		Options:     matcher.Options{Temperature: &temperature, MaxTokens: 512, CustomPrompt: "{title}"},
	})

	rec, _ := do(t, r, http.MethodPost, "/v1/explain", map[string]any{"job": map[string]any{"id": "7"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, stub.opts, 1)
	assert.Equal(t, matcher.Options{Temperature: &temperature, MaxTokens: 512, CustomPrompt: "{title}"}, stub.opts[0])
}
