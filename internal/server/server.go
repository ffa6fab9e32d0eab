// Package server exposes scoring over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/ai"
	"github.com/openjobs/jobmatch/internal/coordinator"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/matcher"
	"github.com/openjobs/jobmatch/internal/metrics"
	"github.com/openjobs/jobmatch/internal/scoring"
)

// Runner is implemented by *coordinator.Coordinator.
type Runner interface {
	Run(ctx context.Context, list []*jobs.Job, observer matcher.WaitObserver) (*coordinator.Report, error)
}

// Explainer is implemented by *matcher.Matcher.
type Explainer interface {
	Available(ctx context.Context) ai.Availability
	ScoreOne(ctx context.Context, job *jobs.Job, opts matcher.Options) (*scoring.Result, error)
}

type Deps struct {
	Logger      *zap.Logger
	Coordinator Runner
	// Explainer may be nil when AI scoring is not configured.
	Explainer Explainer
	// Options are the defaults of every explain request.
	Options matcher.Options
	Metrics *metrics.Metrics
}

type handler struct {
	logger      *zap.Logger
	coordinator Runner
	explainer   Explainer
	options     matcher.Options
}

// NewRouter builds the HTTP routes.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		explainer:   deps.Explainer,
		options:     deps.Options,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(deps.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		success(c, http.StatusOK, "ok", nil)
	})
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/availability", h.availability)
		v1.POST("/score", h.score)
		v1.POST("/explain", h.explain)
	}

	return r
}

// scoreRequest accepts raw records in any shape jobs.FromRecord understands.
type scoreRequest struct {
	Jobs []map[string]any `json:"jobs" binding:"required,min=1,max=200"`
}

type scoredJob struct {
	ID       string          `json:"id"`
	Title    string          `json:"title,omitempty"`
	Employer string          `json:"employer,omitempty"`
	State    string          `json:"state"`
	Result   *scoring.Result `json:"result"`
}

type scoreResponse struct {
	Jobs     []scoredJob `json:"jobs"`
	Promoted int         `json:"promoted"`
	AIScored int         `json:"aiScored"`
	Batches  int         `json:"batches"`
	Stopped  string      `json:"stopped,omitempty"`
}

func (h *handler) score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	list := jobs.FromRecords(req.Jobs)
	report, err := h.coordinator.Run(c.Request.Context(), list.Items, nil)
	if err != nil {
		h.fail(c, "scoring failed", err)
		return
	}

	resp := scoreResponse{
		Jobs:     make([]scoredJob, 0, len(report.Entries)),
		Promoted: report.Promoted,
		AIScored: report.AIScored,
		Batches:  report.Batches,
		Stopped:  report.Stopped,
	}
	for _, e := range report.Entries {
		resp.Jobs = append(resp.Jobs, scoredJob{
			ID:       e.Job.ID,
			Title:    e.Job.Title,
			Employer: e.Job.Employer,
			State:    e.State.String(),
			Result:   e.Result,
		})
	}
	success(c, http.StatusOK, "scored", resp)
}

type explainRequest struct {
	Job       map[string]any `json:"job" binding:"required"`
	ExtraInfo string         `json:"extraInfo" binding:"max=2000"`
	Force     bool           `json:"force"`
}

func (h *handler) explain(c *gin.Context) {
	if h.explainer == nil {
		failure(c, http.StatusServiceUnavailable, "AI scoring is not configured", nil)
		return
	}

	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	opts := h.options
	opts.Force = req.Force
	opts.ExtraInfo = strings.TrimSpace(req.ExtraInfo)

	res, err := h.explainer.ScoreOne(c.Request.Context(), jobs.FromRecord(req.Job), opts)
	if err != nil {
		h.fail(c, "scoring failed", err)
		return
	}
	success(c, http.StatusOK, "scored", res)
}

func (h *handler) availability(c *gin.Context) {
	if h.explainer == nil {
		success(c, http.StatusOK, "unavailable", ai.Availability{Reason: "AI scoring disabled"})
		return
	}
	av := h.explainer.Available(c.Request.Context())
	message := "available"
	if !av.Available {
		message = "unavailable"
	}
	success(c, http.StatusOK, message, av)
}

func (h *handler) fail(c *gin.Context, message string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, matcher.ErrMissingJobID):
		code = http.StatusBadRequest
	case errors.Is(err, matcher.ErrNoProfile):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	}
	if code == http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err), zap.String(requestIDKey, c.GetString(requestIDKey)))
	}
	failure(c, code, message, err)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String(requestIDKey, c.GetString(requestIDKey)),
		)
	}
}
