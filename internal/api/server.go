package api

import (
	"context"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/cache"
	"github.com/dunamismax/tryonflow/internal/queue"
	"github.com/dunamismax/tryonflow/internal/storage"
	"github.com/dunamismax/tryonflow/internal/store"
)

type Preprocessor interface {
	Process(ctx context.Context, data []byte) (*image.NRGBA, error)
}

type Enqueuer interface {
	EnqueueTryOn(ctx context.Context, payload queue.TryOnPayload) (*asynq.TaskInfo, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Garments    Preprocessor
	Persons     Preprocessor
	Storage     storage.Store
	Cache       cache.Cache
	Jobs        store.JobStore
	Queue       Enqueuer
	RateLimiter RateLimiter
	Checks      map[string]HealthCheck
}

type Options struct {
	Mode           string
	MaxUploadBytes int64
	AllowedTypes   []string
	UserIDHeader   string
}

type Server struct {
	logger       *zap.Logger
	deps         Dependencies
	maxUpload    int64
	allowedTypes map[string]bool
	userHeader   string
	metrics      *metrics
	tracer       trace.Tracer
	engine       *gin.Engine
}

func NewServer(logger *zap.Logger, deps Dependencies, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}
	if strings.TrimSpace(opts.UserIDHeader) == "" {
		opts.UserIDHeader = "X-User-ID"
	}

	allowed := make(map[string]bool, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}

	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}

	s := &Server{
		logger:       logger.Named("api"),
		deps:         deps,
		maxUpload:    opts.MaxUploadBytes,
		allowedTypes: allowed,
		userHeader:   opts.UserIDHeader,
		metrics:      newMetrics(),
		tracer:       otel.Tracer("tryonflow/api"),
		engine:       gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), s.withTracing(), s.withMetrics(), s.withLogging())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(s.metrics.handler()))

	v1 := r.Group("/v1")
	v1.GET("/jobs/:id", s.handleGetJob)
	v1.GET("/results/*key", s.handleGetResult)

	limited := v1.Group("", s.withRateLimit())
	limited.POST("/preprocess/garment", s.handlePreprocessGarment)
	limited.POST("/preprocess/person", s.handlePreprocessPerson)
	limited.POST("/tryon", s.handleTryOn)
	limited.DELETE("/cleanup", s.handleCleanup)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	components := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"components": components,
	})
}

func (s *Server) handleCleanup(c *gin.Context) {
	ctx := c.Request.Context()
	removed := make(map[string]int, 4)
	for _, prefix := range []string{storage.PrefixUploads, storage.PrefixGarments, storage.PrefixPersons, storage.PrefixResults} {
		n, err := s.deps.Storage.DeletePrefix(ctx, prefix)
		if err != nil {
			s.logger.Error("cleanup failed", zap.String("prefix", prefix), zap.Error(err))
			writeError(c, http.StatusInternalServerError, "failed to remove stored artifacts")
			return
		}
		removed[prefix] = n
	}

	// Cached fingerprints point at canvases that no longer exist.
	purged, err := s.deps.Cache.Purge(ctx)
	if err != nil {
		s.logger.Warn("cache purge failed", zap.Error(err))
	}

	s.logger.Info("artifacts removed", zap.Any("removed", removed), zap.Int("cache_entries", purged))
	c.JSON(http.StatusOK, gin.H{
		"removed":       removed,
		"cache_entries": purged,
	})
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
