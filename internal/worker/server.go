package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/config"
	"github.com/dunamismax/tryonflow/internal/domain"
	"github.com/dunamismax/tryonflow/internal/logging"
	"github.com/dunamismax/tryonflow/internal/queue"
	"github.com/dunamismax/tryonflow/internal/storage"
	"github.com/dunamismax/tryonflow/internal/store"
	"github.com/dunamismax/tryonflow/internal/tryon"
	"github.com/dunamismax/tryonflow/internal/webhook"
)

type Runner interface {
	Run(ctx context.Context, req tryon.Request) (tryon.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Dependencies struct {
	Storage  storage.Store
	Jobs     store.JobStore
	Runner   Runner
	Webhooks webhookSender
}

type Server struct {
	logger   *zap.Logger
	server   *asynq.Server
	sem      chan struct{}
	storage  storage.Store
	jobs     store.JobStore
	runner   Runner
	webhooks webhookSender
	metrics  *metrics
	tracer   trace.Tracer
}

func NewServer(logger *zap.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Dependencies) (*Server, error) {
	if deps.Storage == nil {
		return nil, errors.New("artifact storage is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("try-on runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("worker")

	s := newServer(logger, workerCfg.MaxActiveJobs, deps)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			Logger:   logging.NewAsynqLogger(logger.Named("asynq")),
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warn("task failed",
					zap.String("type", task.Type()),
					zap.Int("retry", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err))
			}),
		},
	)
	return s, nil
}

func newServer(logger *zap.Logger, maxActive int, deps Dependencies) *Server {
	return &Server{
		logger:   logger,
		sem:      make(chan struct{}, max(1, maxActive)),
		storage:  deps.Storage,
		jobs:     deps.Jobs,
		runner:   deps.Runner,
		webhooks: deps.Webhooks,
		metrics:  newMetrics(),
		tracer:   otel.Tracer("tryonflow/worker"),
	}
}

func (s *Server) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTryOn, s.handleTryOn)
	return mux
}

// Run blocks until the process receives SIGTERM or SIGINT.
func (s *Server) Run() error {
	return s.server.Run(s.Mux())
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleTryOn(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	status, strategy := domain.JobStatusFailed, "none"

	payload, err := queue.ParseTryOnPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.tryon", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.category", string(payload.Category)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(strategy, status).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(strategy, status).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	logger := s.logger.With(zap.String("job_id", payload.JobID))
	logger.Info("try-on started",
		zap.String("category", string(payload.Category)),
		zap.String("person_key", payload.PersonKey),
		zap.String("garment_key", payload.GarmentKey))
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	result, err := s.tryOn(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "try-on failed")
		if !errors.Is(err, asynq.SkipRetry) && !finalAttempt(ctx) {
			status = "retry"
			return err
		}
		logger.Error("try-on failed", zap.Error(err))
		s.finish(ctx, payload, domain.JobOutcome{Status: domain.JobStatusFailed, Error: err.Error()}, false)
		return err
	}

	status, strategy = domain.JobStatusSucceeded, result.Strategy
	if result.Fallback {
		s.metrics.fallbacksTotal.Inc()
	}
	span.SetAttributes(
		attribute.String("tryon.strategy", result.Strategy),
		attribute.Bool("tryon.fallback", result.Fallback),
	)
	span.SetStatus(codes.Ok, "completed")
	logger.Info("try-on completed",
		zap.String("strategy", result.Strategy),
		zap.Bool("fallback", result.Fallback),
		zap.Duration("duration", time.Since(startedAt)))

	s.finish(ctx, payload, domain.JobOutcome{
		Status:    domain.JobStatusSucceeded,
		ResultKey: storage.ResultKey(payload.JobID),
		Strategy:  result.Strategy,
	}, result.Fallback)
	return nil
}

// tryOn loads both canvases, runs the strategies and stores the result.
// Errors wrapping asynq.SkipRetry will not succeed on a later attempt.
func (s *Server) tryOn(ctx context.Context, payload queue.TryOnPayload) (tryon.Result, error) {
	person, err := s.loadCanvas(ctx, payload.PersonKey)
	if err != nil {
		return tryon.Result{}, err
	}
	garment, err := s.loadCanvas(ctx, payload.GarmentKey)
	if err != nil {
		return tryon.Result{}, err
	}

	result, err := s.runner.Run(ctx, tryon.Request{
		Person:   person,
		Garment:  garment,
		Category: payload.Category,
	})
	if err != nil {
		if ctx.Err() != nil {
			return tryon.Result{}, err
		}
		return tryon.Result{}, fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	data, err := codec.EncodePNG(result.Image)
	if err != nil {
		return tryon.Result{}, fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err := s.storage.Put(ctx, storage.ResultKey(payload.JobID), data, codec.ContentType(codec.FormatPNG)); err != nil {
		return tryon.Result{}, fmt.Errorf("store result: %w", err)
	}
	return result, nil
}

func (s *Server) loadCanvas(ctx context.Context, key string) (image.Image, error) {
	data, err := s.storage.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load canvas %s: %w: %w", key, err, asynq.SkipRetry)
	}
	if err != nil {
		return nil, fmt.Errorf("load canvas %s: %w", key, err)
	}
	img, _, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load canvas %s: %w: %w", key, err, asynq.SkipRetry)
	}
	return img, nil
}

// finish records the outcome and notifies the job's webhook. Delivery
// failures are logged; the stored result stands either way.
func (s *Server) finish(ctx context.Context, payload queue.TryOnPayload, outcome domain.JobOutcome, fallback bool) {
	if s.jobs != nil {
		if _, err := s.jobs.UpdateOutcome(ctx, payload.JobID, outcome); err != nil {
			s.logger.Warn("job outcome update failed", zap.String("job_id", payload.JobID), zap.Error(err))
		}
	}

	if payload.WebhookURL == "" || s.webhooks == nil {
		return
	}

	event := webhook.EventJobCompleted
	body := map[string]any{
		"job_id":       payload.JobID,
		"status":       outcome.Status,
		"category":     payload.Category,
		"requested_at": payload.RequestedAt,
	}
	if outcome.Status == domain.JobStatusSucceeded {
		body["result_key"] = outcome.ResultKey
		body["strategy"] = outcome.Strategy
		body["fallback"] = fallback
		body["completed_at"] = time.Now().UTC()
	} else {
		event = webhook.EventJobFailed
		body["error"] = outcome.Error
		body["failed_at"] = time.Now().UTC()
	}

	if err := s.webhooks.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailures.Inc()
		s.logger.Warn("webhook delivery failed",
			zap.String("job_id", payload.JobID),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobs == nil {
		return
	}
	if _, err := s.jobs.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Warn("job status update failed",
			zap.String("job_id", jobID),
			zap.String("status", status),
			zap.Error(err))
	}
}

// finalAttempt reports whether asynq will not retry the task after this
// run. Outside asynq there is no retry.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return !ok || retried >= maxRetry
}
