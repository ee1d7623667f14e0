// Package bootstrap turns configuration into the concrete adapters both
// binaries share.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/backend"
	"github.com/dunamismax/tryonflow/internal/cache"
	"github.com/dunamismax/tryonflow/internal/config"
	"github.com/dunamismax/tryonflow/internal/pose"
	"github.com/dunamismax/tryonflow/internal/preprocess"
	"github.com/dunamismax/tryonflow/internal/segment"
	"github.com/dunamismax/tryonflow/internal/storage"
	"github.com/dunamismax/tryonflow/internal/store"
	"github.com/dunamismax/tryonflow/internal/tryon"
)

// Closer releases a resource opened here. It is never nil.
type Closer func() error

func noopCloser() error { return nil }

func OpenStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "minio":
		s, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint: cfg.Endpoint,
			Access:   cfg.AccessKey,
			Secret:   cfg.SecretKey,
			Bucket:   cfg.Bucket,
			UseSSL:   cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := storage.NewLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func OpenJobStore(ctx context.Context, cfg config.DatabaseConfig) (store.JobStore, Closer, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := store.NewPostgresJobStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return store.NewMemoryJobStore(), noopCloser, nil
	}
}

// OpenCache falls back to an in-process cache when Redis does not answer.
func OpenCache(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client, logger *zap.Logger) cache.Cache {
	switch cfg.Driver {
	case "none":
		return cache.Nop{}
	case "redis":
		rc := cache.NewRedisCache(rdb, cfg.TTL)
		err := rc.Ping(ctx)
		if err == nil {
			logger.Info("preprocess cache using redis")
			return rc
		}
		logger.Warn("redis unavailable, preprocess cache kept in memory", zap.Error(err))
	}
	return cache.NewMemoryCache(cfg.Capacity, cfg.TTL)
}

// NewRemover prefers a rembg server and otherwise keys out flat studio
// backgrounds locally.
func NewRemover(cfg config.ProvidersConfig, logger *zap.Logger) (preprocess.BackgroundRemover, error) {
	if cfg.SegmentURL == "" {
		logger.Info("no segmentation service configured, using corner key",
			zap.Float64("tolerance", cfg.CornerTolerance))
		return segment.NewCornerKey(cfg.CornerTolerance), nil
	}
	client, err := segment.NewClient(segment.ClientConfig{
		BaseURL: cfg.SegmentURL,
		Model:   cfg.SegmentModel,
		Timeout: cfg.SegmentTimeout,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func NewPoseEstimator(cfg config.ProvidersConfig, logger *zap.Logger) (preprocess.PoseEstimator, error) {
	switch {
	case cfg.PoseURL != "":
		client, err := pose.NewClient(cfg.PoseURL, cfg.PoseTimeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	case cfg.PoseCascade != "":
		estimator, err := pose.LoadFaceAnchoredEstimator(cfg.PoseCascade, pose.DefaultFaceOptions())
		if err != nil {
			return nil, err
		}
		return estimator, nil
	default:
		logger.Warn("no pose estimator configured, person photos keep their full frame")
		return pose.FullFrame{}, nil
	}
}

type Pipelines struct {
	Garment *preprocess.GarmentPipeline
	Person  *preprocess.PersonPipeline
}

func NewPipelines(cfg config.ProvidersConfig, logger *zap.Logger) (Pipelines, error) {
	remover, err := NewRemover(cfg, logger)
	if err != nil {
		return Pipelines{}, fmt.Errorf("background remover: %w", err)
	}
	estimator, err := NewPoseEstimator(cfg, logger)
	if err != nil {
		return Pipelines{}, fmt.Errorf("pose estimator: %w", err)
	}

	var opts []preprocess.PersonOption
	if cfg.BlurBackground {
		opts = append(opts, preprocess.WithBackgroundBlur(remover))
	}
	return Pipelines{
		Garment: preprocess.NewGarmentPipeline(remover, logger),
		Person:  preprocess.NewPersonPipeline(estimator, logger, opts...),
	}, nil
}

// NewOrchestrator tries the remote generator first and always ends with
// the local compositor.
func NewOrchestrator(cfg config.BackendConfig, logger *zap.Logger) (*tryon.Orchestrator, *backend.Client) {
	client := backend.New(backend.Config{
		SpaceURL:      cfg.SpaceURL,
		Token:         cfg.Token,
		Timeout:       cfg.Timeout,
		HDSteps:       cfg.HDSteps,
		DCSteps:       cfg.DCSteps,
		GuidanceScale: cfg.GuidanceScale,
		Seed:          cfg.Seed,
		MaxAttempts:   cfg.MaxAttempts,
	}, logger)

	if !client.Configured() {
		logger.Warn("generative backend not configured, results come from the compositor",
			zap.String("space_url", client.BaseURL()))
	}
	return tryon.New(logger,
		tryon.NewGenerativeStrategy(client),
		tryon.NewCompositeStrategy(nil),
	), client
}
