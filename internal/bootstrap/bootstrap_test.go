package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/cache"
	"github.com/dunamismax/tryonflow/internal/config"
	"github.com/dunamismax/tryonflow/internal/domain"
	"github.com/dunamismax/tryonflow/internal/pose"
	"github.com/dunamismax/tryonflow/internal/segment"
	"github.com/dunamismax/tryonflow/internal/storage"
	"github.com/dunamismax/tryonflow/internal/store"
)

func TestOpenLocalAdapters(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStorage(ctx, config.StorageConfig{Driver: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStore{}, s)

	jobs, closeJobs, err := OpenJobStore(ctx, config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryJobStore{}, jobs)
	assert.NoError(t, closeJobs())

	c := OpenCache(ctx, config.CacheConfig{Driver: "memory", Capacity: 8}, nil, zap.NewNop())
	assert.IsType(t, &cache.MemoryCache{}, c)
	assert.IsType(t, cache.Nop{}, OpenCache(ctx, config.CacheConfig{Driver: "none"}, nil, zap.NewNop()))
}

func TestProvidersWithoutServices(t *testing.T) {
	remover, err := NewRemover(config.ProvidersConfig{CornerTolerance: 0.1}, zap.NewNop())
	require.NoError(t, err)
	require.IsType(t, &segment.CornerKey{}, remover)
	assert.Equal(t, 0.1, remover.(*segment.CornerKey).Tolerance)

	estimator, err := NewPoseEstimator(config.ProvidersConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, pose.FullFrame{}, estimator)

	_, err = NewPoseEstimator(config.ProvidersConfig{PoseCascade: "/does/not/exist"}, zap.NewNop())
	assert.Error(t, err)

	pipelines, err := NewPipelines(config.ProvidersConfig{BlurBackground: true}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, pipelines.Person.BlursBackground())
}

func TestOrchestratorEndsWithCompositor(t *testing.T) {
	orchestrator, client := NewOrchestrator(config.BackendConfig{}, zap.NewNop())
	assert.False(t, client.Configured())
	assert.Equal(t, []string{domain.StrategyGenerative, domain.StrategyComposite}, orchestrator.Strategies())
}
