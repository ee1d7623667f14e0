// Package tryon chooses how a try-on result is produced. Strategies are
// tried in order; the first success wins.
package tryon

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/domain"
	"github.com/dunamismax/tryonflow/internal/raster"
)

var ErrNoStrategies = errors.New("no try-on strategies configured")

// Request carries the two prepared canvases.
type Request struct {
	Person   image.Image
	Garment  image.Image
	Category domain.Category
}

type Result struct {
	Image    *image.NRGBA
	Strategy string
	// Fallback is set when an earlier strategy failed before this one
	// succeeded.
	Fallback bool
}

type Strategy interface {
	Name() string
	TryOn(ctx context.Context, req Request) (image.Image, error)
}

type Orchestrator struct {
	strategies []Strategy
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New builds an orchestrator over strategies in priority order. The last
// strategy should be one that cannot fail for valid canvases.
func New(logger *zap.Logger, strategies ...Strategy) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		strategies: strategies,
		logger:     logger.Named("tryon"),
		tracer:     otel.Tracer("tryonflow/tryon"),
	}
}

func (o *Orchestrator) Strategies() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Run returns the output of the first strategy that succeeds. Failures of
// earlier strategies are logged and discarded; only the last strategy's
// error is returned.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if len(o.strategies) == 0 {
		return Result{}, ErrNoStrategies
	}

	var err error
	for i, strategy := range o.strategies {
		var img image.Image
		img, err = o.attempt(ctx, strategy, req)
		if err == nil {
			return Result{Image: raster.ToNRGBA(img), Strategy: strategy.Name(), Fallback: i > 0}, nil
		}
		if i == len(o.strategies)-1 {
			break
		}

		o.logger.Warn("try-on strategy failed, falling back",
			zap.String("strategy", strategy.Name()),
			zap.String("next", o.strategies[i+1].Name()),
			zap.Error(err),
		)
	}

	last := o.strategies[len(o.strategies)-1]
	return Result{}, fmt.Errorf("%s try-on: %w", last.Name(), err)
}

func (o *Orchestrator) attempt(ctx context.Context, strategy Strategy, req Request) (image.Image, error) {
	ctx, span := o.tracer.Start(ctx, "tryon."+strategy.Name())
	span.SetAttributes(attribute.String("tryon.category", req.Category.String()))
	defer span.End()

	startedAt := time.Now()
	img, err := strategy.TryOn(ctx, req)
	if err == nil && (img == nil || img.Bounds().Empty()) {
		err = errors.New("strategy returned an empty image")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "strategy failed")
		return nil, err
	}

	o.logger.Debug("try-on strategy succeeded",
		zap.String("strategy", strategy.Name()),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
	return img, nil
}
