package tryon

import (
	"context"
	"image"

	"github.com/dunamismax/tryonflow/internal/composite"
	"github.com/dunamismax/tryonflow/internal/domain"
)

// Generator renders the garment onto the person with a generative model.
type Generator interface {
	Generate(ctx context.Context, person, garment image.Image, category domain.Category) (image.Image, error)
}

type GenerativeStrategy struct {
	generator Generator
}

func NewGenerativeStrategy(generator Generator) *GenerativeStrategy {
	return &GenerativeStrategy{generator: generator}
}

func (s *GenerativeStrategy) Name() string { return domain.StrategyGenerative }

func (s *GenerativeStrategy) TryOn(ctx context.Context, req Request) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.generator.Generate(ctx, req.Person, req.Garment, req.Category)
}

// CompositeStrategy runs the local compositor. It ignores cancellation.
type CompositeStrategy struct {
	engine *composite.Engine
}

func NewCompositeStrategy(engine *composite.Engine) *CompositeStrategy {
	if engine == nil {
		engine = composite.NewEngine()
	}
	return &CompositeStrategy{engine: engine}
}

func (s *CompositeStrategy) Name() string { return domain.StrategyComposite }

func (s *CompositeStrategy) TryOn(_ context.Context, req Request) (image.Image, error) {
	return s.engine.Composite(req.Person, req.Garment)
}
