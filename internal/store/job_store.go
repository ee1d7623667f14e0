// Package store persists try-on jobs.
package store

import (
	"context"
	"errors"

	"github.com/dunamismax/tryonflow/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// UpdateOutcome records the final status together with the result key,
	// strategy and error of a job.
	UpdateOutcome(ctx context.Context, id string, outcome domain.JobOutcome) (domain.Job, error)
}
