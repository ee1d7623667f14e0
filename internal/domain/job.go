package domain

import (
	"errors"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

// Strategy names recorded on a finished job.
const (
	StrategyGenerative = "generative"
	StrategyComposite  = "composite"
)

type TryOnRequest struct {
	GarmentKey string `json:"garment_key"`
	PersonKey  string `json:"person_key"`
	Category   string `json:"category"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type Job struct {
	ID         string    `json:"job_id"`
	UserID     string    `json:"user_id,omitempty"`
	Status     string    `json:"status"`
	Category   Category  `json:"category"`
	GarmentKey string    `json:"garment_key"`
	PersonKey  string    `json:"person_key"`
	ResultKey  string    `json:"result_key,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Error      string    `json:"error,omitempty"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobOutcome is what the worker writes back once a job leaves processing.
type JobOutcome struct {
	Status    string
	ResultKey string
	Strategy  string
	Error     string
}

func (r TryOnRequest) Validate() error {
	if strings.TrimSpace(r.GarmentKey) == "" {
		return errors.New("garment_key is required")
	}
	if strings.TrimSpace(r.PersonKey) == "" {
		return errors.New("person_key is required")
	}
	if strings.Contains(r.GarmentKey, "..") || strings.Contains(r.PersonKey, "..") {
		return errors.New("artifact keys must not contain '..'")
	}
	if url := strings.TrimSpace(r.WebhookURL); url != "" &&
		!strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return errors.New("webhook_url must be an http(s) URL")
	}
	return nil
}

// Terminal reports whether the job will not change status again.
func (j Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
