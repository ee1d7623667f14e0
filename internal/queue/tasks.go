package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/tryonflow/internal/domain"
)

const TypeTryOn = "tryon:run"

type TryOnPayload struct {
	JobID       string          `json:"job_id"`
	GarmentKey  string          `json:"garment_key"`
	PersonKey   string          `json:"person_key"`
	Category    domain.Category `json:"category"`
	WebhookURL  string          `json:"webhook_url,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
}

func (p TryOnPayload) validate() error {
	switch {
	case strings.TrimSpace(p.JobID) == "":
		return fmt.Errorf("job_id is required")
	case strings.TrimSpace(p.GarmentKey) == "":
		return fmt.Errorf("garment_key is required")
	case strings.TrimSpace(p.PersonKey) == "":
		return fmt.Errorf("person_key is required")
	}
	return nil
}

func NewTryOnTask(payload TryOnPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, fmt.Errorf("invalid try-on payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal try-on payload: %w", err)
	}
	return asynq.NewTask(TypeTryOn, body), nil
}

func ParseTryOnPayload(task *asynq.Task) (TryOnPayload, error) {
	var payload TryOnPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TryOnPayload{}, fmt.Errorf("unmarshal try-on payload: %w", err)
	}
	if err := payload.validate(); err != nil {
		return TryOnPayload{}, fmt.Errorf("invalid try-on payload: %w", err)
	}
	payload.Category = domain.NormalizeCategory(string(payload.Category))
	return payload, nil
}
