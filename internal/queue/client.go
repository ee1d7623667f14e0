package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Generation on a shared space can queue for minutes before a GPU frees up.
const tryOnTimeout = 10 * time.Minute

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) EnqueueTryOn(ctx context.Context, payload TryOnPayload) (*asynq.TaskInfo, error) {
	task, err := NewTryOnTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(3),
		asynq.Timeout(tryOnTimeout),
		asynq.Retention(24*time.Hour),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
