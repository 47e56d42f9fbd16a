package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/tillbook/tillbook/internal/variance"
)

// Enqueuer submits tasks to the worker queue. It satisfies
// variance.AlertSink.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer wraps an Asynq client.
func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// VarianceAlert enqueues a variance alert task.
func (e *Enqueuer) VarianceAlert(ctx context.Context, a variance.Alert) error {
	task, err := NewVarianceAlertTask(a)
	if err != nil {
		return fmt.Errorf("jobs: build variance alert: %w", err)
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("jobs: enqueue variance alert: %w", err)
	}
	return nil
}
