package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/aegis-grc/aegis/internal/webhooks"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWebhookDeliver delivers one signed webhook payload to one endpoint.
	TaskWebhookDeliver = "webhook:deliver"
	// TaskAssignmentSweep purges long-expired role assignments.
	TaskAssignmentSweep = "authz:assignment_sweep"
)

// NewWebhookDeliverTask wraps a delivery into an Asynq task.
func NewWebhookDeliverTask(d webhooks.Delivery) (*asynq.Task, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookDeliver, data, asynq.MaxRetry(5)), nil
}

// NewAssignmentSweepTask constructs the sweep task; it carries no payload.
func NewAssignmentSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAssignmentSweep, nil)
}
