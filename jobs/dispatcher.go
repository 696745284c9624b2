package jobs

import (
	"context"

	"github.com/aegis-grc/aegis/internal/webhooks"
)

// Dispatcher adapts the job client to the webhooks dispatch contract: each
// delivery becomes one queued task.
type Dispatcher struct {
	client *Client
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(client *Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch implements webhooks.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery webhooks.Delivery) error {
	task, err := NewWebhookDeliverTask(delivery)
	if err != nil {
		return err
	}
	_, err = d.client.Enqueue(ctx, task)
	return err
}
