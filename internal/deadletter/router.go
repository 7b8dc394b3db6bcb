package deadletter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/metrics"
	"github.com/localstack-samples/serverless-quiz-app/internal/notify"
	"github.com/localstack-samples/serverless-quiz-app/internal/queue"
)

const defaultReceiveWait = time.Second

// EventQueue is the consumption side of the dead-letter channel.
type EventQueue interface {
	Receive(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id, reason string) error
}

// Notifier runs one alert workflow instance to a terminal state.
type Notifier interface {
	Run(ctx context.Context, ev domain.DeadLetterEvent) (notify.State, error)
}

type Config struct {
	Queue       EventQueue
	Workflow    Notifier
	Metrics     *metrics.Metrics
	ReceiveWait time.Duration
}

// Router relays dead-letter events into notification workflows. It carries no
// business logic: each event gets its own workflow instance, and the event is
// acked once that instance reaches a terminal state. Events the router fails
// to pick up are redelivered by the dead-letter queue itself.
type Router struct {
	queue    EventQueue
	workflow Notifier
	metrics  *metrics.Metrics
	wait     time.Duration
}

func NewRouter(c Config) *Router {
	if c.ReceiveWait <= 0 {
		c.ReceiveWait = defaultReceiveWait
	}

	return &Router{
		queue:    c.Queue,
		workflow: c.Workflow,
		metrics:  c.Metrics,
		wait:     c.ReceiveWait,
	}
}

// Run relays events until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		d, err := r.queue.Receive(ctx, r.wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			slog.ErrorContext(ctx, "deadletter: receive failed", "error", err)
			continue
		}
		if d == nil {
			continue
		}

		r.forward(ctx, d)
	}
}

func (r *Router) forward(ctx context.Context, d *queue.Delivery) {
	r.metrics.IncDeadLettered()

	var ev domain.DeadLetterEvent
	if err := json.Unmarshal(d.Payload, &ev); err != nil {
		// Redelivery cannot fix a payload that never parses; drop it loudly.
		slog.ErrorContext(ctx, "deadletter: malformed event, dropping",
			"id", d.ID,
			"error", err,
		)
		r.ack(ctx, d.ID)
		return
	}

	slog.ErrorContext(ctx, "deadletter: scoring exhausted",
		"submission_id", ev.SubmissionID,
		"reason", ev.Reason,
		"delivery_count", ev.DeliveryCount,
	)

	state, err := r.workflow.Run(ctx, ev)

	if !state.Terminal() || (err != nil && ctx.Err() != nil) {
		// Shutdown interrupted the workflow; leave the event for redelivery.
		r.nack(ctx, d.ID, "notification interrupted")
		return
	}

	switch state {
	case notify.StateSuccess:
		r.metrics.IncNotificationSent()
		slog.InfoContext(ctx, "deadletter: operator notified",
			"submission_id", ev.SubmissionID)
	case notify.StateFailed:
		// The workflow never re-attempts a failed alert on its own.
		r.metrics.IncNotificationFailed()
		slog.ErrorContext(ctx, "deadletter: notification failed, manual intervention required",
			"submission_id", ev.SubmissionID,
			"error", err,
		)
	}

	r.ack(ctx, d.ID)
}

func (r *Router) ack(ctx context.Context, id string) {
	if err := r.queue.Ack(ctx, id); err != nil {
		slog.ErrorContext(ctx, "deadletter: ack failed", "id", id, "error", err)
	}
}

func (r *Router) nack(ctx context.Context, id, reason string) {
	if err := r.queue.Nack(ctx, id, reason); err != nil {
		slog.ErrorContext(ctx, "deadletter: nack failed", "id", id, "error", err)
	}
}
