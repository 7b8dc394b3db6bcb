package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
)

// State is one step of the alert workflow. The machine is small enough to
// enumerate: Start → SendEmail → {Success | RetrySendEmail → SendEmail | Failed}.
type State string

const (
	StateStart          State = "Start"
	StateSendEmail      State = "SendEmail"
	StateRetrySendEmail State = "RetrySendEmail"
	StateSuccess        State = "Success"
	StateFailed         State = "Failed"
)

// Terminal reports whether the workflow stops at this state.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers one operator alert. Implementations decide transport.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

type Config struct {
	Sender Sender

	// Operator is the alert recipient address.
	Operator string

	// MaxAttempts bounds send attempts, first try included.
	MaxAttempts int

	// Backoff is the wait between attempts.
	Backoff time.Duration

	// Sleep is injectable for tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Workflow sends one operator alert per dead-letter event as an explicit
// state machine. Each Run is an independent instance; the workflow itself
// holds no per-event state, so one Workflow value serves every event.
type Workflow struct {
	sender      Sender
	operator    string
	maxAttempts int
	backoff     time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewWorkflow(c Config) *Workflow {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}

	return &Workflow{
		sender:      c.Sender,
		operator:    c.Operator,
		maxAttempts: c.MaxAttempts,
		backoff:     c.Backoff,
		sleep:       c.Sleep,
	}
}

// Run walks the state machine for one dead-letter event until a terminal
// state. StateFailed comes with the last send error; after that the workflow
// never re-attempts on its own, a human has to step in.
func (w *Workflow) Run(ctx context.Context, ev domain.DeadLetterEvent) (State, error) {
	var (
		state    = StateStart
		attempts = 0
		lastErr  error
	)

	msg := buildMessage(w.operator, ev)

	for !state.Terminal() {
		switch state {
		case StateStart:
			state = StateSendEmail

		case StateSendEmail:
			attempts++
			lastErr = w.sender.Send(ctx, msg)
			if lastErr == nil {
				state = StateSuccess
				break
			}

			slog.WarnContext(ctx, "notify: send attempt failed",
				"submission_id", ev.SubmissionID,
				"attempt", attempts,
				"error", lastErr,
			)

			if attempts >= w.maxAttempts || ctx.Err() != nil {
				state = StateFailed
				break
			}
			state = StateRetrySendEmail

		case StateRetrySendEmail:
			if err := w.sleep(ctx, w.backoff); err != nil {
				state = StateFailed
				break
			}
			state = StateSendEmail
		}
	}

	if state == StateFailed {
		return state, fmt.Errorf("alert for submission %s failed after %d attempts: %w",
			ev.SubmissionID, attempts, lastErr)
	}

	return state, nil
}

func buildMessage(operator string, ev domain.DeadLetterEvent) Message {
	return Message{
		To:      operator,
		Subject: fmt.Sprintf("[quiz-pipeline] scoring failed for submission %s", ev.SubmissionID),
		Body: fmt.Sprintf(
			"A quiz submission could not be scored and was dead-lettered.\n\n"+
				"Submission ID: %s\nFailure reason: %s\nDelivery attempts: %d\n\n"+
				"No score was recorded. Use the submission ID to trace the failure in the service logs.",
			ev.SubmissionID, ev.Reason, ev.DeliveryCount),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
