package notify_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/notify"
)

func TestWorkflow_Run(t *testing.T) {
	ev := domain.DeadLetterEvent{
		SubmissionID:  "sub-1",
		Reason:        "quiz \"Q1\" not found",
		DeliveryCount: 2,
	}

	type (
		inputs struct {
			sendErrs    []error
			maxAttempts int
		}

		outputs struct {
			state    notify.State
			err      error
			attempts int
			waits    []time.Duration
		}
	)

	transient := stderrors.New("connection refused")

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"first attempt succeeds": {
			arrange: func() inputs {
				return inputs{sendErrs: []error{nil}, maxAttempts: 3}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, notify.StateSuccess, out.state)
				require.NoError(t, out.err)
				require.Equal(t, 1, out.attempts)
				require.Empty(t, out.waits, "no backoff before the first attempt")
			},
		},

		"transient failures are retried with backoff until success": {
			arrange: func() inputs {
				return inputs{sendErrs: []error{transient, transient, nil}, maxAttempts: 3}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, notify.StateSuccess, out.state)
				require.NoError(t, out.err)
				require.Equal(t, 3, out.attempts)
				require.Equal(t, []time.Duration{time.Second, time.Second}, out.waits)
			},
		},

		"exhausting retries is terminal failure": {
			arrange: func() inputs {
				return inputs{sendErrs: []error{transient, transient, transient}, maxAttempts: 3}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, notify.StateFailed, out.state)
				require.ErrorIs(t, out.err, transient)
				require.Equal(t, 3, out.attempts, "no attempts beyond the bound")
				require.Len(t, out.waits, 2)
			},
		},

		"single attempt budget fails without retry": {
			arrange: func() inputs {
				return inputs{sendErrs: []error{transient}, maxAttempts: 1}
			},

			assert: func(t *testing.T, out outputs) {
				require.Equal(t, notify.StateFailed, out.state)
				require.Equal(t, 1, out.attempts)
				require.Empty(t, out.waits)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in := tt.arrange()

			sender := &scriptedSender{errs: in.sendErrs}
			var waits []time.Duration

			w := notify.NewWorkflow(notify.Config{
				Sender:      sender,
				Operator:    "ops@example.com",
				MaxAttempts: in.maxAttempts,
				Backoff:     time.Second,
				Sleep: func(_ context.Context, d time.Duration) error {
					waits = append(waits, d)
					return nil
				},
			})

			state, err := w.Run(context.Background(), ev)

			tt.assert(t, outputs{
				state:    state,
				err:      err,
				attempts: len(sender.sent),
				waits:    waits,
			})
		})
	}
}

func TestWorkflow_MessageContent(t *testing.T) {
	sender := &scriptedSender{errs: []error{nil}}

	w := notify.NewWorkflow(notify.Config{
		Sender:   sender,
		Operator: "ops@example.com",
	})

	_, err := w.Run(context.Background(), domain.DeadLetterEvent{
		SubmissionID:  "sub-42",
		Reason:        "persist: store unavailable",
		DeliveryCount: 2,
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	m := sender.sent[0]
	require.Equal(t, "ops@example.com", m.To)
	require.Contains(t, m.Subject, "sub-42")
	require.Contains(t, m.Body, "sub-42")
	require.Contains(t, m.Body, "persist: store unavailable")
	require.Contains(t, m.Body, "2")
	require.Contains(t, m.Body, "service logs",
		"the body must point at the logs, not at the already-acked queue event")
	require.NotContains(t, m.Body, "dead-letter queue")
}

func TestWorkflow_CancelledContextStops(t *testing.T) {
	transient := stderrors.New("connection refused")
	sender := &scriptedSender{errs: []error{transient, transient, transient}}

	w := notify.NewWorkflow(notify.Config{
		Sender:      sender,
		Operator:    "ops@example.com",
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := w.Run(ctx, domain.DeadLetterEvent{SubmissionID: "sub-1"})
	require.Equal(t, notify.StateFailed, state)
	require.Error(t, err)
	require.Len(t, sender.sent, 1, "a cancelled workflow must not keep retrying")
}

type scriptedSender struct {
	errs []error
	sent []notify.Message
}

func (s *scriptedSender) Send(_ context.Context, m notify.Message) error {
	i := len(s.sent)
	s.sent = append(s.sent, m)
	if i < len(s.errs) {
		return s.errs[i]
	}
	return nil
}
