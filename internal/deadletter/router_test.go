package deadletter_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/localstack-samples/serverless-quiz-app/internal/deadletter"
	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/notify"
	"github.com/localstack-samples/serverless-quiz-app/internal/queue"
)

func TestRouter_ForwardsEventToWorkflow(t *testing.T) {
	dlq := makeDLQ(t)
	wf := &fakeWorkflow{state: notify.StateSuccess}

	ev := domain.DeadLetterEvent{
		SubmissionID:  "sub-1",
		Reason:        "persist: store unavailable",
		DeliveryCount: 2,
	}
	enqueueEvent(t, dlq, ev)

	runRouter(t, dlq, wf)

	require.Eventually(t, func() bool {
		return len(wf.events()) == 1
	}, 3*time.Second, 20*time.Millisecond, "event should reach the workflow")

	require.Equal(t, ev, wf.events()[0])

	// Acked after the terminal state: the channel drains.
	require.Eventually(t, func() bool {
		pending, leased, err := dlq.Depth(context.Background())
		return err == nil && pending == 0 && leased == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRouter_AcksTerminalFailure(t *testing.T) {
	// A workflow that exhausted its retries is terminal; the router must not
	// spin the event forever.
	dlq := makeDLQ(t)
	wf := &fakeWorkflow{state: notify.StateFailed}

	enqueueEvent(t, dlq, domain.DeadLetterEvent{SubmissionID: "sub-1", Reason: "x", DeliveryCount: 1})

	runRouter(t, dlq, wf)

	require.Eventually(t, func() bool {
		pending, leased, err := dlq.Depth(context.Background())
		return err == nil && pending == 0 && leased == 0
	}, 3*time.Second, 20*time.Millisecond, "terminally failed notification should still be acked")

	require.Equal(t, 1, len(wf.events()), "no router-level retry of a terminal workflow")
}

func makeDLQ(t *testing.T) *queue.Queue {
	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { rc.Close() })

	return queue.New(queue.Config{
		Redis:  rc,
		Prefix: "test:deadletters",
	})
}

func runRouter(t *testing.T, dlq *queue.Queue, wf deadletter.Notifier) {
	r := deadletter.NewRouter(deadletter.Config{
		Queue:       dlq,
		Workflow:    wf,
		ReceiveWait: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func enqueueEvent(t *testing.T, dlq *queue.Queue, ev domain.DeadLetterEvent) {
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, dlq.Enqueue(context.Background(), ev.SubmissionID, b))
}

type fakeWorkflow struct {
	mu    sync.Mutex
	state notify.State
	got   []domain.DeadLetterEvent
}

func (f *fakeWorkflow) Run(_ context.Context, ev domain.DeadLetterEvent) (notify.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.got = append(f.got, ev)
	return f.state, nil
}

func (f *fakeWorkflow) events() []domain.DeadLetterEvent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]domain.DeadLetterEvent(nil), f.got...)
}
