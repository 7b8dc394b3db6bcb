package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
	"github.com/localstack-samples/serverless-quiz-app/internal/event"
	"github.com/localstack-samples/serverless-quiz-app/internal/metrics"
	"github.com/localstack-samples/serverless-quiz-app/internal/queue"
)

const defaultReceiveWait = time.Second

// QuizStore is the read-only quiz lookup used to grade answers.
type QuizStore interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
}

// JobQueue is the consumption side of the submission queue.
type JobQueue interface {
	Receive(ctx context.Context, wait time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id, reason string) error
}

type WorkerConfig struct {
	Queue       JobQueue
	Quizzes     QuizStore
	Store       Store
	EventBus    *event.Bus
	Metrics     *metrics.Metrics
	ReceiveWait time.Duration
}

// Worker pulls scoring jobs from the queue, grades them and persists the
// result. Many workers run concurrently against the same queue; the store's
// create-if-absent insert keeps duplicate deliveries harmless.
type Worker struct {
	queue   JobQueue
	quizzes QuizStore
	store   Store
	eb      *event.Bus
	metrics *metrics.Metrics
	wait    time.Duration
}

func NewWorker(c WorkerConfig) *Worker {
	if c.ReceiveWait <= 0 {
		c.ReceiveWait = defaultReceiveWait
	}

	return &Worker{
		queue:   c.Queue,
		quizzes: c.Quizzes,
		store:   c.Store,
		eb:      c.EventBus,
		metrics: c.Metrics,
		wait:    c.ReceiveWait,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		d, err := w.queue.Receive(ctx, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			slog.ErrorContext(ctx, "scoring: receive failed", "error", err)
			continue
		}
		if d == nil {
			continue
		}

		w.handle(ctx, d)
	}
}

// handle processes one delivery. Acking only after the insert succeeded is
// what makes a crash here safe: the lease expires and the job is redelivered.
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	log := slog.With("submission_id", d.ID, "delivery_count", d.Count)

	var job domain.ScoringJob
	if err := json.Unmarshal(d.Payload, &job); err != nil {
		log.ErrorContext(ctx, "scoring: malformed job payload", "error", err)
		w.nack(ctx, d.ID, "malformed job payload")
		return
	}

	// Duplicate delivery: already scored, acknowledge and move on.
	scored, err := w.store.HasScored(ctx, job.SubmissionID)
	if err != nil {
		log.ErrorContext(ctx, "scoring: idempotency check failed", "error", err)
		w.nack(ctx, d.ID, fmt.Sprintf("idempotency check: %v", err))
		return
	}
	if scored {
		w.metrics.IncDuplicate()
		log.InfoContext(ctx, "scoring: duplicate delivery, already scored")
		w.ack(ctx, d.ID)
		return
	}

	q, err := w.quizzes.GetQuiz(ctx, job.Submission.QuizID)
	if err != nil {
		// Intake validated existence, so a missing quiz is a data anomaly
		// that retrying cannot fix. Nack and let the queue dead-letter it.
		if errors.Convert(err).Code == errors.CodeNotFound {
			log.ErrorContext(ctx, "scoring: quiz vanished after intake",
				"quiz_id", job.Submission.QuizID)
			w.nack(ctx, d.ID, fmt.Sprintf("quiz %q not found", job.Submission.QuizID))
			return
		}

		log.ErrorContext(ctx, "scoring: quiz lookup failed", "error", err)
		w.nack(ctx, d.ID, fmt.Sprintf("quiz lookup: %v", err))
		return
	}

	score, correct := Grade(q, job.Submission.Answers)

	sub := &domain.ScoredSubmission{
		SubmissionID: job.SubmissionID,
		QuizID:       job.Submission.QuizID,
		Username:     job.Submission.Username,
		Score:        score,
		Correct:      correct,
		ScoredAt:     time.Now(),
	}

	inserted, err := w.store.Insert(ctx, sub)
	if err != nil {
		log.ErrorContext(ctx, "scoring: persist failed", "error", err)
		w.nack(ctx, d.ID, fmt.Sprintf("persist: %v", err))
		return
	}

	w.ack(ctx, d.ID)

	if !inserted {
		// Lost the race against a concurrent duplicate delivery.
		w.metrics.IncDuplicate()
		return
	}

	w.metrics.IncScored()
	log.InfoContext(ctx, "scoring: submission scored",
		"quiz_id", sub.QuizID,
		"score", sub.Score,
	)

	if w.eb != nil {
		w.eb.Publish(ctx, domain.EventSubmissionScored{Submission: *sub})
	}
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.queue.Ack(ctx, id); err != nil {
		// The job will be redelivered after the lease; the idempotency
		// check turns that into a no-op.
		slog.ErrorContext(ctx, "scoring: ack failed", "submission_id", id, "error", err)
	}
}

func (w *Worker) nack(ctx context.Context, id, reason string) {
	if err := w.queue.Nack(ctx, id, reason); err != nil {
		slog.ErrorContext(ctx, "scoring: nack failed", "submission_id", id, "error", err)
	}
}

// Grade compares each answer against the question's correct option. The score
// is the number of matches; correctness is reported per question. Missing
// answers count as wrong, extra answers are ignored.
func Grade(q *domain.Quiz, answers []string) (int, []bool) {
	correct := make([]bool, len(q.Questions))

	score := 0
	for i, question := range q.Questions {
		if i < len(answers) && answers[i] == question.CorrectOption {
			correct[i] = true
			score++
		}
	}

	return score, correct
}
