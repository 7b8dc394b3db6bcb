package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
	"github.com/localstack-samples/serverless-quiz-app/internal/metrics"
)

// QuizStore is the read-only quiz lookup intake needs.
type QuizStore interface {
	GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
}

// Enqueuer is the queue write contract. A nil error means the queue has
// durably accepted the job.
type Enqueuer interface {
	Enqueue(ctx context.Context, id string, payload []byte) error
}

type Config struct {
	Quizzes QuizStore
	Queue   Enqueuer
	Metrics *metrics.Metrics
}

// Service validates inbound submissions and hands them to the queue. It never
// scores and never touches the submission store: callers get a fast
// acknowledgment while scoring happens out of band.
type Service struct {
	quizzes QuizStore
	queue   Enqueuer
	metrics *metrics.Metrics
}

func NewService(c Config) *Service {
	return &Service{
		quizzes: c.Quizzes,
		queue:   c.Queue,
		metrics: c.Metrics,
	}
}

type SubmitRequest struct {
	Username string
	QuizID   string
	Answers  []string
}

// Submit validates the request, generates a fresh submission identifier and
// enqueues a scoring job. The identifier is returned once the queue confirms
// receipt; on any error no identifier is returned and nothing was enqueued.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	if _, err := s.quizzes.GetQuiz(ctx, req.QuizID); err != nil {
		if errors.Convert(err).Code == errors.CodeNotFound {
			return "", errors.New(errors.CodeNotFound,
				errors.WithMessagef("quiz %q does not exist", req.QuizID))
		}
		return "", fmt.Errorf("look up quiz %s: %w", req.QuizID, err)
	}

	job := domain.ScoringJob{
		SubmissionID: uuid.New().String(),
		Submission: domain.Submission{
			Username: req.Username,
			QuizID:   req.QuizID,
			Answers:  req.Answers,
		},
		EnqueuedAt: time.Now(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal scoring job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job.SubmissionID, payload); err != nil {
		// The caller must retry the whole submission: nothing was accepted.
		return "", errors.New(errors.CodeUnavailable,
			errors.WithMessagef("submission could not be queued"),
			errors.WithCause(err))
	}

	s.metrics.IncEnqueued()
	slog.InfoContext(ctx, "intake: submission enqueued",
		"submission_id", job.SubmissionID,
		"quiz_id", req.QuizID,
	)

	return job.SubmissionID, nil
}

func validate(req SubmitRequest) error {
	switch {
	case req.Username == "":
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("username is required"))
	case req.QuizID == "":
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("quiz ID is required"))
	case len(req.Answers) == 0:
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("answers are required"))
	}

	return nil
}
