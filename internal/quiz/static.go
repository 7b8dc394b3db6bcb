package quiz

import (
	"context"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
)

// StaticStore serves quizzes from an in-memory map. Useful for tests and
// local demos where a database is overkill. Read-only after construction.
type StaticStore struct {
	quizzes map[string]domain.Quiz
}

func NewStaticStore(quizzes map[string]domain.Quiz) *StaticStore {
	return &StaticStore{quizzes: quizzes}
}

func (s *StaticStore) GetQuiz(_ context.Context, quizID string) (*domain.Quiz, error) {
	q, ok := s.quizzes[quizID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}

	return &q, nil
}
