package quiz

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service owns the quizzes table. Quizzes are immutable once created; the
// scoring worker and intake only read from here.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

type CreateQuizRequest struct {
	QuizID    string
	Title     string
	Questions []domain.Question
}

// CreateQuiz publishes a new quiz. A missing QuizID gets a generated one.
// Publishing over an existing identifier fails: quizzes are immutable.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if req.QuizID == "" {
		req.QuizID = uuid.New().String()
	}

	questions, err := json.Marshal(req.Questions)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}

	const stmt = `
INSERT INTO quizzes (quiz_id, title, questions, create_time)
VALUES ($1, $2, $3, $4)
ON CONFLICT (quiz_id) DO NOTHING;`

	tag, err := s.db.Exec(ctx, stmt, req.QuizID, req.Title, questions, time.Now())
	if err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("quiz already exists: %s", req.QuizID))
	}

	return &domain.Quiz{
		QuizID:    req.QuizID,
		Title:     req.Title,
		Questions: req.Questions,
	}, nil
}

// GetQuiz returns the quiz or CodeNotFound.
func (s *Service) GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	const stmt = `SELECT title, questions FROM quizzes WHERE quiz_id = $1;`

	var (
		title     string
		questions []byte
	)
	err := s.db.QueryRow(ctx, stmt, quizID).Scan(&title, &questions)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("quiz not found: %s", quizID))
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	q := &domain.Quiz{QuizID: quizID, Title: title}
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}

	return q, nil
}

// ListQuizzes returns all published quizzes, newest first.
func (s *Service) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	const stmt = `SELECT quiz_id, title FROM quizzes ORDER BY create_time DESC;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.QuizSummary, error) {
		var qs domain.QuizSummary
		if err := r.Scan(&qs.QuizID, &qs.Title); err != nil {
			return domain.QuizSummary{}, err
		}
		return qs, nil
	})
}

func validateCreate(req CreateQuizRequest) error {
	if len(req.Questions) == 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("quiz must have at least one question"))
	}

	for i, q := range req.Questions {
		if len(q.Options) < 2 {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d must have at least two options", i))
		}
		if !slices.Contains(q.Options, q.CorrectOption) {
			return errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("question %d: correct option is not one of the options", i))
		}
	}

	return nil
}
