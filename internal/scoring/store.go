package scoring

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
)

// Store persists scored submissions. Insert must be create-if-absent on the
// submission identifier: a second insert for the same key is ignored, never
// overwritten. That uniqueness constraint is the pipeline's correctness
// backstop under duplicate delivery.
type Store interface {
	Insert(ctx context.Context, sub *domain.ScoredSubmission) (inserted bool, err error)
	HasScored(ctx context.Context, submissionID string) (bool, error)
	GetSubmission(ctx context.Context, submissionID string) (*domain.ScoredSubmission, error)
}

type Config struct {
	DB *pgxpool.Pool
}

// PGStore keeps scored submissions in the user_submissions table. The
// (quiz_id, score DESC) index backing leaderboard reads lives on the same
// table, so it is updated in the same statement as every insert.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(c Config) *PGStore {
	return &PGStore{db: c.DB}
}

func (s *PGStore) Insert(ctx context.Context, sub *domain.ScoredSubmission) (bool, error) {
	const stmt = `
INSERT INTO user_submissions (submission_id, quiz_id, username, score, correct, scored_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (submission_id) DO NOTHING;`

	tag, err := s.db.Exec(ctx, stmt,
		sub.SubmissionID, sub.QuizID, sub.Username, sub.Score, sub.Correct, sub.ScoredAt)
	if err != nil {
		return false, fmt.Errorf("insert scored submission: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) HasScored(ctx context.Context, submissionID string) (bool, error) {
	const stmt = `SELECT EXISTS (SELECT 1 FROM user_submissions WHERE submission_id = $1);`

	var exists bool
	if err := s.db.QueryRow(ctx, stmt, submissionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check scored submission: %w", err)
	}

	return exists, nil
}

func (s *PGStore) GetSubmission(ctx context.Context, submissionID string) (*domain.ScoredSubmission, error) {
	const stmt = `
SELECT quiz_id, username, score, correct, scored_at
FROM user_submissions
WHERE submission_id = $1;`

	sub := &domain.ScoredSubmission{SubmissionID: submissionID}
	err := s.db.QueryRow(ctx, stmt, submissionID).
		Scan(&sub.QuizID, &sub.Username, &sub.Score, &sub.Correct, &sub.ScoredAt)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("submission not found: %s", submissionID))
	}
	if err != nil {
		return nil, fmt.Errorf("select scored submission: %w", err)
	}

	return sub, nil
}

// Leaderboard lists a quiz's scored submissions best score first, using the
// (quiz_id, score DESC) index. Ties rank by scoring time.
func (s *PGStore) Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	const stmt = `
SELECT submission_id, username, score
FROM user_submissions
WHERE quiz_id = $1
ORDER BY score DESC, scored_at ASC;`

	rows, err := s.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		if err := r.Scan(&e.SubmissionID, &e.Username, &e.Score); err != nil {
			return domain.LeaderboardEntry{}, err
		}
		return e, nil
	})
}

var _ Store = (*PGStore)(nil)
