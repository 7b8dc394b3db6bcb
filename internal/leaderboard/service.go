package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
	"github.com/localstack-samples/serverless-quiz-app/internal/event"
)

// Store reads the ranking from the submission store when the cache cannot
// serve it.
type Store interface {
	Leaderboard(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Redis    redis.UniversalClient
	Prefix   string
}

// Service serves per-quiz rankings. The (quiz_id, score DESC) index on
// user_submissions is the source of truth; a Redis sorted set in front of it
// absorbs read traffic and is kept warm by submission.scored events. Cache
// entries are keyed per submission, matching the store's granularity.
type Service struct {
	eb     *event.Bus
	store  Store
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	if s.eb != nil {
		s.eb.Subscribe(domain.EventNameSubmissionScored, func(ctx context.Context, e event.Event) error {
			return s.recordScore(ctx, e.(domain.EventSubmissionScored))
		})
	}

	return s
}

type GetLeaderboardRequest struct {
	QuizID string
}

// GetLeaderboard returns all scored submissions for a quiz, best score first.
// A cache read failure degrades to the store: the ranking index stays
// readable through a Redis outage.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	entries, err := s.fromCache(ctx, req.QuizID)
	if err != nil {
		if s.store == nil {
			return nil, fmt.Errorf("get leaderboard: %w", err)
		}

		slog.ErrorContext(ctx, "leaderboard: cache read failed, serving from store",
			"quiz_id", req.QuizID,
			"error", err,
		)
		entries = nil
	}

	if len(entries) == 0 && s.store != nil {
		entries, err = s.store.Leaderboard(ctx, req.QuizID)
		if err != nil {
			return nil, fmt.Errorf("get leaderboard: %w", err)
		}

		s.warmCache(ctx, req.QuizID, entries)
	}

	if len(entries) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("leaderboard not found: quiz=%s", req.QuizID))
	}

	return &domain.Leaderboard{
		QuizID:  req.QuizID,
		Entries: entries,
	}, nil
}

// recordScore adds a freshly scored submission to the cached ranking.
func (s *Service) recordScore(ctx context.Context, e domain.EventSubmissionScored) error {
	sub := e.Submission

	if err := s.redis.ZAdd(ctx, s.leaderboardKey(sub.QuizID), redis.Z{
		Score:  float64(sub.Score),
		Member: member(sub.SubmissionID, sub.Username),
	}).Err(); err != nil {
		// The store index still has the row; the next cold read recovers.
		return fmt.Errorf("cache score: quiz=%s submission=%s: %w", sub.QuizID, sub.SubmissionID, err)
	}

	return nil
}

func (s *Service) fromCache(ctx context.Context, quizID string) ([]domain.LeaderboardEntry, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.leaderboardKey(quizID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		id, username := splitMember(z.Member.(string))
		entries = append(entries, domain.LeaderboardEntry{
			SubmissionID: id,
			Username:     username,
			Score:        int(z.Score),
		})
	}

	return entries, nil
}

func (s *Service) warmCache(ctx context.Context, quizID string, entries []domain.LeaderboardEntry) {
	if len(entries) == 0 {
		return
	}

	zs := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		zs = append(zs, redis.Z{
			Score:  float64(e.Score),
			Member: member(e.SubmissionID, e.Username),
		})
	}

	// Best effort: a failed warm just means the next read hits the store again.
	s.redis.ZAdd(ctx, s.leaderboardKey(quizID), zs...)
}

func (s *Service) leaderboardKey(quizID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, quizID)
}

// member encodes one cached entry. Submission IDs are UUIDs, so the first
// '#' always separates the ID from the username.
func member(submissionID, username string) string {
	return submissionID + "#" + username
}

func splitMember(m string) (submissionID, username string) {
	id, user, ok := strings.Cut(m, "#")
	if !ok {
		return m, ""
	}
	return id, user
}
