package domain

import "time"

// Quiz is an immutable, published quiz. Questions are graded in order.
type Quiz struct {
	QuizID    string
	Title     string
	Questions []Question
}

// Question is a multiple-choice question with exactly one correct option.
type Question struct {
	QuestionID    string   `json:"QuestionID"`
	QuestionText  string   `json:"QuestionText"`
	Options       []string `json:"Options"`
	CorrectOption string   `json:"CorrectOption"`
}

// QuizSummary is the listing view of a quiz, without its questions.
type QuizSummary struct {
	QuizID string
	Title  string
}

// Submission is an inbound answer set. It is never persisted on its own;
// it only travels inside a ScoringJob.
type Submission struct {
	Username string   `json:"Username"`
	QuizID   string   `json:"QuizID"`
	Answers  []string `json:"Answers"`
}

// ScoringJob is one unit of work on the submission queue. SubmissionID is
// generated at intake and doubles as the idempotency and dead-letter
// correlation key.
type ScoringJob struct {
	SubmissionID string     `json:"SubmissionID"`
	Submission   Submission `json:"Submission"`
	EnqueuedAt   time.Time  `json:"EnqueuedAt"`
}

// ScoredSubmission is the persisted outcome of scoring one submission.
// At most one exists per submission ID; it is never mutated or deleted.
type ScoredSubmission struct {
	SubmissionID string
	QuizID       string
	Username     string
	Score        int
	Correct      []bool
	ScoredAt     time.Time
}

// DeadLetterEvent describes a job that exhausted its delivery attempts.
type DeadLetterEvent struct {
	SubmissionID  string `json:"SubmissionID"`
	Reason        string `json:"Reason"`
	DeliveryCount int    `json:"DeliveryCount"`
}

// Leaderboard lists scored submissions for a quiz, ranked by score descending.
type Leaderboard struct {
	QuizID  string
	Entries []LeaderboardEntry
}

type LeaderboardEntry struct {
	SubmissionID string
	Username     string
	Score        int
}
