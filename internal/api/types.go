package api

import "time"

// Field casing mirrors the original front-door contract.
type (
	SubmitQuizRequest struct {
		Username string   `json:"Username"`
		QuizID   string   `json:"QuizID"`
		Answers  []string `json:"Answers"`
	}

	SubmitQuizResponse struct {
		Message      string `json:"Message"`
		SubmissionID string `json:"SubmissionID"`
	}

	CreateQuizRequest struct {
		QuizID    string           `json:"QuizID"`
		Title     string           `json:"Title"`
		Questions []CreateQuestion `json:"Questions"`
	}

	CreateQuestion struct {
		QuestionID    string   `json:"QuestionID"`
		QuestionText  string   `json:"QuestionText"`
		Options       []string `json:"Options"`
		CorrectOption string   `json:"CorrectOption"`
	}

	CreateQuizResponse struct {
		QuizID string `json:"QuizID"`
	}

	QuizResponse struct {
		QuizID    string         `json:"QuizID"`
		Title     string         `json:"Title"`
		Questions []QuizQuestion `json:"Questions"`
	}

	QuizQuestion struct {
		QuestionID   string   `json:"QuestionID"`
		QuestionText string   `json:"QuestionText"`
		Options      []string `json:"Options"`
	}

	SubmissionResponse struct {
		SubmissionID string    `json:"SubmissionID"`
		QuizID       string    `json:"QuizID"`
		Username     string    `json:"Username"`
		Score        int       `json:"Score"`
		Correct      []bool    `json:"Correct"`
		ScoredAt     time.Time `json:"ScoredAt"`
	}

	LeaderboardResponse struct {
		QuizID  string             `json:"QuizID"`
		Entries []LeaderboardEntry `json:"Entries"`
	}

	LeaderboardEntry struct {
		SubmissionID string `json:"SubmissionID"`
		Username     string `json:"Username"`
		Score        int    `json:"Score"`
	}

	QuizSummary struct {
		QuizID string `json:"QuizID"`
		Title  string `json:"Title"`
	}

	ListQuizzesResponse struct {
		Quizzes []QuizSummary `json:"Quizzes"`
	}

	ErrorResponse struct {
		Message string `json:"Message"`
	}
)
