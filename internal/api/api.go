package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
	"github.com/localstack-samples/serverless-quiz-app/internal/intake"
	"github.com/localstack-samples/serverless-quiz-app/internal/leaderboard"
	"github.com/localstack-samples/serverless-quiz-app/internal/quiz"
)

// The API depends on narrow service contracts so handlers can be exercised
// with fakes; the server wires the real services in.
type (
	Intake interface {
		Submit(ctx context.Context, req intake.SubmitRequest) (string, error)
	}

	QuizService interface {
		CreateQuiz(ctx context.Context, req quiz.CreateQuizRequest) (*domain.Quiz, error)
		GetQuiz(ctx context.Context, quizID string) (*domain.Quiz, error)
		ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
	}

	SubmissionReader interface {
		GetSubmission(ctx context.Context, submissionID string) (*domain.ScoredSubmission, error)
	}

	LeaderboardReader interface {
		GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
	}
)

type Config struct {
	Router      gin.IRouter
	Intake      Intake
	Quizzes     QuizService
	Submissions SubmissionReader
	Leaderboard LeaderboardReader
}

type API struct {
	intake      Intake
	quizzes     QuizService
	submissions SubmissionReader
	leaderboard LeaderboardReader
}

func New(c Config) *API {
	a := &API{
		intake:      c.Intake,
		quizzes:     c.Quizzes,
		submissions: c.Submissions,
		leaderboard: c.Leaderboard,
	}

	c.Router.POST("/submitquiz", a.SubmitQuiz)
	c.Router.POST("/createquiz", a.CreateQuiz)
	c.Router.GET("/getquiz", a.GetQuiz)
	c.Router.GET("/getsubmission", a.GetSubmission)
	c.Router.GET("/getleaderboard", a.GetLeaderboard)
	c.Router.GET("/listquizzes", a.ListQuizzes)

	return a
}

func (a *API) SubmitQuiz(c *gin.Context) {
	var req SubmitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid submission payload"),
			errors.WithCause(err)))
		return
	}

	id, err := a.intake.Submit(c.Request.Context(), intake.SubmitRequest{
		Username: req.Username,
		QuizID:   req.QuizID,
		Answers:  req.Answers,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmitQuizResponse{
		Message:      "Submission received",
		SubmissionID: id,
	})
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid quiz payload"),
			errors.WithCause(err)))
		return
	}

	questions := make([]domain.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, domain.Question(q))
	}

	created, err := a.quizzes.CreateQuiz(c.Request.Context(), quiz.CreateQuizRequest{
		QuizID:    req.QuizID,
		Title:     req.Title,
		Questions: questions,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateQuizResponse{QuizID: created.QuizID})
}

func (a *API) GetQuiz(c *gin.Context) {
	quizID := c.Query("QuizID")
	if quizID == "" {
		respondError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("QuizID is required")))
		return
	}

	q, err := a.quizzes.GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Correct options stay server-side: this is the play view.
	questions := make([]QuizQuestion, 0, len(q.Questions))
	for _, question := range q.Questions {
		questions = append(questions, QuizQuestion{
			QuestionID:   question.QuestionID,
			QuestionText: question.QuestionText,
			Options:      question.Options,
		})
	}

	c.JSON(http.StatusOK, QuizResponse{
		QuizID:    q.QuizID,
		Title:     q.Title,
		Questions: questions,
	})
}

func (a *API) GetSubmission(c *gin.Context) {
	submissionID := c.Query("SubmissionID")
	if submissionID == "" {
		respondError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("SubmissionID is required")))
		return
	}

	sub, err := a.submissions.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SubmissionResponse{
		SubmissionID: sub.SubmissionID,
		QuizID:       sub.QuizID,
		Username:     sub.Username,
		Score:        sub.Score,
		Correct:      sub.Correct,
		ScoredAt:     sub.ScoredAt,
	})
}

func (a *API) GetLeaderboard(c *gin.Context) {
	quizID := c.Query("QuizID")
	if quizID == "" {
		respondError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("QuizID is required")))
		return
	}

	l, err := a.leaderboard.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		QuizID: quizID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	entries := make([]LeaderboardEntry, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, LeaderboardEntry{
			SubmissionID: e.SubmissionID,
			Username:     e.Username,
			Score:        e.Score,
		})
	}

	c.JSON(http.StatusOK, LeaderboardResponse{
		QuizID:  l.QuizID,
		Entries: entries,
	})
}

func (a *API) ListQuizzes(c *gin.Context) {
	quizzes, err := a.quizzes.ListQuizzes(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]QuizSummary, 0, len(quizzes))
	for _, q := range quizzes {
		items = append(items, QuizSummary{QuizID: q.QuizID, Title: q.Title})
	}

	c.JSON(http.StatusOK, ListQuizzesResponse{Quizzes: items})
}

func respondError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.JSON(e.HTTPStatusCode(), ErrorResponse{Message: e.Message})
}
