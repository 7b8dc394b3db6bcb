package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/localstack-samples/serverless-quiz-app/internal/api"
	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
	"github.com/localstack-samples/serverless-quiz-app/internal/errors"
	"github.com/localstack-samples/serverless-quiz-app/internal/intake"
	"github.com/localstack-samples/serverless-quiz-app/internal/leaderboard"
	"github.com/localstack-samples/serverless-quiz-app/internal/quiz"
)

func TestAPI_SubmitQuiz(t *testing.T) {
	tests := map[string]struct {
		body       string
		submitID   string
		submitErr  error
		wantStatus int
		assert     func(t *testing.T, body map[string]any)
	}{
		"accepted submission returns the identifier": {
			body:       `{"Username":"alice","QuizID":"Q1","Answers":["A","A","B"]}`,
			submitID:   "sub-1",
			wantStatus: http.StatusOK,
			assert: func(t *testing.T, body map[string]any) {
				require.Equal(t, "sub-1", body["SubmissionID"])
				require.Equal(t, "Submission received", body["Message"])
			},
		},

		"malformed payload is a bad request": {
			body:       `{"Username":`,
			wantStatus: http.StatusBadRequest,
		},

		"validation failure maps to bad request": {
			body:       `{"Username":"","QuizID":"Q1","Answers":["A"]}`,
			submitErr:  errors.New(errors.CodeInvalidArgument, errors.WithMessagef("username is required")),
			wantStatus: http.StatusBadRequest,
			assert: func(t *testing.T, body map[string]any) {
				require.Equal(t, "username is required", body["Message"])
			},
		},

		"unknown quiz maps to not found": {
			body:       `{"Username":"alice","QuizID":"nope","Answers":["A"]}`,
			submitErr:  errors.New(errors.CodeNotFound, errors.WithMessagef(`quiz "nope" does not exist`)),
			wantStatus: http.StatusNotFound,
		},

		"enqueue failure maps to service unavailable": {
			body:       `{"Username":"alice","QuizID":"Q1","Answers":["A"]}`,
			submitErr:  errors.New(errors.CodeUnavailable, errors.WithMessagef("submission could not be queued")),
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := makeRouter(t, &fakes{submitID: tt.submitID, submitErr: tt.submitErr})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/submitquiz", strings.NewReader(tt.body))
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.assert != nil {
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				tt.assert(t, body)
			}
		})
	}
}

func TestAPI_GetQuizHidesCorrectOptions(t *testing.T) {
	r := makeRouter(t, &fakes{
		quiz: &domain.Quiz{
			QuizID: "Q1",
			Title:  "AWS Quiz",
			Questions: []domain.Question{
				{QuestionID: "q1", QuestionText: "?", Options: []string{"A", "B"}, CorrectOption: "A"},
			},
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getquiz?QuizID=Q1", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "CorrectOption")
}

func TestAPI_GetQuizRequiresID(t *testing.T) {
	r := makeRouter(t, &fakes{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getquiz", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_GetSubmissionNotYetScored(t *testing.T) {
	r := makeRouter(t, &fakes{
		submissionErr: errors.New(errors.CodeNotFound, errors.WithMessagef("submission not found: sub-9")),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getsubmission?SubmissionID=sub-9", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_GetLeaderboard(t *testing.T) {
	r := makeRouter(t, &fakes{
		board: &domain.Leaderboard{
			QuizID: "Q1",
			Entries: []domain.LeaderboardEntry{
				{SubmissionID: "s1", Username: "alice", Score: 3},
				{SubmissionID: "s3", Username: "carol", Score: 2},
				{SubmissionID: "s2", Username: "bob", Score: 1},
			},
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getleaderboard?QuizID=Q1", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.LeaderboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "Q1", resp.QuizID)
	require.Equal(t, []int{3, 2, 1}, []int{resp.Entries[0].Score, resp.Entries[1].Score, resp.Entries[2].Score})
}

func makeRouter(t *testing.T, f *fakes) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	api.New(api.Config{
		Router:      r,
		Intake:      f,
		Quizzes:     f,
		Submissions: f,
		Leaderboard: f,
	})

	return r
}

type fakes struct {
	submitID  string
	submitErr error

	quiz    *domain.Quiz
	quizErr error

	submission    *domain.ScoredSubmission
	submissionErr error

	board    *domain.Leaderboard
	boardErr error
}

func (f *fakes) Submit(_ context.Context, _ intake.SubmitRequest) (string, error) {
	return f.submitID, f.submitErr
}

func (f *fakes) CreateQuiz(_ context.Context, req quiz.CreateQuizRequest) (*domain.Quiz, error) {
	return &domain.Quiz{QuizID: req.QuizID, Title: req.Title, Questions: req.Questions}, nil
}

func (f *fakes) GetQuiz(_ context.Context, _ string) (*domain.Quiz, error) {
	return f.quiz, f.quizErr
}

func (f *fakes) ListQuizzes(_ context.Context) ([]domain.QuizSummary, error) {
	return nil, nil
}

func (f *fakes) GetSubmission(_ context.Context, _ string) (*domain.ScoredSubmission, error) {
	return f.submission, f.submissionErr
}

func (f *fakes) GetLeaderboard(_ context.Context, _ leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error) {
	return f.board, f.boardErr
}
