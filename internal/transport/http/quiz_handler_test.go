package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-quiz-service/internal/app"
	"voice-quiz-service/internal/auth"
	"voice-quiz-service/internal/domain"
	"voice-quiz-service/internal/infra/memory"
	"voice-quiz-service/internal/metrics"
	"voice-quiz-service/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	jwt    *auth.JWTService
	quiz   domain.Quiz
	scores *memory.ScoreStore
	user   uuid.UUID
}

func newTestEnv(t *testing.T, maxRequests int) *testEnv {
	t.Helper()
	return newQuizEnv(t, maxRequests, sampleQuiz())
}

func newQuizEnv(t *testing.T, maxRequests int, quiz domain.Quiz) *testEnv {
	t.Helper()
	loader := memory.NewStaticQuizLoader(quiz)
	scores := memory.NewScoreStore(loader)
	service := app.NewQuizService(memory.NewQuizRepository(loader, time.Minute), loader, scores)

	jwtService, err := auth.NewJWTService("test-secret", "voice-quiz-service", time.Hour)
	require.NoError(t, err)

	router := NewRouter(Deps{
		Service:  service,
		Verifier: jwtService,
		Limiter:  ratelimit.NewMemoryLimiter(ratelimit.Config{MaxRequests: maxRequests, Window: time.Minute}),
		Attempts: memory.NewAttemptStore(time.Minute),
		Metrics:  metrics.New(),
	})
	return &testEnv{router: router, jwt: jwtService, quiz: quiz, scores: scores, user: uuid.New()}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	token, err := e.jwt.Issue(e.user)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// sampleQuiz has three questions worth [1,1,2] with correct answers [0,1,2].
func sampleQuiz() domain.Quiz {
	quizID := uuid.New()
	q := func(text string, correct, points int, explanation string) domain.Question {
		return domain.Question{
			ID:            uuid.New(),
			QuizID:        quizID,
			Text:          text,
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: correct,
			Points:        points,
			Explanation:   explanation,
		}
	}
	return domain.Quiz{
		ID:               quizID,
		Title:            "Sample",
		Difficulty:       "easy",
		TimeLimitSeconds: 300,
		IsActive:         true,
		CreatedAt:        time.Now(),
		Questions: []domain.Question{
			q("First?", 0, 1, "Because a."),
			q("Second?", 1, 1, ""),
			q("Third?", 2, 2, "Because c."),
		},
	}
}

func validateBody(quizID, questionID uuid.UUID, selected int) map[string]any {
	return map[string]any{
		"quizId":         quizID.String(),
		"questionId":     questionID.String(),
		"selectedAnswer": selected,
	}
}

func TestValidateAnswerCorrect(t *testing.T) {
	env := newTestEnv(t, 30)
	q := env.quiz.Questions[0]

	rec := env.do(t, http.MethodPost, "/api/validate-answer", env.token(t), validateBody(env.quiz.ID, q.ID, 0))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["isCorrect"])
	assert.Equal(t, float64(1), resp["points"])
	assert.Equal(t, "Because a.", resp["explanation"])
}

func TestValidateAnswerNullExplanation(t *testing.T) {
	env := newTestEnv(t, 30)
	q := env.quiz.Questions[1]

	rec := env.do(t, http.MethodPost, "/api/validate-answer", env.token(t), validateBody(env.quiz.ID, q.ID, 0))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"isCorrect":false,"points":0,"explanation":null}`, rec.Body.String())
}

func TestValidateAnswerRequiresCredential(t *testing.T) {
	env := newTestEnv(t, 30)
	q := env.quiz.Questions[0]

	rec := env.do(t, http.MethodPost, "/api/validate-answer", "", validateBody(env.quiz.ID, q.ID, 0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/validate-answer", "not-a-token", validateBody(env.quiz.ID, q.ID, 0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidateAnswerRejectsMalformedInput(t *testing.T) {
	env := newTestEnv(t, 30)
	q := env.quiz.Questions[0]
	token := env.token(t)

	cases := map[string]any{
		"bad uuid":      map[string]any{"quizId": "nope", "questionId": q.ID.String(), "selectedAnswer": 0},
		"missing index": map[string]any{"quizId": env.quiz.ID.String(), "questionId": q.ID.String()},
		"negative":      validateBody(env.quiz.ID, q.ID, -1),
		"out of range":  validateBody(env.quiz.ID, q.ID, len(q.Options)),
		"wrong type":    `{"quizId":"` + env.quiz.ID.String() + `","questionId":"` + q.ID.String() + `","selectedAnswer":"two"}`,
		"not json":      "{",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/validate-answer", token, body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Details)
		})
	}
}

func TestValidateAnswerOutOfRangeMessage(t *testing.T) {
	env := newTestEnv(t, 30)
	q := env.quiz.Questions[0]

	rec := env.do(t, http.MethodPost, "/api/validate-answer", env.token(t), validateBody(env.quiz.ID, q.ID, 4))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Answer must be between 0-3")
}

func TestAnswerRangeFollowsOptionCount(t *testing.T) {
	quizID := uuid.New()
	five := domain.Question{ID: uuid.New(), QuizID: quizID, Text: "Pick the fifth.", Options: []string{"a", "b", "c", "d", "e"}, CorrectAnswer: 4, Points: 3}
	two := domain.Question{ID: uuid.New(), QuizID: quizID, Text: "True or false?", Options: []string{"true", "false"}, CorrectAnswer: 1, Points: 1}
	env := newQuizEnv(t, 30, domain.Quiz{
		ID:        quizID,
		Title:     "Uneven",
		IsActive:  true,
		Questions: []domain.Question{five, two},
	})
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/api/validate-answer", token, validateBody(quizID, five.ID, 4))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verdict map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.Equal(t, true, verdict["isCorrect"])
	assert.Equal(t, float64(3), verdict["points"])

	rec = env.do(t, http.MethodPost, "/api/validate-answer", token, validateBody(quizID, five.ID, 5))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Answer must be between 0-4")

	rec = env.do(t, http.MethodPost, "/api/validate-answer", token, validateBody(quizID, two.ID, 2))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Answer must be between 0-1")

	submit := func(questionID uuid.UUID, selected int) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/api/submit-results", "", map[string]any{
			"quizId":  quizID.String(),
			"answers": []map[string]any{{"questionId": questionID.String(), "selectedAnswer": selected}},
		})
	}

	rec = submit(five.ID, 4)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp submitResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Score)

	rec = submit(five.ID, 5)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "answers[0]: Answer must be between 0-4")

	rec = submit(two.ID, 2)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "answers[0]: Answer must be between 0-1")
}

func TestValidateAnswerCrossQuizIsNotFound(t *testing.T) {
	env := newTestEnv(t, 30)
	q := env.quiz.Questions[0]

	rec := env.do(t, http.MethodPost, "/api/validate-answer", env.token(t), validateBody(uuid.New(), q.ID, 0))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/validate-answer", env.token(t), validateBody(env.quiz.ID, uuid.New(), 0))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Question not found")
}

func TestValidateAnswerRateLimited(t *testing.T) {
	env := newTestEnv(t, 2)
	q := env.quiz.Questions[0]
	token := env.token(t)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/validate-answer", token, validateBody(env.quiz.ID, q.ID, 0))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/api/validate-answer", token, validateBody(env.quiz.ID, q.ID, 0))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Greater(t, resp.RetryAfter, 0)
}

func TestSubmitResultsScenario(t *testing.T) {
	env := newTestEnv(t, 30)
	qs := env.quiz.Questions
	body := map[string]any{
		"quizId": env.quiz.ID.String(),
		"answers": []map[string]any{
			{"questionId": qs[0].ID.String(), "selectedAnswer": 0},
			{"questionId": qs[1].ID.String(), "selectedAnswer": 3},
			{"questionId": qs[2].ID.String(), "selectedAnswer": 2},
		},
		"timeTaken": 42,
	}

	rec := env.do(t, http.MethodPost, "/api/submit-results", env.token(t), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp submitResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Score)
	assert.Equal(t, 3, resp.TotalQuestions)
	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results[0].IsCorrect)
	assert.False(t, resp.Results[1].IsCorrect)
	assert.True(t, resp.Results[2].IsCorrect)
	assert.True(t, resp.Saved)
	require.NotNil(t, resp.ScoreID)
	assert.Equal(t, 1, env.scores.Count())
}

func TestSubmitResultsAnonymous(t *testing.T) {
	env := newTestEnv(t, 30)
	qs := env.quiz.Questions
	body := map[string]any{
		"quizId": env.quiz.ID.String(),
		"answers": []map[string]any{
			{"questionId": qs[2].ID.String(), "selectedAnswer": 2},
			{"questionId": uuid.New().String(), "selectedAnswer": 0},
		},
	}

	for _, token := range []string{"", "garbage"} {
		rec := env.do(t, http.MethodPost, "/api/submit-results", token, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{
			"score": 2,
			"totalQuestions": 2,
			"results": [
				{"questionId": "`+qs[2].ID.String()+`", "selectedAnswer": 2, "isCorrect": true, "points": 2, "explanation": "Because c."},
				{"questionId": "`+body["answers"].([]map[string]any)[1]["questionId"].(string)+`", "selectedAnswer": 0, "isCorrect": false, "points": 0, "explanation": null}
			],
			"scoreId": null,
			"saved": false
		}`, rec.Body.String())
	}
	assert.Equal(t, 0, env.scores.Count())
}

func TestSubmitResultsErrors(t *testing.T) {
	env := newTestEnv(t, 30)
	qs := env.quiz.Questions

	rec := env.do(t, http.MethodPost, "/api/submit-results", "", map[string]any{
		"quizId":  env.quiz.ID.String(),
		"answers": []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "At least 1 answer required")

	rec = env.do(t, http.MethodPost, "/api/submit-results", "", map[string]any{
		"quizId":  uuid.New().String(),
		"answers": []map[string]any{{"questionId": qs[0].ID.String(), "selectedAnswer": 0}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/submit-results", "", map[string]any{
		"quizId":  env.quiz.ID.String(),
		"answers": []map[string]any{{"questionId": "x", "selectedAnswer": 0}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "answers[0].questionId must be a valid UUID")
}

func TestQuestionsNeverLeakAnswerKey(t *testing.T) {
	env := newTestEnv(t, 30)

	rec := env.do(t, http.MethodGet, "/api/quizzes/"+env.quiz.ID.String()+"/questions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "correctAnswer")
	assert.NotContains(t, body, "explanation")
	assert.NotContains(t, body, "Because")

	var quiz domain.PublicQuiz
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quiz))
	assert.Len(t, quiz.Questions, 3)
	assert.Equal(t, 2, quiz.Questions[2].Points)

	rec = env.do(t, http.MethodGet, "/api/quizzes/"+uuid.NewString()+"/questions", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListQuizzes(t *testing.T) {
	env := newTestEnv(t, 30)

	rec := env.do(t, http.MethodGet, "/api/quizzes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quizzes []domain.QuizSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quizzes))
	require.Len(t, quizzes, 1)
	assert.Equal(t, 3, quizzes[0].QuestionCount)
}

func TestScoreHistory(t *testing.T) {
	env := newTestEnv(t, 30)
	token := env.token(t)
	q := env.quiz.Questions[0]
	body := map[string]any{
		"quizId":  env.quiz.ID.String(),
		"answers": []map[string]any{{"questionId": q.ID.String(), "selectedAnswer": 0}},
	}
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/submit-results", token, body).Code)
	}

	rec := env.do(t, http.MethodGet, "/api/me/scores?limit=1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []scoreHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "Sample", history[0].QuizTitle)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/me/scores", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/me/scores?limit=zero", token, nil).Code)
}

func TestPreflightIsPermissive(t *testing.T) {
	env := newTestEnv(t, 30)
	for _, path := range []string{"/api/validate-answer", "/api/submit-results"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://quiz.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		assert.Less(t, rec.Code, 300, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
		assert.True(t, strings.Contains(strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "authorization"), path)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 30)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "", nil).Code)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
