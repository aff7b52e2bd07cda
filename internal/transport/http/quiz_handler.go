package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"voice-quiz-service/internal/app"
	"voice-quiz-service/internal/auth"
	"voice-quiz-service/internal/domain"
)

// QuizHandler serves the request/response quiz endpoints.
type QuizHandler struct {
	service *app.QuizService
	log     *zap.Logger
}

func NewQuizHandler(service *app.QuizService, log *zap.Logger) *QuizHandler {
	return &QuizHandler{service: service, log: log}
}

type validateAnswerRequest struct {
	QuestionID     string `json:"questionId" binding:"required,uuid"`
	SelectedAnswer *int   `json:"selectedAnswer" binding:"required,min=0"`
	QuizID         string `json:"quizId" binding:"required,uuid"`
}

type validateAnswerResponse struct {
	IsCorrect   bool    `json:"isCorrect"`
	Points      int     `json:"points"`
	Explanation *string `json:"explanation"`
}

type submittedAnswerRequest struct {
	QuestionID     string `json:"questionId" binding:"required,uuid"`
	SelectedAnswer *int   `json:"selectedAnswer" binding:"required,min=0"`
}

type submitResultsRequest struct {
	QuizID    string                   `json:"quizId" binding:"required,uuid"`
	Answers   []submittedAnswerRequest `json:"answers" binding:"required,min=1,dive"`
	TimeTaken *int                     `json:"timeTaken" binding:"omitempty,min=0"`
}

type questionResultResponse struct {
	QuestionID     string  `json:"questionId"`
	SelectedAnswer int     `json:"selectedAnswer"`
	IsCorrect      bool    `json:"isCorrect"`
	Points         int     `json:"points"`
	Explanation    *string `json:"explanation"`
}

type submitResultsResponse struct {
	Score          int                      `json:"score"`
	TotalQuestions int                      `json:"totalQuestions"`
	Results        []questionResultResponse `json:"results"`
	ScoreID        *string                  `json:"scoreId"`
	Saved          bool                     `json:"saved"`
}

type scoreHistoryResponse struct {
	ID             string                   `json:"id"`
	QuizID         string                   `json:"quizId"`
	QuizTitle      string                   `json:"quizTitle"`
	QuizDifficulty string                   `json:"quizDifficulty"`
	Score          int                      `json:"score"`
	TotalQuestions int                      `json:"totalQuestions"`
	TimeTaken      *int                     `json:"timeTaken"`
	Answers        []domain.SubmittedAnswer `json:"answers"`
	CompletedAt    time.Time                `json:"completedAt"`
}

// ListQuizzes handles GET /api/quizzes.
func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.service.ListQuizzes(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.QuizSummary{}
	}
	c.JSON(http.StatusOK, quizzes)
}

// Questions handles GET /api/quizzes/:quizId/questions. The response is built
// from domain.PublicQuiz, which has no answer key.
func (h *QuizHandler) Questions(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quizId"))
	if err != nil {
		writeError(c, h.log, domain.NewValidationError("quizId must be a valid UUID"))
		return
	}
	quiz, err := h.service.QuizQuestions(c.Request.Context(), quizID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, quiz)
}

// ValidateAnswer handles POST /api/validate-answer.
func (h *QuizHandler) ValidateAnswer(c *gin.Context) {
	var req validateAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindingError(err))
		return
	}

	verdict, err := h.service.ValidateAnswer(c.Request.Context(), auth.CallerFrom(c), domain.AnswerCheck{
		QuizID:         uuid.MustParse(req.QuizID),
		QuestionID:     uuid.MustParse(req.QuestionID),
		SelectedAnswer: *req.SelectedAnswer,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, validateAnswerResponse{
		IsCorrect:   verdict.IsCorrect,
		Points:      verdict.Points,
		Explanation: optionalString(verdict.Explanation),
	})
}

// SubmitResults handles POST /api/submit-results. An invalid credential is
// treated as anonymous play.
func (h *QuizHandler) SubmitResults(c *gin.Context) {
	var req submitResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, bindingError(err))
		return
	}

	sub := domain.Submission{
		QuizID:           uuid.MustParse(req.QuizID),
		Answers:          make([]domain.SubmittedAnswer, 0, len(req.Answers)),
		TimeTakenSeconds: req.TimeTaken,
	}
	for _, a := range req.Answers {
		sub.Answers = append(sub.Answers, domain.SubmittedAnswer{
			QuestionID:     uuid.MustParse(a.QuestionID),
			SelectedAnswer: *a.SelectedAnswer,
		})
	}

	result, err := h.service.SubmitQuiz(c.Request.Context(), auth.CallerFrom(c), sub)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newSubmitResultsResponse(result))
}

// ScoreHistory handles GET /api/me/scores.
func (h *QuizHandler) ScoreHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(c, h.log, domain.NewValidationError("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.service.ScoreHistory(c.Request.Context(), auth.CallerFrom(c), limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]scoreHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, scoreHistoryResponse{
			ID:             e.ID.String(),
			QuizID:         e.QuizID.String(),
			QuizTitle:      e.QuizTitle,
			QuizDifficulty: e.QuizDifficulty,
			Score:          e.Score,
			TotalQuestions: e.TotalQuestions,
			TimeTaken:      e.TimeTakenSeconds,
			Answers:        e.Answers,
			CompletedAt:    e.CompletedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func newSubmitResultsResponse(result domain.SubmissionResult) submitResultsResponse {
	resp := submitResultsResponse{
		Score:          result.Score,
		TotalQuestions: result.TotalQuestions,
		Results:        make([]questionResultResponse, 0, len(result.Results)),
		Saved:          result.Saved,
	}
	for _, r := range result.Results {
		resp.Results = append(resp.Results, questionResultResponse{
			QuestionID:     r.QuestionID.String(),
			SelectedAnswer: r.SelectedAnswer,
			IsCorrect:      r.IsCorrect,
			Points:         r.Points,
			Explanation:    optionalString(r.Explanation),
		})
	}
	if result.ScoreID != nil {
		id := result.ScoreID.String()
		resp.ScoreID = &id
	}
	return resp
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
