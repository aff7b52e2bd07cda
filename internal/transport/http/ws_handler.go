package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voice-quiz-service/internal/app"
	"voice-quiz-service/internal/auth"
	"voice-quiz-service/internal/domain"
	"voice-quiz-service/internal/play"
	"voice-quiz-service/internal/ratelimit"
)

// WSHandler drives one quiz attempt per websocket connection.
type WSHandler struct {
	service  *app.QuizService
	verifier auth.Verifier
	attempts play.Store
	limiter  ratelimit.Limiter
	log      *zap.Logger
	onReject func()
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, verifier auth.Verifier, attempts play.Store, limiter ratelimit.Limiter, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service:  service,
		verifier: verifier,
		attempts: attempts,
		limiter:  limiter,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	SelectedAnswer *int `json:"selectedAnswer"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type startedPayload struct {
	AttemptID        uuid.UUID             `json:"attemptId"`
	QuizID           uuid.UUID             `json:"quizId"`
	TotalQuestions   int                   `json:"totalQuestions"`
	TimeLimitSeconds int                   `json:"timeLimitSeconds"`
	Deadline         *time.Time            `json:"deadline,omitempty"`
	Index            int                   `json:"index"`
	Question         domain.PublicQuestion `json:"question"`
}

type questionPayload struct {
	Index    int                   `json:"index"`
	Total    int                   `json:"total"`
	Question domain.PublicQuestion `json:"question"`
}

type answerResultPayload struct {
	QuestionID  uuid.UUID `json:"questionId"`
	IsCorrect   bool      `json:"isCorrect"`
	Points      int       `json:"points"`
	Explanation *string   `json:"explanation"`
}

type errorPayload struct {
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// serviceBackend runs attempt calls in process on behalf of the socket's caller.
type serviceBackend struct {
	service  *app.QuizService
	caller   *domain.Caller
	limiter  ratelimit.Limiter
	key      string
	onReject func()
}

func (b serviceBackend) ValidateAnswer(ctx context.Context, check domain.AnswerCheck) (domain.AnswerVerdict, error) {
	if b.limiter != nil {
		if _, err := ratelimit.Check(ctx, b.limiter, b.key); errors.Is(err, domain.ErrRateLimited) {
			if b.onReject != nil {
				b.onReject()
			}
			return domain.AnswerVerdict{}, err
		}
	}
	return b.service.ValidateAnswer(ctx, b.caller, check)
}

func (b serviceBackend) SubmitQuiz(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error) {
	return b.service.SubmitQuiz(ctx, b.caller, sub)
}

// ServeWS handles GET /ws/play?quizId=...&attemptId=... . A new attempt is
// started unless attemptId names an unfinished attempt of the same caller.
func (h *WSHandler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "Missing authorization header"})
		return
	}
	caller, err := h.verifier.Verify(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "Invalid authorization"})
		return
	}

	attempt, resumed, err := h.openAttempt(ctx, c.Query("quizId"), c.Query("attemptId"), caller)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	backend := serviceBackend{
		service:  h.service,
		caller:   &caller,
		limiter:  h.limiter,
		key:      c.ClientIP(),
		onReject: h.onReject,
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var timers sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	emit := func(typ string, payload any) {
		select {
		case send <- outboundMessage{Type: typ, Payload: payload}:
		case <-closeSignals:
		}
	}
	finish := func() {
		summary, err := attempt.Finish(ctx, backend)
		if errors.Is(err, play.ErrAttemptFinished) {
			emit("error", errorPayload{Message: play.ErrAttemptFinished.Error()})
			return
		}
		if err != nil {
			emit("error", errorPayload{Message: "Could not finish the quiz"})
			return
		}
		h.attempts.Delete(ctx, attempt.ID())
		emit("summary", summary)
	}

	question, index := attempt.Position()
	started := startedPayload{
		AttemptID:        attempt.ID(),
		QuizID:           attempt.QuizID(),
		TotalQuestions:   attempt.Total(),
		TimeLimitSeconds: attempt.TimeLimitSeconds(),
		Index:            index,
		Question:         question,
	}
	if deadline := attempt.Deadline(); !deadline.IsZero() {
		started.Deadline = &deadline
	}
	emit("started", started)
	h.log.Info("attempt opened",
		zap.String("attempt_id", attempt.ID().String()),
		zap.String("quiz_id", attempt.QuizID().String()),
		zap.Bool("resumed", resumed))

	if deadline := attempt.Deadline(); !deadline.IsZero() {
		timers.Add(1)
		go func() {
			defer timers.Done()
			timer := time.NewTimer(time.Until(deadline))
			defer timer.Stop()
			select {
			case <-timer.C:
				if !attempt.Finished() {
					finish()
				}
			case <-closeSignals:
			}
		}()
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.SelectedAnswer == nil {
				emit("error", errorPayload{Message: "invalid answer payload"})
				continue
			}
			if attempt.Expired() {
				finish()
				continue
			}
			current, _ := attempt.Position()
			verdict, err := attempt.Answer(ctx, backend, *payload.SelectedAnswer)
			if err != nil {
				emit("error", h.answerError(err))
				continue
			}
			emit("answerResult", answerResultPayload{
				QuestionID:  current.ID,
				IsCorrect:   verdict.IsCorrect,
				Points:      verdict.Points,
				Explanation: optionalString(verdict.Explanation),
			})
		case "next":
			if attempt.Finished() {
				emit("error", errorPayload{Message: play.ErrAttemptFinished.Error()})
				continue
			}
			next, ok := attempt.Next()
			if !ok {
				finish()
				continue
			}
			_, idx := attempt.Position()
			emit("question", questionPayload{Index: idx, Total: attempt.Total(), Question: next})
		case "finish":
			finish()
		default:
			emit("error", errorPayload{Message: "unsupported message type"})
		}
	}

	close(closeSignals)
	timers.Wait()
	close(send)
	<-writerDone
}

func (h *WSHandler) openAttempt(ctx context.Context, rawQuizID, rawAttemptID string, caller domain.Caller) (*play.Attempt, bool, error) {
	if rawAttemptID != "" {
		attemptID, err := uuid.Parse(rawAttemptID)
		if err != nil {
			return nil, false, domain.NewValidationError("attemptId must be a valid UUID")
		}
		attempt, ok := h.attempts.Get(ctx, attemptID)
		if !ok || attempt.Owner() != caller.UserID || attempt.Finished() {
			return nil, false, fmt.Errorf("attempt %w", domain.ErrNotFound)
		}
		return attempt, true, nil
	}

	quizID, err := uuid.Parse(rawQuizID)
	if err != nil {
		return nil, false, domain.NewValidationError("quizId must be a valid UUID")
	}
	quiz, err := h.service.QuizQuestions(ctx, quizID)
	if err != nil {
		return nil, false, err
	}
	attempt, err := play.NewAttempt(uuid.New(), caller.UserID, quiz)
	if errors.Is(err, play.ErrNoQuestions) {
		return nil, false, domain.NewValidationError("Quiz has no questions")
	}
	if err != nil {
		return nil, false, err
	}
	h.attempts.Put(ctx, attempt)
	return attempt, false, nil
}

func (h *WSHandler) answerError(err error) errorPayload {
	var (
		validation *domain.ValidationError
		limited    *domain.RateLimitError
	)
	switch {
	case errors.As(err, &limited):
		return errorPayload{Message: "Please wait before answering again.", RetryAfter: limited.RetryAfterSeconds()}
	case errors.As(err, &validation):
		return errorPayload{Message: strings.Join(validation.Messages, "; ")}
	case errors.Is(err, play.ErrAlreadyAnswered), errors.Is(err, play.ErrAttemptFinished):
		return errorPayload{Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return errorPayload{Message: "Question not found"}
	default:
		h.log.Error("ws answer failed", zap.Error(err))
		return errorPayload{Message: "Could not check your answer, try again"}
	}
}
