// Package client talks to the quiz endpoints over HTTP. *Client satisfies
// play.Backend so an attempt can be driven from outside the server process.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"voice-quiz-service/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Error      string   `json:"error"`
	Details    []string `json:"details"`
	RetryAfter int      `json:"retryAfter"`
}

type verdictBody struct {
	IsCorrect   bool    `json:"isCorrect"`
	Points      int     `json:"points"`
	Explanation *string `json:"explanation"`
}

type resultBody struct {
	Score          int                  `json:"score"`
	TotalQuestions int                  `json:"totalQuestions"`
	Results        []questionResultBody `json:"results"`
	ScoreID        *uuid.UUID           `json:"scoreId"`
	Saved          bool                 `json:"saved"`
}

type questionResultBody struct {
	QuestionID     uuid.UUID `json:"questionId"`
	SelectedAnswer int       `json:"selectedAnswer"`
	IsCorrect      bool      `json:"isCorrect"`
	Points         int       `json:"points"`
	Explanation    *string   `json:"explanation"`
}

// ListQuizzes fetches the active quiz catalog.
func (c *Client) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	var out []domain.QuizSummary
	err := c.do(ctx, http.MethodGet, "/api/quizzes", nil, &out)
	return out, err
}

// Questions fetches a quiz without its answer key.
func (c *Client) Questions(ctx context.Context, quizID uuid.UUID) (domain.PublicQuiz, error) {
	var out domain.PublicQuiz
	err := c.do(ctx, http.MethodGet, "/api/quizzes/"+quizID.String()+"/questions", nil, &out)
	return out, err
}

func (c *Client) ValidateAnswer(ctx context.Context, check domain.AnswerCheck) (domain.AnswerVerdict, error) {
	req := map[string]any{
		"quizId":         check.QuizID,
		"questionId":     check.QuestionID,
		"selectedAnswer": check.SelectedAnswer,
	}
	var body verdictBody
	if err := c.do(ctx, http.MethodPost, "/api/validate-answer", req, &body); err != nil {
		return domain.AnswerVerdict{}, err
	}
	verdict := domain.AnswerVerdict{IsCorrect: body.IsCorrect, Points: body.Points}
	if body.Explanation != nil {
		verdict.Explanation = *body.Explanation
	}
	return verdict, nil
}

// SubmitQuiz posts a finished attempt. It is never retried: each successful
// call stores a separate score record.
func (c *Client) SubmitQuiz(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error) {
	req := map[string]any{
		"quizId":  sub.QuizID,
		"answers": sub.Answers,
	}
	if sub.TimeTakenSeconds != nil {
		req["timeTaken"] = *sub.TimeTakenSeconds
	}
	var body resultBody
	if err := c.do(ctx, http.MethodPost, "/api/submit-results", req, &body); err != nil {
		return domain.SubmissionResult{}, err
	}
	result := domain.SubmissionResult{
		Score:          body.Score,
		TotalQuestions: body.TotalQuestions,
		ScoreID:        body.ScoreID,
		Saved:          body.Saved,
		Results:        make([]domain.QuestionResult, 0, len(body.Results)),
	}
	for _, r := range body.Results {
		qr := domain.QuestionResult{
			QuestionID:     r.QuestionID,
			SelectedAnswer: r.SelectedAnswer,
			IsCorrect:      r.IsCorrect,
			Points:         r.Points,
		}
		if r.Explanation != nil {
			qr.Explanation = *r.Explanation
		}
		result.Results = append(result.Results, qr)
	}
	return result, nil
}

// ScoreHistory fetches the caller's most recent scores.
func (c *Client) ScoreHistory(ctx context.Context, limit int) ([]domain.ScoreHistoryEntry, error) {
	path := "/api/me/scores"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.ScoreHistoryEntry
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// statusError maps an error response back onto the domain taxonomy.
func statusError(resp *http.Response) error {
	var body errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		msgs := body.Details
		if len(msgs) == 0 {
			msgs = []string{body.Error}
		}
		return domain.NewValidationError(msgs...)
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		if strings.HasPrefix(body.Error, "Question") {
			return domain.ErrQuestionNotFound
		}
		return domain.ErrQuizNotFound
	case http.StatusTooManyRequests:
		retry := body.RetryAfter
		if retry <= 0 {
			retry, _ = strconv.Atoi(resp.Header.Get("Retry-After"))
		}
		return &domain.RateLimitError{RetryAfter: time.Duration(retry) * time.Second}
	default:
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
}

// StatusError is an unexpected response status.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Message)
}

// IsUnexpected reports whether err is an unexpected response status.
func IsUnexpected(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
