package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voice-quiz-service/internal/domain"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// QuizRepository loads quiz content, answer key included (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID uuid.UUID) (domain.Quiz, error)
}

// QuizCatalog lists the quizzes players can pick from.
type QuizCatalog interface {
	ListActiveQuizzes(ctx context.Context) ([]domain.QuizSummary, error)
}

// ScoreRepository persists completed attempts.
type ScoreRepository interface {
	SaveScore(ctx context.Context, record domain.ScoreRecord) error
	ListUserScores(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ScoreHistoryEntry, error)
}

// Recorder receives domain events for metrics.
type Recorder interface {
	AnswerValidated(correct bool)
	SubmissionScored(saved bool)
}

type nopRecorder struct{}

func (nopRecorder) AnswerValidated(bool)  {}
func (nopRecorder) SubmissionScored(bool) {}

// QuizService contains the answer validation and scoring use cases.
type QuizService struct {
	quizzes  QuizRepository
	catalog  QuizCatalog
	scores   ScoreRepository
	log      *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// Option customizes a QuizService.
type Option func(*QuizService)

func WithLogger(log *zap.Logger) Option {
	return func(s *QuizService) { s.log = log }
}

func WithRecorder(r Recorder) Option {
	return func(s *QuizService) { s.recorder = r }
}

// WithClock overrides the clock used for CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(s *QuizService) { s.now = now }
}

func NewQuizService(quizzes QuizRepository, catalog QuizCatalog, scores ScoreRepository, opts ...Option) *QuizService {
	s := &QuizService{
		quizzes:  quizzes,
		catalog:  catalog,
		scores:   scores,
		log:      zap.NewNop(),
		recorder: nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateAnswer checks one answer without persisting anything. It is safe to
// call repeatedly for the same question.
func (s *QuizService) ValidateAnswer(ctx context.Context, caller *domain.Caller, check domain.AnswerCheck) (domain.AnswerVerdict, error) {
	if caller == nil {
		return domain.AnswerVerdict{}, domain.ErrUnauthorized
	}
	if check.SelectedAnswer < 0 {
		return domain.AnswerVerdict{}, domain.NewValidationError("selectedAnswer must not be negative")
	}

	quiz, err := s.quizzes.GetQuiz(ctx, check.QuizID)
	if err != nil {
		return domain.AnswerVerdict{}, err
	}
	// Looking the question up inside the quiz keeps ids from other quizzes out.
	question, ok := quiz.Question(check.QuestionID)
	if !ok {
		return domain.AnswerVerdict{}, domain.ErrQuestionNotFound
	}
	if !question.InRange(check.SelectedAnswer) {
		return domain.AnswerVerdict{}, domain.NewValidationError(rangeMessage(question))
	}

	correct, points := scoreAnswer(question, check.SelectedAnswer)
	s.recorder.AnswerValidated(correct)
	return domain.AnswerVerdict{
		IsCorrect:   correct,
		Points:      points,
		Explanation: question.Explanation,
	}, nil
}

// SubmitQuiz re-validates every answer of an attempt and computes the authoritative
// score. A ScoreRecord is stored only for authenticated callers. Repeated calls
// store independent records.
func (s *QuizService) SubmitQuiz(ctx context.Context, caller *domain.Caller, sub domain.Submission) (domain.SubmissionResult, error) {
	if err := validateSubmissionShape(sub); err != nil {
		return domain.SubmissionResult{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if !quiz.IsActive {
		return domain.SubmissionResult{}, domain.ErrQuizNotFound
	}

	var outOfRange []string
	for i, answer := range sub.Answers {
		if question, ok := quiz.Question(answer.QuestionID); ok && !question.InRange(answer.SelectedAnswer) {
			outOfRange = append(outOfRange, fmt.Sprintf("answers[%d]: %s", i, rangeMessage(question)))
		}
	}
	if len(outOfRange) > 0 {
		return domain.SubmissionResult{}, domain.NewValidationError(outOfRange...)
	}

	result := domain.SubmissionResult{
		TotalQuestions: len(sub.Answers),
		Results:        make([]domain.QuestionResult, 0, len(sub.Answers)),
	}
	seen := make(map[uuid.UUID]struct{}, len(sub.Answers))
	for _, answer := range sub.Answers {
		qr := domain.QuestionResult{
			QuestionID:     answer.QuestionID,
			SelectedAnswer: answer.SelectedAnswer,
		}
		question, ok := quiz.Question(answer.QuestionID)
		_, repeated := seen[answer.QuestionID]
		seen[answer.QuestionID] = struct{}{}
		// Unknown or repeated questions stay in the results as incorrect and worth nothing.
		if ok && !repeated {
			qr.IsCorrect, qr.Points = scoreAnswer(question, answer.SelectedAnswer)
			qr.Explanation = question.Explanation
		}
		result.Score += qr.Points
		result.Results = append(result.Results, qr)
	}

	if caller != nil {
		userID := caller.UserID
		record := domain.ScoreRecord{
			ID:               uuid.New(),
			UserID:           &userID,
			QuizID:           quiz.ID,
			Score:            result.Score,
			TotalQuestions:   result.TotalQuestions,
			TimeTakenSeconds: sub.TimeTakenSeconds,
			Answers:          append([]domain.SubmittedAnswer(nil), sub.Answers...),
			CompletedAt:      s.now().UTC(),
		}
		if err := s.scores.SaveScore(ctx, record); err != nil {
			s.log.Error("failed to save score",
				zap.String("quiz_id", quiz.ID.String()),
				zap.String("user_id", userID.String()),
				zap.Error(err))
		} else {
			result.ScoreID = &record.ID
			result.Saved = true
		}
	}

	s.log.Info("quiz submission scored",
		zap.String("quiz_id", quiz.ID.String()),
		zap.Int("score", result.Score),
		zap.Int("total_questions", result.TotalQuestions),
		zap.Bool("saved", result.Saved))
	s.recorder.SubmissionScored(result.Saved)
	return result, nil
}

// QuizQuestions returns an active quiz with its answer key stripped.
func (s *QuizService) QuizQuestions(ctx context.Context, quizID uuid.UUID) (domain.PublicQuiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.PublicQuiz{}, err
	}
	if !quiz.IsActive {
		return domain.PublicQuiz{}, domain.ErrQuizNotFound
	}
	return quiz.Public(), nil
}

// ListQuizzes returns the active quiz catalog.
func (s *QuizService) ListQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	return s.catalog.ListActiveQuizzes(ctx)
}

// ScoreHistory returns the caller's most recent score records.
func (s *QuizService) ScoreHistory(ctx context.Context, caller *domain.Caller, limit int) ([]domain.ScoreHistoryEntry, error) {
	if caller == nil {
		return nil, domain.ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.scores.ListUserScores(ctx, caller.UserID, limit)
}

func validateSubmissionShape(sub domain.Submission) error {
	var msgs []string
	if len(sub.Answers) == 0 {
		msgs = append(msgs, "At least one answer required")
	}
	for i, answer := range sub.Answers {
		if answer.SelectedAnswer < 0 {
			msgs = append(msgs, fmt.Sprintf("answers[%d]: selectedAnswer must not be negative", i))
		}
	}
	if sub.TimeTakenSeconds != nil && *sub.TimeTakenSeconds < 0 {
		msgs = append(msgs, "timeTaken must not be negative")
	}
	if len(msgs) > 0 {
		return domain.NewValidationError(msgs...)
	}
	return nil
}

// scoreAnswer returns (correct, points) for a selection already known to be in range.
func scoreAnswer(question domain.Question, selected int) (bool, int) {
	if question.CorrectAnswer == selected {
		return true, question.Value()
	}
	return false, 0
}

func rangeMessage(question domain.Question) string {
	return fmt.Sprintf("Answer must be between 0-%d", len(question.Options)-1)
}

