package domain

import (
	"time"

	"github.com/google/uuid"
)

// Caller identifies an authenticated user. A nil *Caller means anonymous play.
type Caller struct {
	UserID uuid.UUID
}

// Quiz is a collection of questions. Quizzes are authored and activated elsewhere;
// this service only reads them.
type Quiz struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Difficulty       string     `json:"difficulty"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	IsActive         bool       `json:"isActive"`
	CreatedAt        time.Time  `json:"createdAt"`
	Questions        []Question `json:"questions"`
}

// Question models a multiple choice question with exactly one correct option.
// CorrectAnswer is an index into Options and must never leave the server
// before the attempt is submitted.
type Question struct {
	ID            uuid.UUID `json:"id"`
	QuizID        uuid.UUID `json:"quizId"`
	Text          string    `json:"questionText"`
	Options       []string  `json:"options"`
	CorrectAnswer int       `json:"correctAnswer"`
	Points        int       `json:"points"` // defaults to 1 if zero
	Explanation   string    `json:"explanation,omitempty"`
}

// Question returns the question with the given id, scoped to this quiz.
func (q Quiz) Question(id uuid.UUID) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Value is the number of points awarded for a correct answer.
func (q Question) Value() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// InRange reports whether selected is a valid option index for the question.
func (q Question) InRange(selected int) bool {
	return selected >= 0 && selected < len(q.Options)
}

// Public strips the answer key from the question.
func (q Question) Public() PublicQuestion {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Options: options,
		Points:  q.Value(),
	}
}

// PublicQuestion is the only question shape that is sent to clients before submission.
type PublicQuestion struct {
	ID      uuid.UUID `json:"id"`
	Text    string    `json:"questionText"`
	Options []string  `json:"options"`
	Points  int       `json:"points"`
}

// PublicQuiz is a quiz with its answer key stripped.
type PublicQuiz struct {
	ID               uuid.UUID        `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Difficulty       string           `json:"difficulty"`
	TimeLimitSeconds int              `json:"timeLimitSeconds"`
	Questions        []PublicQuestion `json:"questions"`
}

// Public strips the answer key from every question of the quiz.
func (q Quiz) Public() PublicQuiz {
	questions := make([]PublicQuestion, 0, len(q.Questions))
	for _, question := range q.Questions {
		questions = append(questions, question.Public())
	}
	return PublicQuiz{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		Difficulty:       q.Difficulty,
		TimeLimitSeconds: q.TimeLimitSeconds,
		Questions:        questions,
	}
}

// QuizSummary is a catalog entry for an active quiz.
type QuizSummary struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Difficulty       string    `json:"difficulty"`
	TimeLimitSeconds int       `json:"timeLimitSeconds"`
	QuestionCount    int       `json:"questionCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// SubmittedAnswer is a single client-held answer.
type SubmittedAnswer struct {
	QuestionID     uuid.UUID `json:"questionId"`
	SelectedAnswer int       `json:"selectedAnswer"`
}

// AnswerCheck is the input of a single answer validation.
type AnswerCheck struct {
	QuizID         uuid.UUID
	QuestionID     uuid.UUID
	SelectedAnswer int
}

// AnswerVerdict is the outcome of validating one answer.
type AnswerVerdict struct {
	IsCorrect   bool
	Points      int
	Explanation string
}

// Submission is a whole attempt sent for scoring.
type Submission struct {
	QuizID           uuid.UUID
	Answers          []SubmittedAnswer
	TimeTakenSeconds *int
}

// QuestionResult is the per-question outcome of a submission.
type QuestionResult struct {
	QuestionID     uuid.UUID `json:"questionId"`
	SelectedAnswer int       `json:"selectedAnswer"`
	IsCorrect      bool      `json:"isCorrect"`
	Points         int       `json:"points"`
	Explanation    string    `json:"explanation,omitempty"`
}

// SubmissionResult is the authoritative score of an attempt.
type SubmissionResult struct {
	Score          int
	TotalQuestions int
	Results        []QuestionResult
	ScoreID        *uuid.UUID
	Saved          bool
}

// ScoreRecord is the persisted outcome of a completed attempt. It is never mutated.
type ScoreRecord struct {
	ID               uuid.UUID         `json:"id"`
	UserID           *uuid.UUID        `json:"userId,omitempty"`
	QuizID           uuid.UUID         `json:"quizId"`
	Score            int               `json:"score"`
	TotalQuestions   int               `json:"totalQuestions"`
	TimeTakenSeconds *int              `json:"timeTaken,omitempty"`
	Answers          []SubmittedAnswer `json:"answers"`
	CompletedAt      time.Time         `json:"completedAt"`
}

// ScoreHistoryEntry is a score record joined with the quiz it belongs to.
type ScoreHistoryEntry struct {
	ScoreRecord
	QuizTitle      string `json:"quizTitle"`
	QuizDifficulty string `json:"quizDifficulty"`
}
