// Package play sequences one quiz attempt: a validation call per question during
// play, then a single submission at the end, falling back to the locally
// accumulated score when the submission cannot be confirmed.
package play

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-quiz-service/internal/domain"
)

var (
	// ErrAttemptFinished is returned for any action after Finish.
	ErrAttemptFinished = errors.New("attempt already finished")
	// ErrAlreadyAnswered is returned when the current question is locked.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNoQuestions is returned when an attempt is started on an empty quiz.
	ErrNoQuestions = errors.New("quiz has no questions")
)

// Backend is the server side of an attempt.
type Backend interface {
	ValidateAnswer(ctx context.Context, check domain.AnswerCheck) (domain.AnswerVerdict, error)
	SubmitQuiz(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error)
}

// Summary is what the player sees at the end of an attempt. When Confirmed is
// false the score is advisory, computed from the validations seen during play,
// and nothing was stored.
type Summary struct {
	AttemptID        uuid.UUID               `json:"attemptId"`
	QuizID           uuid.UUID               `json:"quizId"`
	Score            int                     `json:"score"`
	TotalQuestions   int                     `json:"totalQuestions"`
	TotalPoints      int                     `json:"totalPoints"`
	TimeTakenSeconds int                     `json:"timeTaken"`
	Results          []domain.QuestionResult `json:"results,omitempty"`
	ScoreID          *uuid.UUID              `json:"scoreId"`
	Saved            bool                    `json:"saved"`
	Confirmed        bool                    `json:"confirmed"`
	Warning          string                  `json:"warning,omitempty"`
}

// Attempt is one play-through of a quiz. It is safe for concurrent use.
type Attempt struct {
	id        uuid.UUID
	owner     uuid.UUID
	quiz      domain.PublicQuiz
	startedAt time.Time
	now       func() time.Time

	finishMu sync.Mutex

	mu       sync.Mutex
	index    int
	answers  []*int
	locked   []bool
	advisory int
	finished bool
	summary  Summary
}

// NewAttempt starts an attempt for owner (uuid.Nil for anonymous play).
func NewAttempt(id, owner uuid.UUID, quiz domain.PublicQuiz) (*Attempt, error) {
	return NewAttemptWithClock(id, owner, quiz, time.Now)
}

// NewAttemptWithClock is test-only for deterministic timing.
func NewAttemptWithClock(id, owner uuid.UUID, quiz domain.PublicQuiz, now func() time.Time) (*Attempt, error) {
	if len(quiz.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	return &Attempt{
		id:        id,
		owner:     owner,
		quiz:      quiz,
		startedAt: now(),
		now:       now,
		answers:   make([]*int, len(quiz.Questions)),
		locked:    make([]bool, len(quiz.Questions)),
	}, nil
}

func (a *Attempt) ID() uuid.UUID     { return a.id }
func (a *Attempt) Owner() uuid.UUID  { return a.owner }
func (a *Attempt) QuizID() uuid.UUID { return a.quiz.ID }

// Position returns the current question and its zero based index.
func (a *Attempt) Position() (domain.PublicQuestion, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quiz.Questions[a.index], a.index
}

// Total is the number of questions in the attempt.
func (a *Attempt) Total() int {
	return len(a.quiz.Questions)
}

// TimeLimitSeconds is the quiz time limit, zero when untimed.
func (a *Attempt) TimeLimitSeconds() int {
	return a.quiz.TimeLimitSeconds
}

// Deadline is when the quiz timer runs out. Zero when the quiz has no time limit.
func (a *Attempt) Deadline() time.Time {
	if a.quiz.TimeLimitSeconds <= 0 {
		return time.Time{}
	}
	return a.startedAt.Add(time.Duration(a.quiz.TimeLimitSeconds) * time.Second)
}

// Expired reports whether the quiz timer has run out.
func (a *Attempt) Expired() bool {
	deadline := a.Deadline()
	return !deadline.IsZero() && !a.now().Before(deadline)
}

// Finished reports whether Finish has completed.
func (a *Attempt) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finished
}

// Answer validates selected for the current question. On success the question
// is locked until Next is called; on failure the player may try again.
func (a *Attempt) Answer(ctx context.Context, b Backend, selected int) (domain.AnswerVerdict, error) {
	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return domain.AnswerVerdict{}, ErrAttemptFinished
	}
	idx := a.index
	if a.locked[idx] {
		a.mu.Unlock()
		return domain.AnswerVerdict{}, ErrAlreadyAnswered
	}
	question := a.quiz.Questions[idx]
	// Lock before the call so concurrent selections for the same question are refused.
	a.locked[idx] = true
	a.mu.Unlock()

	verdict, err := b.ValidateAnswer(ctx, domain.AnswerCheck{
		QuizID:         a.quiz.ID,
		QuestionID:     question.ID,
		SelectedAnswer: selected,
	})

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.locked[idx] = false
		return domain.AnswerVerdict{}, err
	}
	choice := selected
	a.answers[idx] = &choice
	if verdict.IsCorrect {
		a.advisory += verdict.Points
	}
	return verdict, nil
}

// Next advances to the following question. It reports false at the end of the quiz.
func (a *Attempt) Next() (domain.PublicQuestion, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.finished || a.index+1 >= len(a.quiz.Questions) {
		return domain.PublicQuestion{}, false
	}
	a.index++
	return a.quiz.Questions[a.index], true
}

// Finish submits every answered question once and returns the summary. The
// submission's score replaces the advisory one; if the submission fails the
// advisory score is reported unconfirmed. Calling Finish again returns
// ErrAttemptFinished together with the first summary.
func (a *Attempt) Finish(ctx context.Context, b Backend) (Summary, error) {
	a.finishMu.Lock()
	defer a.finishMu.Unlock()

	a.mu.Lock()
	if a.finished {
		defer a.mu.Unlock()
		return a.summary, ErrAttemptFinished
	}
	a.finished = true
	answers := make([]domain.SubmittedAnswer, 0, len(a.answers))
	for i, choice := range a.answers {
		if choice == nil {
			continue
		}
		answers = append(answers, domain.SubmittedAnswer{
			QuestionID:     a.quiz.Questions[i].ID,
			SelectedAnswer: *choice,
		})
	}
	advisory := a.advisory
	a.mu.Unlock()

	elapsed := a.elapsedSeconds()
	summary := Summary{
		AttemptID:        a.id,
		QuizID:           a.quiz.ID,
		TotalPoints:      a.totalPoints(),
		TimeTakenSeconds: elapsed,
	}

	if len(answers) == 0 {
		summary.Warning = "No answers were given, so no score was recorded."
	} else {
		result, err := b.SubmitQuiz(ctx, domain.Submission{
			QuizID:           a.quiz.ID,
			Answers:          answers,
			TimeTakenSeconds: &elapsed,
		})
		if err != nil {
			summary.Score = advisory
			summary.TotalQuestions = len(answers)
			summary.Warning = "Your score could not be confirmed or saved."
		} else {
			summary.Score = result.Score
			summary.TotalQuestions = result.TotalQuestions
			summary.Results = result.Results
			summary.ScoreID = result.ScoreID
			summary.Saved = result.Saved
			summary.Confirmed = true
		}
	}

	a.mu.Lock()
	a.summary = summary
	a.mu.Unlock()
	return summary, nil
}

func (a *Attempt) elapsedSeconds() int {
	elapsed := a.now().Sub(a.startedAt)
	if limit := a.quiz.TimeLimitSeconds; limit > 0 && elapsed > time.Duration(limit)*time.Second {
		return limit
	}
	return int(elapsed / time.Second)
}

func (a *Attempt) totalPoints() int {
	total := 0
	for _, q := range a.quiz.Questions {
		total += q.Points
	}
	return total
}
