package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"voice-quiz-service/internal/domain"
)

// QuizLoader loads quizzes and their questions from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID uuid.UUID) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	err := l.pool.QueryRow(ctx, `
		SELECT title, description, difficulty, time_limit_seconds, is_active, created_at
		FROM quizzes WHERE id=$1`, quizID).
		Scan(&quiz.Title, &quiz.Description, &quiz.Difficulty, &quiz.TimeLimitSeconds, &quiz.IsActive, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, question_text, options, correct_answer, points, explanation
		FROM questions WHERE quiz_id=$1
		ORDER BY order_index, id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q           = domain.Question{QuizID: quizID}
			rawOptions  []byte
			explanation *string
		)
		if err := rows.Scan(&q.ID, &q.Text, &rawOptions, &q.CorrectAnswer, &q.Points, &explanation); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return domain.Quiz{}, fmt.Errorf("unmarshal options of question %s: %w", q.ID, err)
		}
		if explanation != nil {
			q.Explanation = *explanation
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

// ListActiveQuizzes returns the catalog of active quizzes, newest first.
func (l *QuizLoader) ListActiveQuizzes(ctx context.Context) ([]domain.QuizSummary, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.title, q.description, q.difficulty, q.time_limit_seconds, q.created_at,
		       (SELECT count(*) FROM questions qs WHERE qs.quiz_id = q.id)
		FROM quizzes q
		WHERE q.is_active
		ORDER BY q.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	out := []domain.QuizSummary{}
	for rows.Next() {
		var s domain.QuizSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.Difficulty, &s.TimeLimitSeconds, &s.CreatedAt, &s.QuestionCount); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
