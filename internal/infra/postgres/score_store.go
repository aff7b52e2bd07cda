package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"voice-quiz-service/internal/domain"
)

// ScoreStore persists score records in the user_scores table.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

func (s *ScoreStore) SaveScore(ctx context.Context, record domain.ScoreRecord) error {
	if record.UserID == nil {
		return fmt.Errorf("save score: user id required")
	}
	answers, err := json.Marshal(record.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_scores (id, user_id, quiz_id, score, total_questions, time_taken, answers, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		record.ID, *record.UserID, record.QuizID, record.Score, record.TotalQuestions,
		record.TimeTakenSeconds, string(answers), record.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

func (s *ScoreStore) ListUserScores(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ScoreHistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.user_id, s.quiz_id, s.score, s.total_questions, s.time_taken, s.answers, s.completed_at,
		       q.title, q.difficulty
		FROM user_scores s
		JOIN quizzes q ON q.id = s.quiz_id
		WHERE s.user_id=$1
		ORDER BY s.completed_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	out := []domain.ScoreHistoryEntry{}
	for rows.Next() {
		var (
			entry      domain.ScoreHistoryEntry
			owner      uuid.UUID
			rawAnswers []byte
		)
		if err := rows.Scan(&entry.ID, &owner, &entry.QuizID, &entry.Score, &entry.TotalQuestions,
			&entry.TimeTakenSeconds, &rawAnswers, &entry.CompletedAt, &entry.QuizTitle, &entry.QuizDifficulty); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		entry.UserID = &owner
		if err := json.Unmarshal(rawAnswers, &entry.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers of score %s: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
