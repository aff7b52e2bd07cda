package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"voice-quiz-service/internal/domain"
)

// ScoreStore is an in-memory implementation of app.ScoreRepository.
type ScoreStore struct {
	quizzes QuizLoader

	mu      sync.RWMutex
	records []domain.ScoreRecord
}

// NewScoreStore joins history entries with quiz metadata from quizzes.
func NewScoreStore(quizzes QuizLoader) *ScoreStore {
	return &ScoreStore{quizzes: quizzes}
}

func (s *ScoreStore) SaveScore(_ context.Context, record domain.ScoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.Answers = append([]domain.SubmittedAnswer(nil), record.Answers...)
	s.records = append(s.records, record)
	return nil
}

func (s *ScoreStore) ListUserScores(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ScoreHistoryEntry, error) {
	s.mu.RLock()
	var mine []domain.ScoreRecord
	for _, record := range s.records {
		if record.UserID != nil && *record.UserID == userID {
			mine = append(mine, record)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].CompletedAt.After(mine[j].CompletedAt)
	})
	if limit > 0 && len(mine) > limit {
		mine = mine[:limit]
	}

	out := make([]domain.ScoreHistoryEntry, 0, len(mine))
	for _, record := range mine {
		entry := domain.ScoreHistoryEntry{ScoreRecord: record}
		if quiz, err := s.quizzes.LoadQuiz(ctx, record.QuizID); err == nil {
			entry.QuizTitle = quiz.Title
			entry.QuizDifficulty = quiz.Difficulty
		}
		out = append(out, entry)
	}
	return out, nil
}

// Count reports how many records are stored.
func (s *ScoreStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
