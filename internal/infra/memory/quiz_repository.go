package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"voice-quiz-service/internal/domain"
)

// QuizLoader fetches quiz content, answer key included, from a backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID uuid.UUID) (domain.Quiz, error)
}

// QuizRepository caches quizzes with TTL to avoid repeated DB hits.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[uuid.UUID]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[uuid.UUID]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID uuid.UUID) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID.String(), func() (interface{}, error) {
		if quiz, ok := r.cached(quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(quizID uuid.UUID) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.cache[quizID]; ok && entry.expiresAt.After(r.clock()) {
		return entry.quiz, true
	}
	return domain.Quiz{}, false
}

// ttlWithJitterLocked adds up to 10% jitter to spread expirations. r.mu must be held.
func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuizLoader is a loader backed by an in-memory map (useful for tests/demos).
// It also serves the quiz catalog.
type StaticQuizLoader struct {
	quizzes map[uuid.UUID]domain.Quiz
}

func NewStaticQuizLoader(quizzes ...domain.Quiz) *StaticQuizLoader {
	byID := make(map[uuid.UUID]domain.Quiz, len(quizzes))
	for _, quiz := range quizzes {
		byID[quiz.ID] = quiz
	}
	return &StaticQuizLoader{quizzes: byID}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID uuid.UUID) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// ListActiveQuizzes returns active quizzes, newest first.
func (l *StaticQuizLoader) ListActiveQuizzes(_ context.Context) ([]domain.QuizSummary, error) {
	out := make([]domain.QuizSummary, 0, len(l.quizzes))
	for _, quiz := range l.quizzes {
		if !quiz.IsActive {
			continue
		}
		out = append(out, domain.QuizSummary{
			ID:               quiz.ID,
			Title:            quiz.Title,
			Description:      quiz.Description,
			Difficulty:       quiz.Difficulty,
			TimeLimitSeconds: quiz.TimeLimitSeconds,
			QuestionCount:    len(quiz.Questions),
			CreatedAt:        quiz.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
