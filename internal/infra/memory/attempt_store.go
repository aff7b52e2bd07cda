package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-quiz-service/internal/play"
)

// AttemptStore is an in-memory implementation of play.Store. Attempts not
// touched by Put or Get for ttl are dropped on the next Put.
type AttemptStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.Mutex
	attempts map[uuid.UUID]storedAttempt
}

type storedAttempt struct {
	attempt   *play.Attempt
	expiresAt time.Time
}

func NewAttemptStore(ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		ttl:      ttl,
		clock:    time.Now,
		attempts: make(map[uuid.UUID]storedAttempt),
	}
}

func (s *AttemptStore) Put(_ context.Context, attempt *play.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for id, stored := range s.attempts {
		if s.ttl > 0 && !now.Before(stored.expiresAt) {
			delete(s.attempts, id)
		}
	}
	s.attempts[attempt.ID()] = storedAttempt{attempt: attempt, expiresAt: now.Add(s.ttl)}
}

// Get returns a live attempt and restarts its idle ttl.
func (s *AttemptStore) Get(_ context.Context, id uuid.UUID) (*play.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	stored, ok := s.attempts[id]
	if !ok || (s.ttl > 0 && !now.Before(stored.expiresAt)) {
		return nil, false
	}
	stored.expiresAt = now.Add(s.ttl)
	s.attempts[id] = stored
	return stored.attempt, true
}

func (s *AttemptStore) Delete(_ context.Context, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, id)
}
