package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"voice-quiz-service/internal/play"
)

// AttemptStore is a Redis-aware implementation of play.Store.
// Attempts live in a local map; Redis carries a liveness key per attempt
// (SET quiz:attempt:{id} {quizID} EX ttl) so an attempt idle past its ttl
// can no longer be resumed.
type AttemptStore struct {
	client *redis.Client
	ttl    time.Duration

	mu       sync.RWMutex
	attempts map[uuid.UUID]*play.Attempt
}

func NewAttemptStore(client *redis.Client, ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		client:   client,
		ttl:      ttl,
		attempts: make(map[uuid.UUID]*play.Attempt),
	}
}

func (s *AttemptStore) Put(ctx context.Context, attempt *play.Attempt) {
	s.prune(ctx)
	s.mu.Lock()
	s.attempts[attempt.ID()] = attempt
	s.mu.Unlock()
	// best-effort liveness marker
	_ = s.client.Set(ctx, s.key(attempt.ID()), attempt.QuizID().String(), s.ttl).Err()
}

// prune drops local attempts whose liveness key has expired. Nothing is
// dropped when Redis cannot answer.
func (s *AttemptStore) prune(ctx context.Context) {
	s.mu.RLock()
	local := make(map[uuid.UUID]*play.Attempt, len(s.attempts))
	for id, attempt := range s.attempts {
		local[id] = attempt
	}
	s.mu.RUnlock()
	if len(local) == 0 {
		return
	}

	checks := make(map[uuid.UUID]*redis.IntCmd, len(local))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for id := range local {
			checks[id] = pipe.Exists(ctx, s.key(id))
		}
		return nil
	})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cmd := range checks {
		if cmd.Val() != 0 {
			continue
		}
		// a concurrent Put may have replaced the entry
		if s.attempts[id] == local[id] {
			delete(s.attempts, id)
		}
	}
}

func (s *AttemptStore) Get(ctx context.Context, id uuid.UUID) (*play.Attempt, bool) {
	s.mu.RLock()
	attempt, ok := s.attempts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err == nil && n == 0 {
		s.mu.Lock()
		delete(s.attempts, id)
		s.mu.Unlock()
		return nil, false
	}
	if err == nil && s.ttl > 0 {
		_ = s.client.Expire(ctx, s.key(id), s.ttl).Err()
	}
	return attempt, true
}

func (s *AttemptStore) Delete(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	delete(s.attempts, id)
	s.mu.Unlock()
	_ = s.client.Del(ctx, s.key(id)).Err()
}

func (s *AttemptStore) key(id uuid.UUID) string {
	return "quiz:attempt:" + id.String()
}
