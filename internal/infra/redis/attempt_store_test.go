package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"

	"voice-quiz-service/internal/play"
)

func TestAttemptStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), time.Minute)
	attempt, err := play.NewAttempt(uuid.New(), uuid.New(), sampleQuiz().Public())
	if err != nil {
		t.Fatalf("new attempt: %v", err)
	}
	key := "quiz:attempt:" + attempt.ID().String()

	store.Put(ctx, attempt)
	if !mr.Exists(key) {
		t.Fatalf("expected redis key to be set")
	}
	if got, ok := store.Get(ctx, attempt.ID()); !ok || got != attempt {
		t.Fatalf("expected attempt to resume")
	}

	store.Delete(ctx, attempt.ID())
	if mr.Exists(key) {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get(ctx, attempt.ID()); ok {
		t.Fatalf("expected attempt gone")
	}
}

func TestAttemptStoreForgetsExpiredAttempts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), time.Minute)
	attempt, _ := play.NewAttempt(uuid.New(), uuid.Nil, sampleQuiz().Public())
	store.Put(ctx, attempt)

	mr.FastForward(2 * time.Minute)
	if _, ok := store.Get(ctx, attempt.ID()); ok {
		t.Fatalf("expected expired attempt to be forgotten")
	}
}

func TestAttemptStorePrunesAbandonedAttempts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), time.Minute)
	for i := 0; i < 200; i++ {
		attempt, _ := play.NewAttempt(uuid.New(), uuid.Nil, sampleQuiz().Public())
		store.Put(ctx, attempt)
	}
	if len(store.attempts) != 200 {
		t.Fatalf("expected 200 local attempts, got %d", len(store.attempts))
	}

	mr.FastForward(2 * time.Minute)
	fresh, _ := play.NewAttempt(uuid.New(), uuid.Nil, sampleQuiz().Public())
	store.Put(ctx, fresh)

	if len(store.attempts) != 1 {
		t.Fatalf("expected abandoned attempts pruned, %d remain", len(store.attempts))
	}
	if _, ok := store.Get(ctx, fresh.ID()); !ok {
		t.Fatalf("expected fresh attempt to resume")
	}
}

func TestAttemptStoreKeepsAttemptsWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	ctx := context.Background()
	store := NewAttemptStore(newClient(mr), time.Minute)
	first, _ := play.NewAttempt(uuid.New(), uuid.Nil, sampleQuiz().Public())
	store.Put(ctx, first)

	mr.Close()
	second, _ := play.NewAttempt(uuid.New(), uuid.Nil, sampleQuiz().Public())
	store.Put(ctx, second)
	if len(store.attempts) != 2 {
		t.Fatalf("expected both attempts kept, got %d", len(store.attempts))
	}
}
