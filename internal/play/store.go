package play

import (
	"context"

	"github.com/google/uuid"
)

// Store keeps unfinished attempts so a reconnecting player can resume one.
type Store interface {
	Put(ctx context.Context, attempt *Attempt)
	Get(ctx context.Context, id uuid.UUID) (*Attempt, bool)
	Delete(ctx context.Context, id uuid.UUID)
}
