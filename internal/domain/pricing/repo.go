package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hospbill/billing/internal/domain/catalog"
)

// ListFilter narrows the scheduled change listing. Zero fields match all.
type ListFilter struct {
	Status     string
	EntityType catalog.EntityType
	EntityID   uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, c *ScheduledPriceChange) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledPriceChange, error)
	// CancelPending moves a pending change to cancelled. Any other state
	// yields a not found error.
	CancelPending(ctx context.Context, id uuid.UUID) (*ScheduledPriceChange, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*ScheduledPriceChange, int, error)
	// DueIDs lists pending changes scheduled on or before today, oldest first.
	DueIDs(ctx context.Context, today time.Time) ([]uuid.UUID, error)
	// LockDue locks one due change for the current transaction. ok is false
	// when another sweeper holds the row or it is no longer pending.
	LockDue(ctx context.Context, id uuid.UUID, today time.Time) (c *ScheduledPriceChange, ok bool, err error)
	MarkApplied(ctx context.Context, id uuid.UUID, at time.Time) error
}
