package audit

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows an audit log listing. Zero fields match everything.
type Filter struct {
	UserID      *uuid.UUID
	TargetTable string
	TargetID    string
	Action      Action
}

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}
