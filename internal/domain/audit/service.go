package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hospbill/billing/internal/platform/auth"
)

// Sink accepts audit entries. Domain services depend on this rather than on
// the concrete Recorder.
type Sink interface {
	Record(ctx context.Context, actor auth.Principal, targetID string, changes Changes) error
}

// Recorder writes audit entries and serves the audit log listing.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends one entry. Call it with the context of the mutation's
// transaction so both land together.
func (r *Recorder) Record(ctx context.Context, actor auth.Principal, targetID string, changes Changes) error {
	if changes == nil {
		return fmt.Errorf("audit changes are required")
	}
	e := &Entry{
		Action:      changes.Action(),
		TargetTable: changes.Table(),
		TargetID:    targetID,
		Changes:     changes,
		IPAddress:   actor.IPAddress,
	}
	if actor.UserID != uuid.Nil {
		uid := actor.UserID
		e.UserID = &uid
	}
	return r.repo.Insert(ctx, e)
}

func (r *Recorder) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return r.repo.List(ctx, f, limit, offset)
}
