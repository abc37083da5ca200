package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/db"
)

type Service struct {
	repo  Repository
	tx    db.Transactor
	audit audit.Sink
}

func NewService(repo Repository, tx db.Transactor, sink audit.Sink) *Service {
	return &Service{repo: repo, tx: tx, audit: sink}
}

func validate(p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Gender = strings.TrimSpace(p.Gender)
	if p.FirstName == "" || p.LastName == "" || p.DOB.IsZero() || p.Gender == "" {
		return apperr.Validation("first name, last name, date of birth, and gender are required")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, actor auth.Principal, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, p.ID.String(), audit.PatientCreated{Name: p.FullName()})
	})
}

func (s *Service) UpdatePatient(ctx context.Context, actor auth.Principal, p *Patient) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, p.ID.String(), audit.PatientUpdated{Name: p.FullName()})
	})
}

// DeletePatient removes a patient with no billing history. Patients with
// accounts are kept and the call fails with a conflict.
func (s *Service) DeletePatient(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, id.String(), audit.PatientDeleted{Name: p.FullName()})
	})
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Exists satisfies billing's patient check.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, strings.TrimSpace(search), limit, offset)
}
