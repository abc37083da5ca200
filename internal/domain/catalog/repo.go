package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ServiceRepository interface {
	Create(ctx context.Context, s *Service) error
	// Update writes every column except base_price, which only moves through
	// SetPrice.
	Update(ctx context.Context, s *Service) error
	GetByID(ctx context.Context, id uuid.UUID) (*Service, error)
	GetByCode(ctx context.Context, code string) (*Service, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Service, error)
	SetPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error
	List(ctx context.Context, f ServiceFilter, limit, offset int) ([]*Service, int, error)
}

type PharmacyRepository interface {
	Create(ctx context.Context, p *PharmacyItem) error
	// Update writes every column except price and stock_quantity.
	Update(ctx context.Context, p *PharmacyItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*PharmacyItem, error)
	GetBySKU(ctx context.Context, sku string) (*PharmacyItem, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*PharmacyItem, error)
	SetPrice(ctx context.Context, id uuid.UUID, price decimal.Decimal) error
	SetStock(ctx context.Context, id uuid.UUID, qty int) error
	// DecrementStock subtracts qty only while enough stock remains and
	// reports whether the row was updated.
	DecrementStock(ctx context.Context, id uuid.UUID, qty int) (bool, error)
	List(ctx context.Context, f PharmacyFilter, limit, offset int) ([]*PharmacyItem, int, error)
}

type PriceHistoryRepository interface {
	Insert(ctx context.Context, e *PriceHistoryEntry) error
	ListByEntity(ctx context.Context, t EntityType, id uuid.UUID) ([]*PriceHistoryEntry, error)
}
