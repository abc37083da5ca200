package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/db"
	"github.com/hospbill/billing/internal/platform/money"
)

// Store owns the service and pharmacy catalogs and their price history.
// Every price change goes through UpdatePrice.
type Store struct {
	services ServiceRepository
	pharmacy PharmacyRepository
	history  PriceHistoryRepository
	tx       db.Transactor
	audit    audit.Sink
}

func NewStore(services ServiceRepository, pharmacy PharmacyRepository, history PriceHistoryRepository, tx db.Transactor, sink audit.Sink) *Store {
	return &Store{services: services, pharmacy: pharmacy, history: history, tx: tx, audit: sink}
}

// -- Services --

func validateService(s *Service) error {
	s.Code = strings.TrimSpace(s.Code)
	s.Name = strings.TrimSpace(s.Name)
	if s.Code == "" {
		return apperr.Validation("code is required")
	}
	if s.Name == "" {
		return apperr.Validation("name is required")
	}
	if !validCategories[s.Category] {
		return apperr.Validation("category must be one of: lab, consultation, procedure")
	}
	if s.BasePrice.IsNegative() || s.CostPrice.IsNegative() {
		return apperr.Validation("prices must not be negative")
	}
	return nil
}

func (st *Store) CreateService(ctx context.Context, actor auth.Principal, s *Service) error {
	if err := validateService(s); err != nil {
		return err
	}
	s.BasePrice = money.Round(s.BasePrice)
	s.CostPrice = money.Round(s.CostPrice)
	return st.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := st.services.Create(ctx, s); err != nil {
			return err
		}
		return st.audit.Record(ctx, actor, s.ID.String(), audit.CatalogEntityCreated{
			EntityType: EntityService.String(),
			Identifier: s.Code,
			Name:       s.Name,
			Price:      s.BasePrice,
		})
	})
}

// UpdateService rewrites a service's descriptive fields. A differing
// base_price is applied through the price history path.
func (st *Store) UpdateService(ctx context.Context, actor auth.Principal, s *Service) error {
	if err := validateService(s); err != nil {
		return err
	}
	s.CostPrice = money.Round(s.CostPrice)
	return st.tx.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := st.services.LockForUpdate(ctx, s.ID)
		if err != nil {
			return err
		}
		if err := st.services.Update(ctx, s); err != nil {
			return err
		}
		if !money.Round(s.BasePrice).Equal(cur.BasePrice) {
			if _, err := st.UpdatePrice(ctx, actor, PriceUpdate{
				EntityType: EntityService,
				EntityID:   s.ID,
				NewPrice:   s.BasePrice,
				Reason:     "Catalog edit",
				Source:     SourceManual,
			}); err != nil {
				return err
			}
		}
		s.BasePrice = money.Round(s.BasePrice)
		s.CreatedAt = cur.CreatedAt
		return st.audit.Record(ctx, actor, s.ID.String(), audit.CatalogEntityUpdated{
			EntityType: EntityService.String(),
			Identifier: s.Code,
			Name:       s.Name,
			Active:     s.Active,
		})
	})
}

func (st *Store) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	return st.services.GetByID(ctx, id)
}

func (st *Store) GetServiceByCode(ctx context.Context, code string) (*Service, error) {
	return st.services.GetByCode(ctx, strings.TrimSpace(code))
}

func (st *Store) ListServices(ctx context.Context, f ServiceFilter, limit, offset int) ([]*Service, int, error) {
	return st.services.List(ctx, f, limit, offset)
}

// -- Pharmacy --

func validatePharmacyItem(p *PharmacyItem) error {
	p.SKU = strings.TrimSpace(p.SKU)
	p.Name = strings.TrimSpace(p.Name)
	p.Unit = strings.TrimSpace(p.Unit)
	switch {
	case p.SKU == "":
		return apperr.Validation("sku is required")
	case p.Name == "":
		return apperr.Validation("name is required")
	case p.Unit == "":
		return apperr.Validation("unit is required")
	case p.Price.IsNegative() || p.CostPrice.IsNegative():
		return apperr.Validation("prices must not be negative")
	case p.StockQuantity < 0:
		return apperr.Validation("stock_quantity must not be negative")
	case p.ReorderLevel < 0:
		return apperr.Validation("reorder_level must not be negative")
	}
	return nil
}

func (st *Store) CreatePharmacyItem(ctx context.Context, actor auth.Principal, p *PharmacyItem) error {
	if err := validatePharmacyItem(p); err != nil {
		return err
	}
	p.Price = money.Round(p.Price)
	p.CostPrice = money.Round(p.CostPrice)
	return st.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := st.pharmacy.Create(ctx, p); err != nil {
			return err
		}
		return st.audit.Record(ctx, actor, p.ID.String(), audit.CatalogEntityCreated{
			EntityType: EntityPharmacy.String(),
			Identifier: p.SKU,
			Name:       p.Name,
			Price:      p.Price,
		})
	})
}

// UpdatePharmacyItem rewrites descriptive fields. Stock is left untouched
// (use SetStock); a differing price is applied through the history path.
func (st *Store) UpdatePharmacyItem(ctx context.Context, actor auth.Principal, p *PharmacyItem) error {
	if err := validatePharmacyItem(p); err != nil {
		return err
	}
	p.CostPrice = money.Round(p.CostPrice)
	return st.tx.RunInTx(ctx, func(ctx context.Context) error {
		cur, err := st.pharmacy.LockForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := st.pharmacy.Update(ctx, p); err != nil {
			return err
		}
		if !money.Round(p.Price).Equal(cur.Price) {
			if _, err := st.UpdatePrice(ctx, actor, PriceUpdate{
				EntityType: EntityPharmacy,
				EntityID:   p.ID,
				NewPrice:   p.Price,
				Reason:     "Catalog edit",
				Source:     SourceManual,
			}); err != nil {
				return err
			}
		}
		p.Price = money.Round(p.Price)
		p.StockQuantity = cur.StockQuantity
		p.CreatedAt = cur.CreatedAt
		return st.audit.Record(ctx, actor, p.ID.String(), audit.CatalogEntityUpdated{
			EntityType: EntityPharmacy.String(),
			Identifier: p.SKU,
			Name:       p.Name,
			Active:     p.Active,
		})
	})
}

func (st *Store) GetPharmacyItem(ctx context.Context, id uuid.UUID) (*PharmacyItem, error) {
	return st.pharmacy.GetByID(ctx, id)
}

func (st *Store) GetPharmacyItemBySKU(ctx context.Context, sku string) (*PharmacyItem, error) {
	return st.pharmacy.GetBySKU(ctx, strings.TrimSpace(sku))
}

func (st *Store) ListPharmacyItems(ctx context.Context, f PharmacyFilter, limit, offset int) ([]*PharmacyItem, int, error) {
	return st.pharmacy.List(ctx, f, limit, offset)
}

// ListLowStock returns active items at or below their reorder level.
func (st *Store) ListLowStock(ctx context.Context, limit, offset int) ([]*PharmacyItem, int, error) {
	return st.pharmacy.List(ctx, PharmacyFilter{LowStockOnly: true}, limit, offset)
}

// SetStock overwrites an item's stock count, e.g. after a physical count.
func (st *Store) SetStock(ctx context.Context, actor auth.Principal, id uuid.UUID, qty int) (*PharmacyItem, error) {
	if qty < 0 {
		return nil, apperr.Validation("stock_quantity must not be negative")
	}
	var out *PharmacyItem
	err := st.tx.RunInTx(ctx, func(ctx context.Context) error {
		item, err := st.pharmacy.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		old := item.StockQuantity
		if err := st.pharmacy.SetStock(ctx, id, qty); err != nil {
			return err
		}
		item.StockQuantity = qty
		out = item
		return st.audit.Record(ctx, actor, id.String(), audit.StockAdjusted{
			SKU:         item.SKU,
			OldQuantity: old,
			NewQuantity: qty,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReserveStock takes qty units of an item inside the caller's transaction.
// The row is locked first, so the returned item's price is the one in force
// when the stock was taken.
func (st *Store) ReserveStock(ctx context.Context, id uuid.UUID, qty int) (*PharmacyItem, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be greater than 0")
	}
	var out *PharmacyItem
	err := st.tx.RunInTx(ctx, func(ctx context.Context) error {
		item, err := st.pharmacy.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !item.Active {
			return apperr.Validation("pharmacy item %s is not active", item.SKU)
		}
		if item.StockQuantity < qty {
			return apperr.InsufficientStock(item.Name, item.StockQuantity)
		}
		ok, err := st.pharmacy.DecrementStock(ctx, id, qty)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InsufficientStock(item.Name, item.StockQuantity)
		}
		item.StockQuantity -= qty
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// -- Prices --

// UpdatePrice locks the entity, writes the new price, appends one history
// row and one audit entry. It joins the caller's transaction when there is
// one.
func (st *Store) UpdatePrice(ctx context.Context, actor auth.Principal, u PriceUpdate) (*PriceHistoryEntry, error) {
	if !u.EntityType.Valid() {
		return nil, apperr.Validation("entity_type must be one of: service, pharmacy")
	}
	if u.NewPrice.IsNegative() {
		return nil, apperr.Validation("new_price must be a non-negative amount")
	}
	u.Reason = strings.TrimSpace(u.Reason)
	if u.Reason == "" {
		return nil, apperr.Validation("reason is required")
	}
	if u.Source == "" {
		u.Source = SourceManual
	}
	newPrice := money.Round(u.NewPrice)

	var entry *PriceHistoryEntry
	err := st.tx.RunInTx(ctx, func(ctx context.Context) error {
		ent, err := st.lock(ctx, u.EntityType, u.EntityID)
		if err != nil {
			return err
		}
		switch u.EntityType {
		case EntityService:
			err = st.services.SetPrice(ctx, u.EntityID, newPrice)
		default:
			err = st.pharmacy.SetPrice(ctx, u.EntityID, newPrice)
		}
		if err != nil {
			return err
		}
		entry = &PriceHistoryEntry{
			EntityType: u.EntityType,
			EntityID:   u.EntityID,
			OldPrice:   ent.Price,
			NewPrice:   newPrice,
			Reason:     u.Reason,
		}
		if actor.UserID != uuid.Nil {
			uid := actor.UserID
			entry.ChangedBy = &uid
		}
		if err := st.history.Insert(ctx, entry); err != nil {
			return err
		}
		return st.audit.Record(ctx, actor, u.EntityID.String(), audit.PriceChanged{
			EntityType: u.EntityType.String(),
			EntityName: ent.Name,
			OldPrice:   ent.Price,
			NewPrice:   newPrice,
			Reason:     u.Reason,
			Source:     u.Source,
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PriceHistory lists an entity's price changes, newest first.
func (st *Store) PriceHistory(ctx context.Context, t EntityType, id uuid.UUID) ([]*PriceHistoryEntry, error) {
	if _, err := st.Resolve(ctx, t, id); err != nil {
		return nil, err
	}
	return st.history.ListByEntity(ctx, t, id)
}

// -- Resolution --

func (st *Store) lock(ctx context.Context, t EntityType, id uuid.UUID) (Entity, error) {
	if t == EntityService {
		s, err := st.services.LockForUpdate(ctx, id)
		if err != nil {
			return Entity{}, err
		}
		return s.Entity(), nil
	}
	p, err := st.pharmacy.LockForUpdate(ctx, id)
	if err != nil {
		return Entity{}, err
	}
	return p.Entity(), nil
}

// Resolve loads the common view of a catalog entity by id.
func (st *Store) Resolve(ctx context.Context, t EntityType, id uuid.UUID) (Entity, error) {
	switch t {
	case EntityService:
		s, err := st.services.GetByID(ctx, id)
		if err != nil {
			return Entity{}, err
		}
		return s.Entity(), nil
	case EntityPharmacy:
		p, err := st.pharmacy.GetByID(ctx, id)
		if err != nil {
			return Entity{}, err
		}
		return p.Entity(), nil
	default:
		return Entity{}, apperr.Validation("entity_type must be one of: service, pharmacy")
	}
}

// ResolveByIdentifier looks an entity up by service code or pharmacy SKU.
func (st *Store) ResolveByIdentifier(ctx context.Context, t EntityType, identifier string) (Entity, error) {
	identifier = strings.TrimSpace(identifier)
	switch t {
	case EntityService:
		s, err := st.services.GetByCode(ctx, identifier)
		if err != nil {
			return Entity{}, err
		}
		return s.Entity(), nil
	case EntityPharmacy:
		p, err := st.pharmacy.GetBySKU(ctx, identifier)
		if err != nil {
			return Entity{}, err
		}
		return p.Entity(), nil
	default:
		return Entity{}, apperr.Validation("entity_type must be one of: service, pharmacy")
	}
}
