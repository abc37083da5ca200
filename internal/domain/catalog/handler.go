package catalog

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/pkg/pagination"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Services: read for all staff, write and price for admin
	svc := api.Group("/services", auth.RequireRole(auth.AllStaff...))
	svc.GET("", h.ListServices)
	svc.GET("/code/:code", h.GetServiceByCode)
	svc.GET("/:id", h.GetService)
	svc.GET("/:id/price-history", h.ServicePriceHistory)
	svc.POST("", h.CreateService, auth.RequireRole(auth.AdminOnly...))
	svc.PUT("/:id", h.UpdateService, auth.RequireRole(auth.AdminOnly...))
	svc.PATCH("/:id/price", h.UpdateServicePrice, auth.RequireRole(auth.AdminOnly...))

	// Pharmacy: read for all staff, the rest for admin and pharmacist
	ph := api.Group("/pharmacy", auth.RequireRole(auth.AllStaff...))
	pharmacyStaff := auth.RequireRole(auth.PharmacyStaff...)
	ph.GET("", h.ListPharmacyItems)
	ph.GET("/low-stock", h.ListLowStock, pharmacyStaff)
	ph.GET("/sku/:sku", h.GetPharmacyItemBySKU)
	ph.GET("/:id", h.GetPharmacyItem)
	ph.GET("/:id/price-history", h.PharmacyPriceHistory, pharmacyStaff)
	ph.POST("", h.CreatePharmacyItem, pharmacyStaff)
	ph.PUT("/:id", h.UpdatePharmacyItem, pharmacyStaff)
	ph.PATCH("/:id/stock", h.SetStock, pharmacyStaff)
	ph.PATCH("/:id/price", h.UpdatePharmacyPrice, pharmacyStaff)
}

type serviceRequest struct {
	Code            string           `json:"code" validate:"required"`
	Name            string           `json:"name" validate:"required"`
	Description     *string          `json:"description"`
	Category        string           `json:"category" validate:"required,oneof=lab consultation procedure"`
	BasePrice       *decimal.Decimal `json:"base_price" validate:"omitempty,money_nonneg"`
	CostPrice       *decimal.Decimal `json:"cost_price" validate:"omitempty,money_nonneg"`
	DurationMinutes *int             `json:"duration_minutes" validate:"omitempty,gte=0"`
	Active          *bool            `json:"active"`
}

func (r serviceRequest) apply(s *Service) {
	s.Code = r.Code
	s.Name = r.Name
	s.Description = r.Description
	s.Category = r.Category
	s.DurationMinutes = r.DurationMinutes
	if r.BasePrice != nil {
		s.BasePrice = *r.BasePrice
	}
	if r.CostPrice != nil {
		s.CostPrice = *r.CostPrice
	}
	if r.Active != nil {
		s.Active = *r.Active
	}
}

type pharmacyRequest struct {
	SKU           string           `json:"sku" validate:"required"`
	Name          string           `json:"name" validate:"required"`
	Unit          string           `json:"unit" validate:"required"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price" validate:"omitempty,money_nonneg"`
	CostPrice     *decimal.Decimal `json:"cost_price" validate:"omitempty,money_nonneg"`
	StockQuantity *int             `json:"stock_quantity" validate:"omitempty,gte=0"`
	ReorderLevel  *int             `json:"reorder_level" validate:"omitempty,gte=0"`
	SupplierID    *uuid.UUID       `json:"supplier_id"`
	Active        *bool            `json:"active"`
}

func (r pharmacyRequest) apply(p *PharmacyItem) {
	p.SKU = r.SKU
	p.Name = r.Name
	p.Unit = r.Unit
	p.Description = r.Description
	p.SupplierID = r.SupplierID
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.CostPrice != nil {
		p.CostPrice = *r.CostPrice
	}
	if r.StockQuantity != nil {
		p.StockQuantity = *r.StockQuantity
	}
	if r.ReorderLevel != nil {
		p.ReorderLevel = *r.ReorderLevel
	}
	if r.Active != nil {
		p.Active = *r.Active
	}
}

type priceRequest struct {
	NewPrice *decimal.Decimal `json:"new_price" validate:"required,money_nonneg"`
	Reason   string           `json:"reason" validate:"required"`
}

type stockRequest struct {
	StockQuantity *int `json:"stock_quantity" validate:"required,gte=0"`
}

func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func activeOnly(c echo.Context) bool {
	return c.QueryParam("active") == "true" || c.QueryParam("active_only") == "true"
}

// -- Services --

func (h *Handler) ListServices(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ServiceFilter{ActiveOnly: activeOnly(c), Category: c.QueryParam("category"), Search: c.QueryParam("search")}
	items, total, err := h.store.ListServices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetService(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	s, err := h.store.GetService(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetServiceByCode(c echo.Context) error {
	s, err := h.store.GetServiceByCode(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) CreateService(c echo.Context) error {
	var req serviceRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.BasePrice == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "base_price is required")
	}
	s := &Service{Active: true}
	req.apply(s)
	if err := h.store.CreateService(c.Request().Context(), auth.FromEcho(c), s); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) UpdateService(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req serviceRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	s, err := h.store.GetService(ctx, id)
	if err != nil {
		return err
	}
	req.apply(s)
	if err := h.store.UpdateService(ctx, auth.FromEcho(c), s); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateServicePrice(c echo.Context) error {
	return h.updatePrice(c, EntityService)
}

func (h *Handler) ServicePriceHistory(c echo.Context) error {
	return h.priceHistory(c, EntityService)
}

// -- Pharmacy --

func (h *Handler) ListPharmacyItems(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := PharmacyFilter{ActiveOnly: activeOnly(c), LowStockOnly: c.QueryParam("low_stock") == "true", Search: c.QueryParam("search")}
	items, total, err := h.store.ListPharmacyItems(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) ListLowStock(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.store.ListLowStock(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetPharmacyItem(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	p, err := h.store.GetPharmacyItem(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPharmacyItemBySKU(c echo.Context) error {
	p, err := h.store.GetPharmacyItemBySKU(c.Request().Context(), c.Param("sku"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePharmacyItem(c echo.Context) error {
	var req pharmacyRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.Price == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "price is required")
	}
	p := &PharmacyItem{Active: true}
	req.apply(p)
	if err := h.store.CreatePharmacyItem(c.Request().Context(), auth.FromEcho(c), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePharmacyItem(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req pharmacyRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if req.StockQuantity != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "stock_quantity is changed through PATCH /pharmacy/:id/stock")
	}
	ctx := c.Request().Context()
	p, err := h.store.GetPharmacyItem(ctx, id)
	if err != nil {
		return err
	}
	req.apply(p)
	if err := h.store.UpdatePharmacyItem(ctx, auth.FromEcho(c), p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SetStock(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req stockRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	p, err := h.store.SetStock(c.Request().Context(), auth.FromEcho(c), id, *req.StockQuantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePharmacyPrice(c echo.Context) error {
	return h.updatePrice(c, EntityPharmacy)
}

func (h *Handler) PharmacyPriceHistory(c echo.Context) error {
	return h.priceHistory(c, EntityPharmacy)
}

// -- Shared --

func (h *Handler) updatePrice(c echo.Context, t EntityType) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req priceRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	entry, err := h.store.UpdatePrice(c.Request().Context(), auth.FromEcho(c), PriceUpdate{
		EntityType: t,
		EntityID:   id,
		NewPrice:   *req.NewPrice,
		Reason:     req.Reason,
		Source:     SourceManual,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) priceHistory(c echo.Context, t EntityType) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	entries, err := h.store.PriceHistory(c.Request().Context(), t, id)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*PriceHistoryEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}
