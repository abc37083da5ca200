package billing

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, accountant, staff
	readGroup := api.Group("", auth.RequireRole(auth.InvoiceReaders...))
	readGroup.GET("/invoices", h.ListInvoices)
	readGroup.GET("/invoices/number/:number", h.GetInvoiceByNumber)
	readGroup.GET("/invoices/:id", h.GetInvoice)
	readGroup.GET("/accounts/:id", h.GetAccount)
	readGroup.GET("/accounts/patient/:patient_id", h.GetOpenAccount)

	// Write endpoints – admin, accountant
	writeGroup := api.Group("", auth.RequireRole(auth.FinanceStaff...))
	writeGroup.POST("/invoices", h.CreateInvoice)
	writeGroup.POST("/invoices/:id/payments", h.RecordPayment)
}

type itemRequest struct {
	ItemType string    `json:"item_type" validate:"required,oneof=service pharmacy"`
	ItemID   uuid.UUID `json:"item_id" validate:"required"`
	Quantity int       `json:"quantity" validate:"required,gt=0"`
}

type invoiceRequest struct {
	PatientID uuid.UUID        `json:"patient_id" validate:"required"`
	DueDate   string           `json:"due_date" validate:"required,datetime=2006-01-02"`
	Discount  *decimal.Decimal `json:"discount"`
	Notes     *string          `json:"notes"`
	Items     []itemRequest    `json:"items" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Amount         *decimal.Decimal `json:"amount" validate:"required,money_pos"`
	Method         string           `json:"method" validate:"required,oneof=cash card insurance"`
	TransactionRef *string          `json:"transaction_ref"`
}

func paramUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func queryDate(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}

// -- Invoice Handlers --

func (h *Handler) CreateInvoice(c echo.Context) error {
	var req invoiceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "due_date must be a date in YYYY-MM-DD format")
	}
	in := CreateInvoiceRequest{
		PatientID: req.PatientID,
		DueDate:   &due,
		Notes:     req.Notes,
		Items:     make([]ItemRequest, len(req.Items)),
	}
	if req.Discount != nil {
		in.Discount = *req.Discount
	}
	for i, it := range req.Items {
		in.Items[i] = ItemRequest{ItemType: catalog.EntityType(it.ItemType), ItemID: it.ItemID, Quantity: it.Quantity}
	}
	inv, err := h.svc.CreateInvoice(c.Request().Context(), auth.FromEcho(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inv)
}

func (h *Handler) GetInvoice(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) GetInvoiceByNumber(c echo.Context) error {
	inv, err := h.svc.GetInvoiceByNumber(c.Request().Context(), c.Param("number"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inv)
}

func (h *Handler) ListInvoices(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := InvoiceFilter{PaymentStatus: c.QueryParam("status")}
	if f.PaymentStatus == "" {
		f.PaymentStatus = c.QueryParam("payment_status")
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	var err error
	if f.IssuedFrom, err = queryDate(c, "start_date"); err != nil {
		return err
	}
	if f.IssuedTo, err = queryDate(c, "end_date"); err != nil {
		return err
	}
	items, total, err := h.svc.ListInvoices(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Payment Handlers --

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	pay, inv, err := h.svc.RecordPayment(c.Request().Context(), auth.FromEcho(c), id, PaymentRequest{
		Amount:         *req.Amount,
		Method:         req.Method,
		TransactionRef: req.TransactionRef,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"payment":        pay,
		"invoice_number": inv.InvoiceNumber,
		"paid_amount":    inv.PaidAmount,
		"outstanding":    inv.Outstanding(),
		"payment_status": inv.PaymentStatus,
	})
}

// -- Account Handlers --

func (h *Handler) GetAccount(c echo.Context) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAccount(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) GetOpenAccount(c echo.Context) error {
	id, err := paramUUID(c, "patient_id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetOpenAccountForPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
