package pricing

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/hospbill/billing/internal/domain/catalog"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/pkg/pagination"
)

type Handler struct {
	svc       *Service
	maxUpload int64
}

func NewHandler(svc *Service, maxUpload int64) *Handler {
	return &Handler{svc: svc, maxUpload: maxUpload}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/prices", auth.RequireRole(auth.AdminOnly...))
	g.GET("/scheduled", h.ListScheduled)
	g.GET("/scheduled/:id", h.GetScheduled)
	g.POST("/scheduled", h.CreateScheduled)
	g.DELETE("/scheduled/:id", h.CancelScheduled)
	g.POST("/bulk-upload", h.BulkUpload)
	g.POST("/bulk-confirm", h.BulkConfirm)
	g.POST("/apply-due", h.ApplyDue)
}

type scheduleRequest struct {
	EntityType   string           `json:"entity_type" validate:"required,oneof=service pharmacy"`
	EntityID     uuid.UUID        `json:"entity_id" validate:"required"`
	NewPrice     *decimal.Decimal `json:"new_price" validate:"required,money_nonneg"`
	ScheduledFor string           `json:"scheduled_for" validate:"required"`
	Reason       string           `json:"reason" validate:"required"`
}

type confirmRequest struct {
	Updates []BulkInstruction `json:"updates" validate:"required,min=1"`
}

func (h *Handler) ListScheduled(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		Status:     c.QueryParam("status"),
		EntityType: catalog.EntityType(c.QueryParam("entity_type")),
	}
	switch f.Status {
	case "":
		f.Status = StatusPending
	case "all":
		f.Status = ""
	}
	if raw := c.QueryParam("entity_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid entity_id")
		}
		f.EntityID = id
	}
	items, total, err := h.svc.ListScheduled(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetScheduled(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ch, err := h.svc.GetScheduled(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ch)
}

func (h *Handler) CreateScheduled(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	on, err := ParseDate(req.ScheduledFor)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "scheduled_for must be a date in YYYY-MM-DD format")
	}
	ch, err := h.svc.CreateScheduled(c.Request().Context(), auth.FromEcho(c), ScheduleRequest{
		EntityType:   catalog.EntityType(req.EntityType),
		EntityID:     req.EntityID,
		NewPrice:     *req.NewPrice,
		ScheduledFor: on,
		Reason:       req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ch)
}

func (h *Handler) CancelScheduled(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ch, err := h.svc.CancelScheduled(c.Request().Context(), auth.FromEcho(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Scheduled price change cancelled successfully",
		"change":  ch,
	})
}

// BulkUpload accepts a multipart price sheet under "file" (or the legacy
// "csvFile" field) and returns the preview.
func (h *Handler) BulkUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		fh, err = c.FormFile("csvFile")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "price file is required")
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "price file is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read price file")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unable to read price file")
	}

	rows, err := ParseUpload(fh.Filename, data)
	if err != nil {
		return err
	}
	preview, err := h.svc.PreviewBulk(c.Request().Context(), rows)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, preview)
}

func (h *Handler) BulkConfirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	out, err := h.svc.ConfirmBulk(c.Request().Context(), auth.FromEcho(c), req.Updates)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Bulk price update completed",
		"results": out.Results,
		"errors":  out.Errors,
		"summary": out.Summary,
	})
}

// ApplyDue runs the scheduled price sweep on demand.
func (h *Handler) ApplyDue(c echo.Context) error {
	res, err := h.svc.ApplyDue(c.Request().Context(), h.svc.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}
