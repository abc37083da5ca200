package reporting

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hospbill/billing/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports", auth.RequireRole(auth.FinanceStaff...))
	g.GET("/revenue", h.Revenue)
	g.GET("/stock", h.Stock)
	g.GET("/utilization", h.Utilization)
	g.GET("/:kind/export", h.Export)
}

func queryDate(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s must be a date in YYYY-MM-DD format", name))
	}
	return &t, nil
}

func (h *Handler) dateRange(c echo.Context) (Range, error) {
	start, err := queryDate(c, "start_date")
	if err != nil {
		return Range{}, err
	}
	end, err := queryDate(c, "end_date")
	if err != nil {
		return Range{}, err
	}
	return h.svc.ResolveRange(start, end)
}

func (h *Handler) Revenue(c echo.Context) error {
	r, err := h.dateRange(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.Revenue(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Stock(c echo.Context) error {
	rep, err := h.svc.Stock(c.Request().Context(), c.QueryParam("low_stock_only") == "true")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Utilization(c echo.Context) error {
	r, err := h.dateRange(c)
	if err != nil {
		return err
	}
	rep, err := h.svc.Utilization(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (h *Handler) Export(c echo.Context) error {
	p := ExportParams{LowStockOnly: c.QueryParam("low_stock_only") == "true"}
	if kind := c.Param("kind"); kind != KindStock {
		r, err := h.dateRange(c)
		if err != nil {
			return err
		}
		p.Range = r
	}
	data, name, err := h.svc.Export(c.Request().Context(), c.Param("kind"), p)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, XLSXContentType, data)
}
