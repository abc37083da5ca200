package patient

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients", auth.RequireRole(auth.AllStaff...))
	g.GET("", h.ListPatients)
	g.GET("/:id", h.GetPatient)
	g.POST("", h.CreatePatient, auth.RequireRole(auth.FinanceStaff...))
	g.PUT("/:id", h.UpdatePatient, auth.RequireRole(auth.FinanceStaff...))
	g.DELETE("/:id", h.DeletePatient, auth.RequireRole(auth.AdminOnly...))
}

type patientRequest struct {
	FirstName         string  `json:"first_name" validate:"required"`
	LastName          string  `json:"last_name" validate:"required"`
	DOB               string  `json:"dob" validate:"required,datetime=2006-01-02"`
	Gender            string  `json:"gender" validate:"required"`
	Phone             *string `json:"phone"`
	Email             *string `json:"email" validate:"omitempty,email"`
	Address           *string `json:"address"`
	InsuranceProvider *string `json:"insurance_provider"`
}

func (r patientRequest) patient() (*Patient, error) {
	dob, err := time.Parse(DateLayout, r.DOB)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "dob must be a date in YYYY-MM-DD format")
	}
	return &Patient{
		FirstName:         r.FirstName,
		LastName:          r.LastName,
		DOB:               dob,
		Gender:            r.Gender,
		Phone:             r.Phone,
		Email:             r.Email,
		Address:           r.Address,
		InsuranceProvider: r.InsuranceProvider,
	}, nil
}

func (h *Handler) bind(c echo.Context) (*Patient, error) {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return nil, err
	}
	return req.patient()
}

func paramID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreatePatient(c echo.Context) error {
	p, err := h.bind(c)
	if err != nil {
		return err
	}
	if err := h.svc.CreatePatient(c.Request().Context(), auth.FromEcho(c), p); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), c.QueryParam("search"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	p, err := h.bind(c)
	if err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), auth.FromEcho(c), p); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), auth.FromEcho(c), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient deleted successfully"})
}
