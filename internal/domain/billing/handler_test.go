package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/middleware"
)

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = middleware.NewValidator()
	return e
}

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithPrincipal(req.Context(), accountant))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateInvoice(t *testing.T) {
	f := newFixture()
	patient := f.addPatient()
	item := f.addPharmacy("Paracetamol", "5.00", 10)
	h := NewHandler(f.svc)

	body := `{"patient_id":"` + patient.String() + `","due_date":"2026-11-17",
		"items":[{"item_type":"pharmacy","item_id":"` + item.String() + `","quantity":2}]}`
	c, rec := jsonContext(newTestEcho(), http.MethodPost, "/api/invoices", body)
	if err := h.CreateInvoice(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.TotalAmount.Equal(d("10")) || got.DueDate == nil || got.DueDate.Format(dateLayout) != "2026-11-17" {
		t.Errorf("unexpected invoice: total %s due %v", got.TotalAmount, got.DueDate)
	}
	if f.st.stock[item] != 8 {
		t.Errorf("expected stock 8, got %d", f.st.stock[item])
	}
}

func TestHandler_CreateInvoice_Invalid(t *testing.T) {
	f := newFixture()
	patient := f.addPatient()
	h := NewHandler(f.svc)
	bodies := map[string]string{
		"no items":      `{"patient_id":"` + patient.String() + `","due_date":"2026-11-17","items":[]}`,
		"zero quantity": `{"patient_id":"` + patient.String() + `","due_date":"2026-11-17","items":[{"item_type":"service","item_id":"` + uuid.NewString() + `","quantity":0}]}`,
		"bad type":      `{"patient_id":"` + patient.String() + `","due_date":"2026-11-17","items":[{"item_type":"lab","item_id":"` + uuid.NewString() + `","quantity":1}]}`,
		"bad due date":  `{"patient_id":"` + patient.String() + `","due_date":"17/11/2026","items":[{"item_type":"service","item_id":"` + uuid.NewString() + `","quantity":1}]}`,
		"no due date":   `{"patient_id":"` + patient.String() + `","items":[{"item_type":"service","item_id":"` + uuid.NewString() + `","quantity":1}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			c, _ := jsonContext(newTestEcho(), http.MethodPost, "/api/invoices", body)
			if err := h.CreateInvoice(c); !apperr.IsKind(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestHandler_CreateInvoice_BadJSON(t *testing.T) {
	h := NewHandler(newFixture().svc)
	c, _ := jsonContext(newTestEcho(), http.MethodPost, "/api/invoices", `{"patient_id":`)
	err := h.CreateInvoice(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_RecordPayment(t *testing.T) {
	f := newFixture()
	inv := newInvoice(t, f, "10.00")
	h := NewHandler(f.svc)

	c, rec := jsonContext(newTestEcho(), http.MethodPost, "/", `{"amount":"6","method":"cash"}`)
	c.SetParamNames("id")
	c.SetParamValues(inv.ID.String())
	if err := h.RecordPayment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got struct {
		PaymentStatus string `json:"payment_status"`
		Outstanding   string `json:"outstanding"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PaymentStatus != StatusPartial || got.Outstanding != "4" {
		t.Errorf("unexpected response: %+v", got)
	}
}

func TestHandler_RecordPayment_Invalid(t *testing.T) {
	f := newFixture()
	inv := newInvoice(t, f, "10.00")
	h := NewHandler(f.svc)
	for _, body := range []string{`{"amount":"0","method":"cash"}`, `{"amount":"5","method":"barter"}`, `{"method":"cash"}`} {
		c, _ := jsonContext(newTestEcho(), http.MethodPost, "/", body)
		c.SetParamNames("id")
		c.SetParamValues(inv.ID.String())
		if err := h.RecordPayment(c); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("%s: expected validation error, got %v", body, err)
		}
	}
}

func TestHandler_GetInvoice_NotFound(t *testing.T) {
	h := NewHandler(newFixture().svc)
	c, _ := jsonContext(newTestEcho(), http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if err := h.GetInvoice(c); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	c, _ = jsonContext(newTestEcho(), http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("42")
	if he, ok := h.GetInvoice(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id")
	}
}

func TestHandler_ListInvoices(t *testing.T) {
	f := newFixture()
	newInvoice(t, f, "10")
	newInvoice(t, f, "20")
	h := NewHandler(f.svc)

	c, rec := jsonContext(newTestEcho(), http.MethodGet, "/api/invoices?status=pending&limit=1", "")
	if err := h.ListInvoices(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got struct {
		Data    []Invoice `json:"data"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 2 || len(got.Data) != 1 || !got.HasMore {
		t.Errorf("unexpected page: total %d len %d has_more %v", got.Total, len(got.Data), got.HasMore)
	}

	c, _ = jsonContext(newTestEcho(), http.MethodGet, "/api/invoices?start_date=yesterday", "")
	if he, ok := h.ListInvoices(c).(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad start_date")
	}
}

func TestRoutes_StaffCannotCreateInvoices(t *testing.T) {
	f := newFixture()
	e := newTestEcho()
	staff := auth.Principal{UserID: uuid.New(), Role: auth.RoleStaff}
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(context.Background(), staff)))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoices", strings.NewReader(`{}`)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for staff create, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for staff read, got %d", rec.Code)
	}
}
