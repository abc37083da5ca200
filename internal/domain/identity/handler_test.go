package identity

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/middleware"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	e := echo.New()
	e.Validator = middleware.NewValidator()
	return NewHandler(svc), svc, e
}

func jsonRequest(method, target, body string, p *auth.Principal) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if p != nil {
		req = req.WithContext(auth.WithPrincipal(req.Context(), *p))
	}
	return req
}

func assertStatus(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != code {
		t.Fatalf("expected HTTP %d, got %v", code, err)
	}
}

func TestHandler_Login(t *testing.T) {
	h, svc, e := newTestHandler()
	mustCreate(t, svc, "front@hospital.test", auth.RoleStaff, "secret1")

	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"front@hospital.test","password":"secret1"}`, nil)
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["token"] == "" || body["token"] == nil {
		t.Error("expected a token")
	}
	user, _ := body["user"].(map[string]any)
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash must not be serialized")
	}
}

func TestHandler_Login_BadCredentials(t *testing.T) {
	h, _, e := newTestHandler()
	req := jsonRequest(http.MethodPost, "/api/auth/login", `{"email":"nobody@hospital.test","password":"secret1"}`, nil)
	err := h.Login(e.NewContext(req, httptest.NewRecorder()))
	assertStatus(t, err, http.StatusUnauthorized)
}

func TestHandler_Me(t *testing.T) {
	h, svc, e := newTestHandler()
	u := mustCreate(t, svc, "me@hospital.test", auth.RoleStaff, "secret1")

	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodGet, "/api/auth/me", "", &auth.Principal{UserID: u.ID, Role: u.Role})
	if err := h.Me(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got User
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Email != "me@hospital.test" {
		t.Errorf("unexpected user: %+v", got)
	}
}

func TestHandler_CreateUser(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	req := jsonRequest(http.MethodPost, "/api/users",
		`{"email":"new@hospital.test","full_name":"New Hire","role":"pharmacist","password":"secret1"}`, &admin)
	if err := h.CreateUser(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	req = jsonRequest(http.MethodPost, "/api/users", `{"email":"x@hospital.test","full_name":"X","role":"surgeon","password":"secret1"}`, &admin)
	if err := h.CreateUser(e.NewContext(req, httptest.NewRecorder())); err == nil {
		t.Error("expected validation error for unknown role")
	}
}

func TestRoutes_UsersAdminOnly(t *testing.T) {
	h, _, e := newTestHandler()
	api := e.Group("/api")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := c.Request().Header.Get("X-Role")
			ctx := auth.WithPrincipal(c.Request().Context(), auth.Principal{UserID: admin.UserID, Role: role})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	for role, want := range map[string]int{auth.RoleAccountant: http.StatusForbidden, auth.RoleAdmin: http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.Header.Set("X-Role", role)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: expected %d, got %d", role, want, rec.Code)
		}
	}
}
