package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
)

func init() {
	auth.BcryptCost = 4
}

type nopTx struct{}

func (nopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type memSink struct{ changes []audit.Changes }

func (m *memSink) Record(_ context.Context, _ auth.Principal, _ string, c audit.Changes) error {
	m.changes = append(m.changes, c)
	return nil
}

func (m *memSink) last() audit.Changes {
	if len(m.changes) == 0 {
		return nil
	}
	return m.changes[len(m.changes)-1]
}

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperr.Conflict(duplicateEmail)
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("user with email %s not found", email)
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return apperr.NotFound("user", u.ID)
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) TouchLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.users[id].LastLogin = &at
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.users[id]; !ok {
		return apperr.NotFound("user", id)
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

var testJWT = auth.JWTConfig{Issuer: "billing-test", SigningKey: []byte("test-signing-key"), TTL: time.Hour}

var admin = auth.Principal{UserID: uuid.New(), Email: "root@hospital.test", Role: auth.RoleAdmin}

func newTestService() (*Service, *mockUserRepo, *memSink) {
	repo := newMockUserRepo()
	sink := &memSink{}
	return NewService(repo, nopTx{}, sink, testJWT), repo, sink
}

func mustCreate(t *testing.T, svc *Service, email, role, pw string) *User {
	t.Helper()
	u, err := svc.CreateUser(context.Background(), admin, CreateUserRequest{Email: email, FullName: "Test User", Role: role, Password: pw})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestCreateUser(t *testing.T) {
	svc, repo, sink := newTestService()
	u := mustCreate(t, svc, " Clerk@Hospital.test ", auth.RoleAccountant, "secret1")

	if u.Email != "clerk@hospital.test" || !u.Active {
		t.Errorf("unexpected user: %+v", u)
	}
	if repo.users[u.ID].PasswordHash == "secret1" || !auth.CheckPassword(repo.users[u.ID].PasswordHash, "secret1") {
		t.Error("password not hashed")
	}
	if c, ok := sink.last().(audit.UserCreated); !ok || c.Role != auth.RoleAccountant {
		t.Errorf("unexpected audit: %#v", sink.last())
	}
}

func TestCreateUser_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	cases := []CreateUserRequest{
		{Email: "", FullName: "A", Role: auth.RoleStaff, Password: "secret1"},
		{Email: "not-an-email", FullName: "A", Role: auth.RoleStaff, Password: "secret1"},
		{Email: "a@b.test", FullName: " ", Role: auth.RoleStaff, Password: "secret1"},
		{Email: "a@b.test", FullName: "A", Role: "doctor", Password: "secret1"},
		{Email: "a@b.test", FullName: "A", Role: auth.RoleStaff, Password: "12345"},
	}
	for _, req := range cases {
		if _, err := svc.CreateUser(context.Background(), admin, req); !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("%+v: expected validation error, got %v", req, err)
		}
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()
	mustCreate(t, svc, "dup@hospital.test", auth.RoleStaff, "secret1")
	_, err := svc.CreateUser(context.Background(), admin, CreateUserRequest{Email: "DUP@hospital.test", FullName: "B", Role: auth.RoleStaff, Password: "secret1"})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	svc, repo, sink := newTestService()
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	u := mustCreate(t, svc, "pharm@hospital.test", auth.RolePharmacist, "secret1")

	sess, err := svc.Login(context.Background(), "Pharm@Hospital.test", "secret1", "10.0.0.9")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.User.ID != u.ID || !sess.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("unexpected session: %+v", sess)
	}
	if got := repo.users[u.ID].LastLogin; got == nil || !got.Equal(now) {
		t.Errorf("last login not recorded: %v", got)
	}
	if _, ok := sink.last().(audit.UserLogin); !ok {
		t.Errorf("expected login audit, got %#v", sink.last())
	}
}

func TestLogin_TokenCarriesRole(t *testing.T) {
	svc, _, _ := newTestService()
	u := mustCreate(t, svc, "acct@hospital.test", auth.RoleAccountant, "secret1")

	sess, err := svc.Login(context.Background(), "acct@hospital.test", "secret1", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	p, err := auth.ParseToken(testJWT, sess.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if p.UserID != u.ID || p.Role != auth.RoleAccountant {
		t.Errorf("unexpected principal: %+v", p)
	}
}

func TestLogin_Rejects(t *testing.T) {
	svc, repo, _ := newTestService()
	u := mustCreate(t, svc, "staff@hospital.test", auth.RoleStaff, "secret1")
	inactive := mustCreate(t, svc, "gone@hospital.test", auth.RoleStaff, "secret1")
	repo.users[inactive.ID].Active = false

	for _, tc := range []struct{ email, pw string }{
		{u.Email, "wrong-password"},
		{"nobody@hospital.test", "secret1"},
		{inactive.Email, "secret1"},
	} {
		if _, err := svc.Login(context.Background(), tc.email, tc.pw, ""); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("%s: expected invalid credentials, got %v", tc.email, err)
		}
	}
	if _, err := svc.Login(context.Background(), "", "", ""); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, repo, sink := newTestService()
	u := mustCreate(t, svc, "me@hospital.test", auth.RoleStaff, "secret1")
	me := auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}

	if err := svc.ChangePassword(context.Background(), me, "wrong", "secret2"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error for wrong current password, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), me, "secret1", "abc"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error for short password, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), me, "secret1", "secret2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if !auth.CheckPassword(repo.users[u.ID].PasswordHash, "secret2") {
		t.Error("password not updated")
	}
	if _, ok := sink.last().(audit.PasswordChanged); !ok {
		t.Errorf("expected password audit, got %#v", sink.last())
	}
}

func TestUpdateUser(t *testing.T) {
	svc, _, _ := newTestService()
	u := mustCreate(t, svc, "x@hospital.test", auth.RoleStaff, "secret1")
	role, active := auth.RoleAccountant, false

	got, err := svc.UpdateUser(context.Background(), admin, u.ID, UpdateUserRequest{Role: &role, Active: &active})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if got.Role != auth.RoleAccountant || got.Active {
		t.Errorf("unexpected user: %+v", got)
	}

	bad := "overlord"
	if _, err := svc.UpdateUser(context.Background(), admin, u.ID, UpdateUserRequest{Role: &bad}); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, repo, _ := newTestService()
	u := mustCreate(t, svc, "del@hospital.test", auth.RoleStaff, "secret1")

	self := auth.Principal{UserID: u.ID, Role: auth.RoleAdmin}
	if err := svc.DeleteUser(context.Background(), self, u.ID); !apperr.IsKind(err, apperr.KindValidation) {
		t.Errorf("expected self-delete to fail, got %v", err)
	}
	if err := svc.DeleteUser(context.Background(), admin, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, ok := repo.users[u.ID]; ok {
		t.Error("user not deleted")
	}
	if err := svc.DeleteUser(context.Background(), admin, u.ID); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
