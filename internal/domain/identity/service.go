package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospbill/billing/internal/domain/audit"
	"github.com/hospbill/billing/internal/platform/apperr"
	"github.com/hospbill/billing/internal/platform/auth"
	"github.com/hospbill/billing/internal/platform/db"
)

// ErrInvalidCredentials is returned for unknown emails, wrong passwords and
// deactivated accounts alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	users UserRepository
	tx    db.Transactor
	audit audit.Sink
	jwt   auth.JWTConfig
	now   func() time.Time
}

func NewService(users UserRepository, tx db.Transactor, sink audit.Sink, jwt auth.JWTConfig) *Service {
	return &Service{users: users, tx: tx, audit: sink, jwt: jwt, now: time.Now}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("email is not a valid address")
	}
	return email, nil
}

func hash(pw string) (string, error) {
	if len(pw) < auth.MinPasswordLength {
		return "", apperr.Validation("password must be at least %d characters", auth.MinPasswordLength)
	}
	return auth.HashPassword(pw)
}

func (s *Service) Login(ctx context.Context, email, password string, ip string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !u.Active || !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	token, expires, err := auth.IssueToken(s.jwt, u.ID, u.Email, u.Role, now)
	if err != nil {
		return nil, err
	}
	actor := auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role, IPAddress: ip}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, u.ID.String(), audit.UserLogin{Email: u.Email})
	})
	if err != nil {
		return nil, err
	}
	u.LastLogin = &now
	return &Session{Token: token, ExpiresAt: expires, User: u}, nil
}

// Logout only records the event; tokens stay valid until they expire.
func (s *Service) Logout(ctx context.Context, actor auth.Principal) error {
	return s.audit.Record(ctx, actor, actor.UserID.String(), audit.UserLogout{Email: actor.Email})
}

func (s *Service) Me(ctx context.Context, actor auth.Principal) (*User, error) {
	return s.users.GetByID(ctx, actor.UserID)
}

func (s *Service) ChangePassword(ctx context.Context, actor auth.Principal, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validation("current password and new password are required")
	}
	h, err := hash(next)
	if err != nil {
		return err
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if !auth.CheckPassword(u.PasswordHash, current) {
			return apperr.Validation("current password is incorrect")
		}
		u.PasswordHash = h
		if err := s.users.Update(ctx, u); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, u.ID.String(), audit.PasswordChanged{Email: u.Email})
	})
}

func (s *Service) CreateUser(ctx context.Context, actor auth.Principal, req CreateUserRequest) (*User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, apperr.Validation("full name is required")
	}
	if !auth.ValidRole(req.Role) {
		return nil, apperr.Validation("role must be one of %s", strings.Join(auth.Roles, ", "))
	}
	h, err := hash(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{Email: email, FullName: name, Role: req.Role, PasswordHash: h, Active: true}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, u.ID.String(), audit.UserCreated{Email: u.Email, Role: u.Role})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, actor auth.Principal, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	var u *User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		u, err = s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Email != nil {
			if u.Email, err = normalizeEmail(*req.Email); err != nil {
				return err
			}
		}
		if req.FullName != nil {
			name := strings.TrimSpace(*req.FullName)
			if name == "" {
				return apperr.Validation("full name cannot be empty")
			}
			u.FullName = name
		}
		if req.Role != nil {
			if !auth.ValidRole(*req.Role) {
				return apperr.Validation("role must be one of %s", strings.Join(auth.Roles, ", "))
			}
			u.Role = *req.Role
		}
		if req.Active != nil {
			if !*req.Active && id == actor.UserID {
				return apperr.Validation("cannot deactivate your own account")
			}
			u.Active = *req.Active
		}
		if req.Password != nil {
			if u.PasswordHash, err = hash(*req.Password); err != nil {
				return err
			}
		}
		if err := s.users.Update(ctx, u); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, u.ID.String(), audit.UserUpdated{Email: u.Email, Role: u.Role, Active: u.Active})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	if id == actor.UserID {
		return apperr.Validation("cannot delete your own account")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := s.users.Delete(ctx, id); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, id.String(), audit.UserDeleted{Email: u.Email})
	})
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}
