// Package apperr defines the error taxonomy shared by the billing services.
// Handlers return these errors unchanged; the HTTP error handler maps each
// kind to a status code and decides what the client is allowed to see.
package apperr

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientStock
	KindConflict
	KindTransaction
	KindAllRowsInvalid
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindConflict:
		return "conflict"
	case KindTransaction:
		return "transaction"
	case KindAllRowsInvalid:
		return "all_rows_invalid"
	default:
		return "internal"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	// Details carries per-row messages for batch validation failures.
	Details []string
	// Available is set for KindInsufficientStock.
	Available *int
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports a missing or malformed input field.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a referenced entity that does not exist.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// NotFoundf reports a missing entity with a custom message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStock reports a pharmacy request exceeding the available quantity.
func InsufficientStock(name string, available int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		Message:   fmt.Sprintf("insufficient stock for %s. Available: %d", name, available),
		Available: &available,
	}
}

// Conflict reports a uniqueness violation.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Transaction wraps a store-level failure that forced a rollback.
func Transaction(err error) *Error {
	return &Error{Kind: KindTransaction, Message: "transaction failed", Err: err}
}

// AllRowsInvalid reports a batch in which no row passed validation.
func AllRowsInvalid(details []string) *Error {
	return &Error{Kind: KindAllRowsInvalid, Message: "all records have validation errors", Details: details}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyViolation
}

// IsNoRows reports whether err signals an empty single-row result.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// FromPG translates driver errors into application errors. Unique violations
// become Conflict with conflictMsg, and missing rows become NotFound for the
// given entity. Anything else is returned unchanged.
func FromPG(err error, entity string, id any, conflictMsg string) error {
	switch {
	case err == nil:
		return nil
	case IsNoRows(err):
		return NotFound(entity, id)
	case IsUniqueViolation(err):
		return Conflict(conflictMsg)
	default:
		return err
	}
}
