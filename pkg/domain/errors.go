package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned by ledger operations. Match with errors.Is.
var (
	ErrInvalidKey        = errors.New("invalid key")
	ErrDuplicateLot      = errors.New("duplicate lot")
	ErrUnknownLot        = errors.New("unknown lot")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnsupportedStage  = errors.New("unsupported stage")
	ErrDuplicateBadge    = errors.New("duplicate badge")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidRole       = errors.New("invalid role")
)

var errorKinds = []error{
	ErrInvalidKey,
	ErrDuplicateLot,
	ErrUnknownLot,
	ErrUnauthorized,
	ErrInvalidTransition,
	ErrUnsupportedStage,
	ErrDuplicateBadge,
	ErrInvalidToken,
	ErrInvalidRole,
}

// LedgerError carries the failing operation and subject alongside its kind.
type LedgerError struct {
	Kind   error
	Op     string
	Lot    string
	Detail string
}

// NewLedgerError builds a LedgerError for op with an optional formatted detail.
func NewLedgerError(kind error, op, lot, format string, args ...any) *LedgerError {
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &LedgerError{Kind: kind, Op: op, Lot: lot, Detail: detail}
}

func (e *LedgerError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Lot != "" {
		msg += " (lot " + e.Lot + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *LedgerError) Unwrap() error { return e.Kind }

// KindOf returns the error kind sentinel matched by err, or nil.
func KindOf(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// KindName returns a stable upper snake name for the kind matched by err, or
// "INTERNAL" when err does not carry a ledger kind.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrInvalidKey:
		return "INVALID_KEY"
	case ErrDuplicateLot:
		return "DUPLICATE_LOT"
	case ErrUnknownLot:
		return "UNKNOWN_LOT"
	case ErrUnauthorized:
		return "UNAUTHORIZED"
	case ErrInvalidTransition:
		return "INVALID_TRANSITION"
	case ErrUnsupportedStage:
		return "UNSUPPORTED_STAGE"
	case ErrDuplicateBadge:
		return "DUPLICATE_BADGE"
	case ErrInvalidToken:
		return "INVALID_TOKEN"
	case ErrInvalidRole:
		return "INVALID_ROLE"
	default:
		return "INTERNAL"
	}
}
