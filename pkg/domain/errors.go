package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrSessionNotFound is returned when a session ID cannot be found in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession is returned for empty or malformed session identifiers.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrInsufficientFunds is returned when the balance cannot cover a charge.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConcurrentModification is returned when the caller's expected version is stale.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrInvalidTransition is returned when a payment status change skips or reverses a state.
	ErrInvalidTransition = errors.New("invalid payment status transition")

	// ErrGatewayUnavailable is returned by payment gateway collaborators and propagated as is.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrNothingToPay is returned when a payment is requested for an empty tab.
	ErrNothingToPay = errors.New("nothing to pay")

	// ErrUnknownItem is returned by catalogs for items that are not on the menu.
	ErrUnknownItem = errors.New("unknown item")

	// ErrPaymentInFlight is returned when a change would alter the amount of a payment already requested.
	ErrPaymentInFlight = errors.New("payment already in progress")

	// ErrNoPaymentInFlight is returned when a payment is checked before one was requested.
	ErrNoPaymentInFlight = errors.New("no payment in progress")
)

// InsufficientFundsError carries the amounts behind an ErrInsufficientFunds.
type InsufficientFundsError struct {
	Balance decimal.Decimal
	Price   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %s, price %s", e.Balance.StringFixed(2), e.Price.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// ConflictError reports a stale fencing token.
type ConflictError struct {
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent modification: expected version %d, found %d", e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrentModification }

// TransitionError reports a rejected payment status change.
type TransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid payment status transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
