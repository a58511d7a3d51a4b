package tools

import (
	"context"
	"errors"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/validation"
)

// Kind names an error class callers can branch on.
type Kind string

const (
	KindInsufficientFunds      Kind = "InsufficientFunds"
	KindConcurrentModification Kind = "ConcurrentModification"
	KindInvalidTransition      Kind = "InvalidTransition"
	KindValidation             Kind = "ValidationError"
	KindInvalidSession         Kind = "InvalidSession"
	KindGatewayUnavailable     Kind = "ExternalGatewayUnavailable"
	KindNothingToPay           Kind = "NothingToPay"
	KindUnknownItem            Kind = "UnknownItem"
	KindPaymentInFlight        Kind = "PaymentInFlight"
	KindNoPaymentInFlight      Kind = "NoPaymentInFlight"
	KindUnknownTool            Kind = "UnknownTool"
	KindCancelled              Kind = "Cancelled"
	KindInternal               Kind = "Internal"
)

// Error is the failure half of a Result.
type Error struct {
	Kind       Kind   `json:"kind"`
	Field      string `json:"field,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Message    string `json:"message"`
}

// Result is what every tool returns. Exactly one of Data and Error is
// meaningful, selected by OK.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

func success(message string, data any) Result {
	return Result{OK: true, Message: message, Data: data}
}

func failure(err error) Result {
	e := Describe(err)
	return Result{OK: false, Message: userMessage(e), Error: e}
}

// Describe converts err into the structured Error carried by results.
func Describe(err error) *Error {
	e := &Error{Kind: KindOf(err), Message: err.Error()}
	if ve, ok := validation.First(err); ok {
		e.Field = ve.Field
		e.Constraint = ve.Constraint
	}
	return e
}

var errUnknownTool = errors.New("unknown tool")

// KindOf classifies err.
func KindOf(err error) Kind {
	var ve *validation.ValidationError
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, domain.ErrConcurrentModification):
		return KindConcurrentModification
	case errors.Is(err, domain.ErrInvalidTransition):
		return KindInvalidTransition
	case errors.As(err, &ve), errors.Is(err, errBadArgs):
		return KindValidation
	case errors.Is(err, domain.ErrInvalidSession):
		return KindInvalidSession
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return KindGatewayUnavailable
	case errors.Is(err, domain.ErrNothingToPay):
		return KindNothingToPay
	case errors.Is(err, domain.ErrUnknownItem):
		return KindUnknownItem
	case errors.Is(err, domain.ErrPaymentInFlight):
		return KindPaymentInFlight
	case errors.Is(err, domain.ErrNoPaymentInFlight):
		return KindNoPaymentInFlight
	case errors.Is(err, errUnknownTool):
		return KindUnknownTool
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	}
	return KindInternal
}

func userMessage(e *Error) string {
	switch e.Kind {
	case KindInsufficientFunds:
		return "There isn't enough balance left for that."
	case KindConcurrentModification:
		return "The tab changed in the meantime. Please check the bill and try again."
	case KindInvalidTransition:
		return "That payment step isn't possible right now."
	case KindGatewayUnavailable:
		return "The payment service is unavailable. Please try again shortly."
	case KindNothingToPay:
		return "There is nothing on the tab to pay."
	case KindUnknownItem:
		return "That item is not on the menu."
	case KindPaymentInFlight:
		return "A payment is already in progress for this tab."
	case KindNoPaymentInFlight:
		return "No payment has been started yet."
	case KindInternal:
		return "Something went wrong."
	}
	return e.Message
}
