package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentLink is the result of creating a payment with the gateway.
type PaymentLink struct {
	URL        string `json:"url"`
	ExternalID string `json:"external_id"`
	Simulated  bool   `json:"simulated"`
}

// GatewayStatus is what a poll of the gateway reports.
type GatewayStatus string

const (
	GatewayPending   GatewayStatus = "pending"
	GatewaySucceeded GatewayStatus = "succeeded"
	GatewayFailed    GatewayStatus = "failed"
	GatewayTimeout   GatewayStatus = "timeout"
)

// PaymentGateway is the external payment collaborator.
// Implementations return errors wrapping domain.ErrGatewayUnavailable when
// the provider cannot be reached.
type PaymentGateway interface {
	// CreatePaymentLink must be idempotent per idempotencyKey: repeating a key
	// returns the link created the first time.
	CreatePaymentLink(ctx context.Context, amount decimal.Decimal, description, idempotencyKey string) (PaymentLink, error)

	// PollStatus waits until the payment leaves pending or the deadline passes,
	// in which case it returns GatewayTimeout.
	PollStatus(ctx context.Context, externalID string, deadline time.Time) (GatewayStatus, error)
}
