package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is the document shape written by this build. Migrate brings
// older documents up to it.
const SchemaVersion = 2

// Session is the per-session document.
type Session struct {
	ID            string             `json:"id"`
	SchemaVersion int                `json:"schema_version"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Conversation  *ConversationState `json:"conversation"`
	Order         *OrderState        `json:"order"`
	Payment       *PaymentState      `json:"payment"`
}

// Defaults is the template new sessions are built from.
type Defaults struct {
	InitialBalance decimal.Decimal
}

// DefaultInitialBalance is used when no template is configured.
var DefaultInitialBalance = decimal.NewFromInt(100)

// NewSession creates a fresh document. Every sub-document is newly allocated,
// so no two sessions share mutable defaults.
func NewSession(id string, defaults Defaults) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:            id,
		SchemaVersion: SchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
		Conversation:  NewConversationState(),
		Order:         NewOrderState(),
		Payment:       NewPaymentState(defaults.InitialBalance),
	}
}

// Clone returns a deep copy of the document.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Conversation = s.Conversation.Clone()
	c.Order = s.Order.Clone()
	c.Payment = s.Payment.Clone()
	return &c
}
