package domain

import (
	"encoding/json"
	"fmt"
)

// Migrate returns a copy of s with every field an older document shape may
// lack filled in. It is pure and total: nil input yields nil, and migrating an
// up-to-date document returns an equal copy.
func Migrate(s *Session, defaults Defaults) *Session {
	if s == nil {
		return nil
	}
	m := s.Clone()

	if m.Conversation == nil {
		m.Conversation = NewConversationState()
	}
	if m.Conversation.Phase == "" {
		m.Conversation.Phase = PhaseGreeting
	}

	if m.Order == nil {
		m.Order = NewOrderState()
	}
	if m.Order.Items == nil {
		m.Order.Items = []LineItem{}
	}
	if m.Order.History == nil {
		m.Order.History = []CompletedOrder{}
	}

	if m.Payment == nil {
		m.Payment = NewPaymentState(defaults.InitialBalance)
	}
	if m.Payment.Status == "" {
		m.Payment.Status = StatusPending
	}
	// v1 documents predate tipping; tip_amount was never written.
	if m.SchemaVersion < 2 {
		m.Payment.RecomputeTip()
	}

	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	m.SchemaVersion = SchemaVersion
	return m
}

// DecodeSession parses a JSON session document of any known shape and
// migrates it.
func DecodeSession(data []byte, defaults Defaults) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return Migrate(&s, defaults), nil
}
