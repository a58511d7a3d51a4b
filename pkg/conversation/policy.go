// Package conversation implements the counter-based phase policy that
// drives domain.ConversationState.
package conversation

import (
	"fmt"

	"github.com/aretw0/tabkeeper/pkg/domain"
)

// Event is what happened in a turn.
type Event string

const (
	EventGreeting  Event = "greeting"
	EventOrder     Event = "order"
	EventSmallTalk Event = "small_talk"
	EventPayment   Event = "payment"
	EventPaid      Event = "paid"
	EventGoodbye   Event = "goodbye"
)

// ParseEvent validates an event name.
func ParseEvent(s string) (Event, error) {
	switch e := Event(s); e {
	case EventGreeting, EventOrder, EventSmallTalk, EventPayment, EventPaid, EventGoodbye:
		return e, nil
	}
	return "", fmt.Errorf("unknown conversation event %q", s)
}

// Policy holds the thresholds of the phase rules.
type Policy struct {
	// SmallTalkLimit is how many small-talk turns in a row are allowed
	// before steering back to ordering.
	SmallTalkLimit int
	// IdleTurns is how many turns without an order move an open tab to payment.
	IdleTurns int
}

// DefaultPolicy returns the shipped thresholds.
func DefaultPolicy() Policy {
	return Policy{SmallTalkLimit: 3, IdleTurns: 6}
}

// Advance records one turn on c.
func (p Policy) Advance(c *domain.ConversationState, ev Event) {
	c.Turn++

	switch ev {
	case EventGreeting:
		if c.LastOrderTurn == 0 {
			c.Phase = domain.PhaseGreeting
		}
	case EventOrder:
		c.Phase = domain.PhaseOrdering
		c.LastOrderTurn = c.Turn
		c.SmallTalkCount = 0
	case EventSmallTalk:
		c.SmallTalkCount++
		c.Phase = domain.PhaseSmallTalk
		if p.SmallTalkLimit > 0 && c.SmallTalkCount >= p.SmallTalkLimit {
			c.Phase = domain.PhaseOrdering
			c.SmallTalkCount = 0
		}
	case EventPayment:
		c.Phase = domain.PhasePayment
	case EventPaid, EventGoodbye:
		c.Phase = domain.PhaseFarewell
		c.SmallTalkCount = 0
	}

	if p.IdleTurns > 0 && c.LastOrderTurn > 0 && c.Phase != domain.PhaseFarewell &&
		c.Turn-c.LastOrderTurn >= p.IdleTurns {
		c.Phase = domain.PhasePayment
	}
}
