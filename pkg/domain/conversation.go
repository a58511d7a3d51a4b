package domain

// Phase tags where the conversation currently is.
type Phase string

const (
	PhaseGreeting  Phase = "greeting"
	PhaseOrdering  Phase = "ordering"
	PhaseSmallTalk Phase = "small_talk"
	PhasePayment   Phase = "payment"
	PhaseFarewell  Phase = "farewell"
)

// ConversationState holds the counters driven by the phase policy.
type ConversationState struct {
	Turn           int   `json:"turn"`
	Phase          Phase `json:"phase"`
	LastOrderTurn  int   `json:"last_order_turn"`
	SmallTalkCount int   `json:"small_talk_count"`
}

// NewConversationState starts at turn zero in the greeting phase.
func NewConversationState() *ConversationState {
	return &ConversationState{Phase: PhaseGreeting}
}

// Clone returns a copy.
func (c *ConversationState) Clone() *ConversationState {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
