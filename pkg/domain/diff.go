package domain

// SessionDiff represents the changes between two snapshots of a session.
// It is designed to be serialized to JSON for partial updates on the client.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Phase *Phase `json:"phase,omitempty"`

	// Payment contains only changed payment fields, keyed by their JSON
	// names. A cleared tip percentage is present with a nil value.
	Payment map[string]any `json:"payment,omitempty"`

	Items   *ItemsDelta   `json:"items,omitempty"`
	History *HistoryDelta `json:"history,omitempty"`
}

// ItemsDelta describes the current order. Cleared means the previous items
// are gone (moved to history or reset); Appended follows the clear.
type ItemsDelta struct {
	Cleared  bool       `json:"cleared,omitempty"`
	Appended []LineItem `json:"appended,omitempty"`
}

// HistoryDelta holds orders settled since the old snapshot.
type HistoryDelta struct {
	Appended []CompletedOrder `json:"appended"`
}

// Diff calculates the difference between oldSession and newSession.
// If oldSession is nil, it returns a diff representing the entire newSession
// (initial load). It returns nil when nothing changed.
func Diff(oldSession, newSession *Session) *SessionDiff {
	if newSession == nil {
		return nil
	}
	if oldSession == nil {
		oldSession = &Session{}
	}

	diff := &SessionDiff{SessionID: newSession.ID}

	if newSession.Conversation != nil &&
		(oldSession.Conversation == nil || oldSession.Conversation.Phase != newSession.Conversation.Phase) {
		phase := newSession.Conversation.Phase
		diff.Phase = &phase
	}

	diff.Payment = diffPayment(oldSession.Payment, newSession.Payment)

	var oldItems, newItems []LineItem
	var oldHistory, newHistory []CompletedOrder
	if oldSession.Order != nil {
		oldItems, oldHistory = oldSession.Order.Items, oldSession.Order.History
	}
	if newSession.Order != nil {
		newItems, newHistory = newSession.Order.Items, newSession.Order.History
	}
	diff.Items = diffItems(oldItems, newItems)
	diff.History = diffHistory(oldHistory, newHistory)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffPayment(old, new *PaymentState) map[string]any {
	if new == nil {
		return nil
	}
	if old == nil {
		old = &PaymentState{}
	}

	delta := make(map[string]any)
	if !old.Balance.Equal(new.Balance) {
		delta["balance"] = new.Balance
	}
	if !old.TabTotal.Equal(new.TabTotal) {
		delta["tab_total"] = new.TabTotal
	}
	if !old.TipAmount.Equal(new.TipAmount) {
		delta["tip_amount"] = new.TipAmount
	}
	switch {
	case new.TipPercentage == nil && old.TipPercentage != nil:
		delta["tip_percentage"] = nil
	case new.TipPercentage != nil && (old.TipPercentage == nil || *old.TipPercentage != *new.TipPercentage):
		delta["tip_percentage"] = *new.TipPercentage
	}
	if old.Status != new.Status {
		delta["payment_status"] = new.Status
	}
	if old.ExternalPaymentID != new.ExternalPaymentID {
		delta["external_payment_id"] = new.ExternalPaymentID
	}
	if old.IdempotencyKey != new.IdempotencyKey {
		delta["idempotency_key"] = new.IdempotencyKey
	}
	if old.Version != new.Version {
		delta["version"] = new.Version
	}
	if old.NeedsReconciliation != new.NeedsReconciliation {
		delta["needs_reconciliation"] = new.NeedsReconciliation
	}

	// Return nil if delta is empty so omitempty can remove the key
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffItems treats the current order as append-only between clears.
func diffItems(old, new []LineItem) *ItemsDelta {
	if len(new) >= len(old) && sameItems(old, new[:len(old)]) {
		if len(new) == len(old) {
			return nil
		}
		return &ItemsDelta{Appended: new[len(old):]}
	}
	d := &ItemsDelta{Cleared: true}
	if len(new) > 0 {
		d.Appended = new
	}
	return d
}

func sameItems(a, b []LineItem) bool {
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Quantity != b[i].Quantity || !a[i].UnitPrice.Equal(b[i].UnitPrice) {
			return false
		}
	}
	return true
}

// diffHistory assumes standard append-only behavior for History.
func diffHistory(old, new []CompletedOrder) *HistoryDelta {
	if len(new) > len(old) {
		return &HistoryDelta{Appended: new[len(old):]}
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.Phase == nil &&
		len(d.Payment) == 0 &&
		d.Items == nil &&
		d.History == nil
}
