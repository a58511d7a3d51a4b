package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Allowed tip percentages.
var TipPercentages = []int{10, 15, 20}

var (
	// ExternalPaymentIDPattern matches gateway payment link and intent ids.
	ExternalPaymentIDPattern = regexp.MustCompile(`^(plink_|pi_)[A-Za-z0-9]+$`)

	// IdempotencyKeyPattern matches keys built by NewIdempotencyKey.
	IdempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9]+_[0-9]+$`)
)

var hundred = decimal.NewFromInt(100)

// PaymentState is the payment ledger of a session.
type PaymentState struct {
	Balance             decimal.Decimal `json:"balance"`
	TabTotal            decimal.Decimal `json:"tab_total"`
	TipPercentage       *int            `json:"tip_percentage,omitempty"`
	TipAmount           decimal.Decimal `json:"tip_amount"`
	ExternalPaymentID   string          `json:"external_payment_id,omitempty"`
	Status              PaymentStatus   `json:"payment_status"`
	IdempotencyKey      string          `json:"idempotency_key,omitempty"`
	Version             int64           `json:"version"`
	NeedsReconciliation bool            `json:"needs_reconciliation"`
}

// NewPaymentState returns a pending ledger holding the given balance.
func NewPaymentState(balance decimal.Decimal) *PaymentState {
	return &PaymentState{
		Balance:  balance,
		TabTotal: decimal.Zero,
		Status:   StatusPending,
	}
}

// Clone returns a deep copy.
func (p *PaymentState) Clone() *PaymentState {
	if p == nil {
		return nil
	}
	c := *p
	if p.TipPercentage != nil {
		pct := *p.TipPercentage
		c.TipPercentage = &pct
	}
	return &c
}

// Total is the amount due: tab plus tip.
func (p *PaymentState) Total() decimal.Decimal {
	return p.TabTotal.Add(p.TipAmount)
}

// RecomputeTip derives TipAmount from TabTotal and TipPercentage.
func (p *PaymentState) RecomputeTip() {
	p.TipAmount = TipFor(p.TabTotal, p.TipPercentage)
}

// TipFor computes tab * pct / 100 rounded to cents; nil pct yields zero.
func TipFor(tab decimal.Decimal, pct *int) decimal.Decimal {
	if pct == nil {
		return decimal.Zero
	}
	return tab.Mul(decimal.NewFromInt(int64(*pct))).Div(hundred).Round(2)
}

// Fields returns a patch with every field present.
func (p *PaymentState) Fields() PaymentPatch {
	c := p.Clone()
	return PaymentPatch{
		Balance:             &c.Balance,
		TabTotal:            &c.TabTotal,
		TipPercentage:       OptionalInt{Set: true, Value: c.TipPercentage},
		TipAmount:           &c.TipAmount,
		ExternalPaymentID:   &c.ExternalPaymentID,
		Status:              &c.Status,
		IdempotencyKey:      &c.IdempotencyKey,
		Version:             &c.Version,
		NeedsReconciliation: &c.NeedsReconciliation,
	}
}

// Apply merges a patch onto a copy of p and returns the copy.
func (p *PaymentState) Apply(patch PaymentPatch) *PaymentState {
	c := p.Clone()
	if patch.Balance != nil {
		c.Balance = *patch.Balance
	}
	if patch.TabTotal != nil {
		c.TabTotal = *patch.TabTotal
	}
	if patch.TipPercentage.Set {
		c.TipPercentage = nil
		if patch.TipPercentage.Value != nil {
			pct := *patch.TipPercentage.Value
			c.TipPercentage = &pct
		}
	}
	if patch.TipAmount != nil {
		c.TipAmount = *patch.TipAmount
	}
	if patch.ExternalPaymentID != nil {
		c.ExternalPaymentID = *patch.ExternalPaymentID
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.IdempotencyKey != nil {
		c.IdempotencyKey = *patch.IdempotencyKey
	}
	if patch.Version != nil {
		c.Version = *patch.Version
	}
	if patch.NeedsReconciliation != nil {
		c.NeedsReconciliation = *patch.NeedsReconciliation
	}
	return c
}

// OptionalInt distinguishes "not in the patch" from "explicitly cleared".
type OptionalInt struct {
	Set   bool
	Value *int
}

// PaymentPatch is a partial PaymentState. Nil fields are absent.
type PaymentPatch struct {
	Balance             *decimal.Decimal
	TabTotal            *decimal.Decimal
	TipPercentage       OptionalInt
	TipAmount           *decimal.Decimal
	ExternalPaymentID   *string
	Status              *PaymentStatus
	IdempotencyKey      *string
	Version             *int64
	NeedsReconciliation *bool
}

// NewIdempotencyKey builds "{session}_{unix}" from a session id.
// Characters outside [A-Za-z0-9] are dropped so the key always matches
// IdempotencyKeyPattern; an id with no usable characters falls back to "session".
func NewIdempotencyKey(sessionID string, at time.Time) string {
	var b strings.Builder
	for _, r := range sessionID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	prefix := b.String()
	if prefix == "" {
		prefix = "session"
	}
	ts := at.Unix()
	if ts < 0 {
		ts = 0
	}
	return fmt.Sprintf("%s_%d", prefix, ts)
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}
