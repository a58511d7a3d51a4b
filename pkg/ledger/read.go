package ledger

import (
	"context"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/shopspring/decimal"
)

// Bill is a read-only view of what a session owes.
type Bill struct {
	Items               []domain.LineItem       `json:"items"`
	TabTotal            decimal.Decimal         `json:"tab_total"`
	TipPercentage       *int                    `json:"tip_percentage,omitempty"`
	TipAmount           decimal.Decimal         `json:"tip_amount"`
	Total               decimal.Decimal         `json:"total"`
	Balance             decimal.Decimal         `json:"balance"`
	Status              domain.PaymentStatus    `json:"payment_status"`
	NeedsReconciliation bool                    `json:"needs_reconciliation"`
	Version             int64                   `json:"version"`
	History             []domain.CompletedOrder `json:"history,omitempty"`
}

// Payment returns a copy of the session's payment state.
func (l *Ledger) Payment(ctx context.Context, sessionID string) (*domain.PaymentState, error) {
	doc, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return doc.Payment, nil
}

// Balance returns the funds available to the session.
func (l *Ledger) Balance(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	p, err := l.Payment(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.Balance, nil
}

// Bill returns the current bill.
func (l *Ledger) Bill(ctx context.Context, sessionID string) (*Bill, error) {
	doc, err := l.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return NewBill(doc), nil
}

// NewBill builds the bill view of a session snapshot.
func NewBill(doc *domain.Session) *Bill {
	p := doc.Payment
	return &Bill{
		Items:               doc.Order.Items,
		TabTotal:            p.TabTotal,
		TipPercentage:       p.TipPercentage,
		TipAmount:           p.TipAmount,
		Total:               p.Total(),
		Balance:             p.Balance,
		Status:              p.Status,
		NeedsReconciliation: p.NeedsReconciliation,
		Version:             p.Version,
		History:             doc.Order.History,
	}
}
