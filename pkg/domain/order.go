package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is one entry of the current order.
type LineItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Modifiers []string        `json:"modifiers,omitempty"`
}

// Subtotal is UnitPrice * Quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

func (li LineItem) clone() LineItem {
	c := li
	if li.Modifiers != nil {
		c.Modifiers = append([]string(nil), li.Modifiers...)
	}
	return c
}

// CompletedOrder is a settled order kept in the session history.
type CompletedOrder struct {
	Items             []LineItem      `json:"items"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	Paid              bool            `json:"paid"`
	TipAmount         decimal.Decimal `json:"tip_amount"`
	TipPercentage     *int            `json:"tip_percentage,omitempty"`
	ExternalPaymentID string          `json:"external_payment_id,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
	CompletedAt       time.Time       `json:"completed_at"`
}

// OrderState holds the current unplaced order and the completed history.
type OrderState struct {
	Items   []LineItem       `json:"items"`
	History []CompletedOrder `json:"history"`
}

// NewOrderState returns an empty order.
func NewOrderState() *OrderState {
	return &OrderState{
		Items:   []LineItem{},
		History: []CompletedOrder{},
	}
}

// Total sums the current order.
func (o *OrderState) Total() decimal.Decimal {
	total := decimal.Zero
	for _, li := range o.Items {
		total = total.Add(li.Subtotal())
	}
	return total
}

// Clone returns a deep copy.
func (o *OrderState) Clone() *OrderState {
	if o == nil {
		return nil
	}
	c := &OrderState{
		Items:   make([]LineItem, len(o.Items)),
		History: make([]CompletedOrder, len(o.History)),
	}
	for i, li := range o.Items {
		c.Items[i] = li.clone()
	}
	for i, h := range o.History {
		ch := h
		ch.Items = make([]LineItem, len(h.Items))
		for j, li := range h.Items {
			ch.Items[j] = li.clone()
		}
		if h.TipPercentage != nil {
			pct := *h.TipPercentage
			ch.TipPercentage = &pct
		}
		c.History[i] = ch
	}
	return c
}
