package ledger

import (
	"context"
	"strings"

	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/validation"
	"github.com/shopspring/decimal"
)

// OrderReceipt describes a committed AddItem.
type OrderReceipt struct {
	Item       domain.LineItem `json:"item"`
	Charged    decimal.Decimal `json:"charged"`
	NewBalance decimal.Decimal `json:"new_balance"`
	TabTotal   decimal.Decimal `json:"tab_total"`
	Version    int64           `json:"version"`
}

// AtomicOrderUpdate moves itemPrice from the balance to the tab.
//
// When expectedVersion is non-nil and differs from the stored version it fails
// with *domain.ConflictError. When the balance cannot cover the price it fails
// with *domain.InsufficientFundsError. In both cases nothing is written.
// On success it returns the new balance; Version has grown by exactly one.
func (l *Ledger) AtomicOrderUpdate(ctx context.Context, sessionID string, itemPrice decimal.Decimal, expectedVersion *int64) (decimal.Decimal, error) {
	if itemPrice.IsNegative() {
		err := &validation.ValidationError{Field: "item_price", Constraint: validation.ConstraintNonNegative, Value: itemPrice.String()}
		l.observe(OpOrder, sessionID, err)
		return decimal.Zero, err
	}

	doc, err := l.mutatePayment(ctx, sessionID, OpOrder, func(_ *domain.Session, prior, next *domain.PaymentState) error {
		return charge(prior, next, itemPrice, expectedVersion)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return doc.Payment.Balance, nil
}

// AddItem charges item.Subtotal() exactly like AtomicOrderUpdate and appends
// the item to the current order in the same critical section. While a payment
// is processing the order is closed: the link amount is fixed and completion
// settles the whole tab, so AddItem fails with domain.ErrPaymentInFlight.
func (l *Ledger) AddItem(ctx context.Context, sessionID string, item domain.LineItem, expectedVersion *int64) (*OrderReceipt, error) {
	item.Name = strings.TrimSpace(item.Name)
	if err := checkItem(item); err != nil {
		l.observe(OpAddItem, sessionID, err)
		return nil, err
	}
	price := item.Subtotal()

	doc, err := l.mutatePayment(ctx, sessionID, OpAddItem, func(doc *domain.Session, prior, next *domain.PaymentState) error {
		if prior.Status == domain.StatusProcessing {
			return domain.ErrPaymentInFlight
		}
		if err := charge(prior, next, price, expectedVersion); err != nil {
			return err
		}
		doc.Order.Items = append(doc.Order.Items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &OrderReceipt{
		Item:       item,
		Charged:    price,
		NewBalance: doc.Payment.Balance,
		TabTotal:   doc.Payment.TabTotal,
		Version:    doc.Payment.Version,
	}, nil
}

func charge(prior, next *domain.PaymentState, price decimal.Decimal, expectedVersion *int64) error {
	if err := checkVersion(expectedVersion, prior.Version); err != nil {
		return err
	}
	if prior.Balance.LessThan(price) {
		return &domain.InsufficientFundsError{Balance: prior.Balance, Price: price}
	}
	next.Balance = prior.Balance.Sub(price)
	next.TabTotal = prior.TabTotal.Add(price)
	next.RecomputeTip()
	return nil
}

func checkItem(item domain.LineItem) error {
	switch {
	case item.Name == "":
		return &validation.ValidationError{Field: "name", Constraint: validation.ConstraintRequired}
	case item.Quantity <= 0:
		return &validation.ValidationError{Field: "quantity", Constraint: validation.ConstraintPositive, Value: item.Quantity}
	case item.UnitPrice.IsNegative():
		return &validation.ValidationError{Field: "unit_price", Constraint: validation.ConstraintNonNegative, Value: item.UnitPrice.String()}
	}
	return nil
}
