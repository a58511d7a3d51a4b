// Package tools exposes ledger operations as named tools returning tagged
// results, for orchestration layers that must never see a panic or a raw
// Go error.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/conversation"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/ledger"
	"github.com/aretw0/tabkeeper/pkg/metrics"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/validation"
	"github.com/shopspring/decimal"
)

// Notifier is told about every session a successful tool call changed.
type Notifier func(sessionID, tool string)

// Toolbox dispatches tool calls.
type Toolbox struct {
	ledger      *ledger.Ledger
	catalog     ports.Catalog
	gateway     ports.PaymentGateway
	policy      conversation.Policy
	pollTimeout time.Duration
	maxTimeout  time.Duration
	notify      Notifier
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures the Toolbox.
type Option func(*Toolbox)

// WithPolicy sets the conversation phase policy.
func WithPolicy(p conversation.Policy) Option {
	return func(t *Toolbox) {
		t.policy = p
	}
}

// WithPollTimeout sets the default wait of check_payment and its upper bound.
func WithPollTimeout(def, max time.Duration) Option {
	return func(t *Toolbox) {
		t.pollTimeout = def
		t.maxTimeout = max
	}
}

// WithNotifier registers a change callback.
func WithNotifier(n Notifier) Option {
	return func(t *Toolbox) {
		t.notify = n
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolbox) {
		t.logger = logger
	}
}

// WithMetrics counts tool calls by outcome kind.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Toolbox) {
		t.metrics = m
	}
}

// New creates a Toolbox.
func New(l *ledger.Ledger, catalog ports.Catalog, gateway ports.PaymentGateway, opts ...Option) *Toolbox {
	t := &Toolbox{
		ledger:      l,
		catalog:     catalog,
		gateway:     gateway,
		policy:      conversation.DefaultPolicy(),
		pollTimeout: 2 * time.Second,
		maxTimeout:  30 * time.Second,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type handler func(ctx context.Context, sessionID string, args map[string]any) (Result, error)

func (t *Toolbox) handlers() map[string]handler {
	return map[string]handler{
		ToolGetMenu:           t.getMenu,
		ToolOrderItem:         t.orderItem,
		ToolGetBalance:        t.getBalance,
		ToolGetBill:           t.getBill,
		ToolSetTip:            t.setTip,
		ToolCreatePaymentLink: t.createPaymentLink,
		ToolCheckPayment:      t.checkPayment,
		ToolRecordTurn:        t.recordTurn,
		ToolResetSession:      t.resetSession,
	}
}

// readOnly tools never notify.
var readOnly = map[string]bool{
	ToolGetMenu:    true,
	ToolGetBalance: true,
	ToolGetBill:    true,
}

// Invoke runs a tool. It always returns a Result; panics are recovered and
// reported as KindInternal.
func (t *Toolbox) Invoke(ctx context.Context, tool, sessionID string, args map[string]any) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Tool panicked", "tool", tool, "session_id", sessionID, "panic", r)
			res = failure(fmt.Errorf("tool %s panicked: %v", tool, r))
		}
		kind := "ok"
		if res.Error != nil {
			kind = string(res.Error.Kind)
		}
		t.metrics.ObserveTool(tool, kind)
		t.logger.Debug("Tool invoked",
			"tool", tool,
			"session_id", sessionID,
			"kind", kind,
			"duration", time.Since(start),
		)
	}()

	h, ok := t.handlers()[tool]
	if !ok {
		return failure(fmt.Errorf("%w: %q", errUnknownTool, tool))
	}
	if tool != ToolGetMenu && strings.TrimSpace(sessionID) == "" {
		return failure(fmt.Errorf("%w: empty id", domain.ErrInvalidSession))
	}

	res, err := h(ctx, sessionID, args)
	if err != nil {
		return failure(err)
	}
	if t.notify != nil && !readOnly[tool] {
		t.notify(sessionID, tool)
	}
	return res
}

func (t *Toolbox) getMenu(_ context.Context, _ string, _ map[string]any) (Result, error) {
	items := t.catalog.Items()
	return success(fmt.Sprintf("%d items on the menu.", len(items)), items), nil
}

func (t *Toolbox) orderItem(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	var in orderArgs
	if err := decodeArgs(args, &in); err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(in.Item) == "" {
		return Result{}, &validation.ValidationError{Field: "item", Constraint: validation.ConstraintRequired}
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}

	item, err := t.catalog.Lookup(in.Item)
	if err != nil {
		return Result{}, err
	}

	receipt, err := t.ledger.AddItem(ctx, sessionID, domain.LineItem{
		Name:      item.Name,
		UnitPrice: item.Price,
		Quantity:  in.Quantity,
		Modifiers: in.Modifiers,
	}, in.ExpectedVersion)
	if err != nil {
		return Result{}, err
	}
	t.advance(ctx, sessionID, conversation.EventOrder)

	return success(
		fmt.Sprintf("Added %d x %s for %s. Remaining balance %s.",
			receipt.Item.Quantity, receipt.Item.Name, money(receipt.Charged), money(receipt.NewBalance)),
		receipt,
	), nil
}

func (t *Toolbox) getBalance(ctx context.Context, sessionID string, _ map[string]any) (Result, error) {
	balance, err := t.ledger.Balance(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	return success(fmt.Sprintf("Your balance is %s.", money(balance)), map[string]decimal.Decimal{"balance": balance}), nil
}

func (t *Toolbox) getBill(ctx context.Context, sessionID string, _ map[string]any) (Result, error) {
	bill, err := t.ledger.Bill(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	msg := fmt.Sprintf("Tab %s, tip %s, total %s.", money(bill.TabTotal), money(bill.TipAmount), money(bill.Total))
	if bill.Status == domain.StatusProcessing {
		msg += " A payment is in progress."
	}
	return success(msg, bill), nil
}

func (t *Toolbox) setTip(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	var in tipArgs
	if err := decodeArgs(args, &in); err != nil {
		return Result{}, err
	}
	if in.Percentage != nil && *in.Percentage == 0 {
		in.Percentage = nil
	}

	p, err := t.ledger.SetTip(ctx, sessionID, in.Percentage)
	if err != nil {
		return Result{}, err
	}
	if p.TipPercentage == nil {
		return success(fmt.Sprintf("No tip. Total %s.", money(p.Total())), p), nil
	}
	return success(fmt.Sprintf("Tip set to %d%% (%s). Total %s.", *p.TipPercentage, money(p.TipAmount), money(p.Total())), p), nil
}

func (t *Toolbox) createPaymentLink(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	var in paymentArgs
	if err := decodeArgs(args, &in); err != nil {
		return Result{}, err
	}
	if in.Description == "" {
		in.Description = "Tab " + sessionID
	}

	// A settled tab with new orders on it starts a fresh cycle.
	p, err := t.ledger.Payment(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if p.Status == domain.StatusCompleted && p.Total().IsPositive() {
		if _, err := t.ledger.ResetPaymentCycle(ctx, sessionID); err != nil {
			return Result{}, err
		}
	}

	req, err := t.ledger.BeginPayment(ctx, sessionID, t.gateway, in.Description)
	if err != nil {
		return Result{}, err
	}
	t.advance(ctx, sessionID, conversation.EventPayment)

	if req.InFlight {
		return success(fmt.Sprintf("A payment of %s is already waiting: %s", money(req.Amount), req.Link.URL), req), nil
	}
	return success(fmt.Sprintf("Pay %s here: %s", money(req.Amount), req.Link.URL), req), nil
}

func (t *Toolbox) checkPayment(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	var in checkArgs
	if err := decodeArgs(args, &in); err != nil {
		return Result{}, err
	}
	timeout := t.pollTimeout
	if in.TimeoutSeconds < 0 {
		return Result{}, &validation.ValidationError{Field: "timeout_seconds", Constraint: validation.ConstraintNonNegative, Value: in.TimeoutSeconds}
	}
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds * float64(time.Second))
	}
	if t.maxTimeout > 0 && timeout > t.maxTimeout {
		timeout = t.maxTimeout
	}

	status, err := t.ledger.CheckPayment(ctx, sessionID, t.gateway, time.Now().Add(timeout))
	if err != nil {
		return Result{}, err
	}
	data := map[string]ports.GatewayStatus{"status": status}

	switch status {
	case ports.GatewaySucceeded:
		t.advance(ctx, sessionID, conversation.EventPaid)
		return success("Payment received. Thank you!", data), nil
	case ports.GatewayFailed:
		return success("The payment did not go through. Create a new payment link to try again.", data), nil
	case ports.GatewayTimeout:
		return success("No confirmation yet. The payment has been flagged for review.", data), nil
	}
	return success("The payment is still pending.", data), nil
}

func (t *Toolbox) recordTurn(ctx context.Context, sessionID string, args map[string]any) (Result, error) {
	var in turnArgs
	if err := decodeArgs(args, &in); err != nil {
		return Result{}, err
	}
	ev, err := conversation.ParseEvent(in.Event)
	if err != nil {
		return Result{}, &validation.ValidationError{Field: "event", Constraint: validation.ConstraintOneOf, Value: in.Event}
	}

	c, err := t.ledger.UpdateConversation(ctx, sessionID, func(c *domain.ConversationState) error {
		t.policy.Advance(c, ev)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return success(fmt.Sprintf("Turn %d, phase %s.", c.Turn, c.Phase), c), nil
}

func (t *Toolbox) resetSession(ctx context.Context, sessionID string, _ map[string]any) (Result, error) {
	if err := t.ledger.Sessions().Reset(ctx, sessionID); err != nil {
		return Result{}, err
	}
	return success("Session cleared.", nil), nil
}

// advance records a side-effect turn. Failures are logged, not returned:
// the ledger change already committed.
func (t *Toolbox) advance(ctx context.Context, sessionID string, ev conversation.Event) {
	_, err := t.ledger.UpdateConversation(ctx, sessionID, func(c *domain.ConversationState) error {
		t.policy.Advance(c, ev)
		return nil
	})
	if err != nil {
		t.logger.Warn("Failed to advance conversation", "session_id", sessionID, "event", ev, "err", err)
	}
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
