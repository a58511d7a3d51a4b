package tools_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tabkeeper/pkg/adapters/memory"
	"github.com/aretw0/tabkeeper/pkg/catalog"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/gateway"
	"github.com/aretw0/tabkeeper/pkg/ledger"
	"github.com/aretw0/tabkeeper/pkg/metrics"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/session"
	"github.com/aretw0/tabkeeper/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	box      *tools.Toolbox
	ledger   *ledger.Ledger
	gateway  *gateway.Simulated
	registry *prometheus.Registry
	mu       sync.Mutex
	notified []string
}

func newFixture(t *testing.T, balance int64, opts ...gateway.Option) *fixture {
	t.Helper()
	f := &fixture{}
	f.registry = prometheus.NewRegistry()
	m := metrics.New(f.registry)
	mgr := session.NewManager(memory.NewStore(),
		session.WithDefaults(domain.Defaults{InitialBalance: decimal.NewFromInt(balance)}),
	)
	f.ledger = ledger.New(mgr)
	f.gateway = gateway.NewSimulated(opts...)
	f.box = tools.New(f.ledger, catalog.Default(), f.gateway,
		tools.WithPollTimeout(50*time.Millisecond, time.Second),
		tools.WithMetrics(m),
		tools.WithNotifier(func(sessionID, tool string) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.notified = append(f.notified, sessionID+":"+tool)
		}),
	)
	return f
}

func TestInvoke_FullFlow(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	res := f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "latte", "quantity": float64(2)})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Added 2 x Latte for $9.00. Remaining balance $91.00.", res.Message)

	res = f.box.Invoke(ctx, tools.ToolSetTip, "s1", map[string]any{"percentage": "20"})
	require.True(t, res.OK, res.Message)
	assert.Contains(t, res.Message, "Tip set to 20% ($1.80)")

	res = f.box.Invoke(ctx, tools.ToolGetBill, "s1", nil)
	require.True(t, res.OK)
	bill := res.Data.(*ledger.Bill)
	assert.Equal(t, "10.80", bill.Total.StringFixed(2))

	res = f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	require.True(t, res.OK, res.Message)
	req := res.Data.(*ledger.PaymentRequest)
	assert.Contains(t, res.Message, req.Link.URL)

	res = f.box.Invoke(ctx, tools.ToolCheckPayment, "s1", nil)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "Payment received. Thank you!", res.Message)

	res = f.box.Invoke(ctx, tools.ToolGetBalance, "s1", nil)
	require.True(t, res.OK)
	assert.Equal(t, "Your balance is $91.00.", res.Message)

	doc, err := f.ledger.Sessions().Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseFarewell, doc.Conversation.Phase)
	assert.Equal(t, domain.StatusCompleted, doc.Payment.Status)

	f.mu.Lock()
	assert.Equal(t, []string{
		"s1:" + tools.ToolOrderItem,
		"s1:" + tools.ToolSetTip,
		"s1:" + tools.ToolCreatePaymentLink,
		"s1:" + tools.ToolCheckPayment,
	}, f.notified)
	f.mu.Unlock()

	// One series per tool that ran, all with kind "ok".
	n, err := testutil.GatherAndCount(f.registry, "tabkeeper_tool_invocations_total")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestInvoke_ErrorKinds(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	tests := []struct {
		name  string
		tool  string
		sess  string
		args  map[string]any
		kind  tools.Kind
		field string
	}{
		{"unknown tool", "launch_rocket", "s1", nil, tools.KindUnknownTool, ""},
		{"empty session", tools.ToolGetBill, "", nil, tools.KindInvalidSession, ""},
		{"unknown item", tools.ToolOrderItem, "s1", map[string]any{"item": "unicorn"}, tools.KindUnknownItem, ""},
		{"missing item", tools.ToolOrderItem, "s1", map[string]any{}, tools.KindValidation, "item"},
		{"bad arg type", tools.ToolOrderItem, "s1", map[string]any{"item": "latte", "quantity": "lots"}, tools.KindValidation, ""},
		{"unknown arg", tools.ToolSetTip, "s1", map[string]any{"percent": 10}, tools.KindValidation, ""},
		{"insufficient", tools.ToolOrderItem, "s1", map[string]any{"item": "avocado toast"}, tools.KindInsufficientFunds, ""},
		{"bad tip", tools.ToolSetTip, "s1", map[string]any{"percentage": 12}, tools.KindValidation, "tip_percentage"},
		{"nothing to pay", tools.ToolCreatePaymentLink, "s1", nil, tools.KindNothingToPay, ""},
		{"no payment", tools.ToolCheckPayment, "s1", nil, tools.KindNoPaymentInFlight, ""},
		{"bad event", tools.ToolRecordTurn, "s1", map[string]any{"event": "dance"}, tools.KindValidation, "event"},
		{"stale version", tools.ToolOrderItem, "s1", map[string]any{"item": "espresso", "expected_version": 7}, tools.KindConcurrentModification, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.box.Invoke(ctx, tt.tool, tt.sess, tt.args)
			require.False(t, res.OK)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.kind, res.Error.Kind, res.Error.Message)
			if tt.field != "" {
				assert.Equal(t, tt.field, res.Error.Field)
			}
			assert.NotEmpty(t, res.Message)
		})
	}

	f.mu.Lock()
	assert.Empty(t, f.notified)
	f.mu.Unlock()
}

func TestInvoke_GatewayUnavailable(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	require.True(t, f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "chai"}).OK)

	f.gateway.SetAvailable(false)
	res := f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	require.False(t, res.OK)
	assert.Equal(t, tools.KindGatewayUnavailable, res.Error.Kind)

	f.gateway.SetAvailable(true)
	res = f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	assert.True(t, res.OK)
}

func TestInvoke_SecondPaymentLinkIsInFlight(t *testing.T) {
	f := newFixture(t, 100, gateway.WithOutcome(gateway.OutcomeHang))
	ctx := context.Background()
	require.True(t, f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "chai"}).OK)

	first := f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	require.True(t, first.OK)
	second := f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	require.True(t, second.OK)
	assert.Contains(t, second.Message, "already waiting")
	assert.Equal(t,
		first.Data.(*ledger.PaymentRequest).Link,
		second.Data.(*ledger.PaymentRequest).Link,
	)

	res := f.box.Invoke(ctx, tools.ToolCheckPayment, "s1", map[string]any{"timeout_seconds": 0.01})
	require.True(t, res.OK)
	assert.Equal(t, map[string]ports.GatewayStatus{"status": ports.GatewayTimeout}, res.Data)

	p, err := f.ledger.Payment(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, p.NeedsReconciliation)

	res = f.box.Invoke(ctx, tools.ToolSetTip, "s1", map[string]any{"percentage": 10})
	require.False(t, res.OK)
	assert.Equal(t, tools.KindPaymentInFlight, res.Error.Kind)

	res = f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "croissant"})
	require.False(t, res.OK)
	assert.Equal(t, tools.KindPaymentInFlight, res.Error.Kind)
	bill, err := f.ledger.Bill(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, bill.Items, 1)
}

func TestInvoke_FailedPaymentGetsNewLink(t *testing.T) {
	f := newFixture(t, 100, gateway.WithOutcome(gateway.OutcomeFail))
	ctx := context.Background()
	require.True(t, f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "chai"}).OK)

	first := f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	require.True(t, first.OK)
	res := f.box.Invoke(ctx, tools.ToolCheckPayment, "s1", nil)
	require.True(t, res.OK)
	assert.Equal(t, map[string]ports.GatewayStatus{"status": ports.GatewayFailed}, res.Data)

	second := f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	require.True(t, second.OK, second.Message)
	assert.NotContains(t, second.Message, "already waiting")
	assert.NotEqual(t,
		first.Data.(*ledger.PaymentRequest).Link.ExternalID,
		second.Data.(*ledger.PaymentRequest).Link.ExternalID,
	)

	p, err := f.ledger.Payment(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, p.Status)
	assert.False(t, p.NeedsReconciliation)
	assert.Equal(t, "96", p.Balance.String())
}

func TestInvoke_NewCycleAfterCompletion(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	require.True(t, f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "chai"}).OK)
	require.True(t, f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil).OK)
	require.True(t, f.box.Invoke(ctx, tools.ToolCheckPayment, "s1", nil).OK)

	require.True(t, f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "croissant"}).OK)
	res := f.box.Invoke(ctx, tools.ToolCreatePaymentLink, "s1", nil)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "3.50", res.Data.(*ledger.PaymentRequest).Amount.StringFixed(2))
}

func TestInvoke_RecordTurnAndReset(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()

	res := f.box.Invoke(ctx, tools.ToolRecordTurn, "s1", map[string]any{"event": "greeting"})
	require.True(t, res.OK)
	assert.Equal(t, "Turn 1, phase greeting.", res.Message)

	require.True(t, f.box.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "chai"}).OK)
	res = f.box.Invoke(ctx, tools.ToolResetSession, "s1", nil)
	require.True(t, res.OK)

	res = f.box.Invoke(ctx, tools.ToolGetBalance, "s1", nil)
	require.True(t, res.OK)
	assert.Equal(t, "Your balance is $100.00.", res.Message)
}

func TestInvoke_GetMenuNeedsNoSession(t *testing.T) {
	f := newFixture(t, 100)

	res := f.box.Invoke(context.Background(), tools.ToolGetMenu, "", nil)
	require.True(t, res.OK)
	assert.NotEmpty(t, res.Data)
}

func TestSpecs_CoverEveryTool(t *testing.T) {
	f := newFixture(t, 100)
	for _, spec := range tools.Specs() {
		res := f.box.Invoke(context.Background(), spec.Name, "specs", nil)
		if res.Error != nil {
			assert.NotEqual(t, tools.KindUnknownTool, res.Error.Kind, spec.Name)
		}
	}
	assert.Len(t, tools.Specs(), 9)
}
