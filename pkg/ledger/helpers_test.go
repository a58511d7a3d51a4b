package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/tabkeeper/pkg/adapters/memory"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/ledger"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/session"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Unix(1700000000, 0).UTC()

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLedger(t *testing.T, balance int64) *ledger.Ledger {
	l, _ := newClockedLedger(t, balance)
	return l
}

func newClockedLedger(t *testing.T, balance int64) (*ledger.Ledger, *testClock) {
	t.Helper()
	clock := &testClock{now: fixedNow}
	mgr := session.NewManager(memory.NewStore(),
		session.WithDefaults(domain.Defaults{InitialBalance: decimal.NewFromInt(balance)}),
	)
	return ledger.New(mgr, ledger.WithClock(clock.Now)), clock
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stubGateway records calls and reports a scripted status.
type stubGateway struct {
	mu      sync.Mutex
	links   map[string]ports.PaymentLink
	creates int
	polls   int
	status  ports.GatewayStatus
	err     error
}

func newStubGateway(status ports.GatewayStatus) *stubGateway {
	return &stubGateway{links: make(map[string]ports.PaymentLink), status: status}
}

func (g *stubGateway) CreatePaymentLink(_ context.Context, amount decimal.Decimal, _ string, key string) (ports.PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	if g.err != nil {
		return ports.PaymentLink{}, g.err
	}
	if link, ok := g.links[key]; ok {
		return link, nil
	}
	id := fmt.Sprintf("plink_test%d", len(g.links)+1)
	link := ports.PaymentLink{URL: "https://pay.example/" + id, ExternalID: id, Simulated: true}
	g.links[key] = link
	return link, nil
}

func (g *stubGateway) PollStatus(_ context.Context, _ string, _ time.Time) (ports.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	if g.err != nil {
		return "", g.err
	}
	return g.status, nil
}

func (g *stubGateway) setStatus(s ports.GatewayStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = s
}
