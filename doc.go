/*
Package tabkeeper is the concurrent session-state core of a multi-turn ordering
and payment agent.

Many sessions run at once against a shared store. Each session holds a
conversation phase, the current order and a payment ledger (balance, tab, tip
and payment status). Every change to a session runs read-validate-write under
that session's lock, payment mutations are fenced by an optimistic version,
payment links are created idempotently, and the payment status only moves
forward: pending, processing, completed.

# Layout

  - pkg/session: per-session lock registry, idle sweeper and the Manager that
    loads, migrates and saves documents under the lock.
  - pkg/validation: field, cross-field and transition checks on payment state.
  - pkg/ledger: the atomic operations (order, tip, payment begin/check/complete).
  - pkg/tools: the tool boundary. Every call returns a tagged Result.
  - pkg/adapters: memory and Redis stores, the HTTP API and the MCP server.

# Usage

	app, err := tabkeeper.New(nil) // config.Default()
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	ctx := context.Background()
	res := app.Tools.Invoke(ctx, tools.ToolOrderItem, "table-7", map[string]any{"item": "Latte"})
	fmt.Println(res.Message)

	res = app.Tools.Invoke(ctx, tools.ToolCreatePaymentLink, "table-7", nil)
	fmt.Println(res.Message)

Callers that need the typed API use app.Ledger directly:

	newBalance, err := app.Ledger.AtomicOrderUpdate(ctx, "table-7", decimal.RequireFromString("4.50"), nil)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		// nothing was charged
	}
*/
package tabkeeper
