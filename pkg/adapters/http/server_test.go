package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/tabkeeper/pkg/adapters/memory"
	"github.com/aretw0/tabkeeper/pkg/catalog"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/gateway"
	"github.com/aretw0/tabkeeper/pkg/ledger"
	"github.com/aretw0/tabkeeper/pkg/session"
	"github.com/aretw0/tabkeeper/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	l := ledger.New(session.NewManager(memory.NewStore(),
		session.WithDefaults(domain.Defaults{InitialBalance: domain.DefaultInitialBalance}),
	))
	menu := catalog.Default()
	streams := NewStreamManager(nil)
	var srv *Server
	box := tools.New(l, menu, gateway.NewSimulated(), tools.WithNotifier(func(id, tool string) {
		srv.Publish(id, tool)
	}))
	srv = NewServer(l, box, menu,
		WithStreams(streams),
		WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		})),
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodGet, ts.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = do(t, http.MethodGet, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvokeTool(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := do(t, http.MethodPost, ts.URL+"/sessions/s1/tools/order_item", `{"item":"espresso","quantity":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	resp, body = do(t, http.MethodPost, ts.URL+"/sessions/s1/tools/get_balance", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Your balance is $94.00.", body["message"])

	resp, body = do(t, http.MethodPost, ts.URL+"/sessions/s1/tools/order_item", `{"item":"unicorn"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["ok"])
	errBody := body["error"].(map[string]any)
	assert.Equal(t, string(tools.KindUnknownItem), errBody["kind"])

	resp, _ = do(t, http.MethodPost, ts.URL+"/sessions/s1/tools/order_item", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := do(t, http.MethodGet, ts.URL+"/sessions/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	do(t, http.MethodPost, ts.URL+"/sessions/s1/tools/order_item", `{"item":"chai"}`)

	resp, body := do(t, http.MethodGet, ts.URL+"/sessions/s1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payment := body["payment"].(map[string]any)
	assert.Equal(t, "96", payment["balance"])
	assert.Equal(t, float64(1), payment["version"])

	resp, body = do(t, http.MethodGet, ts.URL+"/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"s1"}, body["sessions"])

	resp, _ = do(t, http.MethodDelete, ts.URL+"/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, ts.URL+"/sessions/s1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPatchPayment(t *testing.T) {
	_, ts := newTestServer(t)
	do(t, http.MethodPost, ts.URL+"/sessions/s1/tools/order_item", `{"item":"chai"}`)

	resp, body := do(t, http.MethodPatch, ts.URL+"/sessions/s1/payment", `{"tip_percentage":15,"expected_version":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(15), body["tip_percentage"])
	assert.Equal(t, "0.6", body["tip_amount"])
	assert.Equal(t, float64(2), body["version"])

	resp, body = do(t, http.MethodPatch, ts.URL+"/sessions/s1/payment", `{"tip_percentage":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "tip_percentage")

	resp, body = do(t, http.MethodPatch, ts.URL+"/sessions/s1/payment", `{"balance":"-3"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "balance", body["error"].(map[string]any)["field"])

	for _, body := range []string{
		`{"payment_status":"processing"}`,
		`{"payment_status":"completed"}`,
		`{"external_payment_id":"plink_abc"}`,
		`{"tab_total":"0"}`,
	} {
		resp, out := do(t, http.MethodPatch, ts.URL+"/sessions/s1/payment", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		assert.Equal(t, "read_only", out["error"].(map[string]any)["constraint"], body)
	}
	resp, body = do(t, http.MethodGet, ts.URL+"/sessions/s1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payment := body["payment"].(map[string]any)
	assert.Equal(t, "pending", payment["payment_status"])
	assert.Equal(t, "4", payment["tab_total"])

	resp, _ = do(t, http.MethodPatch, ts.URL+"/sessions/s1/payment", `{"needs_reconciliation":true,"expected_version":0}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubscribeEvents_Session(t *testing.T) {
	srv, ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sessions/s1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	require.Eventually(t, func() bool { return srv.Streams().HasSubscribers("s1") }, time.Second, 10*time.Millisecond)
	do(t, http.MethodPost, ts.URL+"/sessions/s1/tools/order_item", `{"item":"latte"}`)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed early")
			if strings.HasPrefix(line, "data: {") {
				var ev sessionEvent
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
				assert.Equal(t, tools.ToolOrderItem, ev.Tool)
				assert.Equal(t, "4.50", ev.Bill.TabTotal.StringFixed(2))
				require.NotNil(t, ev.Changes)
				require.NotNil(t, ev.Changes.Items)
				assert.Len(t, ev.Changes.Items.Appended, 1)
				assert.Equal(t, "4.5", ev.Changes.Payment["tab_total"])
				return
			}
		case <-timeout:
			t.Fatal("no session event received")
		}
	}
}

func TestStreamManager_DropsWhenFull(t *testing.T) {
	sm := NewStreamManager(nil)
	ch, cancel := sm.Subscribe("s1")

	for i := 0; i < 20; i++ {
		sm.Broadcast("s1", []byte("x"))
	}
	assert.Len(t, ch, 10)

	cancel()
	cancel()
	assert.False(t, sm.HasSubscribers("s1"))
}

func TestPublish_OneSnapshotPerEvent(t *testing.T) {
	srv, _ := newTestServer(t)
	ch, cancel := srv.Streams().Subscribe("s1")
	defer cancel()
	ctx := context.Background()

	next := func() sessionEvent {
		t.Helper()
		select {
		case msg := <-ch:
			var ev sessionEvent
			require.NoError(t, json.Unmarshal(msg, &ev))
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
		}
		return sessionEvent{}
	}

	for i := 1; i <= 2; i++ {
		require.True(t, srv.toolbox.Invoke(ctx, tools.ToolOrderItem, "s1", map[string]any{"item": "latte"}).OK)
		ev := next()
		assert.Equal(t, int64(i), ev.Bill.Version)
		require.NotNil(t, ev.Changes)
		assert.Equal(t, float64(i), ev.Changes.Payment["version"])
		assert.Equal(t, ev.Bill.TabTotal.String(), ev.Changes.Payment["tab_total"])
	}

	// A snapshot older than the one last sent is not published.
	srv.mu.Lock()
	newer := srv.published["s1"].Clone()
	newer.Payment.Version++
	srv.published["s1"] = newer
	srv.mu.Unlock()

	srv.Publish("s1", "replay")
	assert.Empty(t, ch)
}

func TestOlderThan(t *testing.T) {
	now := time.Now()
	at := func(version int64, updated time.Time) *domain.Session {
		s := domain.NewSession("s1", domain.Defaults{InitialBalance: domain.DefaultInitialBalance})
		s.Payment.Version = version
		s.UpdatedAt = updated
		return s
	}

	assert.False(t, olderThan(at(1, now), nil))
	assert.True(t, olderThan(at(1, now), at(2, now.Add(-time.Second))))
	assert.False(t, olderThan(at(3, now), at(2, now.Add(time.Second))))
	assert.True(t, olderThan(at(2, now), at(2, now.Add(time.Second))))
	assert.False(t, olderThan(at(2, now), at(2, now)))
}
