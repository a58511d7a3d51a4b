// Package http serves the toolbox and session administration over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/tabkeeper/internal/logging"
	"github.com/aretw0/tabkeeper/pkg/domain"
	"github.com/aretw0/tabkeeper/pkg/ledger"
	"github.com/aretw0/tabkeeper/pkg/ports"
	"github.com/aretw0/tabkeeper/pkg/tools"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Server holds the HTTP handlers.
type Server struct {
	ledger         *ledger.Ledger
	toolbox        *tools.Toolbox
	catalog        ports.Catalog
	streams        *StreamManager
	metrics        http.Handler
	version        string
	requestTimeout time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	published map[string]*domain.Session // last snapshot sent per session
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion is reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithRequestTimeout bounds non-streaming requests.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithStreams shares a StreamManager, typically the one the toolbox notifies.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// NewServer creates the HTTP server state.
func NewServer(l *ledger.Ledger, toolbox *tools.Toolbox, catalog ports.Catalog, opts ...Option) *Server {
	s := &Server{
		ledger:         l,
		toolbox:        toolbox,
		catalog:        catalog,
		version:        "dev",
		requestTimeout: 30 * time.Second,
		logger:         logging.NewNop(),
		published:      make(map[string]*domain.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager(s.logger)
	}
	return s
}

// Streams returns the StreamManager fed by Publish.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout))
		r.Get("/menu", s.getMenu)
		r.Get("/tools", s.listTools)
	})

	r.Route("/sessions", func(r chi.Router) {
		// Streaming endpoints must not be cut by the request timeout.
		r.Get("/{sessionID}/events", s.subscribeEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.requestTimeout))
			r.Get("/", s.listSessions)
			r.Get("/{sessionID}", s.getSession)
			r.Delete("/{sessionID}", s.deleteSession)
			r.Patch("/{sessionID}/payment", s.patchPayment)
			r.Post("/{sessionID}/tools/{tool}", s.invokeTool)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Publish pushes the session's current bill, and what changed since the
// last event, to its SSE subscribers. It is meant to be passed to
// tools.WithNotifier. The bill and the diff come from one snapshot, and a
// snapshot older than the last one published is dropped.
func (s *Server) Publish(sessionID, tool string) {
	if !s.streams.HasSubscribers(sessionID) {
		s.forget(sessionID)
		return
	}
	doc, err := s.ledger.Sessions().Get(context.Background(), sessionID)
	if err != nil {
		s.logger.Warn("Publish: failed to read session", "session_id", sessionID, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last := s.published[sessionID]
	if olderThan(doc, last) {
		return
	}
	changes := domain.Diff(last, doc)
	s.published[sessionID] = doc

	payload, err := json.Marshal(sessionEvent{Tool: tool, Bill: ledger.NewBill(doc), Changes: changes})
	if err != nil {
		s.logger.Error("Publish: encode failed", "err", err)
		return
	}
	s.streams.Broadcast(sessionID, payload)
}

// olderThan reports whether doc was committed before last.
func olderThan(doc, last *domain.Session) bool {
	if last == nil {
		return false
	}
	if doc.Payment.Version != last.Payment.Version {
		return doc.Payment.Version < last.Payment.Version
	}
	return doc.UpdatedAt.Before(last.UpdatedAt)
}

func (s *Server) forget(sessionID string) {
	s.mu.Lock()
	delete(s.published, sessionID)
	s.mu.Unlock()
}

type sessionEvent struct {
	Tool    string              `json:"tool"`
	Bill    *ledger.Bill        `json:"bill"`
	Changes *domain.SessionDiff `json:"changes,omitempty"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "tabkeeper-http",
		"version": s.version,
	})
}

func (s *Server) getMenu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Items())
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tools.Specs())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.ledger.Sessions().List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ledger.Sessions().Peek(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.ledger.Sessions().Reset(r.Context(), sessionID); err != nil {
		s.writeError(w, err)
		return
	}
	s.forget(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// paymentPatch is the JSON body of PATCH /sessions/{id}/payment. Absent
// fields are left alone; tip_percentage: null clears the tip.
type paymentPatch struct {
	Balance             *decimal.Decimal      `json:"balance"`
	TabTotal            *decimal.Decimal      `json:"tab_total"`
	TipPercentage       json.RawMessage       `json:"tip_percentage"`
	TipAmount           *decimal.Decimal      `json:"tip_amount"`
	ExternalPaymentID   *string               `json:"external_payment_id"`
	Status              *domain.PaymentStatus `json:"payment_status"`
	IdempotencyKey      *string               `json:"idempotency_key"`
	Version             *int64                `json:"version"`
	NeedsReconciliation *bool                 `json:"needs_reconciliation"`
	ExpectedVersion     *int64                `json:"expected_version"`
}

func (p paymentPatch) toDomain() (domain.PaymentPatch, error) {
	out := domain.PaymentPatch{
		Balance:             p.Balance,
		TabTotal:            p.TabTotal,
		TipAmount:           p.TipAmount,
		ExternalPaymentID:   p.ExternalPaymentID,
		Status:              p.Status,
		IdempotencyKey:      p.IdempotencyKey,
		Version:             p.Version,
		NeedsReconciliation: p.NeedsReconciliation,
	}
	if p.TipPercentage != nil {
		out.TipPercentage.Set = true
		if err := json.Unmarshal(p.TipPercentage, &out.TipPercentage.Value); err != nil {
			return out, fmt.Errorf("tip_percentage: %w", err)
		}
	}
	return out, nil
}

func (s *Server) patchPayment(w http.ResponseWriter, r *http.Request) {
	var body paymentPatch
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PatchPayment: Invalid request body", "err", err)
		return
	}
	patch, err := body.toDomain()
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	p, err := s.ledger.ApplyPatch(r.Context(), sessionID, patch, body.ExpectedVersion)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Publish(sessionID, "patch_payment")
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) invokeTool(w http.ResponseWriter, r *http.Request) {
	args := map[string]any{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("InvokeTool: Invalid request body", "err", err)
		return
	}

	res := s.toolbox.Invoke(r.Context(), chi.URLParam(r, "tool"), chi.URLParam(r, "sessionID"), args)
	status := http.StatusOK
	if res.Error != nil {
		status = statusForKind(res.Error.Kind)
	}
	writeJSON(w, status, res)
}

// subscribeEvents handles GET /sessions/{id}/events (SSE).
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	ch, cancel := s.streams.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to session updates", "session_id", sessionID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: bill\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	desc := tools.Describe(err)
	status := statusForKind(desc.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	writeJSON(w, status, tools.Result{OK: false, Message: err.Error(), Error: desc})
}

func statusForKind(kind tools.Kind) int {
	switch kind {
	case tools.KindValidation, tools.KindInvalidSession:
		return http.StatusBadRequest
	case tools.KindUnknownTool, tools.KindUnknownItem:
		return http.StatusNotFound
	case tools.KindConcurrentModification, tools.KindInvalidTransition,
		tools.KindPaymentInFlight, tools.KindNoPaymentInFlight:
		return http.StatusConflict
	case tools.KindInsufficientFunds, tools.KindNothingToPay:
		return http.StatusUnprocessableEntity
	case tools.KindGatewayUnavailable:
		return http.StatusBadGateway
	case tools.KindCancelled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
