package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/punchamoorthee/pursledger/internal/bundle"
	"github.com/punchamoorthee/pursledger/internal/domain"
	"github.com/punchamoorthee/pursledger/internal/params"
	"github.com/punchamoorthee/pursledger/internal/service"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pursledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pursledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

// EntryReader reads back the ledger entries of a purs transaction.
type EntryReader interface {
	LedgerEntries(ctx context.Context, pursTransactionID string) ([]domain.LedgerEntry, error)
}

type Handler struct {
	svc      *service.PurchaseService
	entries  EntryReader
	validate *validator.Validate
	tp       trace.TracerProvider
	log      zerolog.Logger
}

type HandlerOption func(*Handler)

// WithTracerProvider sets the provider for request spans. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) HandlerOption {
	return func(h *Handler) { h.tp = tp }
}

// NewHandler builds the HTTP handler. entries may be nil when the backend cannot
// read ledger entries back.
func NewHandler(svc *service.PurchaseService, entries EntryReader, log zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		svc:      svc,
		entries:  entries,
		validate: validator.New(),
		tp:       otel.GetTracerProvider(),
		log:      log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r *mux.Router) {
	r.Use(requestLogger(h.log), tracing(h.tp))

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/bundles", h.CreateBundle).Methods("POST")
	apiV1.HandleFunc("/transactions", h.BeginTransaction).Methods("POST")
	apiV1.HandleFunc("/transactions/{token}/bundles", h.CreateBundleInTransaction).Methods("POST")
	apiV1.HandleFunc("/transactions/{token}/commit", h.CommitTransaction).Methods("POST")
	apiV1.HandleFunc("/transactions/{token}/rollback", h.RollbackTransaction).Methods("POST")
	if h.entries != nil {
		apiV1.HandleFunc("/purs-transactions/{id}/ledger-entries", h.GetLedgerEntries).Methods("GET")
	}
}

func (h *Handler) CreateBundle(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/bundles"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	req, ok := h.decodeBundle(w, r, endpoint)
	if !ok {
		return
	}

	result, err := h.svc.RecordPurchase(r.Context(), req.Purchase(), req.Promotion())
	if err != nil {
		h.respondServiceError(w, r, err, endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, result, "POST", endpoint)
}

func (h *Handler) CreateBundleInTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions/{token}/bundles"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	req, ok := h.decodeBundle(w, r, endpoint)
	if !ok {
		return
	}

	token := mux.Vars(r)["token"]
	result, err := h.svc.RecordInTransaction(r.Context(), token, req.Purchase(), req.Promotion())
	if err != nil {
		h.respondServiceError(w, r, err, endpoint)
		return
	}
	h.respondJSON(w, http.StatusCreated, result, "POST", endpoint)
}

func (h *Handler) BeginTransaction(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.Begin(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "/transactions")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"transactionId": token}, "POST", "/transactions")
}

func (h *Handler) CommitTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions/{token}/commit"
	if err := h.svc.Commit(r.Context(), mux.Vars(r)["token"]); err != nil {
		h.respondServiceError(w, r, err, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "committed"}, "POST", endpoint)
}

func (h *Handler) RollbackTransaction(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/transactions/{token}/rollback"
	if err := h.svc.Rollback(r.Context(), mux.Vars(r)["token"]); err != nil {
		h.respondServiceError(w, r, err, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "rolled back"}, "POST", endpoint)
}

func (h *Handler) GetLedgerEntries(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/purs-transactions/{id}/ledger-entries"
	entries, err := h.entries.LedgerEntries(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", endpoint)
}

func (h *Handler) decodeBundle(w http.ResponseWriter, r *http.Request, endpoint string) (domain.BundleRequest, bool) {
	var req domain.BundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", endpoint)
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), "POST", endpoint)
		return req, false
	}
	return req, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, endpoint string) {
	var stmtErr *bundle.StatementError
	switch {
	case errors.Is(err, params.ErrInvalidParameter):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), r.Method, endpoint)
	case errors.Is(err, domain.ErrTransactionNotFound):
		h.respondError(w, http.StatusNotFound, "Transaction not found", r.Method, endpoint)
	case errors.Is(err, domain.ErrTransactionBusy):
		h.respondError(w, http.StatusConflict, "Transaction is in use", r.Method, endpoint)
	case errors.Is(err, domain.ErrPursTransactionNotFound):
		h.respondError(w, http.StatusNotFound, "Purs transaction not found", r.Method, endpoint)
	case errors.As(err, &stmtErr), errors.Is(err, domain.ErrTransactionAborted):
		h.respondError(w, http.StatusBadGateway, err.Error(), r.Method, endpoint)
	default:
		h.log.Error().Err(err).Str("endpoint", endpoint).Msg("request failed")
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", r.Method, endpoint)
	}
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
