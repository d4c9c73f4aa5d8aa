package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/punchamoorthee/pursledger/internal/bundle"
	"github.com/punchamoorthee/pursledger/internal/domain"
	"github.com/punchamoorthee/pursledger/internal/service"
)

type fakeStore struct {
	tokens     map[string]bool
	statements []bundle.StatementRequest
	fail       bool
	commitErr  error

	// started and hold pause the first statement when set.
	started chan struct{}
	hold    chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{tokens: map[string]bool{}}
}

func (f *fakeStore) Begin(context.Context) (string, error) {
	f.tokens["tok-1"] = true
	return "tok-1", nil
}

func (f *fakeStore) Commit(_ context.Context, token string) error {
	if err := f.Rollback(context.Background(), token); err != nil {
		return err
	}
	return f.commitErr
}

func (f *fakeStore) Rollback(_ context.Context, token string) error {
	if !f.tokens[token] {
		return domain.ErrTransactionNotFound
	}
	delete(f.tokens, token)
	return nil
}

func (f *fakeStore) ExecuteStatement(_ context.Context, req bundle.StatementRequest) bundle.Outcome {
	if f.hold != nil {
		hold := f.hold
		f.hold = nil
		f.started <- struct{}{}
		<-hold
	}
	f.statements = append(f.statements, req)
	if f.fail {
		return bundle.Failed(req.Statement, errors.New("store unavailable"))
	}
	return bundle.Succeeded(req.Statement)
}

func (f *fakeStore) BatchExecuteStatement(_ context.Context, req bundle.BatchRequest) bundle.Outcome {
	return bundle.Succeeded(req.Statement)
}

type fakeEntries struct{}

func (fakeEntries) LedgerEntries(_ context.Context, id string) ([]domain.LedgerEntry, error) {
	if id != "abcd" {
		return nil, domain.ErrPursTransactionNotFound
	}
	return []domain.LedgerEntry{{ID: "01", Amount: decimal.NewFromInt(5)}}, nil
}

func newRouter(store *fakeStore, policy bundle.Policy) *mux.Router {
	orch := bundle.New(store, bundle.WithPolicy(policy))
	svc := service.NewPurchaseService(store, orch, zerolog.Nop())
	r := mux.NewRouter()
	NewHandler(svc, fakeEntries{}, zerolog.Nop()).Routes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func validBody() map[string]any {
	return map[string]any{
		"payor":              "0a",
		"payee":              "0b",
		"payorBankAccountId": "0c",
		"payeeBankAccountId": "0d",
		"dev":                "0e",
		"amount":             100,
		"interactionType":    0,
		"paymentMethod":      0,
		"promoAmount":        25,
	}
}

func TestCreateBundle(t *testing.T) {
	store := newFakeStore()
	rec := do(t, newRouter(store, bundle.PolicyContinue), "POST", "/api/v1/bundles", validBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var result domain.BundleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.PrimaryPaymentID)
	assert.NotEmpty(t, result.CustomerLedgerEntryID)
	assert.NotEmpty(t, result.PrimaryFedNowPaymentID)
	assert.NotEmpty(t, result.PromotionLedgerEntryID)
	assert.NotEmpty(t, result.PursTransactionID)
	assert.Empty(t, store.tokens, "transaction should be committed")
}

func TestCreateBundle_OmitsAbsentIdentifiers(t *testing.T) {
	body := validBody()
	body["paymentMethod"] = 1
	body["promoAmount"] = 0

	rec := do(t, newRouter(newFakeStore(), bundle.PolicyContinue), "POST", "/api/v1/bundles", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.NotContains(t, raw, "primaryFedNowPaymentId")
	assert.NotContains(t, raw, "promotionLedgerEntryId")
	assert.Contains(t, raw, "pursTransactionId")
}

func TestCreateBundle_ValidationMessage(t *testing.T) {
	body := validBody()
	body["paymentMethod"] = 3

	rec := do(t, newRouter(newFakeStore(), bundle.PolicyContinue), "POST", "/api/v1/bundles", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "paymentMethod parameter must be 0 or 1")
}

func TestCreateBundle_MissingPayor(t *testing.T) {
	body := validBody()
	delete(body, "payor")

	rec := do(t, newRouter(newFakeStore(), bundle.PolicyContinue), "POST", "/api/v1/bundles", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBundle_BadJSON(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/bundles", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	newRouter(newFakeStore(), bundle.PolicyContinue).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBundle_AbortedStatement(t *testing.T) {
	store := newFakeStore()
	store.fail = true

	rec := do(t, newRouter(store, bundle.PolicyAbort), "POST", "/api/v1/bundles", validBody())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Len(t, store.statements, 1)
	assert.Empty(t, store.tokens, "transaction should be rolled back")
}

func TestTransactionLifecycle(t *testing.T) {
	store := newFakeStore()
	r := newRouter(store, bundle.PolicyContinue)

	rec := do(t, r, "POST", "/api/v1/transactions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var begun map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &begun))
	token := begun["transactionId"]
	require.Equal(t, "tok-1", token)

	rec = do(t, r, "POST", "/api/v1/transactions/"+token+"/bundles", validBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	for _, req := range store.statements {
		assert.Equal(t, token, req.TransactionID)
	}
	assert.True(t, store.tokens[token], "token stays open until commit")

	rec = do(t, r, "POST", "/api/v1/transactions/"+token+"/commit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, "POST", "/api/v1/transactions/"+token+"/rollback", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetLedgerEntries(t *testing.T) {
	r := newRouter(newFakeStore(), bundle.PolicyContinue)

	rec := do(t, r, "GET", "/api/v1/purs-transactions/abcd/ledger-entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)

	rec = do(t, r, "GET", "/api/v1/purs-transactions/ffff/ledger-entries", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateBundleInTransaction_TokenInUse(t *testing.T) {
	store := newFakeStore()
	r := newRouter(store, bundle.PolicyContinue)

	rec := do(t, r, "POST", "/api/v1/transactions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	hold := make(chan struct{})
	store.started = make(chan struct{})
	store.hold = hold

	var wg sync.WaitGroup
	var first *httptest.ResponseRecorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = do(t, r, "POST", "/api/v1/transactions/tok-1/bundles", validBody())
	}()
	<-store.started

	rec = do(t, r, "POST", "/api/v1/transactions/tok-1/bundles", validBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, r, "POST", "/api/v1/transactions/tok-1/commit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(hold)
	wg.Wait()
	assert.Equal(t, http.StatusCreated, first.Code)

	rec = do(t, r, "POST", "/api/v1/transactions/tok-1/commit", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBundle_AbortedCommit(t *testing.T) {
	store := newFakeStore()
	store.fail = true
	store.commitErr = fmt.Errorf("%w: commit unexpectedly resulted in rollback", domain.ErrTransactionAborted)

	rec := do(t, newRouter(store, bundle.PolicyContinue), "POST", "/api/v1/bundles", validBody())
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "insert_payment")
	assert.Contains(t, rec.Body.String(), "store unavailable")
}

func TestRequestSpanContinuesCallerTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := newFakeStore()
	orch := bundle.New(store, bundle.WithTracerProvider(tp))
	svc := service.NewPurchaseService(store, orch, zerolog.Nop())
	r := mux.NewRouter()
	NewHandler(svc, fakeEntries{}, zerolog.Nop(), WithTracerProvider(tp)).Routes(r)

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	body, err := json.Marshal(validBody())
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/bundles", bytes.NewReader(body))
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range recorder.Ended() {
		spans[s.Name()] = s
	}

	server, ok := spans["POST /api/v1/bundles"]
	require.True(t, ok)
	assert.Equal(t, trace.SpanKindServer, server.SpanKind())
	assert.Equal(t, traceID, server.SpanContext().TraceID().String())
	assert.True(t, server.Parent().IsRemote())

	execute, ok := spans["bundle.Execute"]
	require.True(t, ok)
	assert.Equal(t, server.SpanContext().SpanID(), execute.Parent().SpanID())
}
