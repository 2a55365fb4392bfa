package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/internal/oplog"
	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	testPIN        = "2468"
	testSigningKey = "secret-key"
)

type memoryStore struct {
	snapshot     ledger.Snapshot
	persistError error
}

func (store *memoryStore) LoadSnapshot(context.Context) (ledger.Snapshot, error) {
	return store.snapshot, nil
}

func (store *memoryStore) PersistSnapshot(_ context.Context, snapshot ledger.Snapshot) error {
	if store.persistError != nil {
		return store.persistError
	}
	store.snapshot = snapshot
	return nil
}

type testEnvironment struct {
	server   *Server
	store    *memoryStore
	registry *prometheus.Registry
	cookie   *http.Cookie
}

func newTestEnvironment(test *testing.T) *testEnvironment {
	test.Helper()
	registry := prometheus.NewRegistry()
	store := &memoryStore{}
	service, err := ledger.NewService(store, time.Now, ledger.WithOperationLogger(oplog.NewMetrics(registry)))
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	server, err := NewServer(Config{
		PIN:               testPIN,
		SessionSigningKey: testSigningKey,
		AllowedOrigins:    []string{"http://localhost:8081"},
		Location:          time.UTC,
	}, service, zap.NewNop(), registry)
	if err != nil {
		test.Fatalf("server init failed: %v", err)
	}
	environment := &testEnvironment{server: server, store: store, registry: registry}
	environment.cookie = environment.unlock(test)
	return environment
}

func (environment *testEnvironment) unlock(test *testing.T) *http.Cookie {
	test.Helper()
	recorder := environment.do(test, http.MethodPost, "/api/session", map[string]any{"pin": testPIN}, nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("unlock status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == defaultSessionCookie {
			return cookie
		}
	}
	test.Fatalf("unlock did not set a session cookie")
	return nil
}

func (environment *testEnvironment) do(test *testing.T, method string, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	test.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			test.Fatalf("marshal failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	environment.server.Handler().ServeHTTP(recorder, request)
	return recorder
}

func (environment *testEnvironment) authed(test *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	test.Helper()
	return environment.do(test, method, path, body, environment.cookie)
}

func decode[T any](test *testing.T, recorder *httptest.ResponseRecorder) T {
	test.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		test.Fatalf("decode failed: %v (body=%s)", err, recorder.Body.String())
	}
	return payload
}

type customerEnvelope struct {
	Customer customerPayload `json:"customer"`
}

type customersEnvelope struct {
	Customers []customerPayload `json:"customers"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	LimitExceeded *limitPayload `json:"limit_exceeded"`
}

func (environment *testEnvironment) mustCreateCustomer(test *testing.T, body map[string]any) customerPayload {
	test.Helper()
	recorder := environment.authed(test, http.MethodPost, "/api/customers", body)
	if recorder.Code != http.StatusCreated {
		test.Fatalf("create status=%d body=%s", recorder.Code, recorder.Body.String())
	}
	return decode[customerEnvelope](test, recorder).Customer
}

func TestConfigValidateDefaults(test *testing.T) {
	test.Parallel()
	cfg := Config{SessionSigningKey: testSigningKey}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr || cfg.PIN != defaultPIN || cfg.SessionTTL != defaultSessionTTL || cfg.Location == nil {
		test.Fatalf("expected defaults, got %+v", cfg)
	}
	if err := (&Config{}).Validate(); err == nil {
		test.Fatalf("expected missing signing key to fail")
	}
	if err := (&Config{SessionSigningKey: testSigningKey, PIN: "12"}).Validate(); err == nil {
		test.Fatalf("expected short pin to fail")
	}
	origins := ParseAllowedOrigins(" http://a.test , ,http://b.test")
	if len(origins) != 2 || origins[1] != "http://b.test" {
		test.Fatalf("unexpected origins: %v", origins)
	}
}

func TestSessionGate(test *testing.T) {
	test.Parallel()
	environment := newTestEnvironment(test)

	if recorder := environment.do(test, http.MethodGet, "/healthz", nil, nil); recorder.Code != http.StatusOK {
		test.Fatalf("healthz status=%d", recorder.Code)
	}
	if recorder := environment.do(test, http.MethodGet, "/api/customers", nil, nil); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401 without cookie, got %d", recorder.Code)
	}
	if recorder := environment.do(test, http.MethodPost, "/api/session", map[string]any{"pin": "0000"}, nil); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401 for wrong pin, got %d", recorder.Code)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    defaultSessionIssuer,
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	signed, err := forged.SignedString([]byte("another-key"))
	if err != nil {
		test.Fatalf("token signing failed: %v", err)
	}
	forgedCookie := &http.Cookie{Name: defaultSessionCookie, Value: signed}
	if recorder := environment.do(test, http.MethodGet, "/api/customers", nil, forgedCookie); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401 for foreign signature, got %d", recorder.Code)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    defaultSessionIssuer,
		Subject:   sessionSubject,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	signed, err = expired.SignedString([]byte(testSigningKey))
	if err != nil {
		test.Fatalf("token signing failed: %v", err)
	}
	if recorder := environment.do(test, http.MethodGet, "/api/customers", nil, &http.Cookie{Name: defaultSessionCookie, Value: signed}); recorder.Code != http.StatusUnauthorized {
		test.Fatalf("expected 401 for expired session, got %d", recorder.Code)
	}

	if recorder := environment.authed(test, http.MethodGet, "/api/customers", nil); recorder.Code != http.StatusOK {
		test.Fatalf("expected 200 with valid session, got %d", recorder.Code)
	}
	lock := environment.do(test, http.MethodDelete, "/api/session", nil, environment.cookie)
	if lock.Code != http.StatusNoContent {
		test.Fatalf("lock status=%d", lock.Code)
	}
	cleared := lock.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		test.Fatalf("expected session cookie to be cleared, got %+v", cleared)
	}
}

func TestCustomerLifecycle(test *testing.T) {
	test.Parallel()
	environment := newTestEnvironment(test)

	kamal := environment.mustCreateCustomer(test, map[string]any{"name": "Kamal", "contact": "0771234567", "credit_limit": 1000})
	environment.mustCreateCustomer(test, map[string]any{"name": "Sunil"})
	if kamal.CustomerNumber != "1" || kamal.CreditLimit == nil || !kamal.CreditLimit.Equal(ledger.MoneyFromInt(1000)) {
		test.Fatalf("unexpected customer: %+v", kamal)
	}

	if recorder := environment.authed(test, http.MethodPost, "/api/customers", map[string]any{"name": "  "}); recorder.Code != http.StatusBadRequest {
		test.Fatalf("expected 400 for blank name, got %d", recorder.Code)
	}

	listed := decode[customersEnvelope](test, environment.authed(test, http.MethodGet, "/api/customers?q=sun", nil))
	if len(listed.Customers) != 1 || listed.Customers[0].Name != "Sunil" {
		test.Fatalf("unexpected search result: %+v", listed.Customers)
	}
	listed = decode[customersEnvelope](test, environment.authed(test, http.MethodGet, "/api/customers?q=1", nil))
	if len(listed.Customers) != 1 || listed.Customers[0].ID != kamal.ID {
		test.Fatalf("expected number search to find Kamal, got %+v", listed.Customers)
	}

	fetched := environment.authed(test, http.MethodGet, "/api/customers/"+kamal.ID, nil)
	if fetched.Code != http.StatusOK {
		test.Fatalf("get status=%d", fetched.Code)
	}
	if recorder := environment.authed(test, http.MethodDelete, "/api/customers/"+kamal.ID, nil); recorder.Code != http.StatusNoContent {
		test.Fatalf("delete status=%d", recorder.Code)
	}
	if recorder := environment.authed(test, http.MethodDelete, "/api/customers/"+kamal.ID, nil); recorder.Code != http.StatusNoContent {
		test.Fatalf("expected repeated delete to succeed, got %d", recorder.Code)
	}
	missing := environment.authed(test, http.MethodGet, "/api/customers/"+kamal.ID, nil)
	if missing.Code != http.StatusNotFound || decode[errorEnvelope](test, missing).Error.Code != string(ledger.KindNotFound) {
		test.Fatalf("expected not_found, got %d %s", missing.Code, missing.Body.String())
	}
}

func TestRecordTransactionLimitFlow(test *testing.T) {
	test.Parallel()
	environment := newTestEnvironment(test)
	customer := environment.mustCreateCustomer(test, map[string]any{"name": "Nimal", "contact": "077 123 4567", "credit_limit": "1000"})
	path := "/api/customers/" + customer.ID + "/transactions"

	first := environment.authed(test, http.MethodPost, path, map[string]any{"direction": "credit", "amount": "900"})
	if first.Code != http.StatusCreated {
		test.Fatalf("credit status=%d body=%s", first.Code, first.Body.String())
	}

	declined := environment.authed(test, http.MethodPost, path, map[string]any{"direction": "credit", "amount": 200})
	if declined.Code != http.StatusConflict {
		test.Fatalf("expected 409, got %d body=%s", declined.Code, declined.Body.String())
	}
	warning := decode[errorEnvelope](test, declined)
	if warning.Error.Code != string(ledger.KindLimitExceeded) || warning.LimitExceeded == nil {
		test.Fatalf("unexpected warning body: %s", declined.Body.String())
	}
	if !warning.LimitExceeded.Limit.Equal(ledger.MoneyFromInt(1000)) ||
		!warning.LimitExceeded.CurrentBalance.Equal(ledger.MoneyFromInt(900)) ||
		!warning.LimitExceeded.ProjectedBalance.Equal(ledger.MoneyFromInt(1100)) {
		test.Fatalf("unexpected limit payload: %+v", warning.LimitExceeded)
	}

	confirmed := environment.authed(test, http.MethodPost, path, map[string]any{"direction": "credit", "amount": 200, "memo": "cement", "confirm": true})
	if confirmed.Code != http.StatusCreated {
		test.Fatalf("confirmed status=%d body=%s", confirmed.Code, confirmed.Body.String())
	}
	receipt := decode[receiptPayload](test, confirmed)
	if !receipt.Customer.Balance.Equal(ledger.MoneyFromInt(1100)) || !receipt.Customer.OverLimit {
		test.Fatalf("unexpected receipt customer: %+v", receipt.Customer)
	}
	if receipt.Transaction.Memo != "cement" || receipt.Transaction.Direction != "credit" {
		test.Fatalf("unexpected receipt transaction: %+v", receipt.Transaction)
	}
	if !strings.HasPrefix(receipt.WhatsAppLink, "whatsapp://send?phone=94771234567&text=") {
		test.Fatalf("unexpected whatsapp link: %q", receipt.WhatsAppLink)
	}
	if !strings.Contains(receipt.Message, "Rs. 200.00 (Credit)") || !strings.Contains(receipt.Message, "Total due: Rs. 1100.00") {
		test.Fatalf("unexpected message: %q", receipt.Message)
	}

	for _, body := range []map[string]any{
		{"direction": "payment", "amount": 0},
		{"direction": "credit", "amount": "abc"},
		{"direction": "gift", "amount": 5},
		{"direction": "credit", "amount": "1e999999999"},
	} {
		if recorder := environment.authed(test, http.MethodPost, path, body); recorder.Code != http.StatusBadRequest {
			test.Fatalf("expected 400 for %v, got %d", body, recorder.Code)
		}
	}

	reversed := environment.authed(test, http.MethodDelete, path+"/"+receipt.Transaction.ID, nil)
	if reversed.Code != http.StatusOK {
		test.Fatalf("reverse status=%d body=%s", reversed.Code, reversed.Body.String())
	}
	if balance := decode[receiptPayload](test, reversed).Customer.Balance; !balance.Equal(ledger.MoneyFromInt(900)) {
		test.Fatalf("expected balance 900 after reversal, got %s", balance)
	}
	if again := environment.authed(test, http.MethodDelete, path+"/"+receipt.Transaction.ID, nil); again.Code != http.StatusNotFound {
		test.Fatalf("expected 404 for second reversal, got %d", again.Code)
	}
}

func TestDashboardAndMetrics(test *testing.T) {
	test.Parallel()
	environment := newTestEnvironment(test)
	first := environment.mustCreateCustomer(test, map[string]any{"name": "First"})
	second := environment.mustCreateCustomer(test, map[string]any{"name": "Second"})
	environment.authed(test, http.MethodPost, "/api/customers/"+first.ID+"/transactions", map[string]any{"direction": "credit", "amount": 500})
	environment.authed(test, http.MethodPost, "/api/customers/"+first.ID+"/transactions", map[string]any{"direction": "payment", "amount": 200})
	environment.authed(test, http.MethodPost, "/api/customers/"+second.ID+"/transactions", map[string]any{"direction": "payment", "amount": 50})

	recorder := environment.authed(test, http.MethodGet, "/api/dashboard", nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("dashboard status=%d", recorder.Code)
	}
	dashboard := decode[dashboardPayload](test, recorder)
	if !dashboard.TotalOutstanding.Equal(ledger.MoneyFromInt(300)) {
		test.Fatalf("expected outstanding 300, got %s", dashboard.TotalOutstanding)
	}
	if !dashboard.TodaysCollections.Equal(ledger.MoneyFromInt(250)) {
		test.Fatalf("expected collections 250, got %s", dashboard.TodaysCollections)
	}
	if dashboard.CustomerCount != 2 || dashboard.Date == "" {
		test.Fatalf("unexpected dashboard: %+v", dashboard)
	}

	metrics := environment.do(test, http.MethodGet, "/metrics", nil, nil)
	if metrics.Code != http.StatusOK || !strings.Contains(metrics.Body.String(), "creditbook_operations_total") {
		test.Fatalf("expected operation counters in /metrics, got %d", metrics.Code)
	}
}

func TestPersistenceFailureMapsToUnavailable(test *testing.T) {
	test.Parallel()
	environment := newTestEnvironment(test)
	customer := environment.mustCreateCustomer(test, map[string]any{"name": "Stored"})
	environment.store.persistError = errors.New("disk full")

	recorder := environment.authed(test, http.MethodPost, "/api/customers/"+customer.ID+"/transactions", map[string]any{"direction": "credit", "amount": 10})
	if recorder.Code != http.StatusServiceUnavailable {
		test.Fatalf("expected 503, got %d", recorder.Code)
	}
	if code := decode[errorEnvelope](test, recorder).Error.Code; code != string(ledger.KindPersistence) {
		test.Fatalf("expected persistence code, got %q", code)
	}
	environment.store.persistError = nil
	fetched := decode[customerEnvelope](test, environment.authed(test, http.MethodGet, "/api/customers/"+customer.ID, nil))
	if !fetched.Customer.Balance.IsZero() {
		test.Fatalf("expected failed write to leave balance at zero, got %s", fetched.Customer.Balance)
	}
}

func TestFlexibleAmountDecoding(test *testing.T) {
	test.Parallel()
	var request transactionRequest
	if err := json.Unmarshal([]byte(`{"amount": 12.50}`), &request); err != nil || request.Amount != "12.50" {
		test.Fatalf("expected number to keep its text, got %q (%v)", request.Amount, err)
	}
	if err := json.Unmarshal([]byte(`{"amount": " 7 "}`), &request); err != nil || request.Amount != " 7 " {
		test.Fatalf("expected string amount, got %q (%v)", request.Amount, err)
	}
	if err := json.Unmarshal([]byte(`{"amount": true}`), &request); err == nil {
		test.Fatalf("expected boolean amount to fail")
	}
}
