package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/naboomcommunity/mqtt-core/internal/health"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/config"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/database"
	"github.com/naboomcommunity/mqtt-core/internal/infrastructure/logging"
	"github.com/naboomcommunity/mqtt-core/internal/journal"

	// Registers the embedded migrations with the database package.
	_ "github.com/naboomcommunity/mqtt-core/migrations"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func newTestServer(t *testing.T, state *health.State, store *journal.Store) *Server {
	t.Helper()

	s, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:  testLogger(),
		Health:  state,
		Journal: store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func newTestState() *health.State {
	return health.NewState(health.ConnectionInfo{
		BrokerHost: "localhost",
		BrokerPort: 1883,
		ClientID:   "naboom-mqtt-test",
		Keepalive:  60,
	})
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Health: newTestState()}); err == nil {
		t.Error("New without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New without health store should fail")
	}
}

func TestHandleHealth_Healthy(t *testing.T) {
	state := newTestState()
	state.RecordConnection(true)
	state.SetSubscribedTopics([]string{"naboom/community/+/+", "naboom/system/status"})
	s := newTestServer(t, state, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["connected"] != true {
		t.Errorf("connected = %v, want true", body["connected"])
	}

	subs, ok := body["subscriptions"].(map[string]any)
	if !ok {
		t.Fatal("missing subscriptions object")
	}
	if subs["count"] != float64(2) {
		t.Errorf("subscriptions.count = %v, want 2", subs["count"])
	}
}

func TestHandleHealth_DegradedAfterErrors(t *testing.T) {
	state := newTestState()
	state.RecordConnection(true)
	for i := 0; i < 15; i++ {
		state.RecordError("simulated failure")
	}
	s := newTestServer(t, state, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for degraded", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}

	metrics := body["metrics"].(map[string]any)
	if metrics["error_count"] != float64(15) {
		t.Errorf("error_count = %v, want 15", metrics["error_count"])
	}
	if metrics["last_error"] != "simulated failure" {
		t.Errorf("last_error = %v", metrics["last_error"])
	}
}

func TestHandleHealth_UnhealthyWhenDisconnected(t *testing.T) {
	state := newTestState()
	state.RecordConnection(false)
	s := newTestServer(t, state, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["status"] != "unhealthy" {
		t.Errorf("status = %v, want unhealthy", body["status"])
	}
}

func TestHandleHealth_DegradedAfterRetries(t *testing.T) {
	state := newTestState()
	state.RecordConnection(true)
	for i := 0; i < 6; i++ {
		state.RecordRetry()
	}
	s := newTestServer(t, state, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded after 6 retries", body["status"])
	}
}

func TestHandleHealth_DegradedWhenStale(t *testing.T) {
	state := newTestState()
	state.RecordConnection(true)
	s := newTestServer(t, state, nil)

	// Serve a request as if six minutes have passed with no traffic.
	s.now = func() time.Time { return time.Now().Add(6 * time.Minute) }

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if body := decodeBody(t, rec); body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded for stale activity", body["status"])
	}
}

func TestHandleMetrics(t *testing.T) {
	state := newTestState()
	state.RecordConnection(true)
	for i := 0; i < 10; i++ {
		state.RecordMessage()
	}
	state.RecordError("one failure")
	s := newTestServer(t, state, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	for _, key := range []string{"uptime", "performance", "reliability"} {
		if _, ok := body[key]; !ok {
			t.Errorf("metrics response missing %q", key)
		}
	}

	perf := body["performance"].(map[string]any)
	if perf["messages_processed"] != float64(10) {
		t.Errorf("messages_processed = %v, want 10", perf["messages_processed"])
	}

	rel := body["reliability"].(map[string]any)
	if rel["error_rate_percent"] != float64(10) {
		t.Errorf("error_rate_percent = %v, want 10", rel["error_rate_percent"])
	}
}

func TestHandleMetrics_AlwaysOKWhenUnhealthy(t *testing.T) {
	state := newTestState() // disconnected
	s := newTestServer(t, state, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200 regardless of health", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, newTestState(), nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}

	// Client-supplied IDs are echoed back.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-123")
	rec = httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id-123" {
		t.Errorf("X-Request-ID = %q, want client-id-123", got)
	}
}

func newTestJournal(t *testing.T) *journal.Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return journal.NewStore(db)
}

func TestHandleJournalRecent(t *testing.T) {
	store := newTestJournal(t)
	entry := journal.Entry{
		Topic:      "naboom/alerts/panic",
		Category:   "alerts",
		ChannelID:  "panic",
		Action:     "alert",
		Payload:    []byte(`{"lat":-24.1}`),
		ReceivedAt: time.Now(),
	}
	if err := store.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}

	s := newTestServer(t, newTestState(), store)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/journal/recent")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}

	records := body["records"].([]any)
	first := records[0].(map[string]any)
	if first["topic"] != "naboom/alerts/panic" {
		t.Errorf("topic = %v", first["topic"])
	}
	if first["payload_bytes"] != float64(len(`{"lat":-24.1}`)) {
		t.Errorf("payload_bytes = %v", first["payload_bytes"])
	}
}

func TestHandleJournalRecent_BadLimit(t *testing.T) {
	s := newTestServer(t, newTestState(), newTestJournal(t))

	rec := doRequest(t, s, http.MethodGet, "/api/v1/journal/recent?limit=zero")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestJournalRoutesAbsentWithoutStore(t *testing.T) {
	s := newTestServer(t, newTestState(), nil)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/journal/recent")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when journal disabled", rec.Code)
	}
}

func TestHandleJournalStats(t *testing.T) {
	store := newTestJournal(t)
	for _, category := range []string{"community", "community", "alerts"} {
		entry := journal.Entry{Topic: "naboom/" + category + "/x", Category: category, ReceivedAt: time.Now()}
		if err := store.Record(context.Background(), entry); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	s := newTestServer(t, newTestState(), store)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/journal/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := decodeBody(t, rec)
	categories := body["categories"].(map[string]any)
	if categories["community"] != float64(2) || categories["alerts"] != float64(1) {
		t.Errorf("categories = %v", categories)
	}
}

func TestServerLifecycle(t *testing.T) {
	s := newTestServer(t, newTestState(), nil)

	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck after Start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// Close is idempotent on an already-stopped server.
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
