package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/aggregate"
	"github.com/seenimoa/diligence/internal/config"
	"github.com/seenimoa/diligence/internal/diligence"
	"github.com/seenimoa/diligence/internal/llm"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/internal/report"
	"github.com/seenimoa/diligence/internal/synth"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

var quietLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

type stubBackend struct{}

func (stubBackend) Name() string { return "stub" }

func (stubBackend) Chat(context.Context, []llm.Message, *llm.ChatOptions) (*llm.Response, error) {
	return &llm.Response{Content: `{"executiveSummary":"Stable outlook.","keyFindings":["Large installed base"]}`}, nil
}

type emptyAdapter struct{ name string }

func (a emptyAdapter) Info() provider.ProviderInfo { return provider.ProviderInfo{Name: a.name} }

func (a emptyAdapter) Fetch(context.Context, string) provider.Result {
	return provider.Empty(a.name, "no match")
}

func testService(t *testing.T, ready func() error) *diligence.Service {
	t.Helper()
	reg := provider.NewRegistry()
	if err := reg.Register(emptyAdapter{name: "market"}); err != nil {
		t.Fatal(err)
	}
	return diligence.New(diligence.Config{
		Aggregator:  aggregate.New(reg, time.Second, quietLogger),
		Synthesizer: synth.New(stubBackend{}, synth.Options{}, synth.WithLogger(quietLogger)),
		Store:       report.NewMemoryStore(),
		Registry:    reg,
		Ready:       ready,
		Logger:      quietLogger,
	})
}

func apiConfig() config.APIConfig {
	return config.APIConfig{RateLimit: 100, RateWindowSec: 900, RequestTimeoutSec: 30}
}

func testServer(t *testing.T, cfg config.APIConfig, ready func() error, opts ...Option) *Server {
	t.Helper()
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	opts = append([]Option{WithLogger(quietLogger)}, opts...)
	return NewServer(testService(t, ready), hub, cfg, opts...)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

func decodeReport(t *testing.T, rec *httptest.ResponseRecorder) report.Report {
	t.Helper()
	var resp struct {
		Data report.Report `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode report response: %v", err)
	}
	return resp.Data
}

// ════════════════════════════════════════════════════════════════════
// Due diligence
// ════════════════════════════════════════════════════════════════════

func TestDueDiligenceSuccess(t *testing.T) {
	srv := testServer(t, apiConfig(), nil)
	rec := do(t, srv, http.MethodPost, "/api/v1/due-diligence", `{"companyName":"Apple"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	r := decodeReport(t, rec)
	if r.Company != "Apple" {
		t.Errorf("Company: got %q", r.Company)
	}
	if r.ExecutiveSummary != "Stable outlook." {
		t.Errorf("ExecutiveSummary: got %q", r.ExecutiveSummary)
	}
	if r.RiskAssessment.RiskRating == "" {
		t.Error("RiskRating should always be present")
	}
}

func TestDueDiligenceValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		details string
	}{
		{"missing name", `{}`, "companyName is required"},
		{"blank name", `{"companyName":"   "}`, "companyName is required"},
		{"malformed json", `{"companyName":`, "request body must be a JSON object with companyName"},
		{"wrong type", `{"companyName":42}`, "request body must be a JSON object with companyName"},
	}

	srv := testServer(t, apiConfig(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/v1/due-diligence", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want 400", rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error != "invalid request" {
				t.Errorf("Error: got %q", resp.Error)
			}
			if resp.Details != tt.details {
				t.Errorf("Details: got %q, want %q", resp.Details, tt.details)
			}
		})
	}
}

func TestDueDiligenceMisconfigured(t *testing.T) {
	srv := testServer(t, apiConfig(), func() error { return llm.ErrNoProviders })
	rec := do(t, srv, http.MethodPost, "/api/v1/due-diligence", `{"companyName":"Apple"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error != "service misconfigured" {
		t.Errorf("Error: got %q", resp.Error)
	}
	if resp.Details != llm.ErrNoProviders.Error() {
		t.Errorf("Details: got %q", resp.Details)
	}
}

// ════════════════════════════════════════════════════════════════════
// Stored reports
// ════════════════════════════════════════════════════════════════════

func TestGetReport(t *testing.T) {
	srv := testServer(t, apiConfig(), nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/reports/Apple", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("before generation: got %d, want 404", rec.Code)
	}

	if rec := do(t, srv, http.MethodPost, "/api/v1/due-diligence", `{"companyName":"Apple"}`); rec.Code != http.StatusOK {
		t.Fatalf("generate: got %d", rec.Code)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/reports/apple", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("json: got %d", rec.Code)
	}
	if r := decodeReport(t, rec); r.Company != "Apple" {
		t.Errorf("Company: got %q", r.Company)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/reports/Apple?format=markdown", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("markdown: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Apple") {
		t.Error("markdown should mention the company")
	}
}

func TestGetReportBadInput(t *testing.T) {
	srv := testServer(t, apiConfig(), nil)

	if rec := do(t, srv, http.MethodGet, "/api/v1/reports/Apple?format=pdf", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("format: got %d, want 400", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/v1/reports/Apple?date=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("date: got %d, want 400", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	srv := testServer(t, apiConfig(), nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/reports/Apple/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"data":[]}` {
		t.Errorf("empty history: got %s", got)
	}

	do(t, srv, http.MethodPost, "/api/v1/due-diligence", `{"companyName":"Apple"}`)

	rec = do(t, srv, http.MethodGet, "/api/v1/reports/Apple/history", "")
	var resp struct {
		Data []report.Summary `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Generation != report.GenerationStructured {
		t.Errorf("history: got %+v", resp.Data)
	}
}

// ════════════════════════════════════════════════════════════════════
// Metadata endpoints
// ════════════════════════════════════════════════════════════════════

func TestProvidersAndHealth(t *testing.T) {
	srv := testServer(t, apiConfig(), nil, WithVersion("1.2.3"))

	rec := do(t, srv, http.MethodGet, "/api/v1/providers", "")
	var providers struct {
		Data []provider.ProviderInfo `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&providers); err != nil {
		t.Fatal(err)
	}
	if len(providers.Data) != 1 || providers.Data[0].Name != "market" {
		t.Errorf("providers: got %+v", providers.Data)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/health", "")
	var health struct {
		Data HealthStatus `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Data.Status != "ok" || health.Data.Version != "1.2.3" {
		t.Errorf("health: got %+v", health.Data)
	}
}

func TestHealthDegraded(t *testing.T) {
	srv := testServer(t, apiConfig(), func() error { return llm.ErrNoProviders })
	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestConfigKeys(t *testing.T) {
	srv := testServer(t, apiConfig(), nil)
	if rec := do(t, srv, http.MethodGet, "/api/v1/config/keys", ""); rec.Code != http.StatusNotFound {
		t.Errorf("without key source: got %d, want 404", rec.Code)
	}

	cfg := &config.Config{}
	cfg.LLM.OpenAIKey = "sk-test-1234567890"
	srv = testServer(t, apiConfig(), nil, WithKeyStatus(func() []config.KeyStatus { return config.CheckAPIKeys(cfg) }))
	rec := do(t, srv, http.MethodGet, "/api/v1/config/keys", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "sk-test-1234567890") {
		t.Error("raw key leaked")
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := testServer(t, apiConfig(), nil)
	rec := do(t, srv, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "not found" {
		t.Errorf("Error: got %q", resp.Error)
	}
}

// ════════════════════════════════════════════════════════════════════
// Rate limiting
// ════════════════════════════════════════════════════════════════════

func TestRateLimitPerClientAndPath(t *testing.T) {
	cfg := apiConfig()
	cfg.RateLimit = 2
	srv := testServer(t, cfg, nil)

	for i := 0; i < 2; i++ {
		if rec := do(t, srv, http.MethodGet, "/api/v1/providers", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
	rec := do(t, srv, http.MethodGet, "/api/v1/providers", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Another path has its own bucket.
	if rec := do(t, srv, http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
		t.Errorf("other path: got %d", rec.Code)
	}

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other client: got %d", rec.Code)
	}
}

func TestClientLimiterRefillAndSweep(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	l := newClientLimiter(100, 15*time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		if !l.allow("a") {
			t.Fatalf("request %d rejected", i)
		}
	}
	if l.allow("a") {
		t.Fatal("101st request within the window admitted")
	}

	// One token refills every 9s.
	now = now.Add(9 * time.Second)
	if !l.allow("a") {
		t.Error("request after refill rejected")
	}

	now = now.Add(time.Hour)
	l.allow("b")
	if _, ok := l.buckets["a"]; ok {
		t.Error("idle bucket not swept")
	}
	if got := l.retryAfter(); got != 9 {
		t.Errorf("retryAfter: got %d, want 9", got)
	}
}

func TestClientLimiterFailsOpen(t *testing.T) {
	l := newClientLimiter(1, time.Minute)
	h := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = ""
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d without client address: got %d", i, rec.Code)
		}
	}

	// A limiter with an unusable configuration is skipped entirely.
	l = newClientLimiter(0, time.Minute)
	h = l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("disabled limiter: got %d", rec.Code)
	}
}

// ════════════════════════════════════════════════════════════════════
// WebSocket
// ════════════════════════════════════════════════════════════════════

func TestWebSocketProgress(t *testing.T) {
	srv := testServer(t, apiConfig(), nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(WSMessage{Type: "subscribe", Company: "apple"}); err != nil {
		t.Fatal(err)
	}
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != MsgSubscribed {
		t.Fatalf("ack: got %q", ack.Type)
	}

	resp, err := http.Post(ts.URL+"/api/v1/due-diligence", "application/json", strings.NewReader(`{"companyName":"Apple"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	seen := map[string]bool{}
	for !seen[MsgReportCompleted] {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		seen[msg.Type] = true
	}
	for _, want := range []string{
		string(aggregate.EventProviderStarted),
		string(aggregate.EventProviderFinished),
		string(aggregate.EventAggregationFinished),
	} {
		if !seen[want] {
			t.Errorf("missing %s event", want)
		}
	}
}

func TestWSHubFiltersByCompany(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	all := &WSClient{hub: hub, send: make(chan WSMessage, 4)}
	tesla := &WSClient{hub: hub, send: make(chan WSMessage, 4)}
	tesla.subscribe("Tesla")
	hub.Register(all)
	hub.Register(tesla)

	hub.Broadcast(WSMessage{Type: MsgReportCompleted, Company: "Apple"})

	select {
	case msg := <-all.send:
		if msg.Company != "Apple" {
			t.Errorf("unfiltered client: got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("unfiltered client received nothing")
	}
	select {
	case msg := <-tesla.send:
		t.Errorf("filtered client received %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	time.Sleep(20 * time.Millisecond)
	if _, ok := <-all.send; ok {
		t.Error("client channel should be closed after hub stops")
	}
	hub.Register(&WSClient{hub: hub, send: make(chan WSMessage)})
}
