package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maildex/maildex/internal/config"
	"github.com/maildex/maildex/internal/core"
	"github.com/maildex/maildex/internal/search"
	"github.com/maildex/maildex/internal/store"
)

// stubCore is a canned SearchCore for handler tests.
type stubCore struct {
	results  []search.Result
	contacts []*store.Contact
	stats    *core.Stats
	syncErr  error

	lastQuery string
	lastLimit int
}

func (s *stubCore) Search(raw string, opts *search.Options) ([]search.Result, error) {
	s.lastQuery = raw
	if opts != nil {
		s.lastLimit = opts.Limit
	}
	return s.results, nil
}

func (s *stubCore) SearchContacts(raw string, limit int) []*store.Contact {
	s.lastQuery = raw
	s.lastLimit = limit
	return s.contacts
}

func (s *stubCore) GetStats() (*core.Stats, error) {
	return s.stats, nil
}

func (s *stubCore) TriggerSync() error {
	return s.syncErr
}

func newTestServer(t *testing.T, stub *stubCore, apiKey string) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.APIKey = apiKey
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, stub, logger)
}

func TestHealthNoAuth(t *testing.T) {
	srv := newTestServer(t, &stubCore{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, &stubCore{}, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=test", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search?q=test", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search?q=test", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want 200", rec.Code)
	}
}

func TestAuthSkippedWhenNoKeyConfigured(t *testing.T) {
	srv := newTestServer(t, &stubCore{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=test", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	stub := &stubCore{
		results: []search.Result{
			{
				Thread: &store.Thread{
					ID:          "t1",
					Subject:     "quarterly review",
					SenderEmail: "alice@example.com",
					ReceivedOn:  "2024-03-01T10:00:00Z",
				},
				Score: 1.5,
			},
		},
	}
	srv := newTestServer(t, stub, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=quarterly&limit=5", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if stub.lastQuery != "quarterly" || stub.lastLimit != 5 {
		t.Errorf("core called with (%q, %d), want (quarterly, 5)", stub.lastQuery, stub.lastLimit)
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Results[0].ID != "t1" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Results[0].Score != 1.5 {
		t.Errorf("score = %f, want 1.5", resp.Results[0].Score)
	}
}

func TestSearchEndpointMissingQuery(t *testing.T) {
	srv := newTestServer(t, &stubCore{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestContactsEndpoint(t *testing.T) {
	stub := &stubCore{
		contacts: []*store.Contact{
			{Email: "alice@example.com", Name: "Alice", InteractionCount: 7, LastSeen: time.Now().UTC()},
		},
	}
	srv := newTestServer(t, stub, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contacts?q=ali", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var out []contactResult
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Email != "alice@example.com" || out[0].InteractionCount != 7 {
		t.Errorf("response = %+v", out)
	}
}

func TestTriggerSyncEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubCore{}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}

	srv = newTestServer(t, &stubCore{syncErr: fmt.Errorf("no active connection")}, "")
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	stub := &stubCore{
		stats: &core.Stats{ConnectionID: "work", IndexedDocs: 42},
	}
	srv := newTestServer(t, stub, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var stats core.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.ConnectionID != "work" || stats.IndexedDocs != 42 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := RateLimitMiddleware(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("burst-exhausted status = %d, want 429", rec.Code)
	}
}
