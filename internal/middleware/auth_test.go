package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aisaas/backend/infra/clerk"
	"github.com/aisaas/backend/internal/logging"
	"github.com/aisaas/backend/internal/usage"
)

type stubVerifier struct {
	sessions map[string]clerk.Session
}

func (s stubVerifier) Verify(token string) (clerk.Session, error) {
	sess, ok := s.sessions[token]
	if !ok {
		return clerk.Session{}, errors.New("token is malformed")
	}
	return sess, nil
}

type stubLoader struct {
	acct usage.Account
	err  error
}

func (s stubLoader) Load(_ context.Context, sess clerk.Session) (usage.Account, error) {
	if s.err != nil {
		return usage.Account{}, s.err
	}
	acct := s.acct
	acct.UserID = sess.UserID
	return acct, nil
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	m := NewAuthMiddleware(stubVerifier{}, logging.NewDiscard())
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodPost, "/api/ai/generate-article", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, rec.Code)
		}
		body := decodeEnvelope(t, rec)
		if body["success"] != false || body["message"] != "Unauthorized: No active session." {
			t.Fatalf("header %q: unexpected body %v", header, body)
		}
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	m := NewAuthMiddleware(stubVerifier{}, logging.NewDiscard())
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	verifier := stubVerifier{sessions: map[string]clerk.Session{
		"good": {UserID: "user_1", Plan: clerk.PlanPremium},
	}}
	m := NewAuthMiddleware(verifier, logging.NewDiscard())

	var got clerk.Session
	var userID string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFrom(r.Context())
		userID = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.UserID != "user_1" || !got.Premium() || userID != "user_1" {
		t.Fatalf("session not propagated: %+v user=%q", got, userID)
	}
}

func TestUsageMiddleware(t *testing.T) {
	loader := stubLoader{acct: usage.Account{Plan: clerk.PlanFree, FreeUsage: 3}}
	m := NewUsageMiddleware(loader, logging.NewDiscard())

	var acct usage.Account
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct, _ = AccountFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), clerk.Session{UserID: "u", Plan: clerk.PlanFree}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if acct.UserID != "u" || acct.FreeUsage != 3 {
		t.Fatalf("account not attached: %+v", acct)
	}
}

func TestUsageMiddleware_Errors(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	// No session in context.
	rec := httptest.NewRecorder()
	NewUsageMiddleware(stubLoader{}, logging.NewDiscard()).Handler(next).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	// Loader failure.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), clerk.Session{UserID: "u"}))
	NewUsageMiddleware(stubLoader{err: errors.New("clerk down")}, logging.NewDiscard()).Handler(next).ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	m := NewCORSMiddleware([]string{"http://localhost:5173/"})
	called := false
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/ai/generate-image", nil)
	preflight.Header.Set("Origin", "http://localhost:5173")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight)

	if rec.Code != http.StatusNoContent || called {
		t.Fatalf("preflight: status=%d called=%v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("missing allow-origin header: %v", rec.Header())
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" || !called {
		t.Fatalf("foreign origin: header=%q called=%v", rec.Header().Get("Access-Control-Allow-Origin"), called)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	m := NewCORSMiddleware([]string{"*", "http://localhost:5173"})
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("wildcard origin must not allow credentials, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" || rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("listed origin should keep credentials: %v", rec.Header())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, logging.NewDiscard())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	// A different user is tracked separately.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5001"
	req = req.WithContext(logging.WithUserID(req.Context(), "user_2"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("separate key status = %d", rec.Code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, 5, logging.NewDiscard())
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.getLimiter("old")
	now = now.Add(time.Hour)
	rl.getLimiter("fresh")

	if removed := rl.Cleanup(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if rl.Size() != 1 {
		t.Fatalf("size = %d, want 1", rl.Size())
	}
}

func TestTracingAndRecover(t *testing.T) {
	logger := logging.NewDiscard()
	var traceID string
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = logging.GetTraceID(r.Context())
		panic("boom")
	})
	handler := NewTracingMiddleware(logger).Handler(Recover(logger)(panicking))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if traceID != "trace-123" || rec.Header().Get("X-Trace-ID") != "trace-123" {
		t.Fatalf("trace id not propagated: ctx=%q header=%q", traceID, rec.Header().Get("X-Trace-ID"))
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decodeEnvelope(t, rec); body["success"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}
