package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"analyst-sandbox/internal/monitor"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		allowAnon  bool
		header     string
		value      string
		wantStatus int
	}{
		{"empty keys rejects", nil, false, "", "", http.StatusUnauthorized},
		{"explicit allow unauthenticated", nil, true, "", "", http.StatusOK},
		{"valid key", []string{"good-key"}, false, "X-API-Key", "good-key", http.StatusOK},
		{"invalid key", []string{"good-key"}, false, "X-API-Key", "bad-key", http.StatusUnauthorized},
		{"bearer token", []string{"good-key"}, false, "Authorization", "Bearer good-key", http.StatusOK},
		{"missing key", []string{"good-key"}, false, "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AuthMiddleware(tt.keys, tt.allowAnon, "")(okHandler)
			req := httptest.NewRequest(http.MethodPost, "/v1/turns", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthMiddleware_CustomHeader(t *testing.T) {
	handler := AuthMiddleware([]string{"k"}, false, "X-Analyst-Key")(okHandler)
	req := httptest.NewRequest(http.MethodGet, "/v1/datasets/x", nil)
	req.Header.Set("X-Analyst-Key", "k")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestConcurrentTurnsMiddleware_RejectsOverLimit(t *testing.T) {
	mw := ConcurrentTurnsMiddleware(1)

	blocked := make(chan struct{})
	unblock := make(chan struct{})
	done := make(chan struct{})

	inner := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case blocked <- struct{}{}:
		default:
		}
		<-unblock
		w.WriteHeader(http.StatusOK)
	}))

	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader("{}"))
		inner.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-blocked

	req := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	inner.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("got status %d, want 429", rec.Code)
	}

	close(unblock)
	<-done
}

func TestConcurrentTurnsMiddleware_OtherRoutesPass(t *testing.T) {
	mw := ConcurrentTurnsMiddleware(1)
	inner := mw(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/validate", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	inner.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("got status %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimitMiddleware(0.001, 2)(okHandler)

	var codes []int
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/v1/datasets/x", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: got status %d, want %d", i+1, codes[i], want[i])
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("got status %d, want 500", rec.Code)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeadersMiddleware(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing %s header", h)
		}
	}
}

func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	m := monitor.NewMetrics()
	var during float64
	handler := MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gaugeValue(m)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if during != 1 {
		t.Errorf("in-flight during request = %v, want 1", during)
	}
	if after := gaugeValue(m); after != 0 {
		t.Errorf("in-flight after request = %v, want 0", after)
	}
}
