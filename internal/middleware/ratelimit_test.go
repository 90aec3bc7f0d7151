package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/forms/rejoining", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3, nil)
	h := rl.Handler(okHandler())

	for i := 0; i < 3; i++ {
		if rr := doRequest(h, "10.0.0.1:50000"); rr.Code != http.StatusOK {
			t.Fatalf("request %d rejected with %d", i+1, rr.Code)
		}
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	h := rl.Handler(okHandler())

	doRequest(h, "10.0.0.1:50000")
	doRequest(h, "10.0.0.1:50000")
	rr := doRequest(h, "10.0.0.1:50000")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry Retry-After")
	}
}

func TestRateLimiterKeysByClientIP(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	h := rl.Handler(okHandler())

	doRequest(h, "10.0.0.1:50000")
	if rr := doRequest(h, "10.0.0.1:50001"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request from same ip = %d, want 429", rr.Code)
	}
	if rr := doRequest(h, "10.0.0.2:50000"); rr.Code != http.StatusOK {
		t.Fatalf("different ip throttled: %d", rr.Code)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	m := NewCORSMiddleware([]string{"*"})
	called := false
	h := m.Handler(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/forms/rejoining", nil)
	req.Header.Set("Origin", "https://hr.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if called {
		t.Fatal("preflight must not reach the handler")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://hr.example.com" {
		t.Fatalf("allow-origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	m := NewCORSMiddleware([]string{"https://hr.example.com"})
	h := m.Handler(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/forms/rejoining", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("disallowed origin must not receive CORS headers")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("request itself must still be served, got %d", rr.Code)
	}
}
