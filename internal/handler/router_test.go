package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/schoolsite/internal/auth"
	"github.com/hitoshi/schoolsite/internal/middleware"
	"github.com/hitoshi/schoolsite/internal/model"
)

// adminResolverFunc は関数をmiddleware.AdminResolverとして扱うアダプター。
type adminResolverFunc func(ctx context.Context, sessionID string) (*model.User, error)

func (f adminResolverFunc) ResolveAdmin(ctx context.Context, sessionID string) (*model.User, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, sessionID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRouterForTest はモックの認証サービスでルーターを構成する。
func newRouterForTest(t *testing.T, svc *mockAuthService) http.Handler {
	t.Helper()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), nil)
	t.Cleanup(limiter.Stop)

	return NewRouter(&RouterDeps{
		AdminResolver: adminResolverFunc(nil),
		RateLimiter:   limiter,
		Logger:        discardLogger(),
		AuthService:   svc,
		AuthConfig:    testAuthConfig,
		UserFinder:    &mockUserFinder{},
	})
}

func TestNewRouter_Routes(t *testing.T) {
	router := newRouterForTest(t, &mockAuthService{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/csrf-token", http.StatusOK},
		{http.MethodGet, "/api/auth/status", http.StatusOK},
		{http.MethodGet, "/api/admin/me", http.StatusUnauthorized},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodGet, "/metrics", http.StatusNotFound},
		{http.MethodGet, "/api/auth/login", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestNewRouter_StateChangingRoutesRequireCSRFToken(t *testing.T) {
	called := false
	router := newRouterForTest(t, &mockAuthService{
		loginFn: func(ctx context.Context, sc auth.SessionContext, email, password string) (*auth.LoginResult, error) {
			called = true
			return successfulLogin(ctx, sc, email, password)
		},
	})

	for _, path := range []string{"/api/auth/login", "/api/auth/logout"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"email":"admin@gmail.com","password":"admin123"}`))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
		})
	}
	if called {
		t.Error("login should not reach the service without a CSRF token")
	}
}

func TestNewRouter_LoginWithCSRFToken(t *testing.T) {
	router := newRouterForTest(t, &mockAuthService{loginFn: successfulLogin})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@gmail.com","password":"admin123"}`))
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	req.Header.Set("X-CSRF-Token", "tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied")
	}
}

// newLimitedRouter はログイン上限2回/分のルーターを返す。
func newLimitedRouter(t *testing.T, trustProxyHeaders bool) http.Handler {
	t.Helper()
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(120, 2), nil)
	t.Cleanup(limiter.Stop)
	return NewRouter(&RouterDeps{
		AdminResolver:     adminResolverFunc(nil),
		TrustProxyHeaders: trustProxyHeaders,
		RateLimiter:       limiter,
		Logger:            discardLogger(),
		AuthService:       &mockAuthService{loginFn: successfulLogin},
		AuthConfig:        testAuthConfig,
		UserFinder:        &mockUserFinder{},
	})
}

// sendLogin はremoteAddrから、forwardedForが空でなければX-Forwarded-For付きでログインを送る。
func sendLogin(router http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.c","password":"x"}`))
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok"})
	req.Header.Set("X-CSRF-Token", "tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestNewRouter_LoginIsRateLimitedPerIP(t *testing.T) {
	router := newLimitedRouter(t, false)

	for i := 0; i < 2; i++ {
		if code := sendLogin(router, "198.51.100.7:5555", ""); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, code)
		}
	}
	if code := sendLogin(router, "198.51.100.7:5555", ""); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := sendLogin(router, "198.51.100.8:5555", ""); code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", code)
	}
}

func TestNewRouter_LoginLimit_IgnoresForwardedForByDefault(t *testing.T) {
	router := newLimitedRouter(t, false)

	limited := 0
	for i := 0; i < 20; i++ {
		code := sendLogin(router, "198.51.100.7:5555", fmt.Sprintf("10.0.0.%d", i+1))
		if code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 18 {
		t.Errorf("rate-limited = %d of 20, want 18 when X-Forwarded-For rotates", limited)
	}
}

func TestNewRouter_LoginLimit_UsesForwardedForBehindTrustedProxy(t *testing.T) {
	router := newLimitedRouter(t, true)

	for i := 0; i < 2; i++ {
		if code := sendLogin(router, "10.1.0.1:443", "203.0.113.5"); code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, code)
		}
	}
	if code := sendLogin(router, "10.1.0.1:443", "203.0.113.5"); code != http.StatusTooManyRequests {
		t.Errorf("same client status = %d, want 429", code)
	}
	// 同じプロキシ経由でも別クライアントは別枠
	if code := sendLogin(router, "10.1.0.1:443", "203.0.113.6"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}
}

func TestNewRouter_MetricsEndpoint(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), nil)
	t.Cleanup(limiter.Stop)
	router := NewRouter(&RouterDeps{
		AdminResolver: adminResolverFunc(nil),
		RateLimiter:   limiter,
		Logger:        discardLogger(),
		AuthService:   &mockAuthService{},
		UserFinder:    &mockUserFinder{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "metrics")
		}),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.String() != "metrics" {
		t.Errorf("GET /metrics = %d %q", w.Code, w.Body.String())
	}
}
