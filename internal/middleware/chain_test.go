package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// buildChain は本番と同じ順序でミドルウェアを重ねたハンドラーを返す。
// Recovery → Logging → SecurityHeaders → CORS → CSRF → AdminSession
func buildChain(buf *bytes.Buffer, final http.Handler) http.Handler {
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	resolver := adminResolverFor("chain-session", "user-chain-test")

	h := NewAdminSessionMiddleware(resolver)(final)
	h = NewCSRFMiddleware(CSRFConfig{})(h)
	h = NewCORSMiddleware("http://localhost:3000")(h)
	h = NewSecurityHeadersMiddleware()(h)
	h = NewLoggingMiddleware(logger, nil)(h)
	return NewRecoveryMiddleware()(h)
}

// TestMiddlewareChain_AuthenticatedGET は認証済みGETリクエストが全ミドルウェアを通過することを検証する。
func TestMiddlewareChain_AuthenticatedGET(t *testing.T) {
	var buf bytes.Buffer
	var capturedUserID string
	handler := buildChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "chain-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-chain-test" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-chain-test")
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Error("security headers should be applied")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORS headers should be applied")
	}
	if buf.Len() == 0 {
		t.Error("request should be logged")
	}
}

// TestMiddlewareChain_POSTWithoutCSRF_Returns403 はセッションがあってもCSRFトークンなしのPOSTが拒否されることを検証する。
func TestMiddlewareChain_POSTWithoutCSRF_Returns403(t *testing.T) {
	var buf bytes.Buffer
	handler := buildChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/action", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "chain-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

// TestMiddlewareChain_NoSession_Returns401 はセッションがない場合に401が返されることを検証する。
func TestMiddlewareChain_NoSession_Returns401(t *testing.T) {
	var buf bytes.Buffer
	handler := buildChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/me", nil))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestMiddlewareChain_Panic_Returns500JSON はハンドラーのpanicが統一フォーマットの500になることを検証する。
func TestMiddlewareChain_Panic_Returns500JSON(t *testing.T) {
	var buf bytes.Buffer
	handler := buildChain(&buf, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "chain-session"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
}
