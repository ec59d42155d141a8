// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/schoolsite/internal/auth"
	"github.com/hitoshi/schoolsite/internal/middleware"
	"github.com/hitoshi/schoolsite/internal/model"
)

// maxLoginBodyBytes はログインリクエストボディの上限。
const maxLoginBodyBytes = 1 << 16

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, sc auth.SessionContext, email, password string) (*auth.LoginResult, error)
	Logout(ctx context.Context, sc auth.SessionContext) (*auth.LogoutResult, error)
	CheckStatus(ctx context.Context, sc auth.SessionContext) auth.Status
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウト・認証状態確認のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	User     *model.Profile `json:"user"`
	Redirect string         `json:"redirect"`
}

// logoutResponse はログアウト成功時のレスポンス。
type logoutResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

// Login はメールアドレスとパスワードで管理者ログインを処理する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(model.MsgCredentialsRequired))
		return
	}

	result, err := h.service.Login(r.Context(), h.sessionContext(r), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, result.Session.ID, h.config.SessionMaxAge)
	h.rotateCSRF(w)

	writeJSON(w, http.StatusOK, loginResponse{
		Success:  true,
		Message:  "Login successful",
		User:     result.User,
		Redirect: result.Redirect,
	})
}

// Logout はセッションを破棄する。セッションがない場合も成功を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Logout(r.Context(), h.sessionContext(r))

	// 破棄に失敗してもブラウザ側のCookieはクリアする
	h.setSessionCookie(w, "", -1)

	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.rotateCSRF(w)

	writeJSON(w, http.StatusOK, logoutResponse{
		Success:  true,
		Message:  "Logged out successfully",
		Redirect: result.Redirect,
	})
}

// Status は現在のセッションの認証状態を返す。常に200で応答する。
// GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.service.CheckStatus(r.Context(), h.sessionContext(r))
	writeJSON(w, http.StatusOK, status)
}

func (h *AuthHandler) sessionContext(r *http.Request) auth.SessionContext {
	return auth.SessionContext{SessionID: middleware.SessionIDFromRequest(r)}
}

// setSessionCookie はセッションCookieを設定する。maxAgeが負の場合は削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) rotateCSRF(w http.ResponseWriter) {
	_, err := middleware.RotateCSRFToken(w, middleware.CSRFConfig{
		CookieSecure: h.config.CookieSecure,
		CookieDomain: h.config.CookieDomain,
	})
	if err != nil {
		slog.Error("failed to rotate CSRF token", slog.String("error", err.Error()))
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
