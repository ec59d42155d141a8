// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/schoolsite/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// AdminResolver はセッションIDから管理画面にアクセス可能なユーザーを解決するインターフェース。
// 権限を失ったユーザーやセッション切れの場合はnilを返す。
type AdminResolver interface {
	ResolveAdmin(ctx context.Context, sessionID string) (*model.User, error)
}

// NewAdminSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// リクエストごとにユーザーの管理者権限と有効フラグを再検証するミドルウェアを返す。
// 認証済みユーザーIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewAdminSessionMiddleware(resolver AdminResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				WriteUnauthorized(w)
				return
			}

			user, err := resolver.ResolveAdmin(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to resolve admin session",
					slog.String("error", err.Error()),
				)
				WriteUnauthorized(w)
				return
			}
			if user == nil {
				WriteUnauthorized(w)
				return
			}

			annotateUserID(r.Context(), user.ID)
			ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromRequest はリクエストのCookieからセッションIDを取得する。
// Cookieがない場合は空文字を返す。
func SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
