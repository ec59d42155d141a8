package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/schoolsite/internal/middleware"
	"github.com/hitoshi/schoolsite/internal/model"
)

// UserFinder は管理者ハンドラーが必要とするユーザー取得インターフェース。
type UserFinder interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// AdminHandler は管理画面向けのHTTPハンドラー。
// AdminSessionMiddlewareの内側に配置する。
type AdminHandler struct {
	users UserFinder
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(users UserFinder) *AdminHandler {
	return &AdminHandler{
		users: users,
	}
}

// Me はログイン中の管理者のプロフィールを返す。
// GET /api/admin/me
func (h *AdminHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":          model.ProfileOf(user),
		"last_login_at": user.LastLoginAt,
	})
}
