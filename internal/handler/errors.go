package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/schoolsite/internal/middleware"
	"github.com/hitoshi/schoolsite/internal/model"
)

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは詳細をログにのみ残し、汎用の内部エラーを返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), publicError(apiErr))
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// publicError はクライアントに返すエラーを決める。
// 管理者権限がない場合はユーザー不在・パスワード不一致と区別できない応答にする。
// 500になるコードは内容を返さず汎用メッセージにする。
func publicError(apiErr *model.APIError) *model.APIError {
	switch {
	case apiErr.Code == model.ErrCodeAuthorization:
		return model.NewInvalidCredentialsError()
	case mapAPIErrorToHTTPStatus(apiErr) == http.StatusInternalServerError:
		return model.NewInternalError()
	default:
		return apiErr
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeAuthentication, model.ErrCodeAuthorization,
		model.ErrCodeAccountDisabled, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
