// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeAuthentication  = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization   = "AUTHORIZATION_ERROR"
	ErrCodeAccountDisabled = "ACCOUNT_DISABLED"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
)

// 認証系の固定メッセージ。どの検査で失敗したかを推測させないよう文言を共通化する。
const (
	MsgCredentialsRequired = "Email and password are required"
	MsgInvalidCredentials  = "Invalid credentials"
	MsgAdminRequired       = "Access denied. Admin privileges required."
	MsgAccountDisabled     = "Your account has been deactivated. Please contact the administrator."
	MsgInternal            = "An unexpected error occurred. Please try again later."
)

// NewValidationError は入力不備エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidCredentialsError はユーザー不在またはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthentication,
		Message:  MsgInvalidCredentials,
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewAdminRequiredError は管理者権限を持たないユーザーのエラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthorization,
		Message:  MsgAdminRequired,
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewAccountDisabledError は無効化されたアカウントのエラーを生成する。
func NewAccountDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountDisabled,
		Message:  MsgAccountDisabled,
		Category: "auth",
		Action:   "管理者に連絡してください。",
	}
}

// NewInternalError は詳細を含まない内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  MsgInternal,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証リクエストのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("user not found: %s", email),
		Category: "auth",
		Action:   "メールアドレスを確認してください。",
	}
}

// IsCode はerrがAPIErrorであり、指定コードを持つかどうかを返す。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
