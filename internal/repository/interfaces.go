// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/schoolsite/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	// 呼び出し側で正規化済みのメールアドレスを渡すこと。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdateLastLoginAt は最終ログイン日時を更新する。後勝ちで上書きする。
	UpdateLastLoginAt(ctx context.Context, id string, at time.Time) error
}

// UserAdminRepository はシードや管理ツールが使うユーザー更新操作のインターフェース。
type UserAdminRepository interface {
	UserRepository

	// Upsert はメールアドレスをキーにユーザーを作成または更新する。
	// 既存ユーザーの場合はID・作成日時・最終ログイン日時を維持する。
	Upsert(ctx context.Context, user *model.User) error

	// SetActive は指定IDのユーザーの有効フラグを更新する。
	SetActive(ctx context.Context, id string, active bool) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
