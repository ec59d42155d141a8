// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User は管理画面にアクセスし得るユーザーを表す。
// 作成はシードまたは管理ツールが行い、認証処理が更新するのはLastLoginAtのみ。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string // bcryptハッシュ。レスポンスには含めない
	IsAdmin      bool   // 管理画面へのアクセス権
	Role         string // 表示用のロール名。認可判定には使わない
	IsActive     bool   // 管理者権限とは独立した無効化フラグ
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAccessAdmin は管理者権限を持ち、かつ有効なアカウントかどうかを返す。
func (u *User) CanAccessAdmin() bool {
	return u != nil && u.IsAdmin && u.IsActive
}

// Profile はクライアントに返すユーザー情報の公開部分。
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ProfileOf はUserから公開プロフィールを生成する。
func ProfileOf(u *User) *Profile {
	if u == nil {
		return nil
	}
	return &Profile{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}

// Session は管理者のログインセッションを表す。
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired はセッションが指定時刻の時点で期限切れかどうかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NormalizeEmail はメールアドレスの前後空白を除去し小文字化する。
// 保存時と検索時の双方で同じ正規化を適用すること。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
