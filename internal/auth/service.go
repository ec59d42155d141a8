// Package auth は管理者のメールアドレス・パスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/schoolsite/internal/metrics"
	"github.com/hitoshi/schoolsite/internal/model"
	"github.com/hitoshi/schoolsite/internal/repository"
	"github.com/hitoshi/schoolsite/internal/security"
)

// ログイン・ログアウト後のリダイレクト先の既定値。
const (
	DefaultAdminRedirect = "/admin"
	DefaultLoginRedirect = "/login"
)

// dummyPassword は存在しないユーザーに対する照合で使うハッシュの元になる文字列。
const dummyPassword = "schoolsite-timing-equalizer"

// SessionContext は現在のリクエストに紐づくセッションを表す。
// SessionIDが空の場合はセッションなしとして扱う。
type SessionContext struct {
	SessionID string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	AdminRedirect string // ログイン成功後の遷移先
	LoginRedirect string // ログアウト後の遷移先
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Session  *model.Session
	User     *model.Profile
	Redirect string
}

// LogoutResult はログアウト時の結果。
type LogoutResult struct {
	Redirect string
}

// Status は認証状態の確認結果。未認証の場合Userはnil。
type Status struct {
	Authenticated bool           `json:"authenticated"`
	User          *model.Profile `json:"user"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      security.PasswordHasher
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher security.PasswordHasher,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if config.AdminRedirect == "" {
		config.AdminRedirect = DefaultAdminRedirect
	}
	if config.LoginRedirect == "" {
		config.LoginRedirect = DefaultLoginRedirect
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// Login はメールアドレスとパスワードで管理者を認証し、新しいセッションを発行する。
// scに既存のセッションがあれば破棄してからIDを再発行する。
//
// 返すエラーは *model.APIError（入力不備・認証失敗・権限なし・無効化済み）か、
// 依存先の障害をラップしたエラーのいずれか。
func (s *Service) Login(ctx context.Context, sc SessionContext, email, password string) (result *LoginResult, err error) {
	defer func() {
		s.metrics.RecordLogin(loginOutcome(err))
	}()

	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError(model.MsgCredentialsRequired)
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 応答時間からユーザーの存在を推測させないため照合だけは行う
		s.verifyDummy(password)
		slog.Warn("login failed: unknown email", slog.String("email", email))
		return nil, model.NewInvalidCredentialsError()
	}

	if !user.IsAdmin {
		s.verifyDummy(password)
		slog.Warn("login failed: not an admin", slog.String("user_id", user.ID))
		return nil, model.NewAdminRequiredError()
	}

	if !user.IsActive {
		s.verifyDummy(password)
		slog.Warn("login failed: account disabled", slog.String("user_id", user.ID))
		return nil, model.NewAccountDisabledError()
	}

	ok, err := s.verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		slog.Warn("login failed: wrong password", slog.String("user_id", user.ID))
		return nil, model.NewInvalidCredentialsError()
	}

	if sc.SessionID != "" {
		if err := s.sessionRepo.DeleteByID(ctx, sc.SessionID); err != nil {
			return nil, fmt.Errorf("failed to destroy previous session: %w", err)
		}
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// 最終ログイン日時の更新失敗はログインを失敗させない
	if err := s.userRepo.UpdateLastLoginAt(ctx, user.ID, session.CreatedAt); err != nil {
		slog.Error("failed to update last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		at := session.CreatedAt
		user.LastLoginAt = &at
	}

	slog.Info("admin logged in", slog.String("user_id", user.ID))

	return &LoginResult{
		Session:  session,
		User:     model.ProfileOf(user),
		Redirect: s.config.AdminRedirect,
	}, nil
}

// Logout は現在のセッションを破棄する。セッションがない場合は何もしない。
func (s *Service) Logout(ctx context.Context, sc SessionContext) (*LogoutResult, error) {
	if sc.SessionID != "" {
		if err := s.sessionRepo.DeleteByID(ctx, sc.SessionID); err != nil {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
		slog.Info("admin logged out")
	}

	s.metrics.RecordLogout()
	return &LogoutResult{Redirect: s.config.LoginRedirect}, nil
}

// CheckStatus は現在のセッションが有効な管理者セッションかどうかを返す。
// エラーは返さず、依存先の障害は未認証として扱う。
func (s *Service) CheckStatus(ctx context.Context, sc SessionContext) Status {
	user, err := s.ResolveAdmin(ctx, sc.SessionID)
	if err != nil {
		slog.Error("failed to check auth status", slog.String("error", err.Error()))
		user = nil
	}

	status := Status{}
	if user != nil {
		status.Authenticated = true
		status.User = model.ProfileOf(user)
	}
	s.metrics.RecordStatusCheck(status.Authenticated)
	return status
}

// ResolveAdmin はセッションIDから現在も管理画面にアクセス可能なユーザーを返す。
// セッションが存在しない・期限切れ・ユーザーが権限を失っている場合はnilを返す。
func (s *Service) ResolveAdmin(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.IsExpired(s.now()) {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !user.CanAccessAdmin() {
		return nil, nil
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// verify はパスワード照合を行い、所要時間を記録する。
func (s *Service) verify(password, hash string) (bool, error) {
	start := time.Now()
	ok, err := s.hasher.Verify(password, hash)
	s.metrics.RecordPasswordVerify(time.Since(start))
	return ok, err
}

// verifyDummy は結果を捨てる照合を行う。ダミーハッシュは初回に一度だけ生成する。
func (s *Service) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Error("failed to prepare dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = s.verify(password, s.dummyHash)
}

// loginOutcome はログイン結果をメトリクスのラベル値に変換する。
func loginOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return strings.ToLower(apiErr.Code)
	}
	return strings.ToLower(model.ErrCodeInternal)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
