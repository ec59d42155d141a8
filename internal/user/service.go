// Package user は管理者アカウントの登録と有効・無効の切り替えを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/schoolsite/internal/model"
	"github.com/hitoshi/schoolsite/internal/repository"
	"github.com/hitoshi/schoolsite/internal/security"
)

// defaultAdminRole は管理者アカウントの表示用ロール名。
const defaultAdminRole = "admin"

// SeedInput は管理者アカウント登録の入力。
type SeedInput struct {
	Email    string
	Password string
	Name     string
}

// Service は管理者アカウントの管理を行うサービス層。
type Service struct {
	userRepo    repository.UserAdminRepository
	sessionRepo repository.SessionRepository
	hasher      security.PasswordHasher
	sanitizer   security.NameSanitizer
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserAdminRepository,
	sessionRepo repository.SessionRepository,
	hasher security.PasswordHasher,
	sanitizer security.NameSanitizer,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// SeedAdmin は管理者アカウントを作成する。同じメールアドレスの既存ユーザーは
// パスワード・表示名を更新し、管理者かつ有効な状態に戻す。
func (s *Service) SeedAdmin(ctx context.Context, in SeedInput) (*model.User, error) {
	email := model.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, model.NewValidationError(model.MsgCredentialsRequired)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return nil, model.NewValidationError("Password must be at most 72 bytes")
		}
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		name = "Administrator"
	}

	now := s.now().UTC()
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsAdmin:      true,
		Role:         defaultAdminRole,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Upsert(ctx, u); err != nil {
		return nil, fmt.Errorf("管理者アカウントの登録に失敗しました: %w", err)
	}

	slog.Info("管理者アカウントを登録しました",
		slog.String("user_id", u.ID),
		slog.String("email", u.Email),
	)
	return u, nil
}

// Deactivate はアカウントを無効化し、そのユーザーの全セッションを破棄する。
func (s *Service) Deactivate(ctx context.Context, email string) error {
	u, err := s.setActive(ctx, email, false)
	if err != nil {
		return err
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, u.ID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("アカウントを無効化しました", slog.String("user_id", u.ID))
	return nil
}

// Activate は無効化されたアカウントを有効に戻す。
func (s *Service) Activate(ctx context.Context, email string) error {
	u, err := s.setActive(ctx, email, true)
	if err != nil {
		return err
	}

	slog.Info("アカウントを有効化しました", slog.String("user_id", u.ID))
	return nil
}

func (s *Service) setActive(ctx context.Context, email string, active bool) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, model.NewValidationError("Email is required")
	}

	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError(email)
	}

	if err := s.userRepo.SetActive(ctx, u.ID, active); err != nil {
		return nil, fmt.Errorf("有効フラグの更新に失敗しました: %w", err)
	}
	u.IsActive = active
	return u, nil
}
