package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/schoolsite/internal/model"
)

const userColumns = `id, email, name, password_hash, is_admin, role, is_active, last_login_at, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// UpdateLastLoginAt は最終ログイン日時を更新する。
func (r *PostgresUserRepo) UpdateLastLoginAt(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// Upsert はメールアドレスをキーにユーザーを作成または更新する。
// 既存行がある場合はuser.IDとuser.CreatedAtを既存の値で上書きする。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, is_admin, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (email) DO UPDATE SET
		   name = EXCLUDED.name,
		   password_hash = EXCLUDED.password_hash,
		   is_admin = EXCLUDED.is_admin,
		   role = EXCLUDED.role,
		   is_active = EXCLUDED.is_active,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		user.ID, user.Email, user.Name, user.PasswordHash, user.IsAdmin, user.Role,
		user.IsActive, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// SetActive は指定IDのユーザーの有効フラグを更新する。
func (r *PostgresUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return fmt.Errorf("failed to update user active flag: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// scanUser は1行分のユーザーを読み取る。行がない場合はnilを返す。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var lastLoginAt sql.NullTime
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.IsAdmin, &user.Role, &user.IsActive, &lastLoginAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		user.LastLoginAt = &t
	}
	return user, nil
}

// compile-time interface check
var _ UserAdminRepository = (*PostgresUserRepo)(nil)
