package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/schoolsite/internal/model"
)

const (
	redisSessionPrefix     = "session:"
	redisUserSessionPrefix = "user_sessions:"
)

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// SESSION_STORE=redis の場合に使用する。
// セッション本体はExpiresAtまでのTTL付きで保存し、ユーザーごとのセッションID集合を
// 別キーで保持してDeleteByUserIDに使う。
type RedisSessionRepo struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.UniversalClient) *RedisSessionRepo {
	return &RedisSessionRepo{
		client: client,
		now:    time.Now,
	}
}

// Create はセッションを作成する。期限切れのセッションは保存しない。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	userKey := redisUserSessionPrefix + session.UserID
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisSessionPrefix+session.ID, data, ttl)
		pipe.SAdd(ctx, userKey, session.ID)
		// セッション有効期間は一律のため、最後に作られたセッションのTTLで足りる
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, nil
	}

	data, err := r.client.Get(ctx, redisSessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session := &model.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.IsExpired(r.now()) {
		return nil, nil
	}
	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}

	session, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisSessionPrefix+id)
		if session != nil {
			pipe.SRem(ctx, redisUserSessionPrefix+session.UserID, id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	userKey := redisUserSessionPrefix + userID

	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, redisSessionPrefix+id)
	}
	keys = append(keys, userKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
