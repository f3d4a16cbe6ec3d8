package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/repository"
)

// ChallengeStore は発行済みWebAuthnチャレンジの保存先。
// キーは(Email, Kind)で、新しいPutは以前のチャレンジを置き換える。
// Takeは取り出したチャレンジを削除し、期限切れのチャレンジはnilとして返す。
type ChallengeStore interface {
	Put(ctx context.Context, ch *model.Challenge) error
	Take(ctx context.Context, email string, kind model.ChallengeKind) (*model.Challenge, error)
}

const redisKeyPrefix = "vendorhub:webauthn:"

// RedisChallengeStore はRedisのキー有効期限でTTLを管理するChallengeStore。
type RedisChallengeStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisChallengeStore はRedisChallengeStoreを生成する。
func NewRedisChallengeStore(client redis.Cmdable) *RedisChallengeStore {
	return &RedisChallengeStore{client: client, now: time.Now}
}

type redisChallenge struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func redisKey(email string, kind model.ChallengeKind) string {
	return redisKeyPrefix + string(kind) + ":" + strings.ToLower(strings.TrimSpace(email))
}

// Put はチャレンジを有効期限付きで保存する。既に期限切れの場合は保存しない。
func (s *RedisChallengeStore) Put(ctx context.Context, ch *model.Challenge) error {
	ttl := ch.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("challenge already expired")
	}
	payload, err := json.Marshal(redisChallenge{Data: ch.Data, ExpiresAt: ch.ExpiresAt})
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(ch.Email, ch.Kind), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Take はGETDELでチャレンジを取り出す。
func (s *RedisChallengeStore) Take(ctx context.Context, email string, kind model.ChallengeKind) (*model.Challenge, error) {
	raw, err := s.client.GetDel(ctx, redisKey(email, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}

	var rc redisChallenge
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	if !s.now().Before(rc.ExpiresAt) {
		return nil, nil
	}
	return &model.Challenge{
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Kind:      kind,
		Data:      rc.Data,
		ExpiresAt: rc.ExpiresAt,
	}, nil
}

// NewRedisClient はREDIS_URL形式のURLからクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// compile-time interface check
var (
	_ ChallengeStore = (*RedisChallengeStore)(nil)
	_ ChallengeStore = repository.ChallengeRepository(nil)
)
