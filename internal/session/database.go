package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/vendorhub/internal/model"
)

// Store はデータベース方式のセッション保存先。
// repository.SessionRepositoryの部分集合として定義する。
type Store interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

// DatabaseManager はランダムな不透明トークンをサーバー側のレコードと照合するManager。
// レコードのIDにはトークンのSHA-256ハッシュを保存する。
type DatabaseManager struct {
	store Store
	now   func() time.Time
}

// NewDatabaseManager はDatabaseManagerを生成する。
func NewDatabaseManager(store Store, opts ...Option) *DatabaseManager {
	o := buildOptions(opts)
	return &DatabaseManager{store: store, now: o.now}
}

// Issue は新しいセッションレコードを作成し、トークンを返す。
func (m *DatabaseManager) Issue(ctx context.Context, claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := m.now()
	if err := m.store.Create(ctx, &model.Session{
		ID:        hashToken(token),
		Subject:   claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		Role:      claims.Role,
		PreAuth:   claims.PreAuth,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	return token, nil
}

// Verify はトークンに対応する有効なセッションレコードを返す。
// レコードがない、または期限切れの場合は (nil, nil) を返す。
func (m *DatabaseManager) Verify(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}

	rec, err := m.store.FindByID(ctx, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	now := m.now()
	if now.Before(rec.CreatedAt) || !now.Before(rec.ExpiresAt) {
		return nil, nil
	}

	return &Session{
		Claims: Claims{
			Subject: rec.Subject,
			Email:   rec.Email,
			Name:    rec.Name,
			Role:    rec.Role,
			PreAuth: rec.PreAuth,
		},
		IssuedAt:  rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		Token:     token,
	}, nil
}

// Refresh は新しいセッションレコードを作成し、旧レコードを削除する。
// 旧レコードの削除失敗は新トークンの発行を妨げない。
func (m *DatabaseManager) Refresh(ctx context.Context, s *Session, ttl time.Duration) (string, error) {
	token, err := m.Issue(ctx, s.Claims, ttl)
	if err != nil {
		return "", err
	}

	if s.Token != "" {
		if err := m.store.DeleteByID(ctx, hashToken(s.Token)); err != nil {
			slog.Warn("failed to delete refreshed session",
				slog.String("subject", s.Subject),
				slog.String("error", err.Error()),
			)
		}
	}

	return token, nil
}

// Revoke はトークンに対応するセッションレコードを削除する。
func (m *DatabaseManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.DeleteByID(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// generateToken は暗号的に安全な32バイトのトークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// compile-time interface check
var _ Manager = (*DatabaseManager)(nil)
