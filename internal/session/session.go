// Package session はセッショントークンの発行・検証・更新を提供する。
//
// 署名付きトークン方式（JWTManager）とデータベース方式（DatabaseManager）の
// 2つの実装があり、どちらもManagerインターフェースを満たす。
// デプロイごとにどちらか一方を選択して使用する。
package session

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/vendorhub/internal/model"
)

// Issuer はセッショントークンの発行者。
const Issuer = "vendorhub"

var (
	// ErrNoSecret は署名鍵が未設定の場合に返される。起動時の致命的な設定エラー。
	ErrNoSecret = errors.New("session: signing secret is not configured")
	// ErrInvalidTTL は有効期間が0以下の場合に返される。
	ErrInvalidTTL = errors.New("session: ttl must be positive")
)

// Claims はセッションに載せる認証主体の情報。
type Claims struct {
	Subject string
	Email   string
	Name    string
	Role    model.Role
	// PreAuth は招待リンク経由の仮セッションであることを示す。
	// 仮セッションで許可されるのはパスキー登録のみ。
	PreAuth bool
}

// IsAdmin は管理者ロールかどうかを返す。
func (c Claims) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// Session は検証済みのセッション。
// 有効期間は [IssuedAt, ExpiresAt)。
type Session struct {
	Claims
	IssuedAt  time.Time
	ExpiresAt time.Time
	// Token は検証元のトークン文字列。
	Token string
}

// Remaining はnow時点での残り有効期間を返す。
func (s *Session) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// Manager はセッションの発行・検証・更新・破棄を行うインターフェース。
type Manager interface {
	// Issue はclaimsを載せたトークンを有効期間ttlで発行する。
	Issue(ctx context.Context, claims Claims, ttl time.Duration) (string, error)
	// Verify はトークンを検証する。
	// 不正・期限切れ・未指定のトークンは (nil, nil) を返す。
	// errorはストレージ障害などの基盤エラーの場合のみ返す。
	Verify(ctx context.Context, token string) (*Session, error)
	// Refresh は同じclaimsで新しい有効期間のトークンを再発行する。
	Refresh(ctx context.Context, s *Session, ttl time.Duration) (string, error)
	// Revoke はトークンを無効化する。
	Revoke(ctx context.Context, token string) error
}

// RefreshPolicy はセッション更新の方針。
type RefreshPolicy struct {
	// TTL は発行・更新時の有効期間。
	TTL time.Duration
	// Threshold は残り有効期間がこれを下回ったら更新する閾値。
	Threshold time.Duration
}

// Due はセッションが更新対象かどうかを返す。仮セッションは更新しない。
func (p RefreshPolicy) Due(s *Session, now time.Time) bool {
	if s == nil || s.PreAuth {
		return false
	}
	return s.Remaining(now) < p.Threshold
}

// Option はManagerの生成オプション。
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
