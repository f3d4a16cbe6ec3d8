package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/vendorhub/internal/model"
)

// tokenClaims はセッショントークンのペイロード。
type tokenClaims struct {
	Email   string     `json:"email"`
	Name    string     `json:"name,omitempty"`
	Role    model.Role `json:"role,omitempty"`
	PreAuth bool       `json:"preAuth,omitempty"`
	jwt.RegisteredClaims
}

// signer はHS256による署名と検証を行う。発行者ごとに1つ生成する。
type signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func newSigner(secret, issuer string, o options) (*signer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &signer{secret: []byte(secret), issuer: issuer, now: o.now}, nil
}

func (s *signer) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *signer) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// parse は署名・発行者・有効期間を検証してclaimsに展開する。
// iatより前、またはexp以降の時刻では検証に失敗する。
func (s *signer) parse(token string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	return err
}

// JWTManager は署名付きトークンをそのままCookieに載せるステートレスなManager。
type JWTManager struct {
	signer *signer
}

// NewJWTManager はJWTManagerを生成する。secretが空の場合はErrNoSecretを返す。
func NewJWTManager(secret string, opts ...Option) (*JWTManager, error) {
	s, err := newSigner(secret, Issuer, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	return &JWTManager{signer: s}, nil
}

// Issue はclaimsを載せたトークンを発行する。
func (m *JWTManager) Issue(_ context.Context, claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	return m.signer.sign(tokenClaims{
		Email:            claims.Email,
		Name:             claims.Name,
		Role:             claims.Role,
		PreAuth:          claims.PreAuth,
		RegisteredClaims: m.signer.registered(claims.Subject, ttl),
	})
}

// Verify はトークンを検証する。検証に失敗した場合は (nil, nil) を返す。
func (m *JWTManager) Verify(_ context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, nil
	}

	var tc tokenClaims
	if err := m.signer.parse(token, &tc); err != nil || tc.IssuedAt == nil {
		return nil, nil
	}

	return &Session{
		Claims: Claims{
			Subject: tc.Subject,
			Email:   tc.Email,
			Name:    tc.Name,
			Role:    tc.Role,
			PreAuth: tc.PreAuth,
		},
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
		Token:     token,
	}, nil
}

// Refresh は同じclaimsでトークンを再発行する。旧トークンは期限まで有効なまま残る。
func (m *JWTManager) Refresh(ctx context.Context, s *Session, ttl time.Duration) (string, error) {
	return m.Issue(ctx, s.Claims, ttl)
}

// Revoke は何もしない。ステートレス方式ではCookieの削除がログアウトになる。
func (m *JWTManager) Revoke(context.Context, string) error {
	return nil
}

// compile-time interface check
var _ Manager = (*JWTManager)(nil)
