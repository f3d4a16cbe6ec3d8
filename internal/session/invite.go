package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InviteIssuer は招待トークンの発行者。セッショントークンとは別の値にすることで、
// 招待トークンがセッションとして、またセッションが招待として受理されることを防ぐ。
const InviteIssuer = "vendorhub-invite"

type inviteClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// InviteSigner はオンボーディング用の招待トークンを発行・検証する。
type InviteSigner struct {
	signer *signer
}

// NewInviteSigner はInviteSignerを生成する。secretが空の場合はErrNoSecretを返す。
func NewInviteSigner(secret string, opts ...Option) (*InviteSigner, error) {
	s, err := newSigner(secret, InviteIssuer, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	return &InviteSigner{signer: s}, nil
}

// Sign はemail宛ての招待トークンを有効期間ttlで発行する。
func (s *InviteSigner) Sign(email string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	email = strings.ToLower(strings.TrimSpace(email))
	return s.signer.sign(inviteClaims{
		Email:            email,
		RegisteredClaims: s.signer.registered(email, ttl),
	})
}

// Verify は招待トークンを検証し、宛先のメールアドレスを返す。
func (s *InviteSigner) Verify(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	var ic inviteClaims
	if err := s.signer.parse(token, &ic); err != nil {
		return "", false
	}
	if ic.Email == "" {
		return "", false
	}
	return ic.Email, true
}
