// Package auth は招待によるオンボーディングとセッション発行、管理者判定を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/repository"
	"github.com/hitoshi/vendorhub/internal/session"
)

// InviteTokens は招待トークンの発行と検証を行う。session.InviteSignerが実装する。
type InviteTokens interface {
	Sign(email string, ttl time.Duration) (string, error)
	Verify(token string) (string, bool)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL            string
	AllowedEmailDomain string
	SessionTTL         time.Duration
	PreAuthTTL         time.Duration
	InviteTTL          time.Duration
	BootstrapInviteTTL time.Duration
}

// IssuedSession は発行したセッショントークンとCookieの有効期間。
type IssuedSession struct {
	Token  string
	TTL    time.Duration
	Claims session.Claims
}

// Service は招待・ブートストラップ・セッション発行のビジネスロジックを提供する。
type Service struct {
	users    repository.UserRepository
	sessions session.Manager
	invites  InviteTokens
	policy   AdminPolicy
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	sessions session.Manager,
	invites InviteTokens,
	policy AdminPolicy,
	config ServiceConfig,
) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		invites:  invites,
		policy:   policy,
		config:   config,
	}
}

// Policy は管理者判定の方針を返す。
func (s *Service) Policy() AdminPolicy {
	return s.policy
}

// CreateInvite はユーザーを作成（既存なら何もしない）し、招待URLを返す。
func (s *Service) CreateInvite(ctx context.Context, email string) (string, error) {
	email, err := NormalizeEmail(email, "")
	if err != nil {
		return "", err
	}

	if _, err := s.users.UpsertByEmail(ctx, email, "", false); err != nil {
		return "", fmt.Errorf("failed to upsert invited user: %w", err)
	}

	inviteURL, err := s.inviteURL(email, s.config.InviteTTL)
	if err != nil {
		return "", err
	}

	slog.Info("invite created", slog.String("email", email))
	return inviteURL, nil
}

// BootstrapInvite はユーザーが1人もいない場合に限り、emailを最初の管理者として作成し、
// 短い有効期間の招待URLを返す。
func (s *Service) BootstrapInvite(ctx context.Context, email string) (string, error) {
	email, err := NormalizeEmail(email, s.config.AllowedEmailDomain)
	if err != nil {
		return "", err
	}

	count, err := s.users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return "", model.NewBootstrapDisabledError()
	}

	if _, err := s.users.UpsertByEmail(ctx, email, "", true); err != nil {
		return "", fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	inviteURL, err := s.inviteURL(email, s.config.BootstrapInviteTTL)
	if err != nil {
		return "", err
	}

	slog.Warn("bootstrap admin invite issued", slog.String("email", email))
	return inviteURL, nil
}

// AcceptInvite は招待トークンを検証し、パスキー登録のみを許可する仮セッションを発行する。
// 招待先のユーザーが存在しない場合はエラーを返す。
func (s *Service) AcceptInvite(ctx context.Context, token string) (*IssuedSession, error) {
	email, ok := s.invites.Verify(token)
	if !ok {
		return nil, model.NewInviteInvalidError()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find invited user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	claims := s.claimsFor(user)
	claims.PreAuth = true
	return s.issue(ctx, claims, s.config.PreAuthTTL)
}

// IssueSession はユーザーの通常セッションを発行する。ロールはAdminPolicyで決定する。
func (s *Service) IssueSession(ctx context.Context, user *model.User) (*IssuedSession, error) {
	return s.issue(ctx, s.claimsFor(user), s.config.SessionTTL)
}

func (s *Service) claimsFor(user *model.User) session.Claims {
	return session.Claims{
		Subject: user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Role:    s.policy.Role(user.Email, user.IsAdmin),
	}
}

func (s *Service) issue(ctx context.Context, claims session.Claims, ttl time.Duration) (*IssuedSession, error) {
	token, err := s.sessions.Issue(ctx, claims, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &IssuedSession{Token: token, TTL: ttl, Claims: claims}, nil
}

func (s *Service) inviteURL(email string, ttl time.Duration) (string, error) {
	token, err := s.invites.Sign(email, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to sign invite: %w", err)
	}
	return strings.TrimRight(s.config.BaseURL, "/") + "/invite?token=" + url.QueryEscape(token), nil
}
