// Package passkey はWebAuthnによるパスキー登録とサインインを提供する。
// 暗号処理はgo-webauthnに委譲し、チャレンジは有効期限付きの永続ストアに保存する。
package passkey

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/hitoshi/vendorhub/internal/auth"
	"github.com/hitoshi/vendorhub/internal/model"
	"github.com/hitoshi/vendorhub/internal/repository"
	"github.com/hitoshi/vendorhub/internal/session"
)

// Ceremony はWebAuthnの登録・認証処理。*webauthn.WebAuthnが実装する。
type Ceremony interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, parsed *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// SessionIssuer はパスキー検証後の通常セッションを発行する。auth.Serviceが実装する。
type SessionIssuer interface {
	IssueSession(ctx context.Context, user *model.User) (*auth.IssuedSession, error)
}

// RelyingParty はWebAuthnのRP設定。
type RelyingParty struct {
	ID      string
	Name    string
	Origins []string
	Timeout time.Duration
}

// NewWebAuthn はRP設定からgo-webauthnのインスタンスを生成する。
func NewWebAuthn(rp RelyingParty) (*webauthn.WebAuthn, error) {
	timeout := webauthn.TimeoutConfig{Enforce: true, Timeout: rp.Timeout, TimeoutUVD: rp.Timeout}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          rp.ID,
		RPDisplayName: rp.Name,
		RPOrigins:     rp.Origins,
		Timeouts: webauthn.TimeoutsConfig{
			Login:        timeout,
			Registration: timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure webauthn: %w", err)
	}
	return wa, nil
}

// Service はパスキーの登録・認証フローを提供する。
type Service struct {
	ceremony   Ceremony
	users      repository.UserRepository
	passkeys   repository.PasskeyRepository
	challenges ChallengeStore
	issuer     SessionIssuer
	ttl        time.Duration
	now        func() time.Time

	parseCreation  func(io.Reader) (*protocol.ParsedCredentialCreationData, error)
	parseAssertion func(io.Reader) (*protocol.ParsedCredentialAssertionData, error)
}

// NewService はServiceを生成する。ttlはチャレンジの有効期間。
func NewService(
	ceremony Ceremony,
	users repository.UserRepository,
	passkeys repository.PasskeyRepository,
	challenges ChallengeStore,
	issuer SessionIssuer,
	ttl time.Duration,
) *Service {
	return &Service{
		ceremony:       ceremony,
		users:          users,
		passkeys:       passkeys,
		challenges:     challenges,
		issuer:         issuer,
		ttl:            ttl,
		now:            time.Now,
		parseCreation:  protocol.ParseCredentialCreationResponseBody,
		parseAssertion: protocol.ParseCredentialRequestResponseBody,
	}
}

// BeginRegistration はパスキー登録のオプションを生成する。
// 呼び出し元のセッション（仮セッションを含む）のメールアドレスと一致する場合のみ許可する。
func (s *Service) BeginRegistration(ctx context.Context, caller *session.Claims, email string) (*protocol.CredentialCreation, error) {
	user, err := s.registrant(ctx, caller, email)
	if err != nil {
		return nil, err
	}

	wu, err := s.loadUser(ctx, user)
	if err != nil {
		return nil, err
	}

	creation, data, err := s.ceremony.BeginRegistration(wu,
		webauthn.WithExclusions(wu.exclusions()),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to begin registration: %w", err)
	}

	if err := s.saveChallenge(ctx, user.Email, model.ChallengeRegistration, data); err != nil {
		return nil, err
	}
	return creation, nil
}

// FinishRegistration は登録レスポンスを検証してクレデンシャルを保存し、通常セッションを発行する。
func (s *Service) FinishRegistration(ctx context.Context, caller *session.Claims, email string, credential []byte) (*auth.IssuedSession, error) {
	user, err := s.registrant(ctx, caller, email)
	if err != nil {
		return nil, err
	}

	data, err := s.takeChallenge(ctx, user.Email, model.ChallengeRegistration)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parseCreation(bytes.NewReader(credential))
	if err != nil {
		slog.Warn("failed to parse registration response", slog.String("email", user.Email), slog.String("error", err.Error()))
		return nil, model.NewPasskeyVerificationError()
	}

	wu, err := s.loadUser(ctx, user)
	if err != nil {
		return nil, err
	}

	cred, err := s.ceremony.CreateCredential(wu, *data, parsed)
	if err != nil {
		slog.Warn("passkey registration rejected", slog.String("email", user.Email), slog.String("error", err.Error()))
		return nil, model.NewPasskeyVerificationError()
	}

	pk, err := fromCredential(user.ID, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}
	pk.ID = uuid.New().String()
	pk.CreatedAt = s.now()
	if err := s.passkeys.Create(ctx, &pk); err != nil {
		return nil, fmt.Errorf("failed to store passkey: %w", err)
	}

	slog.Info("passkey registered", slog.String("user_id", user.ID), slog.String("passkey_id", pk.ID))
	return s.issuer.IssueSession(ctx, user)
}

// BeginLogin はパスキー認証のオプションを生成する。
func (s *Service) BeginLogin(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	wu, err := s.loginUser(ctx, email)
	if err != nil {
		return nil, err
	}

	assertion, data, err := s.ceremony.BeginLogin(wu)
	if err != nil {
		return nil, fmt.Errorf("failed to begin login: %w", err)
	}

	if err := s.saveChallenge(ctx, wu.user.Email, model.ChallengeAuthentication, data); err != nil {
		return nil, err
	}
	return assertion, nil
}

// FinishLogin は認証レスポンスを検証し、署名カウンタを更新して通常セッションを発行する。
func (s *Service) FinishLogin(ctx context.Context, email string, assertion []byte) (*auth.IssuedSession, error) {
	wu, err := s.loginUser(ctx, email)
	if err != nil {
		return nil, err
	}

	data, err := s.takeChallenge(ctx, wu.user.Email, model.ChallengeAuthentication)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parseAssertion(bytes.NewReader(assertion))
	if err != nil {
		slog.Warn("failed to parse assertion response", slog.String("email", wu.user.Email), slog.String("error", err.Error()))
		return nil, model.NewPasskeyVerificationError()
	}

	cred, err := s.ceremony.ValidateLogin(wu, *data, parsed)
	if err != nil {
		slog.Warn("passkey login rejected", slog.String("email", wu.user.Email), slog.String("error", err.Error()))
		return nil, model.NewPasskeyVerificationError()
	}
	if cred.Authenticator.CloneWarning {
		slog.Warn("passkey sign count did not increase", slog.String("user_id", wu.user.ID))
	}

	if err := s.passkeys.UpdateSignCount(ctx, cred.ID, cred.Authenticator.SignCount, s.now()); err != nil {
		return nil, fmt.Errorf("failed to update passkey: %w", err)
	}

	return s.issuer.IssueSession(ctx, wu.user)
}

// registrant は登録を行うユーザーを特定する。
func (s *Service) registrant(ctx context.Context, caller *session.Claims, email string) (*model.User, error) {
	if caller == nil || caller.Email == "" {
		return nil, model.NewUnauthorizedError()
	}
	email, err := auth.NormalizeEmail(email, "")
	if err != nil {
		return nil, err
	}
	if email != caller.Email {
		return nil, model.NewForbiddenError()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// loginUser は登録済みパスキーを持つユーザーを読み込む。
// ユーザーが存在しない場合もパスキー未登録として扱い、アカウントの有無を区別しない。
func (s *Service) loginUser(ctx context.Context, email string) (*webauthnUser, error) {
	email, err := auth.NormalizeEmail(email, "")
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewPasskeyNotFoundError()
	}

	wu, err := s.loadUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(wu.credentials) == 0 {
		return nil, model.NewPasskeyNotFoundError()
	}
	return wu, nil
}

func (s *Service) loadUser(ctx context.Context, user *model.User) (*webauthnUser, error) {
	pks, err := s.passkeys.ListByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list passkeys: %w", err)
	}
	return newWebAuthnUser(user, pks), nil
}

func (s *Service) saveChallenge(ctx context.Context, email string, kind model.ChallengeKind, data *webauthn.SessionData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode challenge: %w", err)
	}
	err = s.challenges.Put(ctx, &model.Challenge{
		Email:     email,
		Kind:      kind,
		Data:      raw,
		ExpiresAt: s.now().Add(s.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to save challenge: %w", err)
	}
	return nil
}

func (s *Service) takeChallenge(ctx context.Context, email string, kind model.ChallengeKind) (*webauthn.SessionData, error) {
	ch, err := s.challenges.Take(ctx, email, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to take challenge: %w", err)
	}
	if ch == nil {
		return nil, model.NewChallengeNotFoundError()
	}

	var data webauthn.SessionData
	if err := json.Unmarshal(ch.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode challenge: %w", err)
	}
	return &data, nil
}

// compile-time interface check
var _ Ceremony = (*webauthn.WebAuthn)(nil)
