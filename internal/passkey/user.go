package passkey

import (
	"encoding/json"
	"log/slog"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/hitoshi/vendorhub/internal/model"
)

// webauthnUser はmodel.Userをwebauthn.Userとして扱うアダプタ。
type webauthnUser struct {
	user        *model.User
	credentials []webauthn.Credential
}

func newWebAuthnUser(user *model.User, passkeys []model.Passkey) *webauthnUser {
	creds := make([]webauthn.Credential, 0, len(passkeys))
	for _, pk := range passkeys {
		creds = append(creds, toCredential(pk))
	}
	return &webauthnUser{user: user, credentials: creds}
}

func (u *webauthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *webauthnUser) WebAuthnName() string {
	return u.user.Email
}

func (u *webauthnUser) WebAuthnDisplayName() string {
	if u.user.Name != "" {
		return u.user.Name
	}
	return u.user.Email
}

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// exclusions は登録済みクレデンシャルを再登録対象から除外するための記述子を返す。
func (u *webauthnUser) exclusions() []protocol.CredentialDescriptor {
	out := make([]protocol.CredentialDescriptor, 0, len(u.credentials))
	for _, c := range u.credentials {
		out = append(out, c.Descriptor())
	}
	return out
}

func toCredential(pk model.Passkey) webauthn.Credential {
	var flags webauthn.CredentialFlags
	if len(pk.Flags) > 0 {
		// 壊れたフラグは既定値として扱う。BackupEligibleの不一致でログインが失敗するため記録する
		if err := json.Unmarshal(pk.Flags, &flags); err != nil {
			slog.Warn("failed to decode passkey flags",
				slog.String("passkey_id", pk.ID),
				slog.String("user_id", pk.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	transports := make([]protocol.AuthenticatorTransport, 0, len(pk.Transports))
	for _, t := range pk.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              pk.CredentialID,
		PublicKey:       pk.PublicKey,
		AttestationType: pk.AttestationType,
		Transport:       transports,
		Flags:           flags,
		Authenticator: webauthn.Authenticator{
			AAGUID:    pk.AAGUID,
			SignCount: pk.SignCount,
		},
	}
}

func fromCredential(userID string, c *webauthn.Credential) (model.Passkey, error) {
	flags, err := json.Marshal(c.Flags)
	if err != nil {
		return model.Passkey{}, err
	}

	transports := make([]string, 0, len(c.Transport))
	for _, t := range c.Transport {
		transports = append(transports, string(t))
	}

	return model.Passkey{
		UserID:          userID,
		CredentialID:    c.ID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		AAGUID:          c.Authenticator.AAGUID,
		SignCount:       c.Authenticator.SignCount,
		Transports:      transports,
		Flags:           flags,
	}, nil
}

// compile-time interface check
var _ webauthn.User = (*webauthnUser)(nil)
