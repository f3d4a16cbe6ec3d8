package auth

import (
	"net/mail"
	"strings"

	"github.com/hitoshi/vendorhub/internal/model"
)

// AdminPolicy は管理者判定の方針。ユーザーの管理者フラグに加えて、
// 設定で列挙したメールアドレスも管理者として扱う。
type AdminPolicy struct {
	Emails []string
}

// NewAdminPolicy はメールアドレスを正規化してAdminPolicyを生成する。
func NewAdminPolicy(emails []string) AdminPolicy {
	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			normalized = append(normalized, e)
		}
	}
	return AdminPolicy{Emails: normalized}
}

// IsAdmin はflagがtrueか、emailが管理者リストに含まれる場合にtrueを返す。
func (p AdminPolicy) IsAdmin(email string, flag bool) bool {
	if flag {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, e := range p.Emails {
		if e == email {
			return true
		}
	}
	return false
}

// Role はIsAdminの結果をセッションのロールに変換する。
func (p AdminPolicy) Role(email string, flag bool) model.Role {
	if p.IsAdmin(email, flag) {
		return model.RoleAdmin
	}
	return model.RoleUser
}

// NormalizeEmail はメールアドレスを検証し、前後の空白を除いて小文字化したものを返す。
// allowedDomainが空でない場合は、そのドメインのアドレスのみを受け付ける。
func NormalizeEmail(raw, allowedDomain string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", model.NewInvalidEmailError("required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", model.NewInvalidEmailError("malformed")
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", model.NewInvalidEmailError("malformed")
	}

	if allowedDomain != "" && email[at+1:] != strings.ToLower(allowedDomain) {
		return "", model.NewInvalidEmailError("domain not allowed")
	}
	return email, nil
}
