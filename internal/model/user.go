// Package model はドメインモデルを定義する。
package model

import "time"

// Role はセッションに載せる権限区分を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。ベンダー登録やアクセス申請の承認ができる。
	RoleAdmin Role = "admin"
)

// User はサービス利用ユーザーを表す。
// 招待（アクセス申請の承認またはブートストラップ招待）によってのみ作成される。
type User struct {
	ID        string
	Email     string
	Name      string
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はデータベース方式のログインセッションを表す。
// 署名付きトークン方式では使用しない。
type Session struct {
	ID        string
	Subject   string
	Email     string
	Name      string
	Role      Role
	PreAuth   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Passkey はユーザーに紐付くWebAuthnクレデンシャルを表す。
type Passkey struct {
	ID              string
	UserID          string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	AAGUID          []byte
	SignCount       uint32
	Transports      []string
	Flags           []byte // JSONエンコードされたクレデンシャルフラグ
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// ChallengeKind はWebAuthnチャレンジの種別。
type ChallengeKind string

const (
	// ChallengeRegistration はパスキー登録用のチャレンジ。
	ChallengeRegistration ChallengeKind = "registration"
	// ChallengeAuthentication はパスキー認証用のチャレンジ。
	ChallengeAuthentication ChallengeKind = "authentication"
)

// Challenge は発行済みのWebAuthnチャレンジを表す。
// (Email, Kind) ごとに最新の1件のみ有効。
type Challenge struct {
	Email     string
	Kind      ChallengeKind
	Data      []byte // webauthn.SessionDataのJSON
	ExpiresAt time.Time
}
