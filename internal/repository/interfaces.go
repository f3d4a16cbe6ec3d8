// Package repository はデータ永続化のインターフェースとPostgreSQL実装を定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/vendorhub/internal/model"
)

// ErrConflict は一意制約違反を表す。
var ErrConflict = errors.New("repository: unique constraint violation")

// isUniqueViolation はPostgreSQLの一意制約違反（23505）かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// Count は登録済みユーザー数を返す。
	Count(ctx context.Context) (int, error)
	// UpsertByEmail はメールアドレスをキーにユーザーを作成する。
	// 既存ユーザーの場合はisAdminがtrueのときのみ管理者に昇格する。
	UpsertByEmail(ctx context.Context, email, name string, isAdmin bool) (*model.User, error)
}

// SessionRepository はデータベース方式セッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// VendorRepository はベンダーとその料金帯・ケイパビリティの永続化インターフェース。
type VendorRepository interface {
	// ListAggregates は削除されていない全ベンダーを関連データ付きで名前順に返す。
	ListAggregates(ctx context.Context) ([]model.VendorAggregate, error)
	// FindAggregateByID は削除されていないベンダーを関連データ付きで返す。
	// 見つからない場合はnilを返す。
	FindAggregateByID(ctx context.Context, id string) (*model.VendorAggregate, error)
	// ListSummaries は削除されていない全ベンダーのIDと名前を名前順に返す。
	ListSummaries(ctx context.Context) ([]model.Vendor, error)
	// Exists は削除されていないベンダーが存在するかを返す。
	Exists(ctx context.Context, id string) (bool, error)
	// Create はベンダーと料金帯を作成し、ケイパビリティをslugでupsertして紐付ける。
	// ベンダー名が重複する場合はErrConflictを返す。
	Create(ctx context.Context, vendor *model.Vendor, tiers []model.CostTier, caps []model.Capability) error
	// SoftDelete はベンダーを論理削除する。対象がなければfalseを返す。
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
}

// CapabilityRepository はケイパビリティの参照インターフェース。
type CapabilityRepository interface {
	// List は全ケイパビリティを名前順に返す。
	List(ctx context.Context) ([]model.Capability, error)
}

// FeedbackRepository はフィードバックの永続化インターフェース。
// フィードバックは追記のみで、更新・削除の操作は持たない。
type FeedbackRepository interface {
	Create(ctx context.Context, fb *model.Feedback) error
}

// AccessRequestRepository はアクセス申請の永続化インターフェース。
type AccessRequestRepository interface {
	Create(ctx context.Context, req *model.AccessRequest) error
	// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AccessRequest, error)
	// ListByStatus は指定状態の申請を新しい順に返す。
	ListByStatus(ctx context.Context, status model.AccessRequestStatus) ([]model.AccessRequest, error)
	// UpdateStatus はPENDINGの申請の状態を更新する。
	// PENDINGでない、または存在しない場合はfalseを返す。
	UpdateStatus(ctx context.Context, id string, status model.AccessRequestStatus, at time.Time) (bool, error)
}

// PasskeyRepository はWebAuthnクレデンシャルの永続化インターフェース。
type PasskeyRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]model.Passkey, error)
	Create(ctx context.Context, pk *model.Passkey) error
	// UpdateSignCount は認証成功時の署名カウンタと最終利用時刻を更新する。
	UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32, usedAt time.Time) error
}

// ChallengeRepository はWebAuthnチャレンジの保存先インターフェース。
type ChallengeRepository interface {
	// Put はチャレンジを保存する。同じ(Email, Kind)の既存チャレンジは置き換える。
	Put(ctx context.Context, ch *model.Challenge) error
	// Take はチャレンジを取り出して削除する。存在しないか期限切れの場合はnilを返す。
	Take(ctx context.Context, email string, kind model.ChallengeKind) (*model.Challenge, error)
}
