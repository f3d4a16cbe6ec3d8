package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/vendorhub/internal/model"
)

// PostgresPasskeyRepo はPostgreSQLを使用したパスキーリポジトリ。
type PostgresPasskeyRepo struct {
	db *sql.DB
}

// NewPostgresPasskeyRepo はPostgresPasskeyRepoを生成する。
func NewPostgresPasskeyRepo(db *sql.DB) *PostgresPasskeyRepo {
	return &PostgresPasskeyRepo{db: db}
}

// ListByUserID はユーザーの全クレデンシャルを登録順に返す。
func (r *PostgresPasskeyRepo) ListByUserID(ctx context.Context, userID string) ([]model.Passkey, error) {
	if !isUUID(userID) {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, credential_id, public_key, attestation_type, aaguid, sign_count,
		   transports, flags, created_at, last_used_at
		 FROM passkeys WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list passkeys: %w", err)
	}
	defer rows.Close()

	var out []model.Passkey
	for rows.Next() {
		var (
			pk        model.Passkey
			signCount int64
		)
		if err := rows.Scan(&pk.ID, &pk.UserID, &pk.CredentialID, &pk.PublicKey, &pk.AttestationType,
			&pk.AAGUID, &signCount, pq.Array(&pk.Transports), &pk.Flags, &pk.CreatedAt, &pk.LastUsedAt); err != nil {
			return nil, fmt.Errorf("failed to scan passkey: %w", err)
		}
		pk.SignCount = uint32(signCount)
		out = append(out, pk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate passkeys: %w", err)
	}
	return out, nil
}

// Create はクレデンシャルを保存する。同じクレデンシャルIDがあればErrConflictを返す。
func (r *PostgresPasskeyRepo) Create(ctx context.Context, pk *model.Passkey) error {
	// jsonb列に[]byteを渡すとbyteaとして送られるため文字列で渡す
	flags := string(pk.Flags)
	if flags == "" {
		flags = "{}"
	}
	transports := pk.Transports
	if transports == nil {
		transports = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO passkeys (id, user_id, credential_id, public_key, attestation_type, aaguid,
		   sign_count, transports, flags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		pk.ID, pk.UserID, pk.CredentialID, pk.PublicKey, pk.AttestationType, pk.AAGUID,
		int64(pk.SignCount), pq.Array(transports), flags, pk.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create passkey: %w", ErrConflict)
		}
		return fmt.Errorf("failed to create passkey: %w", err)
	}
	return nil
}

// UpdateSignCount は認証成功時の署名カウンタと最終利用時刻を更新する。
func (r *PostgresPasskeyRepo) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32, usedAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE passkeys SET sign_count = $2, last_used_at = $3 WHERE credential_id = $1`,
		credentialID, int64(signCount), usedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update passkey sign count: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return errors.New("passkey not found")
	}
	return nil
}

// compile-time interface check
var _ PasskeyRepository = (*PostgresPasskeyRepo)(nil)
