package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/vendorhub/internal/model"
)

// PostgresChallengeRepo はwebauthn_challengesテーブルを使うチャレンジ保存先。
// (email, kind) を主キーとし、複数インスタンス間で共有される。
type PostgresChallengeRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresChallengeRepo はPostgresChallengeRepoを生成する。
func NewPostgresChallengeRepo(db *sql.DB) *PostgresChallengeRepo {
	return &PostgresChallengeRepo{db: db, now: time.Now}
}

// Put はチャレンジを保存する。同じ(email, kind)の既存チャレンジは置き換える。
func (r *PostgresChallengeRepo) Put(ctx context.Context, ch *model.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webauthn_challenges (email, kind, session_data, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email, kind) DO UPDATE SET
		   session_data = EXCLUDED.session_data,
		   expires_at = EXCLUDED.expires_at`,
		normalizeEmail(ch.Email), string(ch.Kind), string(ch.Data), ch.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store webauthn challenge: %w", err)
	}
	return nil
}

// Take はチャレンジを削除して返す。期限切れのチャレンジも削除されるが、nilを返す。
func (r *PostgresChallengeRepo) Take(ctx context.Context, email string, kind model.ChallengeKind) (*model.Challenge, error) {
	ch := &model.Challenge{Email: normalizeEmail(email), Kind: kind}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM webauthn_challenges WHERE email = $1 AND kind = $2
		 RETURNING session_data, expires_at`,
		ch.Email, string(kind),
	).Scan(&ch.Data, &ch.ExpiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take webauthn challenge: %w", err)
	}

	if !r.now().Before(ch.ExpiresAt) {
		return nil, nil
	}
	return ch, nil
}

// compile-time interface check
var _ ChallengeRepository = (*PostgresChallengeRepo)(nil)
