package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/vendorhub/internal/model"
)

// PostgresAccessRequestRepo はPostgreSQLを使用したアクセス申請リポジトリ。
type PostgresAccessRequestRepo struct {
	db *sql.DB
}

// NewPostgresAccessRequestRepo はPostgresAccessRequestRepoを生成する。
func NewPostgresAccessRequestRepo(db *sql.DB) *PostgresAccessRequestRepo {
	return &PostgresAccessRequestRepo{db: db}
}

const accessRequestColumns = `id, email, name, message, status, created_at, updated_at`

func scanAccessRequest(row interface{ Scan(...any) error }) (*model.AccessRequest, error) {
	req := &model.AccessRequest{}
	var status string
	if err := row.Scan(&req.ID, &req.Email, &req.Name, &req.Message, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = model.AccessRequestStatus(status)
	return req, nil
}

// Create はアクセス申請を作成する。
func (r *PostgresAccessRequestRepo) Create(ctx context.Context, req *model.AccessRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_requests (`+accessRequestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.Email, req.Name, req.Message, string(req.Status), req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create access request: %w", err)
	}
	return nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresAccessRequestRepo) FindByID(ctx context.Context, id string) (*model.AccessRequest, error) {
	if !isUUID(id) {
		return nil, nil
	}

	req, err := scanAccessRequest(r.db.QueryRowContext(ctx,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find access request: %w", err)
	}
	return req, nil
}

// ListByStatus は指定状態の申請を新しい順に返す。
func (r *PostgresAccessRequestRepo) ListByStatus(ctx context.Context, status model.AccessRequestStatus) ([]model.AccessRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accessRequestColumns+` FROM access_requests WHERE status = $1 ORDER BY created_at DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	defer rows.Close()

	var out []model.AccessRequest
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate access requests: %w", err)
	}
	return out, nil
}

// UpdateStatus はPENDINGの申請の状態を更新する。
// 承認と却下が競合した場合は一方のみが成功する。
func (r *PostgresAccessRequestRepo) UpdateStatus(ctx context.Context, id string, status model.AccessRequestStatus, at time.Time) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE access_requests SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, string(status), at, string(model.AccessRequestPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update access request status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ AccessRequestRepository = (*PostgresAccessRequestRepo)(nil)
