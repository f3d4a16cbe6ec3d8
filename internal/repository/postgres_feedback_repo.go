package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/vendorhub/internal/model"
)

// PostgresCapabilityRepo はPostgreSQLを使用したケイパビリティリポジトリ。
type PostgresCapabilityRepo struct {
	db *sql.DB
}

// NewPostgresCapabilityRepo はPostgresCapabilityRepoを生成する。
func NewPostgresCapabilityRepo(db *sql.DB) *PostgresCapabilityRepo {
	return &PostgresCapabilityRepo{db: db}
}

// List は全ケイパビリティを名前順に返す。
func (r *PostgresCapabilityRepo) List(ctx context.Context) ([]model.Capability, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, slug, name FROM capabilities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list capabilities: %w", err)
	}
	defer rows.Close()

	var out []model.Capability
	for rows.Next() {
		var c model.Capability
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan capability: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate capabilities: %w", err)
	}
	return out, nil
}

// PostgresFeedbackRepo はPostgreSQLを使用したフィードバックリポジトリ。
type PostgresFeedbackRepo struct {
	db *sql.DB
}

// NewPostgresFeedbackRepo はPostgresFeedbackRepoを生成する。
func NewPostgresFeedbackRepo(db *sql.DB) *PostgresFeedbackRepo {
	return &PostgresFeedbackRepo{db: db}
}

// Create はフィードバックを追加する。
func (r *PostgresFeedbackRepo) Create(ctx context.Context, fb *model.Feedback) error {
	tags := fb.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feedback (id, vendor_id, author_id, author, rating_quality, rating_speed, rating_comm,
		   text, tags, link, is_private, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		fb.ID, fb.VendorID, fb.AuthorID, fb.Author, fb.RatingQuality, fb.RatingSpeed, fb.RatingComm,
		fb.Text, pq.Array(tags), fb.Link, fb.IsPrivate, fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ CapabilityRepository = (*PostgresCapabilityRepo)(nil)
	_ FeedbackRepository   = (*PostgresFeedbackRepo)(nil)
)
