package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/vendorhub/internal/model"
)

// PostgresVendorRepo はPostgreSQLを使用したベンダーリポジトリ。
// 集約の読み込みはベンダー・料金帯・ケイパビリティ・フィードバックの4クエリで行う。
type PostgresVendorRepo struct {
	db *sql.DB
}

// NewPostgresVendorRepo はPostgresVendorRepoを生成する。
func NewPostgresVendorRepo(db *sql.DB) *PostgresVendorRepo {
	return &PostgresVendorRepo{db: db}
}

const vendorColumns = `id, name, overview, platforms, industries, service_options,
	rater_training_speed, website, country, regions, created_at, updated_at`

// ListAggregates は削除されていない全ベンダーを関連データ付きで名前順に返す。
func (r *PostgresVendorRepo) ListAggregates(ctx context.Context) ([]model.VendorAggregate, error) {
	vendors, err := r.queryVendors(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return r.loadAggregates(ctx, vendors)
}

// FindAggregateByID は削除されていないベンダーを関連データ付きで返す。見つからない場合はnilを返す。
func (r *PostgresVendorRepo) FindAggregateByID(ctx context.Context, id string) (*model.VendorAggregate, error) {
	if !isUUID(id) {
		return nil, nil
	}

	vendors, err := r.queryVendors(ctx,
		`SELECT `+vendorColumns+` FROM vendors WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return nil, err
	}
	if len(vendors) == 0 {
		return nil, nil
	}

	aggs, err := r.loadAggregates(ctx, vendors)
	if err != nil {
		return nil, err
	}
	return &aggs[0], nil
}

// ListSummaries は削除されていない全ベンダーのIDと名前を名前順に返す。
func (r *PostgresVendorRepo) ListSummaries(ctx context.Context) ([]model.Vendor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM vendors WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendor summaries: %w", err)
	}
	defer rows.Close()

	var out []model.Vendor
	for rows.Next() {
		var v model.Vendor
		if err := rows.Scan(&v.ID, &v.Name); err != nil {
			return nil, fmt.Errorf("failed to scan vendor summary: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vendor summaries: %w", err)
	}
	return out, nil
}

// Exists は削除されていないベンダーが存在するかを返す。
func (r *PostgresVendorRepo) Exists(ctx context.Context, id string) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vendors WHERE id = $1 AND deleted_at IS NULL)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check vendor existence: %w", err)
	}
	return exists, nil
}

// Create はベンダー・料金帯・ケイパビリティの紐付けを同一トランザクションで作成する。
// ケイパビリティはslugで既存のものを再利用し、caps[i].IDは確定したIDで上書きされる。
func (r *PostgresVendorRepo) Create(ctx context.Context, v *model.Vendor, tiers []model.CostTier, caps []model.Capability) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO vendors (id, name, overview, platforms, industries, service_options,
		   rater_training_speed, website, country, regions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		v.ID, v.Name, v.Overview, pq.Array(v.Platforms), pq.Array(v.Industries),
		pq.Array(serviceOptionStrings(v.ServiceOptions)), v.RaterTrainingSpeed,
		v.Website, v.Country, pq.Array(v.Regions), v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to insert vendor %q: %w", v.Name, ErrConflict)
		}
		return fmt.Errorf("failed to insert vendor: %w", err)
	}

	for _, t := range tiers {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cost_tiers (id, vendor_id, tier_label, hourly_usd_min, hourly_usd_max, currency, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			t.ID, v.ID, t.TierLabel, t.HourlyUSDMin, t.HourlyUSDMax, t.Currency, t.Notes,
		)
		if err != nil {
			return fmt.Errorf("failed to insert cost tier: %w", err)
		}
	}

	for i := range caps {
		// DO UPDATEでないとRETURNINGが既存行を返さない
		err = tx.QueryRowContext(ctx,
			`INSERT INTO capabilities (id, slug, name) VALUES ($1, $2, $3)
			 ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
			 RETURNING id`,
			caps[i].ID, caps[i].Slug, caps[i].Name,
		).Scan(&caps[i].ID)
		if err != nil {
			return fmt.Errorf("failed to upsert capability %q: %w", caps[i].Slug, err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO vendor_capabilities (vendor_id, capability_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			v.ID, caps[i].ID,
		)
		if err != nil {
			return fmt.Errorf("failed to link capability: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SoftDelete はベンダーを論理削除する。対象がなければfalseを返す。
func (r *PostgresVendorRepo) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE vendors SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to soft delete vendor: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresVendorRepo) queryVendors(ctx context.Context, query string, args ...any) ([]model.Vendor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vendors: %w", err)
	}
	defer rows.Close()

	var out []model.Vendor
	for rows.Next() {
		var (
			v       model.Vendor
			options pq.StringArray
		)
		if err := rows.Scan(&v.ID, &v.Name, &v.Overview, pq.Array(&v.Platforms), pq.Array(&v.Industries),
			&options, &v.RaterTrainingSpeed, &v.Website, &v.Country, pq.Array(&v.Regions),
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		for _, o := range options {
			v.ServiceOptions = append(v.ServiceOptions, model.ServiceOption(o))
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vendors: %w", err)
	}
	return out, nil
}

// loadAggregates はvendorsの順序を保ったまま関連データを付与する。
func (r *PostgresVendorRepo) loadAggregates(ctx context.Context, vendors []model.Vendor) ([]model.VendorAggregate, error) {
	aggs := make([]model.VendorAggregate, len(vendors))
	if len(vendors) == 0 {
		return aggs, nil
	}

	index := make(map[string]*model.VendorAggregate, len(vendors))
	ids := make([]string, len(vendors))
	for i, v := range vendors {
		aggs[i].Vendor = v
		index[v.ID] = &aggs[i]
		ids[i] = v.ID
	}

	if err := r.loadCostTiers(ctx, ids, index); err != nil {
		return nil, err
	}
	if err := r.loadCapabilities(ctx, ids, index); err != nil {
		return nil, err
	}
	if err := r.loadFeedback(ctx, ids, index); err != nil {
		return nil, err
	}
	return aggs, nil
}

func (r *PostgresVendorRepo) loadCostTiers(ctx context.Context, ids []string, index map[string]*model.VendorAggregate) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, vendor_id, tier_label, hourly_usd_min, hourly_usd_max, currency, notes
		 FROM cost_tiers WHERE vendor_id = ANY($1::uuid[]) ORDER BY tier_label`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to query cost tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.CostTier
		if err := rows.Scan(&t.ID, &t.VendorID, &t.TierLabel, &t.HourlyUSDMin, &t.HourlyUSDMax, &t.Currency, &t.Notes); err != nil {
			return fmt.Errorf("failed to scan cost tier: %w", err)
		}
		if agg, ok := index[t.VendorID]; ok {
			agg.CostTiers = append(agg.CostTiers, t)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate cost tiers: %w", err)
	}
	return nil
}

func (r *PostgresVendorRepo) loadCapabilities(ctx context.Context, ids []string, index map[string]*model.VendorAggregate) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT vc.vendor_id, c.id, c.slug, c.name
		 FROM vendor_capabilities vc
		 JOIN capabilities c ON c.id = vc.capability_id
		 WHERE vc.vendor_id = ANY($1::uuid[])
		 ORDER BY c.name`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to query vendor capabilities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			vendorID string
			c        model.Capability
		)
		if err := rows.Scan(&vendorID, &c.ID, &c.Slug, &c.Name); err != nil {
			return fmt.Errorf("failed to scan vendor capability: %w", err)
		}
		if agg, ok := index[vendorID]; ok {
			agg.Capabilities = append(agg.Capabilities, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate vendor capabilities: %w", err)
	}
	return nil
}

func (r *PostgresVendorRepo) loadFeedback(ctx context.Context, ids []string, index map[string]*model.VendorAggregate) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, vendor_id, author_id, author, rating_quality, rating_speed, rating_comm,
		   text, tags, link, is_private, created_at
		 FROM feedback WHERE vendor_id = ANY($1::uuid[]) ORDER BY created_at DESC`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fb model.Feedback
		if err := rows.Scan(&fb.ID, &fb.VendorID, &fb.AuthorID, &fb.Author,
			&fb.RatingQuality, &fb.RatingSpeed, &fb.RatingComm,
			&fb.Text, pq.Array(&fb.Tags), &fb.Link, &fb.IsPrivate, &fb.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan feedback: %w", err)
		}
		if agg, ok := index[fb.VendorID]; ok {
			agg.Feedback = append(agg.Feedback, fb)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate feedback: %w", err)
	}
	return nil
}

func serviceOptionStrings(opts []model.ServiceOption) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = string(o)
	}
	return out
}

// compile-time interface check
var _ VendorRepository = (*PostgresVendorRepo)(nil)
