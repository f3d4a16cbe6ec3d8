// Package cleanup は期限切れデータの定期削除ジョブを提供する。
// 期限切れのWebAuthnチャレンジとセッション、保持期間を超過した却下済みアクセス申請を削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// 削除対象の名前。メトリクスのラベルとログに使う。
const (
	TargetChallenges     = "webauthn_challenges"
	TargetSessions       = "sessions"
	TargetAccessRequests = "access_requests"
)

// DefaultRetentionDays は却下済みアクセス申請の既定の保持日数。
const DefaultRetentionDays = 90

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Recorder は削除件数を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordCleanupDeleted(target string, count int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordCleanupDeleted(string, int64) {}

// task は1つの削除対象。argsがnilの場合は引数なしで実行する。
type task struct {
	target string
	query  string
	args   func(j *CleanupJob) []interface{}
}

var tasks = []task{
	{
		target: TargetChallenges,
		query:  `DELETE FROM webauthn_challenges WHERE expires_at <= now()`,
	},
	{
		target: TargetSessions,
		query:  `DELETE FROM sessions WHERE expires_at <= now()`,
	},
	{
		target: TargetAccessRequests,
		query:  `DELETE FROM access_requests WHERE status = 'REJECTED' AND updated_at < now() - $1::interval`,
		args: func(j *CleanupJob) []interface{} {
			return []interface{}{fmt.Sprintf("%d days", j.RetentionDays)}
		},
	},
}

// CleanupJob は期限切れデータの削除ジョブ。冪等で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	recorder      Recorder
	RetentionDays int // 却下済みアクセス申請の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderがnilの場合は記録しない。
func NewCleanupJob(db Executor, logger *slog.Logger, recorder Recorder) *CleanupJob {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		recorder:      recorder,
		RetentionDays: DefaultRetentionDays,
	}
}

// Run は全対象の削除を順に実行する。ある対象で失敗しても残りの対象は実行し、
// 最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	var firstErr error
	var total int64

	for _, t := range tasks {
		var args []interface{}
		if t.args != nil {
			args = t.args(j)
		}

		n, err := j.exec(ctx, t.query, args)
		if err != nil {
			j.logger.Error("cleanup failed",
				slog.String("target", t.target),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to clean up %s: %w", t.target, err)
			}
			continue
		}

		j.recorder.RecordCleanupDeleted(t.target, n)
		total += n
		j.logger.Info("cleanup target completed",
			slog.String("target", t.target),
			slog.Int64("deleted_count", n),
		)
	}

	j.logger.Info("cleanup job completed",
		slog.Int64("deleted_count", total),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return firstErr
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}

func (j *CleanupJob) exec(ctx context.Context, query string, args []interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
