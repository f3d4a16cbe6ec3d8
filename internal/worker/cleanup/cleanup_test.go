package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type execCall struct {
	query string
	args  []interface{}
}

// mockExecutor はクエリに含まれるテーブル名ごとに結果を返す。
type mockExecutor struct {
	calls   []execCall
	results map[string]int64
	errs    map[string]error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.calls = append(m.calls, execCall{query: query, args: args})
	for table, err := range m.errs {
		if strings.Contains(query, "FROM "+table) {
			return nil, err
		}
	}
	for table, n := range m.results {
		if strings.Contains(query, "FROM "+table) {
			return &fakeResult{rowsAffected: n}, nil
		}
	}
	return &fakeResult{}, nil
}

type recordingRecorder struct {
	deleted map[string]int64
}

func (r *recordingRecorder) RecordCleanupDeleted(target string, count int64) {
	if r.deleted == nil {
		r.deleted = map[string]int64{}
	}
	r.deleted[target] += count
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&buf), nil)

	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

func TestCleanupJob_Run_DeletesAllTargets(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{results: map[string]int64{
		"webauthn_challenges": 3,
		"sessions":            5,
		"access_requests":     1,
	}}
	rec := &recordingRecorder{}
	job := NewCleanupJob(db, newTestLogger(&buf), rec)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(db.calls) != 3 {
		t.Fatalf("ExecContext called %d times, want 3", len(db.calls))
	}
	want := map[string]int64{TargetChallenges: 3, TargetSessions: 5, TargetAccessRequests: 1}
	for target, n := range want {
		if rec.deleted[target] != n {
			t.Errorf("deleted[%s] = %d, want %d", target, rec.deleted[target], n)
		}
	}
}

func TestCleanupJob_Run_QueryConditions(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{}
	job := NewCleanupJob(db, newTestLogger(&buf), nil)
	job.RetentionDays = 30

	_ = job.Run(context.Background())

	tests := []struct {
		name     string
		index    int
		contains []string
		args     []interface{}
	}{
		{"チャレンジは期限切れのみ", 0, []string{"DELETE FROM webauthn_challenges", "expires_at <= now()"}, nil},
		{"セッションは期限切れのみ", 1, []string{"DELETE FROM sessions", "expires_at <= now()"}, nil},
		{"却下済み申請は保持期間超過のみ", 2, []string{"DELETE FROM access_requests", "status = 'REJECTED'", "updated_at <"}, []interface{}{"30 days"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := db.calls[tt.index]
			for _, s := range tt.contains {
				if !strings.Contains(call.query, s) {
					t.Errorf("query %q does not contain %q", call.query, s)
				}
			}
			if len(call.args) != len(tt.args) {
				t.Fatalf("args = %v, want %v", call.args, tt.args)
			}
			for i := range tt.args {
				if call.args[i] != tt.args[i] {
					t.Errorf("args[%d] = %v, want %v", i, call.args[i], tt.args[i])
				}
			}
		})
	}
}

func TestCleanupJob_Run_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{
		results: map[string]int64{"access_requests": 2},
		errs:    map[string]error{"sessions": errors.New("connection refused")},
	}
	rec := &recordingRecorder{}
	job := NewCleanupJob(db, newTestLogger(&buf), rec)

	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sessions") {
		t.Fatalf("Run() error = %v, want sessions failure", err)
	}
	if len(db.calls) != 3 {
		t.Errorf("ExecContext called %d times, want 3", len(db.calls))
	}
	if rec.deleted[TargetAccessRequests] != 2 {
		t.Errorf("access_requests deleted = %d, want 2", rec.deleted[TargetAccessRequests])
	}
	if _, ok := rec.deleted[TargetSessions]; ok {
		t.Error("failed target must not be recorded")
	}
	if !strings.Contains(buf.String(), "cleanup failed") {
		t.Errorf("failure is not logged: %s", buf.String())
	}
}

func TestCleanupJob_Run_LogsTotal(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{results: map[string]int64{"sessions": 40, "webauthn_challenges": 2}}
	job := NewCleanupJob(db, newTestLogger(&buf), nil)

	_ = job.Run(context.Background())

	found := false
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["msg"] == "cleanup job completed" && entry["deleted_count"] == float64(42) {
			found = true
		}
	}
	if !found {
		t.Errorf("total deleted_count=42 is not logged: %s", buf.String())
	}
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	db := &mockExecutor{}
	job := NewCleanupJob(db, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if len(db.calls) != 3 {
		t.Errorf("initial run executed %d queries, want 3", len(db.calls))
	}
}
