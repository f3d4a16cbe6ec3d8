// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ゲートの判定結果ラベル
const (
	GatePublic   = "public"
	GateAuth     = "auth"
	GateRedirect = "redirect"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordGateDecision(decision string)
	RecordSessionRefresh(ok bool)
	RecordFeedbackSubmitted()
	RecordAccessRequest(outcome string)
	ObserveVendorQuery(duration time.Duration, rows int)
	RecordHTTPStatus(statusCode int)
	RecordCleanupDeleted(target string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions  *prometheus.CounterVec
	sessionRefresh *prometheus.CounterVec
	feedback       prometheus.Counter
	accessRequests *prometheus.CounterVec
	vendorQuery    prometheus.Histogram
	vendorRows     prometheus.Gauge
	httpStatus     *prometheus.CounterVec
	cleanupDeleted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorhub_gate_decisions_total",
			Help: "セッションゲートの判定結果別のリクエスト数",
		}, []string{"decision"}),
		sessionRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorhub_session_refresh_total",
			Help: "セッション更新の結果別の回数",
		}, []string{"result"}),
		feedback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vendorhub_feedback_submitted_total",
			Help: "投稿されたフィードバックの合計数",
		}),
		accessRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorhub_access_requests_total",
			Help: "アクセス申請の処理結果別の件数",
		}, []string{"outcome"}),
		vendorQuery: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vendorhub_vendor_query_duration_seconds",
			Help:    "ベンダー一覧のフィルタ・ソート処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		vendorRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vendorhub_vendor_query_rows",
			Help: "直近のベンダー一覧クエリが返した件数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorhub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vendorhub_cleanup_deleted_total",
			Help: "クリーンアップジョブで削除したレコード数",
		}, []string{"target"}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.sessionRefresh,
		c.feedback,
		c.accessRequests,
		c.vendorQuery,
		c.vendorRows,
		c.httpStatus,
		c.cleanupDeleted,
	)

	return c
}

// RecordGateDecision はゲートの判定結果（public, auth, redirect）を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// RecordSessionRefresh はセッション更新の成否を記録する。
func (c *Collector) RecordSessionRefresh(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.sessionRefresh.WithLabelValues(result).Inc()
}

// RecordFeedbackSubmitted はフィードバック投稿を記録する。
func (c *Collector) RecordFeedbackSubmitted() {
	c.feedback.Inc()
}

// RecordAccessRequest はアクセス申請の処理結果を記録する。
func (c *Collector) RecordAccessRequest(outcome string) {
	c.accessRequests.WithLabelValues(outcome).Inc()
}

// ObserveVendorQuery はベンダー一覧の処理時間と件数を記録する。
func (c *Collector) ObserveVendorQuery(duration time.Duration, rows int) {
	c.vendorQuery.Observe(duration.Seconds())
	c.vendorRows.Set(float64(rows))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCleanupDeleted はクリーンアップで削除した件数を対象別に記録する。
func (c *Collector) RecordCleanupDeleted(target string, count int64) {
	if count <= 0 {
		return
	}
	c.cleanupDeleted.WithLabelValues(target).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// メトリクス専用ポートで公開する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordGateDecision(string) {}
func (Nop) RecordSessionRefresh(bool) {}
func (Nop) RecordFeedbackSubmitted() {}
func (Nop) RecordAccessRequest(string) {}
func (Nop) ObserveVendorQuery(time.Duration, int) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordCleanupDeleted(string, int64) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
