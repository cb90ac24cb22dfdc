// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 台帳クライアントやサービス層から利用する。
type MetricsCollector interface {
	RecordLedgerCall(method, outcome string, duration time.Duration)
	RecordVote(outcome string)
	RecordRegistration(outcome string)
	RecordLogin(outcome string)
	RecordCandidateAdmitted(outcome string)
	RecordUpload(bucket string, size int64)
	RecordHTTPStatus(statusCode int)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ledgerCalls    *prometheus.CounterVec
	ledgerLatency  *prometheus.HistogramVec
	votes          *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	candidates     *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	httpStatus     *prometheus.CounterVec
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ledgerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_ledger_calls_total",
			Help: "台帳呼び出しの合計数（メソッド・結果別）",
		}, []string{"method", "outcome"}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evote_ledger_call_duration_seconds",
			Help:    "台帳呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_votes_total",
			Help: "投票リクエストの合計数（結果別）",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_registrations_total",
			Help: "有権者登録の合計数（結果別）",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_logins_total",
			Help: "ログインの合計数（結果別）",
		}, []string{"outcome"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_candidates_admitted_total",
			Help: "候補者登録の合計数（結果別）",
		}, []string{"outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_uploads_total",
			Help: "ステージングしたファイル数（バケット別）",
		}, []string{"bucket"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evote_upload_bytes_total",
			Help: "ステージングしたファイルの合計バイト数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evote_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evote_sessions_purged_total",
			Help: "削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.ledgerCalls,
		c.ledgerLatency,
		c.votes,
		c.registrations,
		c.logins,
		c.candidates,
		c.uploads,
		c.uploadBytes,
		c.httpStatus,
		c.sessionsPurged,
	)

	return c
}

// RecordLedgerCall は台帳呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordLedgerCall(method, outcome string, duration time.Duration) {
	c.ledgerCalls.WithLabelValues(method, outcome).Inc()
	c.ledgerLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordVote は投票結果を記録する。
func (c *Collector) RecordVote(outcome string) {
	c.votes.WithLabelValues(outcome).Inc()
}

// RecordRegistration は有権者登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogin はログインの結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordCandidateAdmitted は候補者登録の結果を記録する。
func (c *Collector) RecordCandidateAdmitted(outcome string) {
	c.candidates.WithLabelValues(outcome).Inc()
}

// RecordUpload はステージングしたファイルを記録する。
func (c *Collector) RecordUpload(bucket string, size int64) {
	c.uploads.WithLabelValues(bucket).Inc()
	c.uploadBytes.Add(float64(size))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsPurged は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Outcome はエラー有無から結果ラベルを返す。
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Nop は何も記録しないMetricsCollector。テストや未設定時に使う。
type Nop struct{}

func (Nop) RecordLedgerCall(string, string, time.Duration) {}
func (Nop) RecordVote(string) {}
func (Nop) RecordRegistration(string) {}
func (Nop) RecordLogin(string) {}
func (Nop) RecordCandidateAdmitted(string) {}
func (Nop) RecordUpload(string, int64) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordSessionsPurged(int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
