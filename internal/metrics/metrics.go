// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// ミドルウェアとハンドラーから利用する。
type Recorder interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
	RecordLoginSuccess(method string)
	RecordLoginFailure(code string)
	RecordRosterSync(users int)
	RecordUpload(kind string, bytes int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus      *prometheus.CounterVec
	requestDuration prometheus.Histogram
	loginSuccess    *prometheus.CounterVec
	loginFail       *prometheus.CounterVec
	rosterSyncs     prometheus.Counter
	rosterUsers     prometheus.Gauge
	uploads         *prometheus.CounterVec
	uploadBytes     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hispanet_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hispanet_request_duration_seconds",
			Help:    "リクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hispanet_login_success_total",
			Help: "ログイン成功の合計数（方式別）",
		}, []string{"method"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hispanet_login_fail_total",
			Help: "ログイン失敗の合計数（エラーコード別）",
		}, []string{"code"}),
		rosterSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hispanet_roster_sync_total",
			Help: "名簿同期成功の合計数",
		}),
		rosterUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hispanet_roster_users",
			Help: "名簿キャッシュ中のユーザー数",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hispanet_uploads_total",
			Help: "アップロード成功の合計数（用途別）",
		}, []string{"kind"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hispanet_upload_bytes_total",
			Help: "アップロードされた合計バイト数",
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestDuration,
		c.loginSuccess,
		c.loginFail,
		c.rosterSyncs,
		c.rosterUsers,
		c.uploads,
		c.uploadBytes,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// RecordLoginSuccess はログイン成功を方式（google/pin）別に記録する。
func (c *Collector) RecordLoginSuccess(method string) {
	c.loginSuccess.WithLabelValues(method).Inc()
}

// RecordLoginFailure はログイン失敗をエラーコード別に記録する。
func (c *Collector) RecordLoginFailure(code string) {
	c.loginFail.WithLabelValues(code).Inc()
}

// RecordRosterSync は名簿同期の成功とキャッシュ中ユーザー数を記録する。
func (c *Collector) RecordRosterSync(users int) {
	c.rosterSyncs.Inc()
	c.rosterUsers.Set(float64(users))
}

// RecordUpload はアップロード成功を用途別に記録する。
func (c *Collector) RecordUpload(kind string, bytes int64) {
	c.uploads.WithLabelValues(kind).Inc()
	c.uploadBytes.Add(float64(bytes))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ Recorder = (*Collector)(nil)
