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
// 認証サービスやミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(outcome string)
	RecordLogout()
	RecordStatusCheck(authenticated bool)
	RecordHTTPStatus(statusCode int)
	RecordPasswordVerify(duration time.Duration)
	RecordRateLimited(limitType string)
}

// ログイン結果のラベル値。失敗時はエラーコードを小文字にしたものを使う。
const OutcomeSuccess = "success"

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginTotal     *prometheus.CounterVec
	logoutTotal    prometheus.Counter
	statusChecks   *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	passwordVerify prometheus.Histogram
	rateLimited    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolsite_login_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"outcome"}),
		logoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schoolsite_logout_total",
			Help: "ログアウトの合計数",
		}),
		statusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolsite_status_check_total",
			Help: "認証状態確認の結果別合計数",
		}, []string{"authenticated"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolsite_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		passwordVerify: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schoolsite_password_verify_seconds",
			Help:    "パスワード照合にかかった時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schoolsite_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"limit_type"}),
	}

	reg.MustRegister(
		c.loginTotal,
		c.logoutTotal,
		c.statusChecks,
		c.httpStatus,
		c.passwordVerify,
		c.rateLimited,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.loginTotal.WithLabelValues(outcome).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logoutTotal.Inc()
}

// RecordStatusCheck は認証状態確認の結果を記録する。
func (c *Collector) RecordStatusCheck(authenticated bool) {
	c.statusChecks.WithLabelValues(strconv.FormatBool(authenticated)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPasswordVerify はパスワード照合の所要時間を記録する。
func (c *Collector) RecordPasswordVerify(duration time.Duration) {
	c.passwordVerify.Observe(duration.Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// Nop は何も記録しないMetricsCollector。テストや未設定時に使用する。
type Nop struct{}

func (Nop) RecordLogin(string)                 {}
func (Nop) RecordLogout()                      {}
func (Nop) RecordStatusCheck(bool)             {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordPasswordVerify(time.Duration) {}
func (Nop) RecordRateLimited(string)           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
