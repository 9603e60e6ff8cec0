// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はリクエスト受付レイヤーのPrometheusメトリクスを収集する。
// middleware.AdmissionMetricsを実装する。
type Collector struct {
	tenantResolutions *prometheus.CounterVec
	authFailures      *prometheus.CounterVec
	scopeDenials      prometheus.Counter
	poolCreated       prometheus.Counter
	poolEvicted       prometheus.Counter
	httpStatus        *prometheus.CounterVec
	requestDuration   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tenantResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetman_tenant_resolutions_total",
			Help: "テナント解決の結果別の合計数",
		}, []string{"outcome"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetman_auth_failures_total",
			Help: "認証失敗の理由別の合計数",
		}, []string{"reason"}),
		scopeDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetman_scope_denials_total",
			Help: "作業エリアスコープによる拒否の合計数",
		}),
		poolCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetman_tenant_pool_created_total",
			Help: "テナント接続プール生成の合計数",
		}),
		poolEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetman_tenant_pool_evicted_total",
			Help: "テナント接続プール破棄の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetman_request_duration_seconds",
			Help:    "リクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.tenantResolutions,
		c.authFailures,
		c.scopeDenials,
		c.poolCreated,
		c.poolEvicted,
		c.httpStatus,
		c.requestDuration,
	)

	return c
}

// RecordTenantResolution はテナント解決の結果を記録する。
// outcomeは ok / not_found / inactive / unresolved / connection_error / error。
func (c *Collector) RecordTenantResolution(outcome string) {
	c.tenantResolutions.WithLabelValues(outcome).Inc()
}

// RecordAuthFailure は認証失敗を理由付きで記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordScopeDenial はスコープによる拒否を記録する。
func (c *Collector) RecordScopeDenial() {
	c.scopeDenials.Inc()
}

// RecordPoolCreated はテナント接続プールの生成を記録する。
func (c *Collector) RecordPoolCreated() {
	c.poolCreated.Inc()
}

// RecordPoolEvicted はテナント接続プールの破棄を記録する。
func (c *Collector) RecordPoolEvicted() {
	c.poolEvicted.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
