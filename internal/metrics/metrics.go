// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "africashands"

// ProfileRecorder はプロフィール解決の劣化経路を記録する。
type ProfileRecorder interface {
	RecordProfileResolution(outcome string)
	RecordProfileReadFailure(reason string)
	RecordProfileWriteFailure(mode string)
	RecordRoleOverride()
}

// CallbackRecorder はOAuthコールバックの終了状態を記録する。
type CallbackRecorder interface {
	RecordCallbackOutcome(status, path string)
}

// AuthRecorder は認証イベントを記録する。
type AuthRecorder interface {
	RecordAuthEvent(event string)
}

// ImportRecorder はパートナーフィード取り込みの結果を記録する。
type ImportRecorder interface {
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string, reason string)
	RecordParseFailure(sourceID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordOpportunitiesUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	profileResolutions   *prometheus.CounterVec
	profileReadFailures  *prometheus.CounterVec
	profileWriteFailures *prometheus.CounterVec
	roleOverrides        prometheus.Counter
	callbackOutcomes     *prometheus.CounterVec
	authEvents           *prometheus.CounterVec
	fetchSuccess         prometheus.Counter
	fetchFail            *prometheus.CounterVec
	parseFail            prometheus.Counter
	httpStatus           *prometheus.CounterVec
	fetchLatency         prometheus.Histogram
	oppsUpserted         prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		profileResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_resolutions_total",
			Help:      "結果別のプロフィール解決数（found, created, fallback）",
		}, []string{"outcome"}),
		profileReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_read_failures_total",
			Help:      "プロフィール読み取りの失敗数（timeout, error）",
		}, []string{"reason"}),
		profileWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_write_failures_total",
			Help:      "プロフィール書き込みの失敗数（insert, upsert, role_update）",
		}, []string{"mode"}),
		roleOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_overrides_total",
			Help:      "保存済みロールを導出ロールで上書きした回数",
		}),
		callbackOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_outcomes_total",
			Help:      "OAuthコールバックの終了状態と経路",
		}, []string{"status", "path"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "種別ごとの認証イベント数",
		}, []string{"event"}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_fetch_success_total",
			Help:      "パートナーフィードのフェッチ成功数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_fetch_fail_total",
			Help:      "パートナーフィードのフェッチ失敗数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_parse_fail_total",
			Help:      "パートナーフィードのパース失敗数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_http_status_total",
			Help:      "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_fetch_latency_seconds",
			Help:      "パートナーフィードのフェッチレイテンシ（秒）",
			Buckets:   prometheus.DefBuckets,
		}),
		oppsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_opportunities_upserted_total",
			Help:      "取り込みで作成・更新された機会の合計数",
		}),
	}

	reg.MustRegister(
		c.profileResolutions,
		c.profileReadFailures,
		c.profileWriteFailures,
		c.roleOverrides,
		c.callbackOutcomes,
		c.authEvents,
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.oppsUpserted,
	)

	return c
}

// RecordProfileResolution はプロフィール解決の結果を記録する。
func (c *Collector) RecordProfileResolution(outcome string) {
	c.profileResolutions.WithLabelValues(outcome).Inc()
}

// RecordProfileReadFailure はプロフィール読み取りの失敗を記録する。
func (c *Collector) RecordProfileReadFailure(reason string) {
	c.profileReadFailures.WithLabelValues(reason).Inc()
}

// RecordProfileWriteFailure はプロフィール書き込みの失敗を記録する。
func (c *Collector) RecordProfileWriteFailure(mode string) {
	c.profileWriteFailures.WithLabelValues(mode).Inc()
}

// RecordRoleOverride はロールの上書きを記録する。
func (c *Collector) RecordRoleOverride() {
	c.roleOverrides.Inc()
}

// RecordCallbackOutcome はOAuthコールバックの終了状態を記録する。
func (c *Collector) RecordCallbackOutcome(status, path string) {
	c.callbackOutcomes.WithLabelValues(status, path).Inc()
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event string) {
	c.authEvents.WithLabelValues(event).Inc()
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(sourceID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(sourceID string, reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(sourceID string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordOpportunitiesUpserted は作成・更新された機会数を記録する。
func (c *Collector) RecordOpportunitiesUpserted(count int) {
	c.oppsUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ ProfileRecorder  = (*Collector)(nil)
	_ CallbackRecorder = (*Collector)(nil)
	_ AuthRecorder     = (*Collector)(nil)
	_ ImportRecorder   = (*Collector)(nil)
)
