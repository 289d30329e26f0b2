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
// Steamクライアントや比較サービスから利用する。
type MetricsCollector interface {
	RecordSteamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordSteamTransportError(endpoint string, duration time.Duration)
	RecordAchievementDegraded(appID int)
	RecordComparison(mode string, outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	steamRequests    *prometheus.CounterVec
	steamLatency     *prometheus.HistogramVec
	achievementDrops prometheus.Counter
	comparisons      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		steamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamcompare_steam_requests_total",
			Help: "Steam Web API呼び出しのエンドポイント・ステータス別の合計数",
		}, []string{"endpoint", "status"}),
		steamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steamcompare_steam_request_seconds",
			Help:    "Steam Web API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		achievementDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steamcompare_achievement_degraded_total",
			Help: "実績取得に失敗し0件として扱ったゲームの合計数",
		}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steamcompare_comparisons_total",
			Help: "ライブラリ比較のモード・結果別の合計数",
		}, []string{"mode", "outcome"}),
	}

	reg.MustRegister(
		c.steamRequests,
		c.steamLatency,
		c.achievementDrops,
		c.comparisons,
	)

	return c
}

// RecordSteamRequest はHTTPレスポンスを受け取ったSteam API呼び出しを記録する。
func (c *Collector) RecordSteamRequest(endpoint string, statusCode int, duration time.Duration) {
	c.steamRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.steamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSteamTransportError はレスポンスを受け取れなかった呼び出しを記録する。
func (c *Collector) RecordSteamTransportError(endpoint string, duration time.Duration) {
	c.steamRequests.WithLabelValues(endpoint, "error").Inc()
	c.steamLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAchievementDegraded は実績数を0件に縮退したことを記録する。
func (c *Collector) RecordAchievementDegraded(appID int) {
	c.achievementDrops.Inc()
}

// RecordComparison は比較リクエストの結果を記録する。
// outcome は ok, partial, failed, cancelled のいずれか。
func (c *Collector) RecordComparison(mode string, outcome string) {
	c.comparisons.WithLabelValues(mode, outcome).Inc()
}

// NopCollector は何も記録しないMetricsCollector。テストやCLIで使用する。
type NopCollector struct{}

func (NopCollector) RecordSteamRequest(string, int, time.Duration) {}

func (NopCollector) RecordSteamTransportError(string, time.Duration) {}

func (NopCollector) RecordAchievementDegraded(int) {}

func (NopCollector) RecordComparison(string, string) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
