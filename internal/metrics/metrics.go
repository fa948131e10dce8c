// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder はメトリクス収集のインターフェース。
// 各オーケストレータとリトライ実行層から利用する。
type Recorder interface {
	RecordRetry(class string)
	RecordOperationFailure(class string)
	RecordSessionBootstrap(outcome string)
	RecordLoadDuration(duration time.Duration)
	RecordReconcileEvent(collection string)
	RecordNotification(kind string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	retries         *prometheus.CounterVec
	opFailures      *prometheus.CounterVec
	bootstraps      *prometheus.CounterVec
	loadDuration    prometheus.Histogram
	reconcileEvents *prometheus.CounterVec
	notifications   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uzsub_retry_total",
			Help: "エラー分類別の再試行回数",
		}, []string{"class"}),
		opFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uzsub_operation_failure_total",
			Help: "エラー分類別の操作失敗数（再試行枯渇後）",
		}, []string{"class"}),
		bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uzsub_session_bootstrap_total",
			Help: "セッションブートストラップの結果別回数",
		}, []string{"outcome"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "uzsub_data_load_duration_seconds",
			Help:    "ダッシュボードデータ一括読み込みの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uzsub_reconcile_event_total",
			Help: "コレクション別のライブ更新リコンサイル回数",
		}, []string{"collection"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uzsub_notification_total",
			Help: "種別ごとの導出通知数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.retries,
		c.opFailures,
		c.bootstraps,
		c.loadDuration,
		c.reconcileEvents,
		c.notifications,
	)

	return c
}

// RecordRetry は再試行の実施を記録する。
func (c *Collector) RecordRetry(class string) {
	c.retries.WithLabelValues(class).Inc()
}

// RecordOperationFailure は再試行枯渇後の操作失敗を記録する。
func (c *Collector) RecordOperationFailure(class string) {
	c.opFailures.WithLabelValues(class).Inc()
}

// RecordSessionBootstrap はセッションブートストラップの結果を記録する。
func (c *Collector) RecordSessionBootstrap(outcome string) {
	c.bootstraps.WithLabelValues(outcome).Inc()
}

// RecordLoadDuration はデータ一括読み込みの所要時間を記録する。
func (c *Collector) RecordLoadDuration(duration time.Duration) {
	c.loadDuration.Observe(duration.Seconds())
}

// RecordReconcileEvent はライブ更新によるリコンサイルを記録する。
func (c *Collector) RecordReconcileEvent(collection string) {
	c.reconcileEvents.WithLabelValues(collection).Inc()
}

// RecordNotification は導出通知の発行を記録する。
func (c *Collector) RecordNotification(kind string) {
	c.notifications.WithLabelValues(kind).Inc()
}

// Nop は何も記録しないRecorder実装。テストや計測不要な組み込みで使う。
type Nop struct{}

// RecordRetry は何もしない。
func (Nop) RecordRetry(string) {}

// RecordOperationFailure は何もしない。
func (Nop) RecordOperationFailure(string) {}

// RecordSessionBootstrap は何もしない。
func (Nop) RecordSessionBootstrap(string) {}

// RecordLoadDuration は何もしない。
func (Nop) RecordLoadDuration(time.Duration) {}

// RecordReconcileEvent は何もしない。
func (Nop) RecordReconcileEvent(string) {}

// RecordNotification は何もしない。
func (Nop) RecordNotification(string) {}

var _ Recorder = (*Collector)(nil)
var _ Recorder = Nop{}
