// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はアップロードフローのPrometheusメトリクスを収集する。
// recordingサービスとHTTPミドルウェアから利用する。
type Collector struct {
	presign           prometheus.Counter
	chunkUpload       prometheus.Counter
	uploadFail        prometheus.Counter
	sessionsCompleted prometheus.Counter
	httpStatus        *prometheus.CounterVec
	uploadPushLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		presign: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medivox_presign_total",
			Help: "アップロード先URL発行の合計数",
		}),
		chunkUpload: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medivox_chunk_upload_total",
			Help: "確定したチャンクアップロードの合計数",
		}),
		uploadFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medivox_upload_fail_total",
			Help: "アップロード処理失敗の合計数",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "medivox_sessions_completed_total",
			Help: "完了した録音セッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "medivox_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		uploadPushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "medivox_upload_push_latency_seconds",
			Help:    "リレーバイトのストレージ押し出しレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.presign,
		c.chunkUpload,
		c.uploadFail,
		c.sessionsCompleted,
		c.httpStatus,
		c.uploadPushLatency,
	)

	return c
}

// IncPresign はアップロード先URLの発行を記録する。
func (c *Collector) IncPresign() {
	c.presign.Inc()
}

// IncChunkUpload はチャンクアップロードの確定を記録する。
func (c *Collector) IncChunkUpload() {
	c.chunkUpload.Inc()
}

// IncUploadFail はアップロード処理の失敗を記録する。
func (c *Collector) IncUploadFail() {
	c.uploadFail.Inc()
}

// IncSessionCompleted はセッションの完了を記録する。
func (c *Collector) IncSessionCompleted() {
	c.sessionsCompleted.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// ObserveUploadPushLatency はストレージ押し出しのレイテンシを記録する。
func (c *Collector) ObserveUploadPushLatency(seconds float64) {
	c.uploadPushLatency.Observe(seconds)
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
