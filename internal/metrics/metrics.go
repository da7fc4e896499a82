// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Meetリンク発行結果のラベル値。
const (
	MeetLinkProvisioned = "provisioned"
	MeetLinkFallback    = "fallback"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、通知ワーカー、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordBookingCreated()
	RecordBookingConflict()
	RecordConnectionTransition(status string)
	RecordMeetingTransition(status string)
	RecordMeetLink(result string)
	RecordNotificationPublished(kind string)
	RecordNotificationFailure(kind string, stage string)
	RecordEmailSent()
	RecordEmailFailure()
	RecordEmailLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	bookingsCreated       prometheus.Counter
	bookingConflicts      prometheus.Counter
	connectionTransitions *prometheus.CounterVec
	meetingTransitions    *prometheus.CounterVec
	meetLinks             *prometheus.CounterVec
	notificationsOut      *prometheus.CounterVec
	notificationFailures  *prometheus.CounterVec
	emailsSent            prometheus.Counter
	emailFailures         prometheus.Counter
	emailLatency          prometheus.Histogram
	httpStatus            *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		bookingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedly_bookings_created_total",
			Help: "作成された予約の合計数",
		}),
		bookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedly_booking_conflicts_total",
			Help: "時間帯の重複で拒否された予約の合計数",
		}),
		connectionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedly_connection_transitions_total",
			Help: "遷移先の状態別のつながり状態遷移数",
		}, []string{"status"}),
		meetingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedly_meeting_request_transitions_total",
			Help: "遷移先の状態別のミーティングリクエスト状態遷移数",
		}, []string{"status"}),
		meetLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedly_meet_links_total",
			Help: "結果別のMeetリンク発行数（provisioned / fallback）",
		}, []string{"result"}),
		notificationsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedly_notifications_published_total",
			Help: "種別ごとの通知発行数",
		}, []string{"kind"}),
		notificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedly_notification_failures_total",
			Help: "種別・段階ごとの通知失敗数",
		}, []string{"kind", "stage"}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedly_emails_sent_total",
			Help: "送信に成功したメールの合計数",
		}),
		emailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedly_email_failures_total",
			Help: "送信に失敗したメールの合計数",
		}),
		emailLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "schedly_email_send_latency_seconds",
			Help:    "SMTP送信のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedly_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.bookingsCreated,
		c.bookingConflicts,
		c.connectionTransitions,
		c.meetingTransitions,
		c.meetLinks,
		c.notificationsOut,
		c.notificationFailures,
		c.emailsSent,
		c.emailFailures,
		c.emailLatency,
		c.httpStatus,
	)

	return c
}

// RecordBookingCreated は予約作成を記録する。
func (c *Collector) RecordBookingCreated() {
	c.bookingsCreated.Inc()
}

// RecordBookingConflict は重複による予約拒否を記録する。
func (c *Collector) RecordBookingConflict() {
	c.bookingConflicts.Inc()
}

// RecordConnectionTransition はつながりの状態遷移を記録する。
func (c *Collector) RecordConnectionTransition(status string) {
	c.connectionTransitions.WithLabelValues(status).Inc()
}

// RecordMeetingTransition はミーティングリクエストの状態遷移を記録する。
func (c *Collector) RecordMeetingTransition(status string) {
	c.meetingTransitions.WithLabelValues(status).Inc()
}

// RecordMeetLink はMeetリンク発行の結果を記録する。
func (c *Collector) RecordMeetLink(result string) {
	c.meetLinks.WithLabelValues(result).Inc()
}

// RecordNotificationPublished は通知の発行を記録する。
func (c *Collector) RecordNotificationPublished(kind string) {
	c.notificationsOut.WithLabelValues(kind).Inc()
}

// RecordNotificationFailure は通知の失敗を記録する。stageは publish / deliver のいずれか。
func (c *Collector) RecordNotificationFailure(kind string, stage string) {
	c.notificationFailures.WithLabelValues(kind, stage).Inc()
}

// RecordEmailSent はメール送信成功を記録する。
func (c *Collector) RecordEmailSent() {
	c.emailsSent.Inc()
}

// RecordEmailFailure はメール送信失敗を記録する。
func (c *Collector) RecordEmailFailure() {
	c.emailFailures.Inc()
}

// RecordEmailLatency はメール送信のレイテンシを記録する。
func (c *Collector) RecordEmailLatency(duration time.Duration) {
	c.emailLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。ワーカープロセスのメトリクスサーバーで使用する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
