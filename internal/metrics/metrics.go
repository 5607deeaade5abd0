// Package metrics exposes the pipeline's Prometheus instruments. Both
// services share the registry shape; each binary registers only what it
// touches via its collector struct.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification counters, labelled by channel type.
type NotificationMetrics struct {
	Admitted  *prometheus.CounterVec
	Sent      *prometheus.CounterVec
	Failed    *prometheus.CounterVec
	Retried   *prometheus.CounterVec
	Cancelled prometheus.Counter

	QueueDepth   prometheus.Gauge
	SendDuration *prometheus.HistogramVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	factory := promauto.With(reg)

	return &NotificationMetrics{
		Admitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_admitted_total",
			Help: "Notifications accepted for delivery.",
		}, []string{"type"}),
		Sent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications handed to a provider.",
		}, []string{"type"}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Notifications that reached the failed status.",
		}, []string{"type"}),
		Retried: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_retried_total",
			Help: "Delivery attempts rescheduled after a retriable failure.",
		}, []string{"type"}),
		Cancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifications_cancelled_total",
			Help: "Notifications cancelled before dispatch.",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "notification_worker_queue_depth",
			Help: "Claimed notifications waiting for a delivery worker.",
		}),
		SendDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notification_send_duration_seconds",
			Help:    "Provider call latency per channel.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
	}
}

// Audit counters.
type AuditMetrics struct {
	Captured     *prometheus.CounterVec
	Deduplicated prometheus.Counter
	Dropped      *prometheus.CounterVec
	Alerts       prometheus.Counter
}

func NewAuditMetrics(reg prometheus.Registerer) *AuditMetrics {
	factory := promauto.With(reg)

	return &AuditMetrics{
		Captured: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_events_captured_total",
			Help: "Audit events persisted, by category.",
		}, []string{"category"}),
		Deduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_events_deduplicated_total",
			Help: "Bus events skipped as already captured.",
		}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Bus events rejected before persistence, by reason.",
		}, []string{"reason"}),
		Alerts: factory.NewCounter(prometheus.CounterOpts{
			Name: "audit_security_alerts_total",
			Help: "Security alerts raised from high-severity activity.",
		}),
	}
}

// Handler serves the registry in the standard exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
