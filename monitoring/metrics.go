package monitoring

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	salesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_total",
			Help: "Sale status transitions applied",
		},
		[]string{"status", "payment_method"},
	)

	webhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Gateway notifications received, by provider and result",
		},
		[]string{"provider", "result"},
	)

	ticketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Tickets minted for completed sales",
		},
	)

	reservationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_rejections_total",
			Help: "Reservation attempts rejected, by reason",
		},
		[]string{"reason"},
	)

	pendingSales = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_sales",
			Help: "Sales currently awaiting payment confirmation",
		},
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Duration of outbound payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "outcome"},
	)
)

// TrackSaleTransition records an applied sale status transition.
func TrackSaleTransition(status, paymentMethod string) {
	salesTotal.WithLabelValues(status, paymentMethod).Inc()
}

// TrackWebhook records an inbound gateway notification outcome.
func TrackWebhook(provider, result string) {
	webhookNotifications.WithLabelValues(provider, result).Inc()
}

// TrackTicketsIssued records a minted ticket batch.
func TrackTicketsIssued(count int) {
	ticketsIssued.Add(float64(count))
}

// TrackReservationRejection records a rejected reservation attempt.
func TrackReservationRejection(reason string) {
	reservationRejections.WithLabelValues(reason).Inc()
}

// TrackGatewayCall records the duration and outcome of a gateway call.
func TrackGatewayCall(provider, outcome string, duration time.Duration) {
	gatewayCallDuration.WithLabelValues(provider, outcome).Observe(duration.Seconds())
}

type Monitor struct {
	app core.App
}

func NewMonitor(app core.App) *Monitor {
	monitor := &Monitor{app: app}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectPendingSales()
	}
}

func (m *Monitor) collectPendingSales() {
	var count struct {
		Total int `db:"total"`
	}
	err := m.app.DB().
		NewQuery("SELECT COUNT(*) AS total FROM sales WHERE status = 'pending'").
		One(&count)
	if err != nil {
		return
	}
	pendingSales.Set(float64(count.Total))
}
