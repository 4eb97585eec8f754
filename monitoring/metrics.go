package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_registrations_total",
			Help: "Total registration attempts per outcome",
		},
		[]string{"event_id", "outcome"},
	)

	registrantCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_registrants_total",
			Help: "Current registrant count per event",
		},
		[]string{"event_id"},
	)

	paymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Payment state machine transitions",
		},
		[]string{"from", "to", "provider"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_sessions_active_total",
			Help: "Current number of live payment sessions",
		},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of gateway API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	recommenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommender_request_duration_seconds",
			Help:    "Duration of recommendation API calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	recommenderBreaker = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommender_circuit_open",
			Help: "1 when the recommender circuit breaker is open",
		},
	)
)

type Monitor struct {
	redis *redis.Client

	interval time.Duration
	stop     chan struct{}
}

func NewMonitor(redisClient *redis.Client, interval time.Duration) *Monitor {
	monitor := &Monitor{
		redis:    redisClient,
		interval: interval,
		stop:     make(chan struct{}),
	}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collectRegistrantMetrics(context.Background())
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) collectRegistrantMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "event:registrants:*").Result()
	for _, key := range keys {
		eventID := key[len("event:registrants:"):]
		count, _ := m.redis.SCard(ctx, key).Result()
		registrantCount.WithLabelValues(eventID).Set(float64(count))
	}

	sessionKeys, _ := m.redis.Keys(ctx, "payment:*").Result()
	activeSessions.Set(float64(len(sessionKeys)))
}

func (m *Monitor) Stop() {
	close(m.stop)
}

// TrackRegistration records a registration attempt outcome
// (added, duplicate, capacity_reached, released).
func (m *Monitor) TrackRegistration(eventID, outcome string) {
	registrations.WithLabelValues(eventID, outcome).Inc()
}

// TrackPaymentTransition records one edge of the payment machine.
func (m *Monitor) TrackPaymentTransition(from, to, provider string) {
	paymentTransitions.WithLabelValues(from, to, provider).Inc()
}

// TrackGatewayCall records the latency of a gateway API call.
func (m *Monitor) TrackGatewayCall(provider, operation string, duration time.Duration) {
	gatewayDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// TrackRecommenderCall records the latency of a recommendation API call.
func (m *Monitor) TrackRecommenderCall(duration time.Duration) {
	recommenderDuration.Observe(duration.Seconds())
}

// SetRecommenderBreaker reflects the breaker state on the gauge.
func (m *Monitor) SetRecommenderBreaker(open bool) {
	if open {
		recommenderBreaker.Set(1)
	} else {
		recommenderBreaker.Set(0)
	}
}
