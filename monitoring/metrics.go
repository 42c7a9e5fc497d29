package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	orderAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_allocations_total",
			Help: "Order creation attempts by outcome",
		},
		[]string{"outcome"},
	)

	allocationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "order_allocation_duration_seconds",
			Help:    "Duration of the order allocation transaction",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	orderCancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_cancellations_total",
			Help: "Order cancellation attempts by outcome",
		},
		[]string{"outcome"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment webhook deliveries by result",
		},
		[]string{"result"},
	)

	checkoutSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checkout_sessions_total",
			Help: "Current cached checkout sessions per status",
		},
		[]string{"status"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		m.collectSessionMetrics(ctx)
		goroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}

func (m *Monitor) collectSessionMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "checkout:*").Result()

	counts := map[string]float64{
		"pending":   0,
		"completed": 0,
		"cancelled": 0,
	}
	for _, key := range keys {
		status, err := m.redis.HGet(ctx, key, "status").Result()
		if err != nil {
			continue
		}
		counts[status]++
	}
	for status, n := range counts {
		checkoutSessions.WithLabelValues(status).Set(n)
	}
}

// TrackAllocation records one order creation attempt.
func TrackAllocation(outcome string, duration time.Duration) {
	orderAllocations.WithLabelValues(outcome).Inc()
	allocationDuration.Observe(duration.Seconds())
}

// TrackCancellation records one cancellation attempt.
func TrackCancellation(outcome string) {
	orderCancellations.WithLabelValues(outcome).Inc()
}

// TrackWebhook records one provider webhook delivery.
func TrackWebhook(result string) {
	webhookEvents.WithLabelValues(result).Inc()
}
