package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/lineflow-backend/internal/platform/envutil"
	"github.com/yungbote/lineflow-backend/internal/platform/logger"
)

// Metrics holds every collector the service exports. All methods are safe on
// a nil receiver so callers never branch on METRICS_ENABLED.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	webhookEvents *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	surveyAnswers *prometheus.CounterVec
	surveyDone    prometheus.Counter

	sweepRuns     *prometheus.CounterVec
	sweepFlows    *prometheus.CounterVec
	sweepDuration prometheus.Histogram

	followerSync *prometheus.CounterVec

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide Metrics when METRICS_ENABLED is set and
// returns nil otherwise.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New(prometheus.NewRegistry())
		if log != nil {
			log.Info("prometheus metrics enabled")
		}
	})
	return instance
}

// New registers the collectors on reg. Tests pass a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lf_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "lf_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_webhook_events_total",
			Help: "Webhook events by type and outcome (dispatched, duplicate, failed).",
		}, []string{"type", "outcome"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_deliveries_total",
			Help: "Outbound messages by mode (reply, push) and status.",
		}, []string{"mode", "status"}),
		surveyAnswers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_survey_answers_total",
			Help: "Survey answers accepted by question order.",
		}, []string{"order"}),
		surveyDone: f.NewCounter(prometheus.CounterOpts{
			Name: "lf_survey_completions_total",
			Help: "Survey sessions completed.",
		}),
		sweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_sweep_runs_total",
			Help: "Due sweeps by trigger.",
		}, []string{"trigger"}),
		sweepFlows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_sweep_flows_total",
			Help: "Flows handled by due sweeps by result (due, sent, completed, failed).",
		}, []string{"result"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lf_sweep_duration_seconds",
			Help:    "Due sweep wall time in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		followerSync: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lf_follower_sync_customers_total",
			Help: "Customers touched by follower sync by result.",
		}, []string{"result"}),
		pgStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lf_postgres_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "lf_redis_up",
			Help: "1 when the last Redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Name: "lf_redis_ping_seconds",
			Help: "Latency of the last Redis ping.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) IncDelivery(mode, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(mode, status).Inc()
}

func (m *Metrics) IncSurveyAnswer(order int) {
	if m == nil {
		return
	}
	m.surveyAnswers.WithLabelValues(strconv.Itoa(order)).Inc()
}

func (m *Metrics) IncSurveyCompleted() {
	if m == nil {
		return
	}
	m.surveyDone.Inc()
}

func (m *Metrics) ObserveSweep(trigger string, due, sent, completed, failed int, dur time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(trigger).Inc()
	m.sweepFlows.WithLabelValues("due").Add(float64(due))
	m.sweepFlows.WithLabelValues("sent").Add(float64(sent))
	m.sweepFlows.WithLabelValues("completed").Add(float64(completed))
	m.sweepFlows.WithLabelValues("failed").Add(float64(failed))
	m.sweepDuration.Observe(dur.Seconds())
}

func (m *Metrics) ObserveFollowerSync(inserted, reactivated, blocked int) {
	if m == nil {
		return
	}
	m.followerSync.WithLabelValues("inserted").Add(float64(inserted))
	m.followerSync.WithLabelValues("reactivated").Add(float64(reactivated))
	m.followerSync.WithLabelValues("blocked").Add(float64(blocked))
}

func scrapeInterval() time.Duration {
	d := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || addr == "" {
		return
	}
	interval := scrapeInterval()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = rdb.Close()
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func parseFloat(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}
