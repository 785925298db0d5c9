// Package metrics exposes Prometheus instrumentation for the progression
// service: HTTP traffic, event bus throughput and ledger activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/accountable-hub/progression/internal/domain/shared"
)

const namespace = "progression"

// Metrics holds every collector. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	eventsPublished *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	handlerFailures *prometheus.CounterVec
	pointsMoved     *prometheus.CounterVec
	xpGranted       prometheus.Counter
	levelUps        prometheus.Counter
	badgesAwarded   *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobFailures     *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Events published on the bus",
			},
			[]string{"event_type"},
		),
		handlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_handler_duration_seconds",
				Help:      "Time spent in event handlers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		handlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_failures_total",
				Help:      "Event handlers that returned an error or panicked",
			},
			[]string{"event_type"},
		),
		pointsMoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "points_total",
				Help:      "Points moved through the ledger",
			},
			[]string{"direction"},
		),
		xpGranted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_granted_total",
			Help:      "XP granted across all users",
		}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Levels gained across all users",
		}),
		badgesAwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "badges_awarded_total",
				Help:      "Badge tiers awarded",
			},
			[]string{"badge_id", "tier"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduled job runs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		jobFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_failures_total",
				Help:      "Scheduled job runs that returned an error",
			},
			[]string{"job"},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsPublished,
		m.handlerDuration,
		m.handlerFailures,
		m.pointsMoved,
		m.xpGranted,
		m.levelUps,
		m.badgesAwarded,
		m.jobDuration,
		m.jobFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// ObservePublish implements messaging.Observer.
func (m *Metrics) ObservePublish(eventType shared.EventType) {
	m.eventsPublished.WithLabelValues(string(eventType)).Inc()
}

// ObserveHandler implements messaging.Observer.
func (m *Metrics) ObserveHandler(eventType shared.EventType, duration time.Duration, err error) {
	m.handlerDuration.WithLabelValues(string(eventType)).Observe(duration.Seconds())
	if err != nil {
		m.handlerFailures.WithLabelValues(string(eventType)).Inc()
	}
}

// RecordEvent is a bus handler that turns ledger events into counters.
// Subscribe it with SubscribeAll.
func (m *Metrics) RecordEvent(event shared.Event) error {
	switch e := event.(type) {
	case shared.PointsChangedEvent:
		switch e.EventType() {
		case shared.EventPointsEarned:
			m.pointsMoved.WithLabelValues("earned").Add(float64(e.Amount))
		case shared.EventPointsSpent, shared.EventPointsRedeemed:
			m.pointsMoved.WithLabelValues("spent").Add(float64(e.Amount))
		}
	case shared.XPGrantedEvent:
		m.xpGranted.Add(float64(e.Amount))
	case shared.LevelUpEvent:
		m.levelUps.Add(float64(e.NewLevel - e.OldLevel))
	case shared.BadgeAwardedEvent:
		m.badgesAwarded.WithLabelValues(e.BadgeID, e.Tier).Inc()
	}
	return nil
}

// ObserveJob records one scheduled job run.
func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		m.jobFailures.WithLabelValues(job).Inc()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP
// ══════════════════════════════════════════════════════════════════════════════

// Middleware records request counts and latency labelled by route template,
// so /users/{user_id} stays one series however many users there are.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		m.httpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(ww.status)).Inc()
		m.httpRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
