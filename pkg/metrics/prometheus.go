// Package metrics provides Prometheus metrics for the callout game server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Call pipeline
	votesReceived *prometheus.CounterVec
	votesRejected *prometheus.CounterVec

	// Clusters and consensus
	clustersOpened   *prometheus.CounterVec
	clustersResolved *prometheus.CounterVec
	clustersOpen     prometheus.Gauge

	// Confirmed events and scoring
	eventsConfirmed *prometheus.CounterVec
	scoreAwards     prometheus.Counter
	scoreDelta      prometheus.Histogram

	// Wheel
	wheelSpins prometheus.Counter

	// Rooms and mailboxes
	roomsActive      prometheus.Gauge
	mailboxDepth     prometheus.Gauge
	mailboxRejects   prometheus.Counter
	handleLatency    prometheus.Histogram
	publishErrors    prometheus.Counter
	auditWriteErrors prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "callout",
		subsystem:        "game",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // collector table
	auto := promauto.With(m.registry)

	m.votesReceived = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "votes_received_total",
		Help:      "Calls accepted into the clusterer, by consensus mode",
	}, []string{"mode"})

	m.votesRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "votes_rejected_total",
		Help:      "Calls rejected at the room boundary, by reason",
	}, []string{"reason"})

	m.clustersOpened = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clusters_opened_total",
		Help:      "Vote clusters opened, by consensus mode",
	}, []string{"mode"})

	m.clustersResolved = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clusters_resolved_total",
		Help:      "Vote clusters leaving the open set, by mode and outcome",
	}, []string{"mode", "outcome"})

	m.clustersOpen = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clusters_open",
		Help:      "Clusters currently awaiting resolution across all rooms",
	})

	m.eventsConfirmed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_confirmed_total",
		Help:      "Confirmed events, by source",
	}, []string{"source"})

	m.scoreAwards = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "score_awards_total",
		Help:      "Parlay score updates emitted",
	})

	m.scoreDelta = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "score_delta_points",
		Help:      "Distribution of per-parlay score deltas",
		Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34},
	})

	m.wheelSpins = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "wheel_spins_total",
		Help:      "Punishment wheel spins",
	})

	m.roomsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rooms_active",
		Help:      "Rooms currently registered",
	})

	m.mailboxDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mailbox_depth",
		Help:      "Commands waiting across room mailboxes at last sample",
	})

	m.mailboxRejects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mailbox_rejects_total",
		Help:      "Commands refused because a room mailbox was full or closed",
	})

	m.handleLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "command_handle_milliseconds",
		Help:      "Time spent handling one room command",
		Buckets:   m.histogramBuckets,
	})

	m.publishErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "publish_errors_total",
		Help:      "Outbound messages that failed to publish",
	})

	m.auditWriteErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "audit_write_errors_total",
		Help:      "Audit records that failed to persist",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordVoteReceived counts a call that entered clustering.
func RecordVoteReceived(mode string) { globalManager.votesReceived.WithLabelValues(mode).Inc() }

// RecordVoteRejected counts a call refused at the boundary.
func RecordVoteRejected(reason string) { globalManager.votesRejected.WithLabelValues(reason).Inc() }

// RecordClusterOpened counts a new cluster.
func RecordClusterOpened(mode string) {
	globalManager.clustersOpened.WithLabelValues(mode).Inc()
	globalManager.clustersOpen.Inc()
}

// RecordClusterResolved counts a cluster leaving the open set.
func RecordClusterResolved(mode, outcome string) {
	globalManager.clustersResolved.WithLabelValues(mode, outcome).Inc()
	globalManager.clustersOpen.Dec()
}

// RecordEventConfirmed counts a confirmed event.
func RecordEventConfirmed(source string) {
	globalManager.eventsConfirmed.WithLabelValues(source).Inc()
}

// RecordScoreAward observes one parlay award.
func RecordScoreAward(delta float64) {
	globalManager.scoreAwards.Inc()
	globalManager.scoreDelta.Observe(delta)
}

func RecordWheelSpin() { globalManager.wheelSpins.Inc() }

func UpdateRoomsActive(n int) { globalManager.roomsActive.Set(float64(n)) }

func UpdateMailboxDepth(n int) { globalManager.mailboxDepth.Set(float64(n)) }

func RecordMailboxReject() { globalManager.mailboxRejects.Inc() }

func RecordHandleLatency(ms float64) { globalManager.handleLatency.Observe(ms) }

func RecordPublishError() { globalManager.publishErrors.Inc() }

func RecordAuditWriteError() { globalManager.auditWriteErrors.Inc() }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes HTTP latency in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
