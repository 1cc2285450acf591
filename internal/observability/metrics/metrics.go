package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "homehub_"

	resultSuccess = "success"
	resultError   = "error"

	cancelResultAccepted = "accepted"
	cancelResultRejected = "rejected"
	cancelResultTimeout  = "timeout"
)

var (
	registerOnce sync.Once

	incidentEvents   *prometheus.CounterVec
	incidentTriggers *prometheus.CounterVec

	cancelRequests *prometheus.CounterVec
	cancelLatency  *prometheus.HistogramVec
	cancelWaiting  prometheus.Gauge

	monitoringTransitions *prometheus.CounterVec

	stationRequests *prometheus.CounterVec
	stationLatency  *prometheus.HistogramVec

	historyExportTotal   *prometheus.CounterVec
	historyExportLatency *prometheus.HistogramVec

	consumerLag *prometheus.GaugeVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		incidentEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "incident_events_total",
				Help: "Total incident lifecycle events by type",
			},
			[]string{"event"},
		)
		incidentTriggers = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "incident_triggers_total",
				Help: "Total alarm triggers by alert type and tier",
			},
			[]string{"alert", "tier"},
		)

		cancelRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "incident_cancel_total",
				Help: "Total cancel requests by result",
			},
			[]string{"result"},
		)
		cancelLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "incident_cancel_latency_seconds",
				Help:    "Cancel round-trip latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		cancelWaiting = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "incident_cancel_waiting",
				Help: "Cancel requests currently awaiting a station response",
			},
		)

		monitoringTransitions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "monitoring_transitions_total",
				Help: "Total monitoring state transitions by target state",
			},
			[]string{"state"},
		)

		stationRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "station_requests_total",
				Help: "Total monitoring station requests by operation and result",
			},
			[]string{"op", "result"},
		)
		stationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "station_request_latency_seconds",
				Help:    "Monitoring station request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)

		historyExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_export_total",
				Help: "Total incident history exports by format and result",
			},
			[]string{"format", "result"},
		)
		historyExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "history_export_latency_seconds",
				Help:    "Incident history export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		consumerLag = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "event_consumer_lag_seconds",
				Help: "Consumer processing lag in seconds",
			},
			[]string{"consumer"},
		)

		prometheus.MustRegister(
			incidentEvents,
			incidentTriggers,
			cancelRequests,
			cancelLatency,
			cancelWaiting,
			monitoringTransitions,
			stationRequests,
			stationLatency,
			historyExportTotal,
			historyExportLatency,
			consumerLag,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncIncidentEvent increments incident lifecycle counters.
func IncIncidentEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if incidentEvents != nil {
		incidentEvents.WithLabelValues(event).Inc()
	}
}

// IncIncidentTrigger increments trigger counters per alert type and tier.
func IncIncidentTrigger(alert, tier string) {
	if alert == "" {
		alert = "unknown"
	}
	if tier == "" {
		tier = "unknown"
	}
	if incidentTriggers != nil {
		incidentTriggers.WithLabelValues(alert, tier).Inc()
	}
}

// ObserveCancel records a finished cancel request with its outcome.
func ObserveCancel(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if cancelRequests != nil {
		cancelRequests.WithLabelValues(result).Inc()
	}
	if cancelLatency != nil {
		cancelLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// SetCancelWaiting sets the number of cancels awaiting a station response.
func SetCancelWaiting(count int) {
	if count < 0 {
		count = 0
	}
	if cancelWaiting != nil {
		cancelWaiting.Set(float64(count))
	}
}

// IncMonitoringTransition increments monitoring transition counters.
func IncMonitoringTransition(state string) {
	if state == "" {
		state = "unknown"
	}
	if monitoringTransitions != nil {
		monitoringTransitions.WithLabelValues(state).Inc()
	}
}

// ObserveStationRequest records a monitoring station call.
func ObserveStationRequest(op, result string, duration time.Duration) {
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if stationRequests != nil {
		stationRequests.WithLabelValues(op, result).Inc()
	}
	if stationLatency != nil {
		stationLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// ObserveHistoryExport records export latency and result.
func ObserveHistoryExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if historyExportTotal != nil {
		historyExportTotal.WithLabelValues(format, result).Inc()
	}
	if historyExportLatency != nil {
		historyExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveConsumerLag sets consumer lag in seconds.
func ObserveConsumerLag(consumer string, lag time.Duration) {
	if consumer == "" {
		consumer = "unknown"
	}
	if lag < 0 {
		lag = 0
	}
	if consumerLag != nil {
		consumerLag.WithLabelValues(consumer).Set(lag.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CancelResultAccepted = cancelResultAccepted
	CancelResultRejected = cancelResultRejected
	CancelResultTimeout  = cancelResultTimeout
)
