package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aqua-monitor/internal/telemetry"
)

// Metrics records stream ingestion and the latest counts on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	streamsOpened  prometheus.Counter
	streamsFailed  prometheus.Counter
	payloadsDrop   prometheus.Counter
	stopRequests   *prometheus.CounterVec
	stateUpdates   prometheus.Counter
	totalFish      prometheus.Gauge
	speciesCount   *prometheus.GaugeVec
	speciesBelow   *prometheus.GaugeVec
	geofence       prometheus.Gauge
	activeAlerts   prometheus.Gauge
	connectionStat *prometheus.GaugeVec
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		streamsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aqua_streams_opened_total",
			Help: "Analysis streams that completed the handshake",
		}),
		streamsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aqua_streams_failed_total",
			Help: "Analysis streams that ended in the failed phase",
		}),
		payloadsDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aqua_payloads_dropped_total",
			Help: "Stream payloads skipped as malformed or oversized",
		}),
		stopRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqua_stop_requests_total",
			Help: "Stop requests sent to the backend by outcome",
		}, []string{"result"}),
		stateUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aqua_state_updates_total",
			Help: "Stream events applied to the monitoring state",
		}),
		totalFish: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqua_total_fish",
			Help: "Latest total fish count",
		}),
		speciesCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqua_species_count",
			Help: "Latest count per configured species",
		}, []string{"species"}),
		speciesBelow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqua_species_below_threshold",
			Help: "1 when the species count is below its threshold",
		}, []string{"species"}),
		geofence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqua_geofence_crossed",
			Help: "1 when the latest frame reported a geofence crossing",
		}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqua_active_alerts",
			Help: "Alerts currently held in the monitoring state",
		}),
		connectionStat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqua_connection_status",
			Help: "1 for the current connection status, 0 otherwise",
		}, []string{"status"}),
	}
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.streamsOpened,
		m.streamsFailed,
		m.payloadsDrop,
		m.stopRequests,
		m.stateUpdates,
		m.totalFish,
		m.speciesCount,
		m.speciesBelow,
		m.geofence,
		m.activeAlerts,
		m.connectionStat,
	)
	m.setStatus(telemetry.StatusDisconnected)
	return m
}

// StreamOpened counts a successful handshake.
func (m *Metrics) StreamOpened() { m.streamsOpened.Inc() }

// StreamFailed counts a stream that ended in failure.
func (m *Metrics) StreamFailed() { m.streamsFailed.Inc() }

// PayloadDropped counts a skipped payload.
func (m *Metrics) PayloadDropped() { m.payloadsDrop.Inc() }

// StopRequested counts a stop request by whether the backend confirmed it.
func (m *Metrics) StopRequested(confirmed bool) {
	m.stopRequests.WithLabelValues(strconv.FormatBool(confirmed)).Inc()
}

// StateApplied mirrors the latest state into gauges.
func (m *Metrics) StateApplied(s telemetry.MonitoringState, targets []telemetry.SpeciesTarget) {
	m.stateUpdates.Inc()
	m.totalFish.Set(float64(s.TotalFish))
	for _, t := range targets {
		n := s.SpeciesCounts[t.Name]
		m.speciesCount.WithLabelValues(t.Name).Set(float64(n))
		m.speciesBelow.WithLabelValues(t.Name).Set(boolGauge(n < t.Threshold))
	}
	m.geofence.Set(boolGauge(s.GeofenceCrossed))
	m.activeAlerts.Set(float64(len(s.Alerts)))
	m.setStatus(s.ConnectionStatus)
}

// StatusChanged records a connection status transition.
func (m *Metrics) StatusChanged(s telemetry.ConnectionStatus) { m.setStatus(s) }

func (m *Metrics) setStatus(current telemetry.ConnectionStatus) {
	for _, s := range []telemetry.ConnectionStatus{
		telemetry.StatusDisconnected,
		telemetry.StatusConnecting,
		telemetry.StatusConnected,
		telemetry.StatusError,
	} {
		m.connectionStat.WithLabelValues(string(s)).Set(boolGauge(s == current))
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
