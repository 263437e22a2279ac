// Package metrics is the Prometheus-backed observability surface:
// counters/gauges for connections accepted/active/closed and commands
// processed by code and stat.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements internal/server.MetricsRecorder and additionally
// exposes per-command and per-byte-direction observations for the
// session handler to call into.
type Recorder struct {
	registry *prometheus.Registry

	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	activeConnections      prometheus.Gauge
	commandsTotal          *prometheus.CounterVec
	bytesTransferred       *prometheus.CounterVec
}

// New creates a Recorder registered against a fresh registry rather than
// the global default one, so multiple Recorders (as in tests) never
// collide on metric names.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	return &Recorder{
		registry: reg,
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rserved_connections_accepted_total",
			Help: "Total number of QAP1 connections accepted.",
		}),
		connectionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rserved_connections_closed_total",
			Help: "Total number of QAP1 connections closed gracefully.",
		}),
		connectionsForceClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "rserved_connections_force_closed_total",
			Help: "Total number of QAP1 connections closed forcibly on shutdown timeout.",
		}),
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "rserved_connections_active",
			Help: "Current number of open QAP1 connections.",
		}),
		commandsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rserved_commands_total",
			Help: "Total number of dispatched commands by command code and response stat.",
		}, []string{"cmd", "stat"}),
		bytesTransferred: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "rserved_bytes_transferred_total",
			Help: "Total octets transferred over QAP1 connections by direction.",
		}, []string{"direction"}), // "in", "out"
	}
}

// RecordConnectionAccepted implements server.MetricsRecorder.
func (r *Recorder) RecordConnectionAccepted() { r.connectionsAccepted.Inc() }

// RecordConnectionClosed implements server.MetricsRecorder.
func (r *Recorder) RecordConnectionClosed() { r.connectionsClosed.Inc() }

// RecordConnectionForceClosed implements server.MetricsRecorder.
func (r *Recorder) RecordConnectionForceClosed() { r.connectionsForceClosed.Inc() }

// SetActiveConnections implements server.MetricsRecorder.
func (r *Recorder) SetActiveConnections(count int32) { r.activeConnections.Set(float64(count)) }

// RecordCommand records one dispatched command and the response stat it
// produced (0 for a bare RESP_OK).
func (r *Recorder) RecordCommand(cmd, stat int32) {
	r.commandsTotal.WithLabelValues(cmdLabel(cmd), statLabel(stat)).Inc()
}

// RecordBytes records n octets transferred in the given direction
// ("in" or "out").
func (r *Recorder) RecordBytes(direction string, n int) {
	if n <= 0 {
		return
	}
	r.bytesTransferred.WithLabelValues(direction).Add(float64(n))
}

// Handler returns an http.Handler serving this Recorder's registry in the
// Prometheus exposition format, for mounting at GET /metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func cmdLabel(cmd int32) string {
	switch cmd {
	case 0x001:
		return "login"
	case 0x002:
		return "voidEval"
	case 0x003:
		return "eval"
	case 0x004:
		return "shutdown"
	case 0x010:
		return "openFile"
	case 0x011:
		return "createFile"
	case 0x012:
		return "closeFile"
	case 0x013:
		return "readFile"
	case 0x014:
		return "writeFile"
	default:
		return "unknown"
	}
}

func statLabel(stat int32) string {
	if stat == 0 {
		return "ok"
	}
	return "err"
}
