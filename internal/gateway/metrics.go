package gateway

import (
	"errors"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/chatgate/internal/cron"
	"github.com/flemzord/chatgate/internal/history"
	"github.com/flemzord/chatgate/internal/provider"
	"github.com/flemzord/chatgate/internal/session"
)

// Metrics holds the Prometheus collectors of one process. It observes the
// history store, the sessions and the cron scheduler.
type Metrics struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	completionErrs *prometheus.CounterVec
	saves          *prometheus.CounterVec
	historyEntries prometheus.Gauge
	logins         *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec

	watchOnce sync.Once
}

var (
	_ history.Observer = (*Metrics)(nil)
	_ session.Observer = (*Metrics)(nil)
	_ cron.Observer    = (*Metrics)(nil)
)

// NewMetrics creates the collectors on a dedicated registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_turns_total",
			Help: "Completed chat turns by mode.",
		}, []string{"mode"}),
		completionErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_completion_errors_total",
			Help: "Failed completion calls by mode and reason.",
		}, []string{"mode", "reason"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_persistence_saves_total",
			Help: "History flushes by result.",
		}, []string{"result"}),
		historyEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatgate_history_entries",
			Help: "Conversations held in the history list.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_login_attempts_total",
			Help: "Passcode checks by result.",
		}, []string{"result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatgate_cron_runs_total",
			Help: "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
	}
	m.registry.MustRegister(
		m.turns,
		m.completionErrs,
		m.saves,
		m.historyEntries,
		m.logins,
		m.jobRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WatchSessions exports the live browser session count. Only the first
// call registers the gauge.
func (m *Metrics) WatchSessions(count func() int) {
	m.watchOnce.Do(func() {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chatgate_web_sessions",
			Help: "Logged-in browser sessions.",
		}, func() float64 { return float64(count()) }))
	})
}

// Turn implements session.Observer. A rejected overlapping send is not a
// completion failure.
func (m *Metrics) Turn(mode string, err error) {
	switch {
	case err == nil:
		m.turns.WithLabelValues(mode).Inc()
	case errors.Is(err, session.ErrTurnInProgress):
	default:
		m.completionErrs.WithLabelValues(mode, provider.Reason(err)).Inc()
	}
}

// Flushed implements history.Observer.
func (m *Metrics) Flushed(ok bool) {
	m.saves.WithLabelValues(result(ok, "ok", "skipped")).Inc()
}

// Size implements history.Observer.
func (m *Metrics) Size(n int) {
	m.historyEntries.Set(float64(n))
}

// JobRan implements cron.Observer.
func (m *Metrics) JobRan(name string, err error) {
	m.jobRuns.WithLabelValues(name, result(err == nil, "ok", "error")).Inc()
}

// LoginAttempt counts one passcode check.
func (m *Metrics) LoginAttempt(ok bool) {
	m.logins.WithLabelValues(result(ok, "ok", "denied")).Inc()
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
