package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the queue-depth/busy-worker/terminal-state gauges and
// counters spec.md's ambient stack calls for (see SPEC_FULL.md §4.1),
// grounded on kraklabs-cie's use of github.com/prometheus/client_golang
// for the same "observe a worker pool" concern. A nil *Metrics is safe to
// use everywhere — every method is a no-op on a nil receiver — so tests
// and the mock-only code paths don't need a real registry.
type Metrics struct {
	queueDepth  prometheus.Gauge
	busyWorkers prometheus.Gauge
	jobsTotal   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neurod_scheduler_queue_depth",
			Help: "Number of jobs currently sitting in the scheduler's queue.",
		}),
		busyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "neurod_scheduler_busy_workers",
			Help: "Number of workers currently running a job.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neurod_scheduler_jobs_total",
			Help: "Count of jobs that reached a terminal state, by state.",
		}, []string{"state"}),
	}
	if reg != nil {
		reg.MustRegister(m.queueDepth, m.busyWorkers, m.jobsTotal)
	}
	return m
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) incBusyWorkers() {
	if m == nil {
		return
	}
	m.busyWorkers.Inc()
}

func (m *Metrics) decBusyWorkers() {
	if m == nil {
		return
	}
	m.busyWorkers.Dec()
}

func (m *Metrics) recordTerminal(state State) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(string(state)).Inc()
}
