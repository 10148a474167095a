package configsync

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts persist outcomes. A nil *Metrics records nothing.
type Metrics struct {
	persists  prometheus.Counter
	successes prometheus.Counter
	failures  prometheus.Counter
	reverts   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tweakd",
			Subsystem: "configsync",
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}
	return &Metrics{
		persists:  counter("persists_total", "Persist requests sent to the configuration store."),
		successes: counter("persist_successes_total", "Persist requests the store accepted."),
		failures:  counter("persist_failures_total", "Persist requests that failed."),
		reverts:   counter("reverts_total", "Local states replaced by a refetched document."),
	}
}

func (m *Metrics) persisted() {
	if m != nil {
		m.persists.Inc()
	}
}

func (m *Metrics) succeeded() {
	if m != nil {
		m.successes.Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) reverted() {
	if m != nil {
		m.reverts.Inc()
	}
}
