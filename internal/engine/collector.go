package engine

import "github.com/prometheus/client_golang/prometheus"

// Collector exports an engine's counters as Prometheus counters labelled by
// generator. Values are read from a fresh snapshot on every scrape.
type Collector struct {
	e          *Engine
	trials     *prometheus.Desc
	failures   *prometheus.Desc
	undersized *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for e.
func NewCollector(e *Engine) *Collector {
	labels := []string{"generator"}

	return &Collector{
		e: e,
		trials: prometheus.NewDesc("zkfuzz_trials_total",
			"Trials run, by generator.", labels, nil),
		failures: prometheus.NewDesc("zkfuzz_failures_total",
			"Trials that failed verification, by generator.", labels, nil),
		undersized: prometheus.NewDesc("zkfuzz_undersized_total",
			"Failures caused only by insufficient circuit capacity, by generator.", labels, nil),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.trials
	ch <- c.failures
	ch <- c.undersized
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.e.Counters() {
		ch <- prometheus.MustNewConstMetric(c.trials, prometheus.CounterValue, float64(st.Total), st.Generator)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(st.Failed), st.Generator)
		ch <- prometheus.MustNewConstMetric(c.undersized, prometheus.CounterValue, float64(st.Undersized), st.Generator)
	}
}
