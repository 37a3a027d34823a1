// Package metrics instruments the dispatch loop. It is purely an
// observer: nothing here ever feeds back into the state machine,
// keeping it safe to omit entirely (SPEC_FULL.md lists it as ambient
// stack, not as part of the state machine; it carries structured metrics
// the way the rest of the retrieval pack's cluster daemons do, e.g.
// prometheus/alertmanager's gossip Peer counters).
package metrics

import (
	gometrics "github.com/armon/go-metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Sink bundles the two instrumentation surfaces this module emits to: a
// armon/go-metrics sink (cheap counters/gauges, the way hashicorp/serf
// instruments its event loop) and a prometheus registry for processes
// that expose a scrape endpoint.
type Sink struct {
	metrics *gometrics.Metrics

	joinAttempts   prometheus.Counter
	joinSuccesses  prometheus.Counter
	joinFailures   prometheus.Counter
	leaves         prometheus.Counter
	blocks         prometheus.Counter
	partitions     prometheus.Counter
	queueDepth     *prometheus.GaugeVec
}

// New constructs a Sink. sink may be nil to use the armon/go-metrics
// in-memory default; registerer may be nil to skip Prometheus
// registration entirely (e.g. in unit tests).
func New(sink gometrics.MetricSink, registerer prometheus.Registerer) *Sink {
	if sink == nil {
		sink = gometrics.NewInmemSink(0, 0)
	}
	m, _ := gometrics.NewGlobal(gometrics.DefaultConfig("cluster"), sink)

	s := &Sink{
		metrics: m,
		joinAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster", Name: "join_attempts_total"}),
		joinSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster", Name: "join_successes_total"}),
		joinFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster", Name: "join_failures_total"}),
		leaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster", Name: "leaves_total"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster", Name: "blocks_total"}),
		partitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cluster", Name: "partitions_detected_total"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cluster", Name: "event_queue_depth"}, []string{"fifo"}),
	}

	if registerer != nil {
		registerer.MustRegister(s.joinAttempts, s.joinSuccesses, s.joinFailures,
			s.leaves, s.blocks, s.partitions, s.queueDepth)
	}
	return s
}

func (s *Sink) JoinAttempted() {
	s.joinAttempts.Inc()
	s.metrics.IncrCounter([]string{"join", "attempt"}, 1)
}

func (s *Sink) JoinResult(success bool) {
	if success {
		s.joinSuccesses.Inc()
		s.metrics.IncrCounter([]string{"join", "success"}, 1)
		return
	}
	s.joinFailures.Inc()
	s.metrics.IncrCounter([]string{"join", "failure"}, 1)
}

func (s *Sink) Left() {
	s.leaves.Inc()
	s.metrics.IncrCounter([]string{"leave"}, 1)
}

func (s *Sink) Blocked() {
	s.blocks.Inc()
	s.metrics.IncrCounter([]string{"block"}, 1)
}

func (s *Sink) PartitionDetected() {
	s.partitions.Inc()
	s.metrics.IncrCounter([]string{"partition"}, 1)
}

func (s *Sink) QueueDepth(nonBlocking, blocking int) {
	s.queueDepth.WithLabelValues("non_blocking").Set(float64(nonBlocking))
	s.queueDepth.WithLabelValues("blocking").Set(float64(blocking))
	s.metrics.SetGauge([]string{"queue", "non_blocking"}, float32(nonBlocking))
	s.metrics.SetGauge([]string{"queue", "blocking"}, float32(blocking))
}
