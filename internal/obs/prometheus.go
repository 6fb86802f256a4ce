package obs

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

const namespace = "mde"

// Register exposes the counters on reg. Values are read from m on every scrape.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	counter := func(name, help string, v *uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(atomic.LoadUint64(v)) })
	}

	out := []prometheus.Collector{
		counter("out_of_order_total", "Events rejected by the per-symbol sequence check.", &m.outOfOrder),
		counter("stale_marks_total", "Symbols marked stale.", &m.staleMarks),
		counter("reseeds_total", "Completed indicator re-seeds.", &m.reseeds),
		counter("wal_rejected_total", "Messages the recorder could not accept.", &m.walRejected),
		counter("ingress_dropped_total", "Ingress messages evicted by a full lane.", &m.ingressDrops),
		counter("update_dropped_total", "Updates evicted by a full subscriber.", &m.updateDrops),
		counter("session_dropped_total", "Envelopes evicted from a session queue.", &m.sessionDrops),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_latency_avg_seconds",
			Help:      "Average delay between event time and receipt.",
		}, func() float64 { return m.ingestLatency.Snapshot().Avg.Seconds() }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_latency_avg_seconds",
			Help:      "Average delay between receipt and published updates.",
		}, func() float64 { return m.processLatency.Snapshot().Avg.Seconds() }),
	}
	for i := range m.messageCounts {
		out = append(out, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "messages_total",
			Help:        "Ingress messages by kind.",
			ConstLabels: prometheus.Labels{"kind": schema.MessageKind(i).String()},
		}, func() float64 { return float64(atomic.LoadUint64(&m.messageCounts[i])) }))
	}
	for i := range m.updateCounts {
		out = append(out, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "updates_total",
			Help:        "Published updates by kind.",
			ConstLabels: prometheus.Labels{"kind": schema.UpdateKind(i).String()},
		}, func() float64 { return float64(atomic.LoadUint64(&m.updateCounts[i])) }))
	}
	return out
}

// FeedCounters are the counters of one feed adapter.
type FeedCounters struct {
	Events     uint64
	Gaps       uint64
	Duplicates uint64
	Malformed  uint64
	Reconnects uint64
	Resumes    uint64
}

// RegisterFeed exposes the counters of one feed adapter, labelled by its id.
// stats is called on every scrape.
func RegisterFeed(reg prometheus.Registerer, adapter string, stats func() FeedCounters) error {
	counter := func(name, help string, field func(FeedCounters) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "feed",
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"adapter": adapter},
		}, func() float64 { return float64(field(stats())) })
	}
	for _, c := range []prometheus.Collector{
		counter("events_total", "Events emitted by the adapter.", func(c FeedCounters) uint64 { return c.Events }),
		counter("gaps_total", "Sequence and reconnect gaps detected.", func(c FeedCounters) uint64 { return c.Gaps }),
		counter("duplicates_total", "Duplicate events dropped.", func(c FeedCounters) uint64 { return c.Duplicates }),
		counter("malformed_total", "Malformed events dropped.", func(c FeedCounters) uint64 { return c.Malformed }),
		counter("reconnect_attempts_total", "Reconnect attempts.", func(c FeedCounters) uint64 { return c.Reconnects }),
		counter("resumes_total", "Sessions resumed from a checkpoint.", func(c FeedCounters) uint64 { return c.Resumes }),
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterStaleAges exposes the staleness age of every portfolio returned by ages.
func RegisterStaleAges(reg prometheus.Registerer, ages func() map[string]time.Duration) error {
	return reg.Register(&staleAgeCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "portfolio", "stale_age_seconds"),
			"Age of the oldest input price of a portfolio.",
			[]string{"portfolio"}, nil,
		),
		ages: ages,
	})
}

type staleAgeCollector struct {
	desc *prometheus.Desc
	ages func() map[string]time.Duration
}

func (c *staleAgeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *staleAgeCollector) Collect(ch chan<- prometheus.Metric) {
	for id, age := range c.ages() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, age.Seconds(), id)
	}
}
