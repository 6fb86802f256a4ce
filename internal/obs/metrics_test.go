package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveMessage(schema.EventMessage(schema.MarketEvent{Symbol: "ABC", TsEvent: 100, TsRecv: 300}))
	m.ObserveMessage(schema.EventMessage(schema.MarketEvent{Symbol: "ABC", TsEvent: 100, TsRecv: 500}))
	m.ObserveMessage(schema.GapMessage(schema.Gap{Symbol: "ABC"}))
	m.ObserveUpdate(schema.UpdateSymbol)
	m.IncOutOfOrder()
	m.IncSessionDrop()

	snap := m.Snapshot()
	assert.Equal(t, map[string]uint64{"event": 2, "gap": 1}, snap.Messages)
	assert.Equal(t, map[string]uint64{"symbol": 1}, snap.Updates)
	assert.Equal(t, uint64(1), snap.OutOfOrder)
	assert.Equal(t, uint64(1), snap.SessionDrops)
	assert.Equal(t, LatencySnapshot{Count: 2, Min: 200, Max: 400, Avg: 300}, snap.IngestLatency)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveMessage(schema.Message{})
	m.ObserveProcess(time.Millisecond)
	m.IncStale()
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestRegister(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.IncReseed()
	m.IncReseed()
	m.ObserveUpdate(schema.UpdatePortfolio)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["mde_reseeds_total"])
	assert.True(t, names["mde_updates_total"])

	n, err := testutil.GatherAndCount(reg, "mde_updates_total")
	require.NoError(t, err)
	assert.Equal(t, len(m.updateCounts), n)
	require.Error(t, m.Register(reg))
}

// gauge returns the value of the series name with label key=value.
func gauge(t *testing.T, reg *prometheus.Registry, name, key, value string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() != key || l.GetValue() != value {
					continue
				}
				if c := m.GetCounter(); c != nil {
					return c.GetValue(), true
				}
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestRegisterFeed(t *testing.T) {
	reg := prometheus.NewRegistry()
	counters := FeedCounters{Events: 10, Gaps: 2, Malformed: 3, Reconnects: 4}
	require.NoError(t, RegisterFeed(reg, "sim-primary", func() FeedCounters { return counters }))
	require.NoError(t, RegisterFeed(reg, "ws-backup", func() FeedCounters { return FeedCounters{} }))

	v, ok := gauge(t, reg, "mde_feed_reconnect_attempts_total", "adapter", "sim-primary")
	require.True(t, ok)
	assert.Equal(t, 4.0, v)

	counters.Gaps = 5
	v, ok = gauge(t, reg, "mde_feed_gaps_total", "adapter", "sim-primary")
	require.True(t, ok)
	assert.Equal(t, 5.0, v)

	v, ok = gauge(t, reg, "mde_feed_malformed_total", "adapter", "sim-primary")
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = gauge(t, reg, "mde_feed_gaps_total", "adapter", "ws-backup")
	assert.True(t, ok)

	require.Error(t, RegisterFeed(reg, "sim-primary", func() FeedCounters { return FeedCounters{} }))
}

func TestRegisterStaleAges(t *testing.T) {
	reg := prometheus.NewRegistry()
	ages := map[string]time.Duration{"p1": 45 * time.Second}
	require.NoError(t, RegisterStaleAges(reg, func() map[string]time.Duration { return ages }))

	v, ok := gauge(t, reg, "mde_portfolio_stale_age_seconds", "portfolio", "p1")
	require.True(t, ok)
	assert.Equal(t, 45.0, v)

	ages = map[string]time.Duration{"p1": time.Second, "p2": 90 * time.Second}
	n, err := testutil.GatherAndCount(reg, "mde_portfolio_stale_age_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	v, ok = gauge(t, reg, "mde_portfolio_stale_age_seconds", "portfolio", "p2")
	require.True(t, ok)
	assert.Equal(t, 90.0, v)
}
