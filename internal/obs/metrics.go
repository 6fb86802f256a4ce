package obs

import (
	"sync/atomic"
	"time"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
)

const (
	maxMessageKind = int(schema.MessageConnectivity)
	maxUpdateKind  = int(schema.UpdateStaleness)
)

// Metrics collects lightweight counters and latency stats.
type Metrics struct {
	messageCounts [maxMessageKind + 1]uint64
	updateCounts  [maxUpdateKind + 1]uint64
	outOfOrder    uint64
	staleMarks    uint64
	reseeds       uint64
	walRejected   uint64
	ingressDrops  uint64
	updateDrops   uint64
	sessionDrops  uint64

	ingestLatency  LatencyStats
	processLatency LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64        `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Messages       map[string]uint64 `json:"messages"`
	Updates        map[string]uint64 `json:"updates"`
	OutOfOrder     uint64            `json:"outOfOrder"`
	StaleMarks     uint64            `json:"staleMarks"`
	Reseeds        uint64            `json:"reseeds"`
	WALRejected    uint64            `json:"walRejected"`
	IngressDrops   uint64            `json:"ingressDrops"`
	UpdateDrops    uint64            `json:"updateDrops"`
	SessionDrops   uint64            `json:"sessionDrops"`
	IngestLatency  LatencySnapshot   `json:"ingestLatency"`
	ProcessLatency LatencySnapshot   `json:"processLatency"`
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveMessage counts an ingress message and tracks feed latency for events.
func (m *Metrics) ObserveMessage(msg schema.Message) {
	if m == nil {
		return
	}
	idx := int(msg.Kind)
	if idx >= 0 && idx < len(m.messageCounts) {
		atomic.AddUint64(&m.messageCounts[idx], 1)
	}
	if msg.Kind == schema.MessageEvent && msg.Event.TsEvent > 0 && msg.Event.TsRecv > 0 {
		if delta := msg.Event.TsRecv - msg.Event.TsEvent; delta >= 0 {
			m.ingestLatency.Observe(time.Duration(delta))
		}
	}
}

// ObserveUpdate counts a published update.
func (m *Metrics) ObserveUpdate(kind schema.UpdateKind) {
	if m == nil {
		return
	}
	idx := int(kind)
	if idx >= 0 && idx < len(m.updateCounts) {
		atomic.AddUint64(&m.updateCounts[idx], 1)
	}
}

// ObserveProcess measures the time from receipt to published updates.
func (m *Metrics) ObserveProcess(d time.Duration) {
	if m == nil {
		return
	}
	m.processLatency.Observe(d)
}

// IncOutOfOrder records an event rejected by the symbol sequence check.
func (m *Metrics) IncOutOfOrder() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.outOfOrder, 1)
}

// IncStale records a symbol marked stale.
func (m *Metrics) IncStale() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.staleMarks, 1)
}

// IncReseed records a completed indicator re-seed.
func (m *Metrics) IncReseed() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reseeds, 1)
}

// IncWALRejected records a message the recorder could not accept.
func (m *Metrics) IncWALRejected() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.walRejected, 1)
}

// IncIngressDrop records an ingress message evicted by a full lane.
func (m *Metrics) IncIngressDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.ingressDrops, 1)
}

// IncUpdateDrop records an update evicted by a full update subscriber.
func (m *Metrics) IncUpdateDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.updateDrops, 1)
}

// IncSessionDrop records an envelope evicted from a session queue.
func (m *Metrics) IncSessionDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.sessionDrops, 1)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	messages := make(map[string]uint64)
	for i := range m.messageCounts {
		if v := atomic.LoadUint64(&m.messageCounts[i]); v > 0 {
			messages[schema.MessageKind(i).String()] = v
		}
	}
	updates := make(map[string]uint64)
	for i := range m.updateCounts {
		if v := atomic.LoadUint64(&m.updateCounts[i]); v > 0 {
			updates[schema.UpdateKind(i).String()] = v
		}
	}
	return Snapshot{
		Messages:       messages,
		Updates:        updates,
		OutOfOrder:     atomic.LoadUint64(&m.outOfOrder),
		StaleMarks:     atomic.LoadUint64(&m.staleMarks),
		Reseeds:        atomic.LoadUint64(&m.reseeds),
		WALRejected:    atomic.LoadUint64(&m.walRejected),
		IngressDrops:   atomic.LoadUint64(&m.ingressDrops),
		UpdateDrops:    atomic.LoadUint64(&m.updateDrops),
		SessionDrops:   atomic.LoadUint64(&m.sessionDrops),
		IngestLatency:  m.ingestLatency.Snapshot(),
		ProcessLatency: m.processLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		cur := atomic.LoadUint64(&l.min)
		if cur != 0 && nanos >= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, cur, nanos) {
			break
		}
	}

	for {
		cur := atomic.LoadUint64(&l.max)
		if nanos <= cur {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, cur, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(sum / count),
	}
}
