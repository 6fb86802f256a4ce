package core

import (
	"context"
	"fmt"

	"github.com/yanun0323/logs"

	"github.com/Laranguyen811/Stock-market-application-2024/internal/recorder"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/schema"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/snapshot"
	"github.com/Laranguyen811/Stock-market-application-2024/internal/valuation"
	"github.com/Laranguyen811/Stock-market-application-2024/pkg/exception"
)

// RebuildStats summarizes a rebuild.
type RebuildStats struct {
	Symbols  int `json:"symbols"`
	Replayed int `json:"replayed"`
	Skipped  int `json:"skipped"`
}

// Rebuild restores symbol states from snap and replays the WAL on top of it.
// Records received before the snapshot was taken are skipped. Portfolio and
// watchlist views are derived again from the restored prices, so they must be
// registered before Rebuild. Either input may be nil. Rebuild must not run
// concurrently with Run.
func (e *Engine) Rebuild(ctx context.Context, snap *snapshot.File, playback *recorder.Playback) (RebuildStats, error) {
	if e.running.Load() {
		return RebuildStats{}, fmt.Errorf("rebuild: %w", exception.ErrAlreadyRunning)
	}
	var stats RebuildStats
	var since int64
	if snap != nil {
		since = snap.Timestamp
		for _, v := range snap.Symbols {
			ok, err := e.restore(v)
			if err != nil {
				return stats, err
			}
			if ok {
				stats.Symbols++
			}
		}
	}

	if playback != nil {
		err := playback.Run(ctx, func(rec recorder.Record) error {
			if rec.TsRecv <= since {
				stats.Skipped++
				return nil
			}
			stats.Replayed++
			e.replay(rec.Message)
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("rebuild: replay wal: %w", err)
		}
	}
	logs.Infof("core: rebuilt %d symbols, replayed %d records, skipped %d", stats.Symbols, stats.Replayed, stats.Skipped)
	return stats, nil
}

func (e *Engine) restore(v schema.SymbolView) (bool, error) {
	l := e.laneOf(v.Symbol)
	st, ok := l.ensure(v.Symbol)
	if !ok {
		logs.Warnf("core: skip unknown symbol %s in snapshot", v.Symbol)
		return false, nil
	}
	if err := st.Restore(v, e.cfg.Location); err != nil {
		return false, err
	}
	view := st.View()
	e.emit(schema.SymbolUpdate(view))
	if st.Priced {
		e.emit(e.values.OnSymbolUpdate(valuation.Quote{
			Symbol: view.Symbol,
			Price:  view.LastPrice,
			Open:   view.OpenPrice,
			Seq:    view.Seq,
			Ts:     view.LastEventTs,
		})...)
	}
	if st.Stale {
		e.emit(e.values.MarkSymbolStale(st.Symbol, st.StaleReason, st.StaleSince)...)
	}
	return true, nil
}

// replay applies msg on the caller goroutine, bypassing the ingress bus and the WAL.
func (e *Engine) replay(msg schema.Message) {
	e.metrics.ObserveMessage(msg)
	symbol := msg.Symbol()
	if symbol == "" {
		if msg.Kind == schema.MessageConnectivity {
			e.setFeed(msg.Connectivity)
		}
		return
	}
	e.laneOf(symbol).handle(msg)
}
