package api

import (
	"time"

	"spotarb/internal/types"
)

// SnapshotProvider is the narrow read-only surface the agent
// orchestrator exposes so the API layer can assemble a SnapshotRecord
// without importing any of the core packages directly.
type SnapshotProvider interface {
	SpotQuote(nowMs int64) (types.Quote, bool)
	SpotReturn(window time.Duration, nowMs int64) (float64, bool)
	SpotStdDev(window time.Duration, nowMs int64) (float64, bool)
	PredictionQuote() types.PredictionQuote
	PredictionStaleness(nowMs int64) (int64, bool)
	ActiveMarket() (types.ActiveMarket, bool)
	RemainingSeconds(now time.Time) (int64, bool)
	SignalState() types.SignalState
}

const statsWindow5m = 5 * time.Minute

// BuildSnapshot aggregates state from every core component into the
// once-per-second SnapshotRecord (spec.md §6).
func BuildSnapshot(provider SnapshotProvider) types.SnapshotRecord {
	now := time.Now()
	nowMs := now.UnixMilli()

	rec := types.SnapshotRecord{RecvTimeMs: nowMs}

	if quote, ok := provider.SpotQuote(nowMs); ok {
		mid, _ := quote.Mid.Float64()
		bid, _ := quote.BestBid.Float64()
		ask, _ := quote.BestAsk.Float64()
		rec.SpotMid = ptr(mid)
		rec.SpotBestBid = ptr(bid)
		rec.SpotBestAsk = ptr(ask)
		rec.ImbalanceTop5 = ptr(quote.ImbalanceTopN)
	}
	if r1, ok := provider.SpotReturn(time.Second, nowMs); ok {
		rec.Return1s = ptr(r1)
	}
	if r3, ok := provider.SpotReturn(3*time.Second, nowMs); ok {
		rec.Return3s = ptr(r3)
	}
	if r10, ok := provider.SpotReturn(10*time.Second, nowMs); ok {
		rec.Return10s = ptr(r10)
	}
	if sd, ok := provider.SpotStdDev(statsWindow5m, nowMs); ok {
		rec.StdDev5m = ptr(sd)
	}

	pq := provider.PredictionQuote()
	if pq.Up.HasBid {
		rec.PMUpBid = ptr(pq.Up.Bid)
	}
	if pq.Up.HasAsk {
		rec.PMUpAsk = ptr(pq.Up.Ask)
	}
	if pq.Up.HasBid && pq.Up.HasAsk {
		rec.PMSpreadUp = ptr(pq.Up.Ask - pq.Up.Bid)
	}
	if pq.Down.HasBid {
		rec.PMDownBid = ptr(pq.Down.Bid)
	}
	if pq.Down.HasAsk {
		rec.PMDownAsk = ptr(pq.Down.Ask)
	}
	if pq.Down.HasBid && pq.Down.HasAsk {
		rec.PMSpreadDown = ptr(pq.Down.Ask - pq.Down.Bid)
	}
	if staleness, ok := provider.PredictionStaleness(nowMs); ok {
		rec.StalenessMs = ptr(staleness)
	}

	if market, ok := provider.ActiveMarket(); ok && market.HasTarget {
		rec.TargetPrice = ptr(market.TargetPrice)
	}
	if remaining, ok := provider.RemainingSeconds(now); ok {
		rec.RemainingSecs = ptr(remaining)
	}

	state := provider.SignalState()
	rec.SignalSide = state.Side
	rec.SignalConfidence = state.Confidence

	return rec
}

func ptr[T any](v T) *T { return &v }
