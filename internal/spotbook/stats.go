package spotbook

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// midSample is one retained (timestamp, mid price) pair.
type midSample struct {
	recvTimeMs int64
	mid        float64
}

// retention is the longest lookback any caller is expected to ask for
// (spec.md §4.1 uses 1s/3s/10s returns and a 5m std-dev window); samples
// older than this are evicted on every append so the history never
// grows unbounded.
const retention = 5 * time.Minute

// midHistory is an append-only, time-ordered ring of recent mid prices
// with a rolling eviction of stale entries, in the style of a
// head-trimmed rolling window: old entries are sliced off the front as
// new ones arrive rather than tracked with a separate expiry timer.
type midHistory struct {
	samples []midSample
}

func newMidHistory() *midHistory {
	return &midHistory{}
}

func (h *midHistory) append(recvTimeMs int64, mid decimal.Decimal) {
	v, _ := mid.Float64()
	h.samples = append(h.samples, midSample{recvTimeMs: recvTimeMs, mid: v})
	h.evictStale(recvTimeMs)
}

func (h *midHistory) evictStale(nowMs int64) {
	cutoff := nowMs - retention.Milliseconds()
	i := 0
	for i < len(h.samples) && h.samples[i].recvTimeMs < cutoff {
		i++
	}
	if i > 0 {
		h.samples = h.samples[i:]
	}
}

// returns computes (latest - oldestInWindow) / oldestInWindow over the
// trailing lookback window.
func (h *midHistory) returns(lookback time.Duration, nowMs int64) (float64, bool) {
	if len(h.samples) < 2 {
		return 0, false
	}
	cutoff := nowMs - lookback.Milliseconds()

	latest := h.samples[len(h.samples)-1]
	var oldest *midSample
	for i := range h.samples {
		if h.samples[i].recvTimeMs >= cutoff {
			oldest = &h.samples[i]
			break
		}
	}
	if oldest == nil || oldest.recvTimeMs == latest.recvTimeMs {
		return 0, false
	}
	if oldest.mid == 0 {
		return 0, false
	}
	return (latest.mid - oldest.mid) / oldest.mid, true
}

// stdDev returns the sample standard deviation (n-1 denominator) of mid
// prices within the trailing lookback window.
func (h *midHistory) stdDev(lookback time.Duration, nowMs int64) (float64, bool) {
	cutoff := nowMs - lookback.Milliseconds()
	var window []float64
	for _, s := range h.samples {
		if s.recvTimeMs >= cutoff {
			window = append(window, s.mid)
		}
	}
	if len(window) < 2 {
		return 0, false
	}

	var sum float64
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))

	var sumSq float64
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(window)-1)), true
}
