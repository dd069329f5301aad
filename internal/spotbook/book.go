// Package spotbook reconstructs and maintains the centralized
// perpetual-futures limit order book from a snapshot-plus-diff feed
// (spec.md §4.1). Book itself is the pure, synchronous state machine;
// Feed (feed.go) owns the network lifecycle and sequencing protocol
// that drives it.
package spotbook

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"spotarb/internal/types"
)

const (
	// TopN is the fixed depth used for the imbalance calculation
	// (spec.md §4.1).
	TopN = 5

	btreeDegree = 32
)

// level is one price/quantity pair held in one side's tree. Only Price
// participates in tree ordering; Qty is payload.
type level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

func bidLess(a, b level) bool { return a.Price.GreaterThan(b.Price) } // descending: Min() == best bid
func askLess(a, b level) bool { return a.Price.LessThan(b.Price) }    // ascending: Min() == best ask

// Book is the reconstructed L2 order book for a single instrument. It
// is safe for concurrent use: one writer goroutine (the owning Feed)
// mutates it under lock while any number of readers take cloned
// snapshots through the accessor methods.
type Book struct {
	mu           sync.RWMutex
	bids         *btree.BTreeG[level]
	asks         *btree.BTreeG[level]
	lastUpdateID uint64
	initialized  bool

	history *midHistory
}

// New creates an empty, uninitialized Book.
func New() *Book {
	return &Book{
		bids:    btree.NewG(btreeDegree, bidLess),
		asks:    btree.NewG(btreeDegree, askLess),
		history: newMidHistory(),
	}
}

// Reset clears all book state back to uninitialized, discarding mid
// history. Called before reloading from a fresh snapshot after a
// sequence-gap resync (spec.md §4.1 "On resync, the book is fully reset").
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = btree.NewG(btreeDegree, bidLess)
	b.asks = btree.NewG(btreeDegree, askLess)
	b.lastUpdateID = 0
	b.initialized = false
	b.history = newMidHistory()
}

// LoadSnapshot replaces the book contents with a REST depth snapshot.
func (b *Book) LoadSnapshot(lastUpdateID uint64, bids, asks [][2]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	bidTree := btree.NewG(btreeDegree, bidLess)
	askTree := btree.NewG(btreeDegree, askLess)

	for _, pl := range bids {
		lvl, err := parseLevel(pl)
		if err != nil {
			return err
		}
		if lvl.Qty.IsPositive() {
			bidTree.ReplaceOrInsert(lvl)
		}
	}
	for _, pl := range asks {
		lvl, err := parseLevel(pl)
		if err != nil {
			return err
		}
		if lvl.Qty.IsPositive() {
			askTree.ReplaceOrInsert(lvl)
		}
	}

	b.bids = bidTree
	b.asks = askTree
	b.lastUpdateID = lastUpdateID
	b.initialized = true
	return nil
}

func parseLevel(pl [2]string) (level, error) {
	price, err := decimal.NewFromString(pl[0])
	if err != nil {
		return level{}, err
	}
	qty, err := decimal.NewFromString(pl[1])
	if err != nil {
		return level{}, err
	}
	return level{Price: price, Qty: qty}, nil
}

// ApplyDiff applies one depth-diff's level changes and advances
// last_update_id to the diff's final update id. The caller
// (Feed) is responsible for sequence validation before calling this —
// ApplyDiff itself only performs the level mutation of spec.md §4.1
// step 5 and the mid-history append/evict of spec.md §4.1
// "Mid-history retention".
func (b *Book) ApplyDiff(finalUpdateID uint64, recvTimeMs int64, bids, asks [][2]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pl := range bids {
		lvl, err := parseLevel(pl)
		if err != nil {
			return err
		}
		applyLevel(b.bids, lvl)
	}
	for _, pl := range asks {
		lvl, err := parseLevel(pl)
		if err != nil {
			return err
		}
		applyLevel(b.asks, lvl)
	}

	b.lastUpdateID = finalUpdateID
	b.initialized = true

	if mid, ok := b.midLocked(); ok {
		b.history.append(recvTimeMs, mid)
	}
	return nil
}

func applyLevel(tree *btree.BTreeG[level], lvl level) {
	if lvl.Qty.IsZero() {
		tree.Delete(level{Price: lvl.Price})
		return
	}
	tree.ReplaceOrInsert(lvl)
}

// LastUpdateID returns the book's current sequence counter.
func (b *Book) LastUpdateID() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// Initialized reports whether the book has ever been loaded.
func (b *Book) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func (b *Book) midLocked() (decimal.Decimal, bool) {
	bid, bidOK := b.bids.Min()
	ask, askOK := b.asks.Min()
	if !bidOK || !askOK {
		return decimal.Zero, false
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), true
}

// CurrentQuote returns a cloned top-of-book snapshot, or ok=false if
// the book has not yet been initialized or either side is empty
// (spec.md §4.1 "not yet initialized").
func (b *Book) CurrentQuote(recvTimeMs int64) (types.Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.initialized {
		return types.Quote{}, false
	}
	bid, bidOK := b.bids.Min()
	ask, askOK := b.asks.Min()
	if !bidOK || !askOK {
		return types.Quote{}, false
	}

	mid := bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))

	return types.Quote{
		BestBid:       bid.Price,
		BestBidQty:    bid.Qty,
		BestAsk:       ask.Price,
		BestAskQty:    ask.Qty,
		Mid:           mid,
		ImbalanceTopN: b.imbalanceLocked(TopN),
		LastUpdateID:  b.lastUpdateID,
		RecvTimeMs:    recvTimeMs,
	}, true
}

// imbalanceLocked computes top-N imbalance per spec.md §4.1. Must be
// called with at least a read lock held.
func (b *Book) imbalanceLocked(n int) float64 {
	var bidSum, askSum decimal.Decimal

	count := 0
	b.bids.Ascend(func(lvl level) bool {
		if count >= n {
			return false
		}
		bidSum = bidSum.Add(lvl.Qty)
		count++
		return true
	})

	count = 0
	b.asks.Ascend(func(lvl level) bool {
		if count >= n {
			return false
		}
		askSum = askSum.Add(lvl.Qty)
		count++
		return true
	})

	denom := bidSum.Add(askSum)
	if denom.IsZero() {
		return 0
	}
	imb, _ := bidSum.Sub(askSum).Div(denom).Float64()
	return imb
}

// Mid returns the latest mid price, or ok=false if unavailable.
func (b *Book) Mid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.midLocked()
}

// Returns computes (current_mid - oldest_mid_in_window) / oldest_mid_in_window
// over the trailing lookback window, or ok=false if fewer than two
// samples exist or no sample falls within the window (spec.md §4.1).
func (b *Book) Returns(lookback time.Duration, nowMs int64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history.returns(lookback, nowMs)
}

// StdDev returns the sample standard deviation of mid prices within the
// trailing lookback window, or ok=false if fewer than two samples exist.
func (b *Book) StdDev(lookback time.Duration, nowMs int64) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.history.stdDev(lookback, nowMs)
}
