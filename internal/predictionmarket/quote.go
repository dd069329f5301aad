package predictionmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spotarb/internal/broadcast"
	"spotarb/internal/types"
)

const (
	streamReconnectDelay = 5 * time.Second
)

// QuoteState is the per-token best bid/ask maintained from the
// streaming subscription (spec.md §4.3).
type QuoteState struct {
	mu           sync.RWMutex
	up           types.QuoteSide
	down         types.QuoteSide
	lastUpdateMs int64
	hasUpdate    bool
}

func newQuoteState() *QuoteState {
	return &QuoteState{}
}

// Snapshot returns a cloned read of both outcome sides.
func (q *QuoteState) Snapshot() types.PredictionQuote {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return types.PredictionQuote{
		Up:           q.up,
		Down:         q.down,
		LastUpdateMs: q.lastUpdateMs,
		HasUpdate:    q.hasUpdate,
	}
}

// Staleness returns now_ms - last_update_ms, or ok=false if never
// updated.
func (q *QuoteState) Staleness(nowMs int64) (int64, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.hasUpdate {
		return 0, false
	}
	return nowMs - q.lastUpdateMs, true
}

func (q *QuoteState) applyBookSnapshot(side outcomeSide, snap types.WSBookSnapshot, recvMs int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qs := q.sideLocked(side)
	if n := len(snap.Bids); n > 0 {
		if price, err := strconv.ParseFloat(snap.Bids[n-1].Price, 64); err == nil {
			qs.HasBid = true
			qs.Bid = price
			if size, err := strconv.ParseFloat(snap.Bids[n-1].Size, 64); err == nil {
				qs.BidSize = size
			}
		}
	}
	if len(snap.Asks) > 0 {
		if price, err := strconv.ParseFloat(snap.Asks[0].Price, 64); err == nil {
			qs.HasAsk = true
			qs.Ask = price
			if size, err := strconv.ParseFloat(snap.Asks[0].Size, 64); err == nil {
				qs.AskSize = size
			}
		}
	}
	q.setSideLocked(side, qs)
	q.lastUpdateMs = recvMs
	q.hasUpdate = true
}

func (q *QuoteState) applyPriceChange(side outcomeSide, pc types.WSPriceChange, recvMs int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qs := q.sideLocked(side)
	if bid, err := strconv.ParseFloat(pc.BestBid, 64); err == nil {
		qs.HasBid = true
		qs.Bid = bid
	}
	if ask, err := strconv.ParseFloat(pc.BestAsk, 64); err == nil {
		qs.HasAsk = true
		qs.Ask = ask
	}
	q.setSideLocked(side, qs)
	q.lastUpdateMs = recvMs
	q.hasUpdate = true
}

func (q *QuoteState) sideLocked(side outcomeSide) types.QuoteSide {
	if side == outcomeUp {
		return q.up
	}
	return q.down
}

func (q *QuoteState) setSideLocked(side outcomeSide, qs types.QuoteSide) {
	if side == outcomeUp {
		q.up = qs
	} else {
		q.down = qs
	}
}

type outcomeSide int

const (
	outcomeUp outcomeSide = iota
	outcomeDown
)

// Streamer drives the prediction-market websocket subscription,
// tearing down and reopening whenever the maintainer signals a market
// change (spec.md §9 "Active-market replacement").
type Streamer struct {
	State *QuoteState
	Bus   *broadcast.Bus[types.PredictionQuote]

	maintainer *Maintainer
	streamURL  string
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

// NewStreamer constructs a Streamer against the given websocket URL.
func NewStreamer(maintainer *Maintainer, streamURL string, logger *slog.Logger) *Streamer {
	return &Streamer{
		State:      newQuoteState(),
		Bus:        broadcast.New[types.PredictionQuote](64),
		maintainer: maintainer,
		streamURL:  streamURL,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger,
	}
}

// Run drives the reconnect/resubscribe loop until ctx is canceled.
func (s *Streamer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.runOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("prediction market stream disconnected, reconnecting", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(streamReconnectDelay):
		}
	}
}

func (s *Streamer) runOnce(ctx context.Context) error {
	market, ok := s.maintainer.CurrentMarket()
	if !ok {
		return fmt.Errorf("no active market to subscribe to yet")
	}
	s.maintainer.ConsumeResubscribe()

	conn, _, err := s.dialer.DialContext(ctx, s.streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := types.WSSubscribeMsg{Type: "subscribe", AssetIDs: []string{market.UpTokenID, market.DownTokenID}}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.maintainer.ConsumeResubscribe() {
			return nil // tear down and reopen with the new token ids
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		s.dispatch(msg, market)
		s.Bus.Publish(s.State.Snapshot())
	}
}

func (s *Streamer) dispatch(msg []byte, market types.ActiveMarket) {
	recvMs := time.Now().UnixMilli()

	var snapshots []types.WSBookSnapshot
	if err := json.Unmarshal(msg, &snapshots); err == nil && len(snapshots) > 0 {
		for _, snap := range snapshots {
			s.applySnapshot(snap, market, recvMs)
		}
		return
	}
	var snap types.WSBookSnapshot
	if err := json.Unmarshal(msg, &snap); err == nil && snap.AssetID != "" {
		s.applySnapshot(snap, market, recvMs)
		return
	}

	var pcEvent types.WSPriceChangeEvent
	if err := json.Unmarshal(msg, &pcEvent); err == nil && len(pcEvent.PriceChanges) > 0 {
		for _, pc := range pcEvent.PriceChanges {
			s.State.applyPriceChange(resolveSide(pc.AssetID, market), pc, recvMs)
		}
		return
	}

	if s.logger != nil {
		s.logger.Debug("prediction market stream: unrecognized message", "body", string(msg))
	}
}

func (s *Streamer) applySnapshot(snap types.WSBookSnapshot, market types.ActiveMarket, recvMs int64) {
	s.State.applyBookSnapshot(resolveSide(snap.AssetID, market), snap, recvMs)
}

func resolveSide(assetID string, market types.ActiveMarket) outcomeSide {
	if assetID == market.DownTokenID {
		return outcomeDown
	}
	return outcomeUp
}
