package api

import (
	"time"

	"spotarb/internal/types"
)

// Event is the wrapper for everything pushed to connected WebSocket
// clients. Type is "snapshot" for the once-per-second state tick and
// "trade" for the result of an operator-triggered PlaceOrder call.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewSnapshotEvent wraps a SnapshotRecord for broadcast.
func NewSnapshotEvent(rec types.SnapshotRecord) Event {
	return Event{Type: "snapshot", Timestamp: time.Now(), Data: rec}
}

// NewTradeEvent wraps an ActionLogEntry for broadcast.
func NewTradeEvent(entry types.ActionLogEntry) Event {
	return Event{Type: "trade", Timestamp: time.Now(), Data: entry}
}

// TradeRequest is the body of POST /api/trade.
type TradeRequest struct {
	Side types.Side `json:"side"`
}

// SizeRequest is the body of POST /api/size.
type SizeRequest struct {
	Delta float64 `json:"delta"`
}

// MaxPriceRequest is the body of POST /api/max-price.
type MaxPriceRequest struct {
	Side  types.Side `json:"side"`
	Delta float64    `json:"delta"`
}
