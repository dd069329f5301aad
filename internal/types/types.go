// Package types defines the shared data structures used across all
// packages of the agent — spot order book levels, prediction-market
// wire events, signal and trade vocabulary. It has no dependency on any
// other internal package so it can be imported from any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Centralized spot book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single (price, quantity) pair as received on the wire.
// Both fields arrive as strings to preserve decimal precision.
type PriceLevel struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

// DepthSnapshotResponse is the REST response for a depth snapshot.
type DepthSnapshotResponse struct {
	LastUpdateID uint64       `json:"lastUpdateId"`
	Bids         [][2]string  `json:"bids"`
	Asks         [][2]string  `json:"asks"`
}

// DepthDiffEvent is one depth-update message from the diff websocket.
// PrevFinalUpdateID is present only on the futures-style stream variant.
type DepthDiffEvent struct {
	EventType         string      `json:"e"`
	EventTimeMs       int64       `json:"E"`
	Symbol            string      `json:"s"`
	FirstUpdateID     uint64      `json:"U"`
	FinalUpdateID     uint64      `json:"u"`
	PrevFinalUpdateID *uint64     `json:"pu,omitempty"`
	Bids              [][2]string `json:"b"`
	Asks              [][2]string `json:"a"`
}

// Quote is a cloned, point-in-time read of the spot book's top-of-book
// state, returned by the book's accessor methods.
type Quote struct {
	BestBid       decimal.Decimal
	BestBidQty    decimal.Decimal
	BestAsk       decimal.Decimal
	BestAskQty    decimal.Decimal
	Mid           decimal.Decimal
	ImbalanceTopN float64
	LastUpdateID  uint64
	RecvTimeMs    int64
}

// ————————————————————————————————————————————————————————————————————————
// Reference-price feed
// ————————————————————————————————————————————————————————————————————————

// ReferencePriceMessage is the payload shape published by the reference
// price stream.
type ReferencePriceMessage struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// ————————————————————————————————————————————————————————————————————————
// Prediction market
// ————————————————————————————————————————————————————————————————————————

// Outcome identifies one of the two sides of a binary market.
type Outcome int

const (
	OutcomeUp Outcome = iota
	OutcomeDown
)

func (o Outcome) String() string {
	if o == OutcomeUp {
		return "up"
	}
	return "down"
}

// CatalogMarket is the JSON shape of one entry returned by the
// prediction-market catalog's slug lookup endpoint.
type CatalogMarket struct {
	ID              string `json:"id"`
	ConditionID     string `json:"conditionId"`
	Slug            string `json:"slug"`
	Question        string `json:"question"`
	ClobTokenIds    string `json:"clobTokenIds"` // JSON-encoded 2-element array
	AcceptingOrders bool   `json:"acceptingOrders"`
	Closed          bool   `json:"closed"`
	EndDate         string `json:"endDate"`
	EventStartTime  string `json:"eventStartTime"`
	Events          []struct {
		StartTime string `json:"startTime"`
	} `json:"events"`
}

// ActiveMarket is the descriptor for the single currently-open
// short-horizon contract.
type ActiveMarket struct {
	ConditionID string
	Slug        string
	Title       string
	UpTokenID   string
	DownTokenID string
	WindowStart time.Time
	WindowEnd   time.Time

	HasTarget   bool
	TargetPrice float64
}

// WSBookLevel is one price/size pair within a prediction-market book
// snapshot message.
type WSBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSBookSnapshot is a full order-book snapshot for one outcome token.
type WSBookSnapshot struct {
	EventType string        `json:"event_type"`
	AssetID   string        `json:"asset_id"`
	Bids      []WSBookLevel `json:"bids"` // ascending
	Asks      []WSBookLevel `json:"asks"` // ascending
}

// WSPriceChange is one entry within a price_changes event.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// WSPriceChangeEvent carries one or more per-token best bid/ask updates.
type WSPriceChangeEvent struct {
	EventType    string          `json:"event_type"`
	PriceChanges []WSPriceChange `json:"price_changes"`
}

// WSSubscribeMsg is sent once after dialing the prediction-market stream.
type WSSubscribeMsg struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// QuoteSide holds the best bid/ask known for one outcome token.
type QuoteSide struct {
	HasBid   bool
	Bid      float64
	BidSize  float64
	HasAsk   bool
	Ask      float64
	AskSize  float64
}

// PredictionQuote is a cloned snapshot of the prediction-market quote
// maintainer's state for both outcome tokens.
type PredictionQuote struct {
	Up           QuoteSide
	Down         QuoteSide
	LastUpdateMs int64
	HasUpdate    bool
}

// ————————————————————————————————————————————————————————————————————————
// Signal
// ————————————————————————————————————————————————————————————————————————

// Side is the signal evaluator's discrete recommendation.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
	SideNone Side = "none"
)

// SignalState is the evaluator's latest recommendation.
type SignalState struct {
	Side       Side
	Confidence float64
	Reasons    []string
	Return1s   float64
	Return3s   float64
	StalenessMs int64
	ComputedAt time.Time
}

// SignalEvent is broadcast whenever a non-none side is recommended.
type SignalEvent struct {
	State SignalState
}

// ————————————————————————————————————————————————————————————————————————
// Trading
// ————————————————————————————————————————————————————————————————————————

// OrderSide mirrors the exchange's BUY/SELL vocabulary; this agent only
// ever emits BUY orders (spec.md §4.5).
type OrderSide string

const (
	Buy OrderSide = "BUY"
)

// OrderType enumerates supported order lifecycles.
type OrderType string

const (
	GTC OrderType = "GTC"
)

// TradeConfig is the mutable, operator-controlled trading configuration.
type TradeConfig struct {
	OrderSize     float64
	MaxPriceUp    float64
	MaxPriceDown  float64
	KillSwitchOn  bool
}

// RejectionReason enumerates the pre-trade risk checks of spec.md §4.5,
// in evaluation order.
type RejectionReason string

const (
	RejectNone           RejectionReason = ""
	RejectKillSwitch     RejectionReason = "kill switch engaged"
	RejectSizeExceeded   RejectionReason = "order size exceeds configured maximum"
	RejectStaleQuote     RejectionReason = "prediction-market quote is stale"
	RejectPriceExceeded  RejectionReason = "limit price exceeds configured maximum"
	RejectSpreadExceeded RejectionReason = "quoted spread exceeds configured maximum"
)

// OrderRequest is the outbound CLOB order payload (spec.md §4.5).
type OrderRequest struct {
	TokenID string    `json:"token_id"`
	Price   string    `json:"price"`
	Size    string    `json:"size"`
	Side    OrderSide `json:"side"`
	Type    OrderType `json:"type"`
}

// OrderResult is the client's normalized view of the CLOB's response to
// an order submission.
type OrderResult struct {
	HTTPStatus int
	RawBody    string
	Success    bool
	OrderID    string
	ErrorMsg   string
}

// ActionLogEntry records one operator-facing trade-gate decision.
type ActionLogEntry struct {
	Timestamp time.Time
	Side      Side
	Price     float64
	Size      float64
	Mode      string // "dry_run" or "live"
	PostOnly  bool
	Accepted  bool
	Reason    RejectionReason
	Result    *OrderResult
	Summary   string
}

// SnapshotRecord is emitted once per second to the logger/UI
// collaborator (spec.md §6). All fields are pointers/zero-valuable so
// an absent upstream source simply leaves the field at its zero value.
type SnapshotRecord struct {
	RecvTimeMs int64 `json:"recv_time_ms"`

	SpotMid      *float64 `json:"spot_mid,omitempty"`
	SpotBestBid  *float64 `json:"spot_best_bid,omitempty"`
	SpotBestAsk  *float64 `json:"spot_best_ask,omitempty"`
	Return1s     *float64 `json:"return_1s,omitempty"`
	Return3s     *float64 `json:"return_3s,omitempty"`
	Return10s    *float64 `json:"return_10s,omitempty"`
	ImbalanceTop5 *float64 `json:"imbalance_top5,omitempty"`
	StdDev5m     *float64 `json:"std_dev_5m,omitempty"`

	PMUpBid   *float64 `json:"pm_up_bid,omitempty"`
	PMUpAsk   *float64 `json:"pm_up_ask,omitempty"`
	PMDownBid *float64 `json:"pm_down_bid,omitempty"`
	PMDownAsk *float64 `json:"pm_down_ask,omitempty"`
	PMSpreadUp   *float64 `json:"pm_spread_up,omitempty"`
	PMSpreadDown *float64 `json:"pm_spread_down,omitempty"`
	StalenessMs  *int64   `json:"staleness_ms,omitempty"`

	TargetPrice    *float64 `json:"target_price,omitempty"`
	RemainingSecs  *int64   `json:"remaining_secs,omitempty"`

	SignalSide       Side    `json:"signal_side"`
	SignalConfidence float64 `json:"signal_confidence"`
}
