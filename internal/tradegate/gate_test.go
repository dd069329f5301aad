package tradegate

import (
	"context"
	"testing"

	"spotarb/internal/types"
)

type fakeQuotes struct {
	snapshot    types.PredictionQuote
	staleness   int64
	stalenessOK bool
}

func (f fakeQuotes) Snapshot() types.PredictionQuote           { return f.snapshot }
func (f fakeQuotes) Staleness(nowMs int64) (int64, bool) { return f.staleness, f.stalenessOK }

type fakeMarket struct {
	market types.ActiveMarket
	ok     bool
}

func (f fakeMarket) CurrentMarket() (types.ActiveMarket, bool) { return f.market, f.ok }

type fakeClient struct {
	result *types.OrderResult
	err    error
	calls  int
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	f.calls++
	return f.result, f.err
}

type fakePersister struct {
	saved []types.TradeConfig
}

func (f *fakePersister) SaveTradeConfig(cfg types.TradeConfig) error {
	f.saved = append(f.saved, cfg)
	return nil
}

func testMarket() types.ActiveMarket {
	return types.ActiveMarket{ConditionID: "c1", UpTokenID: "up", DownTokenID: "down"}
}

func TestPlaceOrderRejectsWhenKillSwitchOn(t *testing.T) {
	t.Parallel()
	cfg := types.TradeConfig{OrderSize: 10, MaxPriceUp: 0.9, KillSwitchOn: true}
	client := &fakeClient{}
	g := NewGate(cfg, RiskLimits{MaxSize: 100, StaleQuoteThresholdMs: 5000},
		"dry_run",
		fakeQuotes{staleness: 100, stalenessOK: true},
		fakeMarket{market: testMarket(), ok: true},
		client, nil)

	entry := g.PlaceOrder(context.Background(), types.SideUp)

	if entry.Accepted {
		t.Fatal("expected rejection when kill switch is on")
	}
	if entry.Reason != types.RejectKillSwitch {
		t.Fatalf("Reason = %v, want %v", entry.Reason, types.RejectKillSwitch)
	}
	if client.calls != 0 {
		t.Fatal("expected the order client not to be called on rejection")
	}
}

func TestPlaceOrderRejectsOnStaleQuote(t *testing.T) {
	t.Parallel()
	// Scenario 5: kill switch off, size 10 <= max 100, staleness 6000ms,
	// threshold 5000ms.
	cfg := types.TradeConfig{OrderSize: 10, MaxPriceUp: 0.9}
	client := &fakeClient{}
	g := NewGate(cfg, RiskLimits{MaxSize: 100, StaleQuoteThresholdMs: 5000},
		"dry_run",
		fakeQuotes{staleness: 6000, stalenessOK: true},
		fakeMarket{market: testMarket(), ok: true},
		client, nil)

	entry := g.PlaceOrder(context.Background(), types.SideUp)

	if entry.Accepted {
		t.Fatal("expected rejection on stale quote")
	}
	if entry.Reason != types.RejectStaleQuote {
		t.Fatalf("Reason = %v, want %v", entry.Reason, types.RejectStaleQuote)
	}
}

func TestPlaceOrderRejectsWhenSizeExceedsMax(t *testing.T) {
	t.Parallel()
	cfg := types.TradeConfig{OrderSize: 150, MaxPriceUp: 0.9}
	g := NewGate(cfg, RiskLimits{MaxSize: 100, StaleQuoteThresholdMs: 5000},
		"dry_run",
		fakeQuotes{staleness: 100, stalenessOK: true},
		fakeMarket{market: testMarket(), ok: true},
		&fakeClient{}, nil)

	entry := g.PlaceOrder(context.Background(), types.SideUp)

	if entry.Accepted || entry.Reason != types.RejectSizeExceeded {
		t.Fatalf("entry = %+v, want rejected with RejectSizeExceeded", entry)
	}
}

func TestPlaceOrderRejectsOnExcessiveSpread(t *testing.T) {
	t.Parallel()
	cfg := types.TradeConfig{OrderSize: 10, MaxPriceUp: 0.9}
	quote := types.PredictionQuote{Up: types.QuoteSide{HasBid: true, Bid: 0.40, HasAsk: true, Ask: 0.60}}
	g := NewGate(cfg, RiskLimits{MaxSize: 100, StaleQuoteThresholdMs: 5000, MaxSpread: 0.05},
		"dry_run",
		fakeQuotes{snapshot: quote, staleness: 100, stalenessOK: true},
		fakeMarket{market: testMarket(), ok: true},
		&fakeClient{}, nil)

	entry := g.PlaceOrder(context.Background(), types.SideUp)

	if entry.Accepted || entry.Reason != types.RejectSpreadExceeded {
		t.Fatalf("entry = %+v, want rejected with RejectSpreadExceeded", entry)
	}
}

func TestPlaceOrderAcceptsAndPricesAtMinOfAskAndMaxPrice(t *testing.T) {
	t.Parallel()
	cfg := types.TradeConfig{OrderSize: 10, MaxPriceUp: 0.70}
	quote := types.PredictionQuote{Up: types.QuoteSide{HasBid: true, Bid: 0.50, HasAsk: true, Ask: 0.55}}
	client := &fakeClient{result: &types.OrderResult{Success: true, OrderID: "abc"}}
	g := NewGate(cfg, RiskLimits{MaxSize: 100, StaleQuoteThresholdMs: 5000, MaxSpread: 0.5},
		"dry_run",
		fakeQuotes{snapshot: quote, staleness: 100, stalenessOK: true},
		fakeMarket{market: testMarket(), ok: true},
		client, nil)

	entry := g.PlaceOrder(context.Background(), types.SideUp)

	if !entry.Accepted {
		t.Fatalf("expected acceptance, got %+v", entry)
	}
	if entry.Price != 0.55 {
		t.Fatalf("Price = %v, want 0.55 (min of ask and max price)", entry.Price)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly one order submission, got %d", client.calls)
	}
}

func TestPlaceOrderUsesMaxPriceWhenNoAskKnown(t *testing.T) {
	t.Parallel()
	cfg := types.TradeConfig{OrderSize: 10, MaxPriceUp: 0.70}
	client := &fakeClient{result: &types.OrderResult{Success: true}}
	g := NewGate(cfg, RiskLimits{MaxSize: 100, StaleQuoteThresholdMs: 5000},
		"dry_run",
		fakeQuotes{staleness: 100, stalenessOK: true},
		fakeMarket{market: testMarket(), ok: true},
		client, nil)

	entry := g.PlaceOrder(context.Background(), types.SideUp)

	if !entry.Accepted || entry.Price != 0.70 {
		t.Fatalf("entry = %+v, want accepted with Price=0.70", entry)
	}
}

func TestToggleKillSwitchPersists(t *testing.T) {
	t.Parallel()
	persist := &fakePersister{}
	g := NewGate(types.TradeConfig{}, RiskLimits{}, "dry_run", fakeQuotes{}, fakeMarket{}, &fakeClient{}, persist)

	cfg := g.ToggleKillSwitch()
	if !cfg.KillSwitchOn {
		t.Fatal("expected kill switch to be on after first toggle")
	}
	if len(persist.saved) != 1 {
		t.Fatalf("persist.saved = %d entries, want 1", len(persist.saved))
	}
}

func TestGetActionLogReturnsClone(t *testing.T) {
	t.Parallel()
	g := NewGate(types.TradeConfig{KillSwitchOn: true}, RiskLimits{}, "dry_run",
		fakeQuotes{}, fakeMarket{market: testMarket(), ok: true}, &fakeClient{}, nil)
	g.PlaceOrder(context.Background(), types.SideUp)

	log := g.GetActionLog()
	if len(log) != 1 {
		t.Fatalf("GetActionLog() = %d entries, want 1", len(log))
	}
	log[0].Summary = "mutated"
	if g.GetActionLog()[0].Summary == "mutated" {
		t.Fatal("GetActionLog should return a clone, not a shared slice")
	}
}
