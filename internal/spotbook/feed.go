package spotbook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"

	"spotarb/internal/broadcast"
	"spotarb/internal/types"
)

// reconnectDelay is the fixed backoff between resync attempts
// (spec.md §4.1 "reconnect after a fixed delay").
const reconnectDelay = 5 * time.Second

// Feed owns the network lifecycle that keeps a Book synchronized with
// the venue's snapshot-plus-diff depth protocol: connect the diff
// stream, buffer events, fetch a REST snapshot, splice the two
// together, then apply the live stream until a sequence violation or
// disconnect forces a fresh resync.
type Feed struct {
	Book *Book
	Bus  *broadcast.Bus[types.Quote]

	symbol       string
	snapshotURL  string
	streamURL    string
	httpClient   *resty.Client
	dialer       *websocket.Dialer
	logger       *slog.Logger
}

// NewFeed constructs a Feed for the given symbol. snapshotURL is the
// REST depth-snapshot endpoint; streamURL is the diff websocket
// endpoint (symbol already embedded by the caller, matching how these
// venues name their combined-stream paths).
func NewFeed(symbol, snapshotURL, streamURL string, logger *slog.Logger) *Feed {
	return &Feed{
		Book:        New(),
		Bus:         broadcast.New[types.Quote](64),
		symbol:      symbol,
		snapshotURL: snapshotURL,
		streamURL:   streamURL,
		httpClient:  resty.New().SetTimeout(10 * time.Second),
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:      logger,
	}
}

// Run drives the resync loop until ctx is canceled.
func (f *Feed) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := f.runOnce(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("spot book feed disconnected, resyncing",
				"symbol", f.symbol, "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.streamURL, nil)
	if err != nil {
		return fmt.Errorf("dial diff stream: %w", err)
	}
	defer conn.Close()

	f.Book.Reset()

	// A single goroutine owns conn.ReadMessage for the life of this
	// connection. Both the buffering phase and the steady-state loop
	// below consume its output over diffCh/readErrCh — gorilla/websocket
	// allows only one concurrent reader, so no other goroutine may ever
	// touch conn directly.
	diffCh := make(chan types.DepthDiffEvent)
	readErrCh := make(chan error, 1)
	go func() {
		for {
			d, ok, err := f.readDiff(conn)
			if err != nil {
				readErrCh <- err
				return
			}
			if !ok {
				continue
			}
			select {
			case diffCh <- d:
			case <-ctx.Done():
				return
			}
		}
	}()

	snap, buffered, err := f.bufferUntilSnapshot(ctx, diffCh, readErrCh)
	if err != nil {
		return err
	}

	if err := f.Book.LoadSnapshot(snap.LastUpdateID, snap.Bids, snap.Asks); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	f.publish()

	applied := false
	var lastApplied uint64

	for _, d := range buffered {
		a, la, err := f.spliceBufferedDiff(d, snap.LastUpdateID, applied, lastApplied)
		if err != nil {
			return err
		}
		applied, lastApplied = a, la
	}

	for {
		var d types.DepthDiffEvent
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErrCh:
			return fmt.Errorf("read diff: %w", err)
		case d = <-diffCh:
		}

		if applied && d.FinalUpdateID <= lastApplied {
			continue // already-processed duplicate, idempotent no-op
		}
		if !applied {
			if d.FinalUpdateID <= f.Book.LastUpdateID() {
				continue
			}
			if d.FirstUpdateID > f.Book.LastUpdateID()+1 {
				return fmt.Errorf("sequence gap on first live diff: F=%d > lastUpdateID+1=%d",
					d.FirstUpdateID, f.Book.LastUpdateID()+1)
			}
			applied = true
		} else if err := checkSequence(d, lastApplied); err != nil {
			return err
		}

		if err := f.Book.ApplyDiff(d.FinalUpdateID, time.Now().UnixMilli(), d.Bids, d.Asks); err != nil {
			return fmt.Errorf("apply diff: %w", err)
		}
		lastApplied = d.FinalUpdateID
		f.publish()
	}
}

// spliceBufferedDiff applies the discard/first-match rule (spec.md
// §4.1 steps 2–4) to one diff collected while the REST snapshot was
// still in flight.
func (f *Feed) spliceBufferedDiff(d types.DepthDiffEvent, snapshotLastUpdateID uint64, applied bool, lastApplied uint64) (bool, uint64, error) {
	if d.FinalUpdateID <= snapshotLastUpdateID {
		return applied, lastApplied, nil
	}
	if !applied {
		if d.FirstUpdateID > snapshotLastUpdateID+1 {
			return applied, lastApplied, fmt.Errorf("sequence gap: first retained diff F=%d > U+1=%d",
				d.FirstUpdateID, snapshotLastUpdateID+1)
		}
		applied = true
	} else {
		if d.FinalUpdateID <= lastApplied {
			return applied, lastApplied, nil
		}
		if err := checkSequence(d, lastApplied); err != nil {
			return applied, lastApplied, err
		}
	}
	if err := f.Book.ApplyDiff(d.FinalUpdateID, time.Now().UnixMilli(), d.Bids, d.Asks); err != nil {
		return applied, lastApplied, fmt.Errorf("apply buffered diff: %w", err)
	}
	return applied, d.FinalUpdateID, nil
}

// checkSequence enforces spec.md §4.1's per-diff continuity rule: when
// the diff carries a prev-final-update-id, it must equal the last
// applied final id exactly; otherwise the diff's first-update-id must
// not skip past it.
func checkSequence(d types.DepthDiffEvent, lastApplied uint64) error {
	if d.PrevFinalUpdateID != nil {
		if *d.PrevFinalUpdateID != lastApplied {
			return fmt.Errorf("sequence gap: pu=%d != last applied final=%d", *d.PrevFinalUpdateID, lastApplied)
		}
		return nil
	}
	if d.FirstUpdateID > lastApplied+1 {
		return fmt.Errorf("sequence gap: F=%d > last applied final+1=%d", d.FirstUpdateID, lastApplied+1)
	}
	return nil
}

// bufferUntilSnapshot collects diffs off diffCh/readErrCh — fed by the
// single reader goroutine runOnce owns for the connection's lifetime —
// while a concurrent REST fetch retrieves the snapshot, per spec.md
// §4.1's "buffer incoming diffs, then fetch a snapshot" ordering. It
// never reads the connection itself.
func (f *Feed) bufferUntilSnapshot(ctx context.Context, diffCh <-chan types.DepthDiffEvent, readErrCh <-chan error) (*types.DepthSnapshotResponse, []types.DepthDiffEvent, error) {
	type snapResult struct {
		snap *types.DepthSnapshotResponse
		err  error
	}
	resultCh := make(chan snapResult, 1)
	go func() {
		snap, err := f.fetchSnapshot(ctx)
		resultCh <- snapResult{snap, err}
	}()

	var buffered []types.DepthDiffEvent
	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case res := <-resultCh:
			if res.err != nil {
				return nil, nil, fmt.Errorf("fetch snapshot: %w", res.err)
			}
			return res.snap, buffered, nil
		case err := <-readErrCh:
			return nil, nil, fmt.Errorf("read diff while buffering: %w", err)
		case d := <-diffCh:
			buffered = append(buffered, d)
		}
	}
}

func (f *Feed) fetchSnapshot(ctx context.Context) (*types.DepthSnapshotResponse, error) {
	var snap types.DepthSnapshotResponse
	resp, err := f.httpClient.R().
		SetContext(ctx).
		SetQueryParam("symbol", f.symbol).
		SetResult(&snap).
		Get(f.snapshotURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("snapshot request failed: status=%d body=%s", resp.StatusCode(), resp.String())
	}
	return &snap, nil
}

// readDiff reads one message. ok=false with a nil error means the
// message could not be parsed and was dropped; only read errors end the
// connection.
func (f *Feed) readDiff(conn *websocket.Conn) (types.DepthDiffEvent, bool, error) {
	var d types.DepthDiffEvent
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return d, false, err
	}
	if err := json.Unmarshal(msg, &d); err != nil {
		f.logger.Debug("spot book feed: dropping unparseable diff", "err", err)
		return d, false, nil
	}
	return d, true, nil
}

func (f *Feed) publish() {
	q, ok := f.Book.CurrentQuote(time.Now().UnixMilli())
	if !ok {
		return
	}
	f.Bus.Publish(q)
}
