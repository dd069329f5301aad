package spotbook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"spotarb/internal/types"
)

func TestCheckSequenceAcceptsMatchingPrevFinal(t *testing.T) {
	t.Parallel()
	pu := uint64(100)
	d := types.DepthDiffEvent{FirstUpdateID: 101, FinalUpdateID: 105, PrevFinalUpdateID: &pu}
	if err := checkSequence(d, 100); err != nil {
		t.Fatalf("checkSequence() = %v, want nil", err)
	}
}

func TestCheckSequenceRejectsMismatchedPrevFinal(t *testing.T) {
	t.Parallel()
	pu := uint64(99)
	d := types.DepthDiffEvent{FirstUpdateID: 101, FinalUpdateID: 105, PrevFinalUpdateID: &pu}
	if err := checkSequence(d, 100); err == nil {
		t.Fatal("expected checkSequence to reject pu=99 when last applied final=100")
	}
}

func TestCheckSequenceAcceptsContiguousFirstUpdateIDWithoutPrevFinal(t *testing.T) {
	t.Parallel()
	d := types.DepthDiffEvent{FirstUpdateID: 101, FinalUpdateID: 105}
	if err := checkSequence(d, 100); err != nil {
		t.Fatalf("checkSequence() = %v, want nil", err)
	}
}

func TestCheckSequenceRejectsGapWithoutPrevFinal(t *testing.T) {
	t.Parallel()
	d := types.DepthDiffEvent{FirstUpdateID: 110, FinalUpdateID: 115}
	if err := checkSequence(d, 100); err == nil {
		t.Fatal("expected checkSequence to reject a gap between last applied final and F")
	}
}

func TestSpliceBufferedDiffDiscardsStaleDiff(t *testing.T) {
	t.Parallel()
	f := &Feed{Book: New()}
	if err := f.Book.LoadSnapshot(100, nil, nil); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	d := types.DepthDiffEvent{FirstUpdateID: 50, FinalUpdateID: 90}
	applied, lastApplied, err := f.spliceBufferedDiff(d, 100, false, 0)
	if err != nil {
		t.Fatalf("spliceBufferedDiff: %v", err)
	}
	if applied {
		t.Fatal("expected a diff with final<=U to be discarded, not marked applied")
	}
	if lastApplied != 0 {
		t.Fatalf("lastApplied = %d, want 0", lastApplied)
	}
}

func TestSpliceBufferedDiffRejectsGapOnFirstRetainedDiff(t *testing.T) {
	t.Parallel()
	f := &Feed{Book: New()}
	if err := f.Book.LoadSnapshot(100, nil, nil); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	d := types.DepthDiffEvent{FirstUpdateID: 110, FinalUpdateID: 115}
	if _, _, err := f.spliceBufferedDiff(d, 100, false, 0); err == nil {
		t.Fatal("expected a sequence gap on the first retained diff to error")
	}
}

func TestSpliceBufferedDiffAppliesFirstValidDiff(t *testing.T) {
	t.Parallel()
	f := &Feed{Book: New()}
	if err := f.Book.LoadSnapshot(100,
		[][2]string{{"100", "5"}},
		[][2]string{{"101", "5"}},
	); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	d := types.DepthDiffEvent{FirstUpdateID: 95, FinalUpdateID: 101, Bids: [][2]string{{"100", "6"}}}
	applied, lastApplied, err := f.spliceBufferedDiff(d, 100, false, 0)
	if err != nil {
		t.Fatalf("spliceBufferedDiff: %v", err)
	}
	if !applied || lastApplied != 101 {
		t.Fatalf("applied=%v lastApplied=%d, want true/101", applied, lastApplied)
	}
	if f.Book.LastUpdateID() != 101 {
		t.Fatalf("Book.LastUpdateID() = %d, want 101", f.Book.LastUpdateID())
	}
}

func discardFeedLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestBufferUntilSnapshotBuffersDiffsArrivingBeforeTheSnapshot exercises
// the channel contract bufferUntilSnapshot now relies on: diffs arriving
// on diffCh while the snapshot fetch is still in flight are retained in
// order, and the function returns as soon as the snapshot resolves
// without touching the websocket connection itself.
func TestBufferUntilSnapshotBuffersDiffsArrivingBeforeTheSnapshot(t *testing.T) {
	t.Parallel()

	snapReady := make(chan struct{})
	snapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-snapReady
		_ = json.NewEncoder(w).Encode(types.DepthSnapshotResponse{LastUpdateID: 100})
	}))
	defer snapServer.Close()

	f := NewFeed("BTCUSDT", snapServer.URL, "", discardFeedLogger())

	diffCh := make(chan types.DepthDiffEvent)
	readErrCh := make(chan error, 1)

	type result struct {
		snap     *types.DepthSnapshotResponse
		buffered []types.DepthDiffEvent
		err      error
	}
	resCh := make(chan result, 1)
	go func() {
		snap, buffered, err := f.bufferUntilSnapshot(context.Background(), diffCh, readErrCh)
		resCh <- result{snap, buffered, err}
	}()

	diffCh <- types.DepthDiffEvent{FirstUpdateID: 50, FinalUpdateID: 90}
	diffCh <- types.DepthDiffEvent{FirstUpdateID: 91, FinalUpdateID: 95}
	close(snapReady)

	select {
	case res := <-resCh:
		if res.err != nil {
			t.Fatalf("bufferUntilSnapshot: %v", res.err)
		}
		if res.snap.LastUpdateID != 100 {
			t.Fatalf("snap.LastUpdateID = %d, want 100", res.snap.LastUpdateID)
		}
		if len(res.buffered) != 2 || res.buffered[0].FinalUpdateID != 90 || res.buffered[1].FinalUpdateID != 95 {
			t.Fatalf("buffered = %+v, want [90, 95] in arrival order", res.buffered)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bufferUntilSnapshot did not return")
	}
}

func TestBufferUntilSnapshotPropagatesReadError(t *testing.T) {
	t.Parallel()

	snapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Hour) // never resolves before the read error does
	}))
	defer snapServer.Close()

	f := NewFeed("BTCUSDT", snapServer.URL, "", discardFeedLogger())

	diffCh := make(chan types.DepthDiffEvent)
	readErrCh := make(chan error, 1)
	readErrCh <- websocket.ErrCloseSent

	_, _, err := f.bufferUntilSnapshot(context.Background(), diffCh, readErrCh)
	if err == nil {
		t.Fatal("expected bufferUntilSnapshot to propagate the read error")
	}
}

func TestBufferUntilSnapshotReturnsOnContextCancellation(t *testing.T) {
	t.Parallel()

	snapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Hour)
	}))
	defer snapServer.Close()

	f := NewFeed("BTCUSDT", snapServer.URL, "", discardFeedLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	diffCh := make(chan types.DepthDiffEvent)
	readErrCh := make(chan error, 1)

	_, _, err := f.bufferUntilSnapshot(ctx, diffCh, readErrCh)
	if err == nil {
		t.Fatal("expected bufferUntilSnapshot to return with an error on cancellation")
	}
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// TestRunOnceUsesOneReaderAndLeavesNoGoroutineAfterCancel exercises the
// full resync cycle against a real websocket connection: a stale diff
// (final id 90 <= snapshot 100) must be discarded and the following
// diff (91..101) applied exactly once (proof that only one goroutine
// ever reads the connection — a second reader could steal or duplicate
// either message), and canceling the context must not leave the
// connection's reader goroutine running.
func TestRunOnceUsesOneReaderAndLeavesNoGoroutineAfterCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	wsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- c
	}))
	defer wsServer.Close()

	snapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond) // let the first diff be buffered first
		_ = json.NewEncoder(w).Encode(types.DepthSnapshotResponse{LastUpdateID: 100})
	}))
	defer snapServer.Close()

	f := NewFeed("BTCUSDT", snapServer.URL, wsURL(wsServer.URL), discardFeedLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	var serverConn *websocket.Conn
	select {
	case serverConn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("feed never dialed the stream")
	}
	defer serverConn.Close()

	if err := serverConn.WriteJSON(types.DepthDiffEvent{FirstUpdateID: 50, FinalUpdateID: 90}); err != nil {
		t.Fatalf("write buffered diff: %v", err)
	}
	if err := serverConn.WriteJSON(types.DepthDiffEvent{
		FirstUpdateID: 91, FinalUpdateID: 101,
		Bids: [][2]string{{"100", "5"}},
	}); err != nil {
		t.Fatalf("write live diff: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && f.Book.LastUpdateID() != 101 {
		time.Sleep(10 * time.Millisecond)
	}
	if got := f.Book.LastUpdateID(); got != 101 {
		t.Fatalf("Book.LastUpdateID() = %d, want 101 (each diff applied exactly once)", got)
	}

	before := runtime.NumGoroutine()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	deadline = time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) && runtime.NumGoroutine() > before {
		time.Sleep(10 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > before {
		t.Fatalf("goroutine count grew from %d to %d across cancellation; the stream reader goroutine leaked", before, after)
	}
}
