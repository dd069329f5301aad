// Package refprice maintains the latest value from the single-symbol
// reference price stream, which the prediction-market maintainer uses
// as the fallback target price for the current window (spec.md §4.2).
package refprice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spotarb/internal/broadcast"
	"spotarb/internal/types"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 5 * time.Second
	readTimeout    = 15 * time.Second
)

// Feed holds the latest reference price value and fans out every
// update it receives.
type Feed struct {
	Bus *broadcast.Bus[types.ReferencePriceMessage]

	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu       sync.RWMutex
	current  types.ReferencePriceMessage
	hasValue bool
}

// NewFeed constructs a Feed dialing the given websocket URL.
func NewFeed(url string, logger *slog.Logger) *Feed {
	return &Feed{
		Bus:    broadcast.New[types.ReferencePriceMessage](64),
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Run drives the reconnect loop until ctx is canceled.
func (f *Feed) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := f.runOnce(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("reference price feed disconnected, reconnecting", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go f.pingLoop(conn, done)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var m types.ReferencePriceMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			f.logger.Debug("reference price feed: malformed message", "err", err)
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		f.mu.Lock()
		f.current = m
		f.hasValue = true
		f.mu.Unlock()

		f.Bus.Publish(m)
	}
}

func (f *Feed) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CurrentPrice returns the latest value received, or ok=false if no
// message has arrived yet.
func (f *Feed) CurrentPrice() (types.ReferencePriceMessage, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current, f.hasValue
}
