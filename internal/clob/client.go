package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"spotarb/internal/types"
)

const defaultBaseURL = "https://clob.polymarket.com"

// BookLevel is one price/size pair as returned by the unauthenticated
// book endpoint.
type BookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookResponse is the response shape of GET /book.
type BookResponse struct {
	Bids []BookLevel `json:"bids"`
	Asks []BookLevel `json:"asks"`
}

// MidpointResponse is the response shape of GET /midpoint.
type MidpointResponse struct {
	Mid string `json:"mid"`
}

// DiagnosticResult is the outcome of the startup authentication
// diagnostic of spec.md §4.5.
type DiagnosticResult struct {
	TimeOK    bool
	APIKeysOK bool
	OrdersOK  bool
}

// Client is the REST client against the order API.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a Client. If baseURL is empty, the venue's
// production base URL is used.
func NewClient(baseURL string, auth *Auth, dryRun bool, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only reads are retried; order placement and cancellation
			// are sent once.
			if r != nil && r.Request != nil && r.Request.Method != http.MethodGet {
				return false
			}
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: dryRun,
		logger: logger,
	}
}

// Time performs the unauthenticated GET /time call.
func (c *Client) Time(ctx context.Context) (time.Time, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/time")
	if err != nil {
		return time.Time{}, fmt.Errorf("get time: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return time.Time{}, fmt.Errorf("get time: status %d", resp.StatusCode())
	}
	secs, err := strconv.ParseInt(string(resp.Body()), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time body: %w", err)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// APIKeys performs the authenticated GET /api-keys call.
func (c *Client) APIKeys(ctx context.Context) error {
	headers, err := c.auth.Headers(http.MethodGet, "/api-keys", "")
	if err != nil {
		return fmt.Errorf("build auth headers: %w", err)
	}
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).Get("/api-keys")
	if err != nil {
		return fmt.Errorf("get api-keys: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("get api-keys: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Orders performs the authenticated GET /orders call.
func (c *Client) Orders(ctx context.Context) error {
	headers, err := c.auth.Headers(http.MethodGet, "/orders", "")
	if err != nil {
		return fmt.Errorf("build auth headers: %w", err)
	}
	resp, err := c.http.R().SetContext(ctx).SetHeaders(headers).Get("/orders")
	if err != nil {
		return fmt.Errorf("get orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("get orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Diagnose runs the three-step startup authentication diagnostic of
// spec.md §4.5. APIKeys failing makes the whole diagnostic unfit for
// enabling live trading.
func (c *Client) Diagnose(ctx context.Context) DiagnosticResult {
	var result DiagnosticResult

	if _, err := c.Time(ctx); err != nil {
		c.logger.Warn("auth diagnostic: unauthenticated time check failed", "err", err)
	} else {
		result.TimeOK = true
	}

	if err := c.APIKeys(ctx); err != nil {
		c.logger.Warn("auth diagnostic: authenticated api-keys check failed", "err", err)
	} else {
		result.APIKeysOK = true
	}

	if err := c.Orders(ctx); err != nil {
		c.logger.Warn("auth diagnostic: authenticated orders check failed", "err", err)
	} else {
		result.OrdersOK = true
	}

	return result
}

// Book fetches the order book for a single token.
func (c *Client) Book(ctx context.Context, tokenID string) (*BookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	var result BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// Midpoint fetches the midpoint price for a single token.
func (c *Client) Midpoint(ctx context.Context, tokenID string) (*MidpointResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}
	var result MidpointResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/midpoint")
	if err != nil {
		return nil, fmt.Errorf("get midpoint: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get midpoint: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// PlaceOrder submits req as a BUY order. In dry-run mode the request is
// logged but never sent (spec.md §4.5 "Submission").
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would place order", "token_id", req.TokenID, "price", req.Price, "size", req.Size)
		return &types.OrderResult{Success: true, OrderID: "dry-run", HTTPStatus: http.StatusOK}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.Headers(http.MethodPost, "/order", string(body))
	if err != nil {
		return nil, fmt.Errorf("build auth headers: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post("/order")
	if err != nil {
		return nil, fmt.Errorf("post order: %w", err)
	}
	return parseOrderResult(resp.StatusCode(), resp.Body()), nil
}

// CancelOrder cancels an order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.OrderResult, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "order_id", orderID)
		return &types.OrderResult{Success: true, OrderID: orderID, HTTPStatus: http.StatusOK}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(struct {
		OrderID string `json:"orderID"`
	}{OrderID: orderID})
	if err != nil {
		return nil, fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.auth.Headers(http.MethodDelete, "/order", string(body))
	if err != nil {
		return nil, fmt.Errorf("build auth headers: %w", err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Delete("/order")
	if err != nil {
		return nil, fmt.Errorf("delete order: %w", err)
	}
	return parseOrderResult(resp.StatusCode(), resp.Body()), nil
}

func parseOrderResult(statusCode int, body []byte) *types.OrderResult {
	result := &types.OrderResult{
		HTTPStatus: statusCode,
		RawBody:    string(body),
	}

	var parsed struct {
		Success  bool   `json:"success"`
		OrderID  string `json:"orderID"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		result.Success = parsed.Success
		result.OrderID = parsed.OrderID
		result.ErrorMsg = parsed.ErrorMsg
	}
	if statusCode != http.StatusOK && result.ErrorMsg == "" {
		result.ErrorMsg = fmt.Sprintf("status %d", statusCode)
	}
	return result
}
