package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/speedy-van/dispatch/pkg/errors"
)

const requestBodyReadLimit int64 = 1024

var (
	errBaseURLRequired = errors.New("pricing base url is required")
)

// Client calls the pricing service for booking re-quotes in route context.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the pricing client.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return client, nil
}

// QuoteRequest asks for the multi-drop price of one booking within a route.
type QuoteRequest struct {
	BookingID  uuid.UUID `json:"booking_id"`
	RouteDrops int       `json:"route_drops"`
	SharedKm   float64   `json:"shared_km"`
	TotalPence int       `json:"total_pence"`
}

// Quote is the re-priced booking returned by the pricing service.
type Quote struct {
	TotalPence    int `json:"total_pence"`
	DiscountPence int `json:"discount_pence"`
}

// RequoteForRoute fetches the consolidated price for a booking.
func (c *Client) RequoteForRoute(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing client not configured")
	}
	if req.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	if req.RouteDrops < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route drops must be positive")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal quote request")
	}

	url := fmt.Sprintf("%s/v1/quotes:route", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build quote request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute quote request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "quote request failed")
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode quote response")
	}
	if quote.TotalPence < 0 || quote.DiscountPence < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "quote contained negative amounts")
	}
	if quote.DiscountPence > req.TotalPence {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "quote discount exceeds booking total")
	}

	return &quote, nil
}

// SharedDiscount splits a route-level saving across drops, rounding each
// booking's share down to whole pence so the split never over-refunds.
func SharedDiscount(routeSavingPence int, drops int) int {
	if routeSavingPence <= 0 || drops <= 0 {
		return 0
	}
	saving := decimal.NewFromInt(int64(routeSavingPence))
	share := saving.Div(decimal.NewFromInt(int64(drops)))
	return int(share.Floor().IntPart())
}
