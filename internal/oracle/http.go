package oracle

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/caglarilhan/borsailhanos-sub000/internal/config"
)

// Client is a price oracle backed by an HTTP quote endpoint.
// It implements the Oracle interface.
type Client struct {
	client  *resty.Client
	apiKey  string
	timeout time.Duration
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ Oracle = (*Client)(nil)

// NewClient creates a new HTTP price oracle client.
func NewClient(cfg *config.Oracle, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}

	return &Client{
		client:  client,
		apiKey:  cfg.ApiKey,
		timeout: timeout,
		logger:  logger,
		limiter: limiter,
	}
}

// Quote represents the response for a single symbol quote.
type Quote struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// doRequest handles the actual request execution with rate limiting and retry logic.
// The caller's deadline bounds the whole exchange, retries included: once the
// budget is spent the request fails hard instead of waiting out a backoff.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.SetContext(ctx).Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 100ms, 200ms, 400ms
			retryAfter = time.Duration(math.Pow(2, float64(i))) * 100 * time.Millisecond
		}

		c.logger.Warn("Quote request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// newRequest builds a request with the common headers applied.
func (c *Client) newRequest() *resty.Request {
	req := c.client.R().SetHeader("Content-Type", "application/json")
	if c.apiKey != "" {
		req.SetHeader("X-API-KEY", c.apiKey)
	}
	return req
}

// Price fetches the current price for one symbol. The lookup is bounded by the
// configured timeout; a miss, malformed quote, or timeout is a hard failure.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var quote Quote
	req := c.newRequest().
		SetResult(&quote).
		SetQueryParam("symbol", symbol)

	resp, err := c.doRequest(ctx, "GET", "/quote", req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}

	result := resp.Result().(*Quote)
	if result.Symbol == "" || result.Price == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}

	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse quote price %q for %s: %w", result.Price, symbol, err)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}

	return price, nil
}

// Prices fetches the latest prices for a set of symbols in one call.
// Symbols the endpoint does not know, or whose quotes fail to parse, are
// skipped so one bad listing cannot starve the rest of the batch.
func (c *Client) Prices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var quotes []*Quote
	req := c.newRequest().
		SetResult(&quotes).
		SetQueryParam("symbols", strings.Join(symbols, ","))

	resp, err := c.doRequest(ctx, "GET", "/quotes", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	result := resp.Result().(*[]*Quote)
	prices := make(map[string]decimal.Decimal, len(*result))
	for _, q := range *result {
		price, err := decimal.NewFromString(q.Price)
		if err != nil || price.LessThanOrEqual(decimal.Zero) {
			c.logger.Warn("Skipping unparseable quote",
				zap.String("symbol", q.Symbol), zap.String("price", q.Price))
			continue
		}
		prices[q.Symbol] = price
	}

	return prices, nil
}
