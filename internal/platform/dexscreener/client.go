// Package dexscreener is the REST client for the DexScreener market-data API,
// the oracle's primary price source.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public DexScreener API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client fetches pair prices from DexScreener. The upstream is an untrusted,
// unreliable third party: every transport error, non-2xx status, and missing
// field is normalized to "no price" so the caller can apply a uniform retry
// policy instead of branching on exception shapes.
type Client struct {
	baseURL    string
	chain      string
	httpClient *http.Client
}

// New creates a DexScreener client for the given chain slug (e.g. "stellar").
// An empty baseURL falls back to the public API.
func New(baseURL, chain string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		chain:   chain,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// pairResponse mirrors the subset of the DexScreener pair payload the oracle
// reads: {"pair": {"priceUsd": "1.2345"}}.
type pairResponse struct {
	Pair *struct {
		PriceUsd string `json:"priceUsd"`
	} `json:"pair"`
}

// FetchPrice returns the pair's USD price, or ok=false when DexScreener has
// no usable quote. Only context cancellation is surfaced as an error.
func (c *Client) FetchPrice(ctx context.Context, pairAddress, baseToken, quoteToken string) (float64, bool, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/pairs/%s/%s",
		c.baseURL, url.PathEscape(c.chain), url.PathEscape(pairAddress))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, fmt.Errorf("dexscreener: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		return 0, false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, false, nil
	}

	var parsed pairResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, false, nil
	}
	if parsed.Pair == nil || parsed.Pair.PriceUsd == "" {
		return 0, false, nil
	}

	price, err := strconv.ParseFloat(parsed.Pair.PriceUsd, 64)
	if err != nil || price <= 0 {
		return 0, false, nil
	}

	return price, true, nil
}
