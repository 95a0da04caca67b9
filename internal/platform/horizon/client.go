// Package horizon is a minimal client for the Stellar Horizon order-book
// endpoint, used as the on-chain fallback price source when DexScreener is
// unavailable.
package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Horizon instance for the Stellar mainnet.
const DefaultBaseURL = "https://horizon.stellar.org"

// Client reads a pair price off the Stellar DEX order book. Like the primary
// source, any failure is normalized to "no price".
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Horizon client. An empty baseURL falls back to the public
// mainnet instance.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// orderBookResponse mirrors the subset of the Horizon /order_book payload the
// oracle reads.
type orderBookResponse struct {
	Bids []priceLevel `json:"bids"`
	Asks []priceLevel `json:"asks"`
}

type priceLevel struct {
	Price string `json:"price"`
}

// FetchPrice returns the mid-price between the best bid and best ask of the
// base/quote order book. An empty or one-sided book yields no price: a
// settlement-grade quote needs both sides.
func (c *Client) FetchPrice(ctx context.Context, pairAddress, baseToken, quoteToken string) (float64, bool, error) {
	params := url.Values{}
	setAssetParams(params, "selling", baseToken)
	setAssetParams(params, "buying", quoteToken)

	endpoint := c.baseURL + "/order_book?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, fmt.Errorf("horizon: create request: %w", err)
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

	var book orderBookResponse
	if err := json.Unmarshal(body, &book); err != nil {
		return 0, false, nil
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return 0, false, nil
	}

	bid, err1 := strconv.ParseFloat(book.Bids[0].Price, 64)
	ask, err2 := strconv.ParseFloat(book.Asks[0].Price, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return 0, false, nil
	}

	return (bid + ask) / 2, true, nil
}

// setAssetParams fills the Horizon asset-triple query parameters for one side
// of the book. Token identifiers use the "CODE:ISSUER" convention; the bare
// code "XLM" (or "native") selects the native asset.
func setAssetParams(params url.Values, side, token string) {
	if token == "XLM" || token == "native" || token == "" {
		params.Set(side+"_asset_type", "native")
		return
	}

	code, issuer, _ := strings.Cut(token, ":")
	assetType := "credit_alphanum4"
	if len(code) > 4 {
		assetType = "credit_alphanum12"
	}
	params.Set(side+"_asset_type", assetType)
	params.Set(side+"_asset_code", code)
	params.Set(side+"_asset_issuer", issuer)
}
