package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

type fakePriceCache struct {
	prices map[string]float64
	getErr error
	setErr error
	sets   int
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{prices: make(map[string]float64)}
}

func (c *fakePriceCache) Get(ctx context.Context, pairAddress string) (float64, bool, error) {
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	p, ok := c.prices[pairAddress]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	return p, true, nil
}

func (c *fakePriceCache) Set(ctx context.Context, pairAddress string, price float64) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.sets++
	c.prices[pairAddress] = price
	return nil
}

func TestChainedPriceSource_CacheHitShortCircuits(t *testing.T) {
	cache := newFakePriceCache()
	cache.prices["PAIR"] = 42.5
	primary := &fakePriceFetcher{price: 99, ok: true}

	src := NewChainedPriceSource(cache, primary, nil, testLogger())
	price, ok, err := src.FetchPrice(context.Background(), "PAIR", "BTC", "USDC")
	if err != nil || !ok {
		t.Fatalf("fetch: price=%v ok=%v err=%v", price, ok, err)
	}
	if price != 42.5 {
		t.Errorf("price = %v, want the cached 42.5", price)
	}
	if primary.calls != 0 {
		t.Errorf("primary was consulted %d times despite a cache hit", primary.calls)
	}
}

func TestChainedPriceSource_PrimaryFillsCache(t *testing.T) {
	cache := newFakePriceCache()
	primary := &fakePriceFetcher{price: 7.25, ok: true}

	src := NewChainedPriceSource(cache, primary, nil, testLogger())
	price, ok, err := src.FetchPrice(context.Background(), "PAIR", "BTC", "USDC")
	if err != nil || !ok || price != 7.25 {
		t.Fatalf("fetch: price=%v ok=%v err=%v", price, ok, err)
	}
	if cache.prices["PAIR"] != 7.25 {
		t.Errorf("cache was not filled, has %v", cache.prices["PAIR"])
	}
}

func TestChainedPriceSource_FallsBackWhenPrimaryHasNoPrice(t *testing.T) {
	primary := &fakePriceFetcher{ok: false}
	fallback := &fakePriceFetcher{price: 3.5, ok: true}

	src := NewChainedPriceSource(nil, primary, fallback, testLogger())
	price, ok, err := src.FetchPrice(context.Background(), "PAIR", "BTC", "USDC")
	if err != nil || !ok || price != 3.5 {
		t.Fatalf("fetch: price=%v ok=%v err=%v", price, ok, err)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("calls primary=%d fallback=%d, want 1 each", primary.calls, fallback.calls)
	}
}

// erroringFetcher fails with a non-context error.
type erroringFetcher struct{ calls int }

func (f *erroringFetcher) FetchPrice(ctx context.Context, pairAddress, baseToken, quoteToken string) (float64, bool, error) {
	f.calls++
	return 0, false, errors.New("dial tcp: connection refused")
}

func TestChainedPriceSource_AbsorbsSourceErrors(t *testing.T) {
	primary := &erroringFetcher{}
	fallback := &fakePriceFetcher{price: 12, ok: true}

	src := NewChainedPriceSource(nil, primary, fallback, testLogger())
	price, ok, err := src.FetchPrice(context.Background(), "PAIR", "BTC", "USDC")
	if err != nil {
		t.Fatalf("source errors must be absorbed, got %v", err)
	}
	if !ok || price != 12 {
		t.Errorf("price=%v ok=%v, want the fallback's 12", price, ok)
	}
}

func TestChainedPriceSource_ExhaustedChainReportsNoPrice(t *testing.T) {
	src := NewChainedPriceSource(nil, &erroringFetcher{}, &fakePriceFetcher{ok: false}, testLogger())
	price, ok, err := src.FetchPrice(context.Background(), "PAIR", "BTC", "USDC")
	if err != nil {
		t.Fatalf("exhausted chain must not error, got %v", err)
	}
	if ok || price != 0 {
		t.Errorf("price=%v ok=%v, want no price", price, ok)
	}
}

func TestChainedPriceSource_CancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &erroringFetcher{}
	src := NewChainedPriceSource(nil, primary, &fakePriceFetcher{price: 1, ok: true}, testLogger())
	_, _, err := src.FetchPrice(ctx, "PAIR", "BTC", "USDC")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestChainedPriceSource_BrokenCacheIsNonFatal(t *testing.T) {
	cache := newFakePriceCache()
	cache.getErr = errors.New("redis: connection pool timeout")
	cache.setErr = cache.getErr
	primary := &fakePriceFetcher{price: 5, ok: true}

	src := NewChainedPriceSource(cache, primary, nil, testLogger())
	price, ok, err := src.FetchPrice(context.Background(), "PAIR", "BTC", "USDC")
	if err != nil || !ok || price != 5 {
		t.Fatalf("fetch: price=%v ok=%v err=%v", price, ok, err)
	}
}
