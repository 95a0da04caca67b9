package oracle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/backitlabs/backit-oracle/internal/domain"
)

// PriceFetcher retrieves a current USD price for a trading pair from one
// external source. A missing price is reported as ok=false, never as an
// error: unreachable or malformed upstreams are an expected condition that
// the caller retries on. The error return is reserved for context
// cancellation and programming mistakes.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, pairAddress, baseToken, quoteToken string) (price float64, ok bool, err error)
}

// ChainedPriceSource composes a short-TTL cache, a primary source, and an
// optional on-chain fallback into a single PriceFetcher.
type ChainedPriceSource struct {
	cache    domain.PriceCache // may be nil
	primary  PriceFetcher
	fallback PriceFetcher // may be nil
	logger   *slog.Logger
}

// NewChainedPriceSource builds the cache -> primary -> fallback chain. cache
// and fallback may be nil, in which case the corresponding step is skipped.
func NewChainedPriceSource(cache domain.PriceCache, primary, fallback PriceFetcher, logger *slog.Logger) *ChainedPriceSource {
	return &ChainedPriceSource{
		cache:    cache,
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "price_source")),
	}
}

// FetchPrice tries each source in order and returns the first price found,
// writing fresh observations back to the cache. Source failures are logged
// and absorbed; only context cancellation aborts the chain.
func (s *ChainedPriceSource) FetchPrice(ctx context.Context, pairAddress, baseToken, quoteToken string) (float64, bool, error) {
	if s.cache != nil {
		price, ok, err := s.cache.Get(ctx, pairAddress)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "price cache read failed",
				slog.String("pair", pairAddress),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return price, true, nil
		}
	}

	for _, src := range []PriceFetcher{s.primary, s.fallback} {
		if src == nil {
			continue
		}

		price, ok, err := src.FetchPrice(ctx, pairAddress, baseToken, quoteToken)
		if err != nil {
			if ctx.Err() != nil {
				return 0, false, ctx.Err()
			}
			s.logger.WarnContext(ctx, "price source failed",
				slog.String("pair", pairAddress),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}

		if s.cache != nil {
			if cerr := s.cache.Set(ctx, pairAddress, price); cerr != nil {
				s.logger.WarnContext(ctx, "price cache write failed",
					slog.String("pair", pairAddress),
					slog.String("error", cerr.Error()),
				)
			}
		}
		return price, true, nil
	}

	return 0, false, nil
}
