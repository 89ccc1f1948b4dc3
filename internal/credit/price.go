package credit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/northstarcredit/core/pkg/apperr"
	"github.com/northstarcredit/core/pkg/apptrace"
)

// priceCacheKey is the single Redis key the latest BTC/USD price is
// cached under; every facility in the platform prices off the same feed.
const priceCacheKey = "credit:price:btc_usd"

// priceCacheTTL bounds how stale a cached price may be before a reader
// is forced back to the upstream feed; it is deliberately short, since
// collateralization decisions (margin calls, liquidation) depend on it.
const priceCacheTTL = 10 * time.Second

// PriceFeed is the external market-data source a PriceCache falls back
// to on a cache miss.
type PriceFeed interface {
	BTCUSDPrice(ctx context.Context) (decimal.Decimal, error)
}

// PriceCache fronts PriceFeed with a short-lived Redis cache, the same
// pattern the teacher's own Redis usage follows for hot, frequently-read
// values that tolerate a few seconds of staleness: every proposal and
// facility collateralization sweep reads the price once per tick, and
// hitting the upstream feed for each one would both be slow and risk
// rate-limiting it.
type PriceCache struct {
	redis *redis.Client
	feed  PriceFeed
}

// NewPriceCache builds a PriceCache backed by client, falling back to
// feed on a cache miss.
func NewPriceCache(client *redis.Client, feed PriceFeed) *PriceCache {
	return &PriceCache{redis: client, feed: feed}
}

// BTCUSDPrice returns the current BTC/USD price, serving it from Redis
// when a fresh value is cached and refreshing the cache from feed
// otherwise.
func (c *PriceCache) BTCUSDPrice(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := apptrace.Start(ctx, "credit", "price_cache_get")
	defer span.End()

	cached, err := c.redis.Get(ctx, priceCacheKey).Result()
	if err == nil {
		price, parseErr := decimal.NewFromString(cached)
		if parseErr == nil {
			return price, nil
		}
	} else if err != redis.Nil {
		apptrace.HandleSpanError(span, "read cached price", err)
	}

	price, err := c.feed.BTCUSDPrice(ctx)
	if err != nil {
		apptrace.HandleSpanError(span, "fetch price feed", err)
		return decimal.Decimal{}, apperr.TransientExternal("PriceFeed", err)
	}

	if err := c.redis.Set(ctx, priceCacheKey, price.String(), priceCacheTTL).Err(); err != nil {
		apptrace.HandleSpanError(span, "cache price", err)
	}

	return price, nil
}
