package spot

import (
	"context"
	"sync"
	"time"

	"fundingflow/internal/model"
	"fundingflow/logger"
)

// DefaultTTL bounds how long a fetched spot universe is considered fresh.
const DefaultTTL = time.Hour

// FetchFunc retrieves the current USDT spot universe for one exchange.
type FetchFunc func(ctx context.Context) (map[model.SymbolKey]struct{}, error)

type entry struct {
	// mu serialises refresh-and-store so concurrent callers never trigger
	// duplicate refreshes for the same exchange.
	mu        sync.Mutex
	symbols   map[model.SymbolKey]struct{}
	fetchedAt time.Time
}

// Cache keeps one TTL-bounded spot universe per exchange. A failed refresh
// falls back to the previously cached universe (empty on first run), so Get
// never fails and never blocks the hot path on a broken listing endpoint.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]*entry
	fetch   map[string]FetchFunc
	log     *logger.Log
}

// NewCache builds a cache over the given per-exchange fetchers. Exchanges are
// fully independent: a refresh for one never touches the others.
func NewCache(ttl time.Duration, fetchers map[string]FetchFunc) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*entry, len(fetchers)),
		fetch:   fetchers,
		log:     logger.GetLogger(),
	}
	for exchange := range fetchers {
		c.entries[exchange] = &entry{symbols: map[model.SymbolKey]struct{}{}}
	}

	c.log.WithComponent("spot_cache").WithFields(logger.Fields{
		"exchanges": len(fetchers),
		"ttl":       ttl.String(),
	}).Info("spot symbol cache initialized")

	return c
}

// Get returns the exchange's spot universe, refreshing it when the cached set
// is empty or older than the TTL. The returned map is shared and must be
// treated as read-only by callers.
func (c *Cache) Get(ctx context.Context, exchange string) map[model.SymbolKey]struct{} {
	log := c.log.WithComponent("spot_cache").WithFields(logger.Fields{"exchange": exchange})

	e, ok := c.entries[exchange]
	if !ok {
		log.Warn("no spot fetcher registered for exchange")
		return map[model.SymbolKey]struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.symbols) > 0 && c.now().Sub(e.fetchedAt) < c.ttl {
		log.WithFields(logger.Fields{"symbols": len(e.symbols)}).Debug("using cached spot universe")
		return e.symbols
	}

	symbols, err := c.fetch[exchange](ctx)
	if err != nil {
		log.WithError(err).Warn("spot universe refresh failed, keeping previous set")
		return e.symbols
	}

	e.symbols = symbols
	e.fetchedAt = c.now()
	logger.IncrementSpotRefresh()
	log.WithFields(logger.Fields{"symbols": len(symbols)}).Info("spot universe refreshed")
	return e.symbols
}
