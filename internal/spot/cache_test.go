package spot

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
)

func fixedUniverse(bases ...string) map[model.SymbolKey]struct{} {
	universe := make(map[model.SymbolKey]struct{}, len(bases))
	for _, base := range bases {
		universe[symbols.Canonical(base)] = struct{}{}
	}
	return universe
}

func TestCacheRefreshesOnFirstGet(t *testing.T) {
	calls := 0
	cache := NewCache(time.Hour, map[string]FetchFunc{
		model.ExchangeBybit: func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
			calls++
			return fixedUniverse("BTC", "ETH"), nil
		},
	})

	universe := cache.Get(context.Background(), model.ExchangeBybit)
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
	if len(universe) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(universe))
	}
	if _, ok := universe[symbols.Canonical("BTC")]; !ok {
		t.Error("BTC missing from universe")
	}
}

func TestCacheDoesNotRefetchWithinTTL(t *testing.T) {
	calls := 0
	now := time.Unix(1_700_000_000, 0)
	cache := NewCache(time.Hour, map[string]FetchFunc{
		model.ExchangeBybit: func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
			calls++
			return fixedUniverse("BTC"), nil
		},
	})
	cache.now = func() time.Time { return now }

	cache.Get(context.Background(), model.ExchangeBybit)
	now = now.Add(30 * time.Minute)
	cache.Get(context.Background(), model.ExchangeBybit)
	if calls != 1 {
		t.Fatalf("expected one fetch within TTL, got %d", calls)
	}

	now = now.Add(31 * time.Minute)
	cache.Get(context.Background(), model.ExchangeBybit)
	if calls != 2 {
		t.Fatalf("expected refetch after TTL, got %d", calls)
	}
}

func TestCacheKeepsPreviousUniverseOnFailure(t *testing.T) {
	fail := false
	cache := NewCache(time.Hour, map[string]FetchFunc{
		model.ExchangeOkx: func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
			if fail {
				return nil, errors.New("listing endpoint unavailable")
			}
			return fixedUniverse("BTC", "SOL"), nil
		},
	})
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	first := cache.Get(context.Background(), model.ExchangeOkx)
	if len(first) != 2 {
		t.Fatalf("expected 2 symbols, got %d", len(first))
	}

	fail = true
	now = now.Add(2 * time.Hour)
	second := cache.Get(context.Background(), model.ExchangeOkx)
	if len(second) != 2 {
		t.Fatalf("expected stale universe to survive a failed refresh, got %d symbols", len(second))
	}
}

func TestCacheFailedFirstFetchReturnsEmpty(t *testing.T) {
	cache := NewCache(time.Hour, map[string]FetchFunc{
		model.ExchangeBitget: func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
			return nil, errors.New("boom")
		},
	})

	universe := cache.Get(context.Background(), model.ExchangeBitget)
	if len(universe) != 0 {
		t.Fatalf("expected empty universe, got %d symbols", len(universe))
	}
}

func TestCacheUnknownExchange(t *testing.T) {
	cache := NewCache(time.Hour, map[string]FetchFunc{})

	universe := cache.Get(context.Background(), "kraken")
	if len(universe) != 0 {
		t.Fatalf("expected empty universe for unknown exchange, got %d symbols", len(universe))
	}
}
