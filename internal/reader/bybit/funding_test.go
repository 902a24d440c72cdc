package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/spot"
	"fundingflow/internal/symbols"
)

const tickersPayload = `{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
	{"symbol":"BTCUSDT","fundingRate":"0.0001","lastPrice":"65000.5","turnover24h":"1500000000","nextFundingTime":"1700000000000"},
	{"symbol":"NEWUSDT","fundingRate":"-0.0025","lastPrice":"1.25","turnover24h":"5000000","nextFundingTime":"1700000000000"},
	{"symbol":"BROKENUSDT","fundingRate":"","lastPrice":"10","turnover24h":"100","nextFundingTime":"1700000000000"},
	{"symbol":"ETHPERP","fundingRate":"0.0002","lastPrice":"3500","turnover24h":"900000000","nextFundingTime":"1700000000000"}
]},"retExtInfo":{},"time":1700000000000}`

func newTestFetcher(t *testing.T, payload string, universe ...string) *Fetcher {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{Reader: config.ReaderConfig{Timeout: 5 * time.Second}}
	cfg.Source.Bybit.BaseURL = server.URL

	cache := spot.NewCache(time.Hour, map[string]spot.FetchFunc{
		model.ExchangeBybit: func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
			set := make(map[model.SymbolKey]struct{}, len(universe))
			for _, base := range universe {
				set[symbols.Canonical(base)] = struct{}{}
			}
			return set, nil
		},
	})

	return NewFetcher(cfg, cache)
}

func TestCollectScalesRateAndParsesFields(t *testing.T) {
	fetcher := newTestFetcher(t, tickersPayload, "BTC", "NEW")

	snapshot := fetcher.Collect(context.Background(), true)
	entry, ok := snapshot[symbols.Canonical("BTC")]
	if !ok {
		t.Fatal("BTC/USDT:USDT missing from snapshot")
	}
	if entry.Rate != 0.01 {
		t.Errorf("rate = %v, want 0.01", entry.Rate)
	}
	if entry.Price != 65000.5 {
		t.Errorf("price = %v, want 65000.5", entry.Price)
	}
	if entry.Volume != 1500000000 {
		t.Errorf("volume = %v, want 1500000000", entry.Volume)
	}
	if entry.NextFundingTime != 1700000000000 {
		t.Errorf("next funding time = %v", entry.NextFundingTime)
	}
}

func TestCollectSpotFilterDropsUnlistedSymbols(t *testing.T) {
	fetcher := newTestFetcher(t, tickersPayload, "BTC")

	snapshot := fetcher.Collect(context.Background(), true)
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 symbol with spot filter, got %d", len(snapshot))
	}
	if _, ok := snapshot[symbols.Canonical("NEW")]; ok {
		t.Error("NEW/USDT:USDT should be filtered out")
	}
}

func TestCollectWithoutSpotFilterKeepsAllPerps(t *testing.T) {
	fetcher := newTestFetcher(t, tickersPayload)

	snapshot := fetcher.Collect(context.Background(), false)
	// BROKENUSDT has an unparseable rate, ETHPERP is not a USDT pair.
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 symbols without spot filter, got %d", len(snapshot))
	}
	entry := snapshot[symbols.Canonical("NEW")]
	if entry.Rate != -0.25 {
		t.Errorf("rate = %v, want -0.25", entry.Rate)
	}
}

func TestCollectReturnsEmptySnapshotOnAPIError(t *testing.T) {
	fetcher := newTestFetcher(t, `{"retCode":10006,"retMsg":"rate limited","result":{}}`)

	snapshot := fetcher.Collect(context.Background(), false)
	if len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot, got %d entries", len(snapshot))
	}
}
