package bitget

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

const tickersPayload = `{"code":"00000","msg":"success","data":[
	{"symbol":"BTCUSDT_UMCBL","fundingRate":"0.000125","last":"65000","usdtVolume":"2000000000"},
	{"symbol":"PEPEUSDT_UMCBL","fundingRate":"-0.0075","last":"0.00001","usdtVolume":"800000"},
	{"symbol":"BTCUSD_DMCBL","fundingRate":"0.0001","last":"65000","usdtVolume":"1000"}
]}`

func newTestFetcher(t *testing.T, payload string, universe ...string) *Fetcher {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("productType"); got != "umcbl" {
			t.Errorf("unexpected productType %q", got)
		}
		w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{Reader: config.ReaderConfig{Timeout: 5 * time.Second}}
	cfg.Source.Bitget.BaseURL = server.URL

	cache := spot.NewCache(time.Hour, map[string]spot.FetchFunc{
		model.ExchangeBitget: func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
			set := make(map[model.SymbolKey]struct{}, len(universe))
			for _, base := range universe {
				set[symbols.Canonical(base)] = struct{}{}
			}
			return set, nil
		},
	})

	return NewFetcher(cfg, cache)
}

func TestCollectReportsZeroNextFundingTime(t *testing.T) {
	fetcher := newTestFetcher(t, tickersPayload)

	snapshot := fetcher.Collect(context.Background(), false)
	entry, ok := snapshot[symbols.Canonical("BTC")]
	if !ok {
		t.Fatal("BTC/USDT:USDT missing from snapshot")
	}
	if entry.Rate != 0.0125 {
		t.Errorf("rate = %v, want 0.0125", entry.Rate)
	}
	if entry.NextFundingTime != 0 {
		t.Errorf("next funding time = %v, want 0", entry.NextFundingTime)
	}
	if _, ok := snapshot[model.SymbolKey("BTCUSD_DMCBL")]; ok {
		t.Error("coin-margined contract should not be mapped")
	}
}

func TestCollectSpotFilterDropsUnlistedSymbols(t *testing.T) {
	fetcher := newTestFetcher(t, tickersPayload, "BTC")

	snapshot := fetcher.Collect(context.Background(), true)
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 symbol with spot filter, got %d", len(snapshot))
	}
	if _, ok := snapshot[symbols.Canonical("PEPE")]; ok {
		t.Error("PEPE/USDT:USDT should be filtered out")
	}
}

func TestCollectReturnsEmptySnapshotOnAPIError(t *testing.T) {
	fetcher := newTestFetcher(t, `{"code":"40004","msg":"system busy","data":[]}`)

	snapshot := fetcher.Collect(context.Background(), false)
	if len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot, got %d entries", len(snapshot))
	}
}
