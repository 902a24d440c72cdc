package spot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/internal/symbols"
)

func testConfig() *config.Config {
	return &config.Config{
		Reader: config.ReaderConfig{Timeout: 5 * time.Second},
	}
}

func TestBitgetFetcherFiltersOfflineAndNonUSDT(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/spot/public/symbols" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT","status":"online"},
			{"symbol":"ETHBTC","baseCoin":"ETH","quoteCoin":"BTC","status":"online"},
			{"symbol":"DOGEUSDT","baseCoin":"DOGE","quoteCoin":"USDT","status":"offline"}
		]}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Source.Bitget.BaseURL = server.URL

	universe, err := NewBitgetFetcher(cfg)(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(universe) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(universe))
	}
	if _, ok := universe[symbols.Canonical("BTC")]; !ok {
		t.Error("BTC/USDT:USDT missing from universe")
	}
}

func TestBitgetFetcherRejectsErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"40001","msg":"rate limited","data":[]}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Source.Bitget.BaseURL = server.URL

	if _, err := NewBitgetFetcher(cfg)(context.Background()); err == nil {
		t.Fatal("expected error for non-success code")
	}
}

func TestOkxFetcherFiltersSuspendedAndNonUSDT(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instType"); got != "SPOT" {
			t.Errorf("unexpected instType %q", got)
		}
		if ua := r.Header.Get("User-Agent"); ua != "curl/8.5.0" {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"instId":"BTC-USDT","baseCcy":"BTC","quoteCcy":"USDT","state":"live"},
			{"instId":"ETH-BTC","baseCcy":"ETH","quoteCcy":"BTC","state":"live"},
			{"instId":"XRP-USDT","baseCcy":"XRP","quoteCcy":"USDT","state":"suspend"}
		]}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Source.Okx.RestURL = server.URL

	universe, err := NewOkxFetcher(cfg)(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(universe) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(universe))
	}
	if _, ok := universe[symbols.Canonical("BTC")]; !ok {
		t.Error("BTC/USDT:USDT missing from universe")
	}
}

func TestBinanceFetcherFiltersByStatusAndQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timezone":"UTC","serverTime":1,"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT"},
			{"symbol":"LUNAUSDT","status":"BREAK","baseAsset":"LUNA","quoteAsset":"USDT"},
			{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC"}
		]}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Source.Binance.SpotURL = server.URL

	universe, err := NewBinanceFetcher(cfg)(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(universe) != 1 {
		t.Fatalf("expected 1 symbol, got %d", len(universe))
	}
	if _, ok := universe[symbols.Canonical("BTC")]; !ok {
		t.Error("BTC/USDT:USDT missing from universe")
	}
}
