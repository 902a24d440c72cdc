package spot

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"

	"fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
)

// NewBinanceFetcher lists USDT spot markets through the exchange info
// endpoint. Only symbols in TRADING status make it into the universe.
func NewBinanceFetcher(cfg *config.Config) FetchFunc {
	client := binance.NewClient("", "")
	if cfg.Source.Binance.SpotURL != "" {
		client.BaseURL = cfg.Source.Binance.SpotURL
	}
	client.HTTPClient = newPooledClient(cfg.Source.Binance.ConnectionPool, cfg.Reader.Timeout)

	return func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
		info, err := client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance exchange info request failed: %w", err)
		}

		universe := make(map[model.SymbolKey]struct{}, len(info.Symbols))
		for _, s := range info.Symbols {
			if s.QuoteAsset != "USDT" || s.Status != "TRADING" {
				continue
			}
			universe[symbols.Canonical(s.BaseAsset)] = struct{}{}
		}
		return universe, nil
	}
}
