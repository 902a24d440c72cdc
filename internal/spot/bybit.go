package spot

import (
	"context"
	"encoding/json"
	"fmt"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
)

type bybitInstrumentList struct {
	List []struct {
		Symbol    string `json:"symbol"`
		BaseCoin  string `json:"baseCoin"`
		QuoteCoin string `json:"quoteCoin"`
		Status    string `json:"status"`
	} `json:"list"`
}

// NewBybitFetcher lists USDT spot instruments through the v5 instruments-info
// endpoint.
func NewBybitFetcher(cfg *config.Config) FetchFunc {
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(cfg.Source.Bybit.BaseURL))
	client.HTTPClient = newPooledClient(cfg.Source.Bybit.ConnectionPool, cfg.Reader.Timeout)

	return func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
		params := map[string]interface{}{"category": "spot", "limit": 1000}
		resp, err := client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("bybit instruments request failed: %w", err)
		}
		if resp.RetCode != 0 {
			return nil, fmt.Errorf("bybit instruments request rejected: code=%d msg=%s", resp.RetCode, resp.RetMsg)
		}

		raw, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode bybit instruments result: %w", err)
		}
		var result bybitInstrumentList
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("failed to decode bybit instruments result: %w", err)
		}

		universe := make(map[model.SymbolKey]struct{}, len(result.List))
		for _, inst := range result.List {
			if inst.QuoteCoin != "USDT" || inst.Status != "Trading" {
				continue
			}
			universe[symbols.Canonical(inst.BaseCoin)] = struct{}{}
		}
		return universe, nil
	}
}
