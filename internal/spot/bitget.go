package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
)

type bitgetSymbolsResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Symbol    string `json:"symbol"`
		BaseCoin  string `json:"baseCoin"`
		QuoteCoin string `json:"quoteCoin"`
		Status    string `json:"status"`
	} `json:"data"`
}

// NewBitgetFetcher lists USDT spot symbols through the v2 public symbols
// endpoint. Bitget has no official Go SDK, so this is a plain HTTP call.
func NewBitgetFetcher(cfg *config.Config) FetchFunc {
	client := newPooledClient(cfg.Source.Bitget.ConnectionPool, cfg.Reader.Timeout)
	url := cfg.Source.Bitget.BaseURL + "/api/v2/spot/public/symbols"

	return func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build bitget symbols request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("bitget symbols request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("bitget symbols request returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read bitget symbols response: %w", err)
		}

		var payload bitgetSymbolsResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode bitget symbols response: %w", err)
		}
		if payload.Code != "00000" {
			return nil, fmt.Errorf("bitget symbols request rejected: code=%s msg=%s", payload.Code, payload.Msg)
		}

		universe := make(map[model.SymbolKey]struct{}, len(payload.Data))
		for _, s := range payload.Data {
			if s.QuoteCoin != "USDT" || s.Status != "online" {
				continue
			}
			universe[symbols.Canonical(s.BaseCoin)] = struct{}{}
		}
		return universe, nil
	}
}
