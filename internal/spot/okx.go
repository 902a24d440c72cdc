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

// OKX rejects requests with Go's default user agent.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

type okxInstrumentsResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID   string `json:"instId"`
		BaseCcy  string `json:"baseCcy"`
		QuoteCcy string `json:"quoteCcy"`
		State    string `json:"state"`
	} `json:"data"`
}

// NewOkxFetcher lists USDT spot instruments through the v5 public instruments
// endpoint.
func NewOkxFetcher(cfg *config.Config) FetchFunc {
	client := newPooledClient(cfg.Source.Okx.ConnectionPool, cfg.Reader.Timeout)
	client.Transport = &userAgentTransport{agent: "curl/8.5.0", base: client.Transport}
	url := cfg.Source.Okx.RestURL + "/api/v5/public/instruments?instType=SPOT"

	return func(ctx context.Context) (map[model.SymbolKey]struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build okx instruments request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("okx instruments request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("okx instruments request returned status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read okx instruments response: %w", err)
		}

		var payload okxInstrumentsResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode okx instruments response: %w", err)
		}
		if payload.Code != "0" {
			return nil, fmt.Errorf("okx instruments request rejected: code=%s msg=%s", payload.Code, payload.Msg)
		}

		universe := make(map[model.SymbolKey]struct{}, len(payload.Data))
		for _, inst := range payload.Data {
			if inst.QuoteCcy != "USDT" || inst.State != "live" {
				continue
			}
			universe[symbols.Canonical(inst.BaseCcy)] = struct{}{}
		}
		return universe, nil
	}
}
