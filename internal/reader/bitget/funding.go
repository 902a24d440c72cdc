package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/spot"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

type tickersResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
		Last        string `json:"last"`
		UsdtVolume  string `json:"usdtVolume"`
	} `json:"data"`
}

// Fetcher reads funding data for all USDT-margined perpetuals through the mix
// market tickers endpoint. The endpoint does not expose the next funding
// time, so entries always report it as zero.
type Fetcher struct {
	config *config.Config
	client *http.Client
	url    string
	spot   *spot.Cache
	log    *logger.Log
}

func NewFetcher(cfg *config.Config, spotCache *spot.Cache) *Fetcher {
	pool := cfg.Source.Bitget.ConnectionPool
	return &Fetcher{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Reader.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        pool.MaxIdleConns,
				MaxIdleConnsPerHost: pool.MaxConnsPerHost,
				MaxConnsPerHost:     pool.MaxConnsPerHost,
				IdleConnTimeout:     pool.IdleConnTimeout,
			},
		},
		url:  cfg.Source.Bitget.BaseURL + "/api/mix/v1/market/tickers?productType=umcbl",
		spot: spotCache,
		log:  logger.GetLogger(),
	}
}

func (f *Fetcher) Exchange() string {
	return model.ExchangeBitget
}

// Collect fetches the current funding snapshot. Errors degrade to an empty
// snapshot so one broken exchange never takes down a collection round.
func (f *Fetcher) Collect(ctx context.Context, useSpotFilter bool) model.ExchangeSnapshot {
	log := f.log.WithComponent("bitget_funding_fetcher")

	start := time.Now()
	tickers, err := f.fetchTickers(ctx)
	if err != nil {
		log.WithError(err).Error("failed to fetch funding tickers")
		return model.ExchangeSnapshot{}
	}
	logger.LogPerformanceEntry(log, "bitget_funding_fetcher", "api_request", time.Since(start), nil)

	var universe map[model.SymbolKey]struct{}
	if useSpotFilter {
		universe = f.spot.Get(ctx, model.ExchangeBitget)
	}

	snapshot := make(model.ExchangeSnapshot, len(tickers.Data))
	for _, ticker := range tickers.Data {
		key, ok := symbols.FromBitgetPerp(ticker.Symbol)
		if !ok {
			continue
		}
		if useSpotFilter {
			if _, listed := universe[key]; !listed {
				continue
			}
		}

		rate, err := strconv.ParseFloat(ticker.FundingRate, 64)
		if err != nil {
			log.WithFields(logger.Fields{"symbol": ticker.Symbol}).Debug("skipping ticker with unparseable funding rate")
			continue
		}

		price, _ := strconv.ParseFloat(ticker.Last, 64)
		volume, _ := strconv.ParseFloat(ticker.UsdtVolume, 64)

		snapshot[key] = model.FundingEntry{
			Symbol:          key,
			Rate:            rate * 100,
			Price:           price,
			Volume:          volume,
			NextFundingTime: 0,
		}
	}

	log.WithFields(logger.Fields{
		"tickers": len(tickers.Data),
		"symbols": len(snapshot),
	}).Info("collected funding snapshot")
	return snapshot
}

func (f *Fetcher) fetchTickers(ctx context.Context) (*tickersResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tickers request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tickers request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tickers request returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tickers response: %w", err)
	}
	logger.IncrementRestRead(len(body))

	var tickers tickersResponse
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("failed to decode tickers response: %w", err)
	}
	if tickers.Code != "00000" {
		return nil, fmt.Errorf("tickers request rejected: code=%s msg=%s", tickers.Code, tickers.Msg)
	}
	return &tickers, nil
}
