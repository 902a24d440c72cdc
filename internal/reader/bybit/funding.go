package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"fundingflow/config"
	"fundingflow/internal/model"
	"fundingflow/internal/spot"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

type tickerList struct {
	Category string `json:"category"`
	List     []struct {
		Symbol          string `json:"symbol"`
		FundingRate     string `json:"fundingRate"`
		LastPrice       string `json:"lastPrice"`
		Turnover24h     string `json:"turnover24h"`
		NextFundingTime string `json:"nextFundingTime"`
	} `json:"list"`
}

// Fetcher reads funding data for all linear perpetuals in a single tickers
// request.
type Fetcher struct {
	config *config.Config
	client *bybit.Client
	spot   *spot.Cache
	log    *logger.Log
}

func NewFetcher(cfg *config.Config, spotCache *spot.Cache) *Fetcher {
	pool := cfg.Source.Bybit.ConnectionPool
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(cfg.Source.Bybit.BaseURL))
	client.HTTPClient = &http.Client{
		Timeout: cfg.Reader.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        pool.MaxIdleConns,
			MaxIdleConnsPerHost: pool.MaxConnsPerHost,
			MaxConnsPerHost:     pool.MaxConnsPerHost,
			IdleConnTimeout:     pool.IdleConnTimeout,
		},
	}
	return &Fetcher{
		config: cfg,
		client: client,
		spot:   spotCache,
		log:    logger.GetLogger(),
	}
}

func (f *Fetcher) Exchange() string {
	return model.ExchangeBybit
}

// Collect fetches the current funding snapshot. Errors degrade to an empty
// snapshot so one broken exchange never takes down a collection round.
func (f *Fetcher) Collect(ctx context.Context, useSpotFilter bool) model.ExchangeSnapshot {
	log := f.log.WithComponent("bybit_funding_fetcher")

	start := time.Now()
	tickers, err := f.fetchTickers(ctx)
	if err != nil {
		log.WithError(err).Error("failed to fetch funding tickers")
		return model.ExchangeSnapshot{}
	}
	logger.LogPerformanceEntry(log, "bybit_funding_fetcher", "api_request", time.Since(start), nil)

	var universe map[model.SymbolKey]struct{}
	if useSpotFilter {
		universe = f.spot.Get(ctx, model.ExchangeBybit)
	}

	snapshot := make(model.ExchangeSnapshot, len(tickers.List))
	for _, ticker := range tickers.List {
		key, ok := symbols.FromBybitPerp(ticker.Symbol)
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

		price, _ := strconv.ParseFloat(ticker.LastPrice, 64)
		volume, _ := strconv.ParseFloat(ticker.Turnover24h, 64)
		nextFunding, _ := strconv.ParseInt(ticker.NextFundingTime, 10, 64)

		snapshot[key] = model.FundingEntry{
			Symbol:          key,
			Rate:            rate * 100,
			Price:           price,
			Volume:          volume,
			NextFundingTime: nextFunding,
		}
	}

	log.WithFields(logger.Fields{
		"tickers": len(tickers.List),
		"symbols": len(snapshot),
	}).Info("collected funding snapshot")
	return snapshot
}

func (f *Fetcher) fetchTickers(ctx context.Context) (*tickerList, error) {
	params := map[string]interface{}{"category": "linear"}
	resp, err := f.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("tickers request failed: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("tickers request rejected: code=%d msg=%s", resp.RetCode, resp.RetMsg)
	}

	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode tickers result: %w", err)
	}
	logger.IncrementRestRead(len(raw))

	var tickers tickerList
	if err := json.Unmarshal(raw, &tickers); err != nil {
		return nil, fmt.Errorf("failed to decode tickers result: %w", err)
	}
	return &tickers, nil
}
