package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fundingflow/config"
	"fundingflow/internal/channel"
	"fundingflow/internal/model"
	"fundingflow/internal/spot"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultWarmupDelay    = 3 * time.Second
	pingInterval          = 20 * time.Second
)

type fundingState struct {
	rate        float64
	nextFunding int64
}

type tickerState struct {
	price  float64
	volume float64
}

type wsFrame struct {
	Event string `json:"event"`
	Code  string `json:"code"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
}

type fundingRateData struct {
	InstID          string `json:"instId"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

type tickerData struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	VolCcy24h string `json:"volCcy24h"`
}

type instrumentsResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID    string `json:"instId"`
		SettleCcy string `json:"settleCcy"`
		State     string `json:"state"`
	} `json:"data"`
}

// Monitor keeps live funding state from the public websocket. Each connection
// subscribes to the funding-rate and tickers channels for every live USDT
// swap, in batches the exchange accepts, and is re-established after a fixed
// delay whenever it drops.
type Monitor struct {
	config     *config.Config
	spot       *spot.Cache
	updates    *channel.Updates
	log        *logger.Log
	httpClient *http.Client
	limiter    *rate.Limiter

	// mu guards funding and tickers. applyLoop is the only writer.
	mu      sync.RWMutex
	funding map[model.SymbolKey]fundingState
	tickers map[model.SymbolKey]tickerState

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	reconnectDelay time.Duration
	warmupDelay    time.Duration
}

func NewMonitor(cfg *config.Config, spotCache *spot.Cache) *Monitor {
	pool := cfg.Source.Okx.ConnectionPool
	httpClient := &http.Client{
		Timeout: cfg.Reader.Timeout,
		Transport: userAgentTransport{
			agent: "curl/8.5.0",
			base: &http.Transport{
				MaxIdleConns:        pool.MaxIdleConns,
				MaxIdleConnsPerHost: pool.MaxConnsPerHost,
				MaxConnsPerHost:     pool.MaxConnsPerHost,
				IdleConnTimeout:     pool.IdleConnTimeout,
			},
		},
	}

	return &Monitor{
		config:         cfg,
		spot:           spotCache,
		updates:        channel.NewUpdates("okx", cfg.Channels.UpdateBuffer),
		log:            logger.GetLogger(),
		httpClient:     httpClient,
		limiter:        rate.NewLimiter(rate.Every(cfg.Source.Okx.Futures.SubscribeInterval), 1),
		funding:        make(map[model.SymbolKey]fundingState),
		tickers:        make(map[model.SymbolKey]tickerState),
		reconnectDelay: defaultReconnectDelay,
		warmupDelay:    defaultWarmupDelay,
	}
}

func (m *Monitor) Exchange() string {
	return model.ExchangeOkx
}

// Start opens the websocket connection. Calling Start on a running monitor is
// a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.wg.Add(2)
	go m.applyLoop()
	go m.superviseStream()

	m.log.WithComponent("okx_stream_monitor").Info("funding stream monitor started")
	return nil
}

func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}

	m.cancel()
	m.wg.Wait()
	m.running = false

	stats := m.updates.GetStats()
	m.log.WithComponent("okx_stream_monitor").WithFields(logger.Fields{
		"updates_sent":    stats.Sent,
		"updates_dropped": stats.Dropped,
	}).Info("funding stream monitor stopped")
}

// Collect returns the current in-memory funding snapshot. The monitor starts
// itself on first use and waits a short warmup when no funding data has
// arrived yet.
func (m *Monitor) Collect(ctx context.Context, useSpotFilter bool) model.ExchangeSnapshot {
	m.Start(context.Background())
	m.waitForWarmup(ctx)

	var universe map[model.SymbolKey]struct{}
	if useSpotFilter {
		universe = m.spot.Get(ctx, model.ExchangeOkx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(model.ExchangeSnapshot, len(m.funding))
	for key, f := range m.funding {
		if useSpotFilter {
			if _, listed := universe[key]; !listed {
				continue
			}
		}
		t := m.tickers[key]
		snapshot[key] = model.FundingEntry{
			Symbol:          key,
			Rate:            f.rate,
			Price:           t.price,
			Volume:          t.volume,
			NextFundingTime: f.nextFunding,
		}
	}

	m.log.WithComponent("okx_stream_monitor").WithFields(logger.Fields{
		"tracked": len(m.funding),
		"symbols": len(snapshot),
	}).Info("collected funding snapshot")
	return snapshot
}

func (m *Monitor) waitForWarmup(ctx context.Context) {
	m.mu.RLock()
	empty := len(m.funding) == 0
	m.mu.RUnlock()
	if !empty {
		return
	}

	m.log.WithComponent("okx_stream_monitor").Debug("no funding data yet, waiting for warmup")
	select {
	case <-ctx.Done():
	case <-time.After(m.warmupDelay):
	}
}

// applyLoop is the single writer for funding and tickers.
func (m *Monitor) applyLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case upd := <-m.updates.C:
			m.apply(upd)
		}
	}
}

func (m *Monitor) apply(upd model.FundingUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if upd.Mark != nil {
		m.funding[upd.Symbol] = fundingState{
			rate:        upd.Mark.Rate,
			nextFunding: upd.Mark.NextFundingTime,
		}
	}
	if upd.Ticker != nil {
		m.tickers[upd.Symbol] = tickerState{
			price:  upd.Ticker.Price,
			volume: upd.Ticker.QuoteVolume,
		}
	}
}

func (m *Monitor) superviseStream() {
	defer m.wg.Done()
	log := m.log.WithComponent("okx_stream_monitor")

	for {
		if err := m.stream(); err != nil {
			log.WithError(err).Warn("stream closed, scheduling reconnect")
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.reconnectDelay):
		}
	}
}

// stream runs one websocket session: dial, subscribe, then read until the
// connection fails or the monitor stops.
func (m *Monitor) stream() error {
	log := m.log.WithComponent("okx_stream_monitor")

	instruments, err := m.fetchSwapInstruments(m.ctx)
	if err != nil {
		return fmt.Errorf("failed to list swap instruments: %w", err)
	}
	if len(instruments) == 0 {
		return fmt.Errorf("no live USDT swap instruments returned")
	}

	header := http.Header{}
	header.Set("User-Agent", "curl/8.5.0")
	conn, _, err := websocket.DefaultDialer.DialContext(m.ctx, m.config.Source.Okx.WsURL, header)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	if err := m.subscribe(conn, &writeMu, instruments); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	log.WithFields(logger.Fields{"instruments": len(instruments)}).Info("subscribed to funding and ticker channels")

	pingDone := make(chan struct{})
	defer close(pingDone)
	go m.pingLoop(conn, &writeMu, pingDone)

	for {
		select {
		case <-m.ctx.Done():
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(2 * pingInterval))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if m.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		m.processMessage(msg)
	}
}

// subscribe sends channel subscriptions in batches, paced by the limiter so a
// large instrument list does not trip the per-connection message limit.
func (m *Monitor) subscribe(conn *websocket.Conn, writeMu *sync.Mutex, instruments []string) error {
	type arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	}

	args := make([]arg, 0, 2*len(instruments))
	for _, instID := range instruments {
		args = append(args,
			arg{Channel: "funding-rate", InstID: instID},
			arg{Channel: "tickers", InstID: instID},
		)
	}

	batchSize := m.config.Source.Okx.Futures.SubscribeBatchSize
	for start := 0; start < len(args); start += batchSize {
		end := start + batchSize
		if end > len(args) {
			end = len(args)
		}

		if err := m.limiter.Wait(m.ctx); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]interface{}{
			"op":   "subscribe",
			"args": args[start:end],
		})
		if err != nil {
			return err
		}

		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// pingLoop keeps the connection alive. OKX expects a plain "ping" text frame
// and answers with "pong".
func (m *Monitor) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (m *Monitor) processMessage(msg []byte) {
	logger.RecordChannelMessage("okx_ws", len(msg))

	if string(msg) == "pong" {
		return
	}

	var frame wsFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		m.log.WithComponent("okx_stream_monitor").WithError(err).Debug("skipping unparseable message")
		return
	}

	if frame.Event != "" {
		if frame.Event == "error" {
			m.log.WithComponent("okx_stream_monitor").WithFields(logger.Fields{
				"code": frame.Code,
				"msg":  frame.Msg,
			}).Warn("subscription error")
		}
		return
	}

	switch frame.Arg.Channel {
	case "funding-rate":
		m.handleFundingRate(frame.Data)
	case "tickers":
		m.handleTickers(frame.Data)
	}
}

func (m *Monitor) handleFundingRate(data json.RawMessage) {
	var items []fundingRateData
	if err := json.Unmarshal(data, &items); err != nil {
		return
	}

	for _, item := range items {
		key, ok := symbols.FromOkxSwap(item.InstID)
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(item.FundingRate, 64)
		if err != nil {
			continue
		}
		nextFunding, _ := strconv.ParseInt(item.NextFundingTime, 10, 64)

		m.updates.Send(m.ctx, model.FundingUpdate{
			Exchange: model.ExchangeOkx,
			Symbol:   key,
			Mark: &model.MarkUpdate{
				Rate:            rate * 100,
				NextFundingTime: nextFunding,
			},
		})
	}
	logger.IncrementStreamRead()
}

func (m *Monitor) handleTickers(data json.RawMessage) {
	var items []tickerData
	if err := json.Unmarshal(data, &items); err != nil {
		return
	}

	for _, item := range items {
		key, ok := symbols.FromOkxSwap(item.InstID)
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(item.Last, 64)
		if err != nil {
			continue
		}
		volume, _ := strconv.ParseFloat(item.VolCcy24h, 64)

		m.updates.Send(m.ctx, model.FundingUpdate{
			Exchange: model.ExchangeOkx,
			Symbol:   key,
			Ticker: &model.TickerUpdate{
				Price:       price,
				QuoteVolume: volume,
			},
		})
	}
	logger.IncrementStreamRead()
}

// fetchSwapInstruments lists every live USDT-settled swap instrument id.
func (m *Monitor) fetchSwapInstruments(ctx context.Context) ([]string, error) {
	url := m.config.Source.Okx.RestURL + "/api/v5/public/instruments?instType=SWAP"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instruments request returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logger.IncrementRestRead(len(body))

	var payload instrumentsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Code != "0" {
		return nil, fmt.Errorf("instruments request rejected: code=%s msg=%s", payload.Code, payload.Msg)
	}

	instruments := make([]string, 0, len(payload.Data))
	for _, inst := range payload.Data {
		if inst.SettleCcy != "USDT" || inst.State != "live" {
			continue
		}
		if !strings.HasSuffix(inst.InstID, "-USDT-SWAP") {
			continue
		}
		instruments = append(instruments, inst.InstID)
	}
	return instruments, nil
}
