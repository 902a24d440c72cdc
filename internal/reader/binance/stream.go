package binance

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

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
)

type markState struct {
	rate        float64
	price       float64
	nextFunding int64
}

// Monitor keeps live funding state from the combined mark price and ticker
// streams. Both streams reconnect on their own after a fixed delay, so a
// dropped connection costs a few seconds of updates, never the process.
type Monitor struct {
	config  *config.Config
	spot    *spot.Cache
	updates *channel.Updates
	log     *logger.Log

	// mu guards marks and volumes. applyLoop is the only writer.
	mu      sync.RWMutex
	marks   map[model.SymbolKey]markState
	volumes map[model.SymbolKey]float64

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	reconnectDelay time.Duration
	warmupDelay    time.Duration
}

func NewMonitor(cfg *config.Config, spotCache *spot.Cache) *Monitor {
	return &Monitor{
		config:         cfg,
		spot:           spotCache,
		updates:        channel.NewUpdates("binance", cfg.Channels.UpdateBuffer),
		log:            logger.GetLogger(),
		marks:          make(map[model.SymbolKey]markState),
		volumes:        make(map[model.SymbolKey]float64),
		reconnectDelay: defaultReconnectDelay,
		warmupDelay:    defaultWarmupDelay,
	}
}

func (m *Monitor) Exchange() string {
	return model.ExchangeBinance
}

// Start opens both streams. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.wg.Add(3)
	go m.applyLoop()
	go m.superviseMarkStream()
	go m.superviseTickerStream()

	m.log.WithComponent("binance_stream_monitor").Info("funding stream monitor started")
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
	m.log.WithComponent("binance_stream_monitor").WithFields(logger.Fields{
		"updates_sent":    stats.Sent,
		"updates_dropped": stats.Dropped,
	}).Info("funding stream monitor stopped")
}

// Collect returns the current in-memory funding snapshot. The monitor starts
// itself on first use and waits a short warmup when no mark data has arrived
// yet, so a cold start still produces a usable snapshot.
func (m *Monitor) Collect(ctx context.Context, useSpotFilter bool) model.ExchangeSnapshot {
	m.Start(context.Background())
	m.waitForWarmup(ctx)

	var universe map[model.SymbolKey]struct{}
	if useSpotFilter {
		universe = m.spot.Get(ctx, model.ExchangeBinance)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(model.ExchangeSnapshot, len(m.marks))
	for key, state := range m.marks {
		if useSpotFilter {
			if _, listed := universe[key]; !listed {
				continue
			}
		}
		snapshot[key] = model.FundingEntry{
			Symbol:          key,
			Rate:            state.rate,
			Price:           state.price,
			Volume:          m.volumes[key],
			NextFundingTime: state.nextFunding,
		}
	}

	m.log.WithComponent("binance_stream_monitor").WithFields(logger.Fields{
		"tracked": len(m.marks),
		"symbols": len(snapshot),
	}).Info("collected funding snapshot")
	return snapshot
}

func (m *Monitor) waitForWarmup(ctx context.Context) {
	m.mu.RLock()
	empty := len(m.marks) == 0
	m.mu.RUnlock()
	if !empty {
		return
	}

	m.log.WithComponent("binance_stream_monitor").Debug("no mark data yet, waiting for warmup")
	select {
	case <-ctx.Done():
	case <-time.After(m.warmupDelay):
	}
}

// applyLoop is the single writer for marks and volumes. Handlers only push
// into the updates channel, so stream callbacks never contend on m.mu.
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
		m.marks[upd.Symbol] = markState{
			rate:        upd.Mark.Rate,
			price:       upd.Mark.Price,
			nextFunding: upd.Mark.NextFundingTime,
		}
	}
	if upd.Ticker != nil {
		m.volumes[upd.Symbol] = upd.Ticker.QuoteVolume
	}
}

func (m *Monitor) superviseMarkStream() {
	defer m.wg.Done()
	log := m.log.WithComponent("binance_stream_monitor").WithFields(logger.Fields{"stream": "mark_price"})

	for {
		doneC, stopC, err := futures.WsAllMarkPriceServeWithRate(
			m.config.Source.Binance.Futures.MarkPriceInterval,
			m.handleMarkPrice,
			m.streamErrHandler("mark_price"),
		)
		if err != nil {
			log.WithError(err).Warn("failed to open stream")
		} else {
			select {
			case <-m.ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
				log.Warn("stream closed, scheduling reconnect")
			}
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.reconnectDelay):
		}
	}
}

func (m *Monitor) superviseTickerStream() {
	defer m.wg.Done()
	log := m.log.WithComponent("binance_stream_monitor").WithFields(logger.Fields{"stream": "ticker"})

	for {
		doneC, stopC, err := futures.WsAllMarketTickerServe(
			m.handleTicker,
			m.streamErrHandler("ticker"),
		)
		if err != nil {
			log.WithError(err).Warn("failed to open stream")
		} else {
			select {
			case <-m.ctx.Done():
				close(stopC)
				<-doneC
				return
			case <-doneC:
				log.Warn("stream closed, scheduling reconnect")
			}
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(m.reconnectDelay):
		}
	}
}

func (m *Monitor) handleMarkPrice(event futures.WsAllMarkPriceEvent) {
	for _, e := range event {
		key, ok := symbols.FromBinancePerp(e.Symbol)
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(e.FundingRate, 64)
		if err != nil {
			continue
		}
		price, _ := strconv.ParseFloat(e.MarkPrice, 64)

		m.updates.Send(m.ctx, model.FundingUpdate{
			Exchange: model.ExchangeBinance,
			Symbol:   key,
			Mark: &model.MarkUpdate{
				Rate:            rate * 100,
				Price:           price,
				NextFundingTime: e.NextFundingTime,
			},
		})
	}
	logger.IncrementStreamRead()
}

func (m *Monitor) handleTicker(event futures.WsAllMarketTickerEvent) {
	for _, e := range event {
		key, ok := symbols.FromBinancePerp(e.Symbol)
		if !ok {
			continue
		}
		volume, err := strconv.ParseFloat(e.QuoteVolume, 64)
		if err != nil {
			continue
		}

		m.updates.Send(m.ctx, model.FundingUpdate{
			Exchange: model.ExchangeBinance,
			Symbol:   key,
			Ticker:   &model.TickerUpdate{QuoteVolume: volume},
		})
	}
	logger.IncrementStreamRead()
}

func (m *Monitor) streamErrHandler(stream string) futures.ErrHandler {
	return func(err error) {
		m.log.WithComponent("binance_stream_monitor").WithFields(logger.Fields{
			"stream": stream,
		}).WithError(err).Warn("stream error")
	}
}
