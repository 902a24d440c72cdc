package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Collector is one exchange's funding source. Collect never fails: sources
// degrade to an empty snapshot on error so a single broken exchange cannot
// take down a collection round.
type Collector interface {
	Exchange() string
	Collect(ctx context.Context, useSpotFilter bool) model.ExchangeSnapshot
}

// Aggregator fans a collection round out to all registered collectors and
// merges their snapshots into one result keyed by exchange.
type Aggregator struct {
	collectors map[string]Collector
	log        *logger.Log
}

func New(collectors ...Collector) *Aggregator {
	byExchange := make(map[string]Collector, len(collectors))
	for _, c := range collectors {
		byExchange[c.Exchange()] = c
	}
	return &Aggregator{
		collectors: byExchange,
		log:        logger.GetLogger(),
	}
}

// Collect queries the requested exchanges concurrently. Every requested
// exchange with a registered collector appears in the result, with an empty
// snapshot when its source failed.
func (a *Aggregator) Collect(ctx context.Context, exchanges []string, useSpotFilter bool) model.AggregatedResult {
	requestID := uuid.New().String()
	started := time.Now()
	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{"request_id": requestID})

	result := make(model.AggregatedResult, len(exchanges))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, exchange := range exchanges {
		collector, ok := a.collectors[exchange]
		if !ok {
			log.WithFields(logger.Fields{"exchange": exchange}).Warn("no collector registered for exchange, skipping")
			continue
		}

		wg.Add(1)
		go func(exchange string, collector Collector) {
			defer wg.Done()
			snapshot := collector.Collect(ctx, useSpotFilter)

			mu.Lock()
			result[exchange] = snapshot
			mu.Unlock()
		}(exchange, collector)
	}
	wg.Wait()

	logger.IncrementCollect()
	total := 0
	for _, snapshot := range result {
		total += len(snapshot)
	}
	log.WithFields(logger.Fields{
		"exchanges": len(result),
		"symbols":   total,
		"duration":  time.Since(started).String(),
	}).Info("collection round completed")
	return result
}
