package channel

import (
	"context"
	"sync"

	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Stats counts mailbox traffic for the runtime report.
type Stats struct {
	Sent    int64
	Dropped int64
}

// Updates is the buffered mailbox carrying parsed streaming messages from a
// monitor's connection goroutine to the goroutine that owns its state. A full
// mailbox drops the update instead of blocking the read loop.
type Updates struct {
	C chan model.FundingUpdate

	name       string
	stats      Stats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewUpdates(name string, bufferSize int) *Updates {
	log := logger.GetLogger()
	u := &Updates{
		C:    make(chan model.FundingUpdate, bufferSize),
		name: name,
		log:  log,
	}

	log.WithComponent(name + "_updates").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("update mailbox initialized")

	return u
}

func (u *Updates) Close() {
	close(u.C)
	u.log.WithComponent(u.name + "_updates").Info("update mailbox closed")
}

// Send delivers an update without blocking. It reports false when the caller's
// context is done or the mailbox is full.
func (u *Updates) Send(ctx context.Context, upd model.FundingUpdate) bool {
	select {
	case u.C <- upd:
		u.statsMutex.Lock()
		u.stats.Sent++
		u.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		u.statsMutex.Lock()
		u.stats.Dropped++
		u.statsMutex.Unlock()
		return false
	}
}

func (u *Updates) GetStats() Stats {
	u.statsMutex.RLock()
	defer u.statsMutex.RUnlock()
	return u.stats
}
