package ranking

import (
	"fmt"
	"sort"
	"time"

	"fundingflow/internal/model"
)

// Countdown is the time remaining until a funding settlement. Known is false
// when the source does not expose the next funding time.
type Countdown struct {
	Known   bool
	Hours   int
	Minutes int
}

func (c Countdown) String() string {
	if !c.Known {
		return "unknown"
	}
	return fmt.Sprintf("%dh %dm", c.Hours, c.Minutes)
}

// Alert is one instrument whose funding rate crossed the alert threshold.
type Alert struct {
	Entry     model.FundingEntry
	Countdown Countdown
}

// ordered returns the snapshot's entries in ascending symbol order so ranking
// output is deterministic across runs.
func ordered(snapshot model.ExchangeSnapshot) []model.FundingEntry {
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	entries := make([]model.FundingEntry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, snapshot[model.SymbolKey(key)])
	}
	return entries
}

// TopN returns the n entries with the largest funding rate magnitude on one
// side of zero. A positive ranking takes strictly positive rates; a negative
// ranking takes everything else, zero included. Magnitude ties keep symbol
// order.
func TopN(snapshot model.ExchangeSnapshot, positive bool, n int) []model.FundingEntry {
	if n <= 0 {
		return nil
	}

	entries := make([]model.FundingEntry, 0, len(snapshot))
	for _, e := range ordered(snapshot) {
		if (e.Rate > 0) == positive {
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return abs(entries[i].Rate) > abs(entries[j].Rate)
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// ThresholdAlerts returns every entry whose rate magnitude is at or above
// threshold and whose 24h volume is at or above volumeFilter, with the
// countdown to its next funding settlement computed against now.
func ThresholdAlerts(snapshot model.ExchangeSnapshot, threshold, volumeFilter float64, now time.Time) []Alert {
	alerts := make([]Alert, 0)
	for _, e := range ordered(snapshot) {
		if abs(e.Rate) < threshold {
			continue
		}
		if e.Volume < volumeFilter {
			continue
		}
		alerts = append(alerts, Alert{
			Entry:     e,
			Countdown: countdown(e.NextFundingTime, now),
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return abs(alerts[i].Entry.Rate) > abs(alerts[j].Entry.Rate)
	})
	return alerts
}

// countdown converts an epoch-millisecond settlement time into whole hours
// and minutes remaining. Settlements in the past count down to zero rather
// than going negative.
func countdown(nextFundingMs int64, now time.Time) Countdown {
	if nextFundingMs <= 0 {
		return Countdown{}
	}

	remaining := time.UnixMilli(nextFundingMs).Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Countdown{
		Known:   true,
		Hours:   int(remaining / time.Hour),
		Minutes: int(remaining % time.Hour / time.Minute),
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
