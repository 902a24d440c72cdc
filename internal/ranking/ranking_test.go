package ranking

import (
	"testing"
	"time"

	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
)

func snapshotOf(rates map[string]float64) model.ExchangeSnapshot {
	snapshot := make(model.ExchangeSnapshot, len(rates))
	for base, rate := range rates {
		key := symbols.Canonical(base)
		snapshot[key] = model.FundingEntry{Symbol: key, Rate: rate}
	}
	return snapshot
}

func TestTopNPositiveOrdersByMagnitude(t *testing.T) {
	snapshot := snapshotOf(map[string]float64{
		"BTC": 0.01,
		"ETH": 0.08,
		"SOL": 0.03,
		"XRP": -0.2,
		"ADA": 0,
	})

	top := TopN(snapshot, true, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].Symbol != symbols.Canonical("ETH") || top[1].Symbol != symbols.Canonical("SOL") {
		t.Errorf("unexpected order: %v, %v", top[0].Symbol, top[1].Symbol)
	}
}

func TestTopNNegativeIncludesZeroRates(t *testing.T) {
	snapshot := snapshotOf(map[string]float64{
		"BTC": 0.01,
		"XRP": -0.2,
		"ADA": 0,
		"DOT": -0.05,
	})

	top := TopN(snapshot, false, 10)
	if len(top) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(top))
	}
	if top[0].Symbol != symbols.Canonical("XRP") {
		t.Errorf("largest magnitude first, got %v", top[0].Symbol)
	}
	if top[2].Symbol != symbols.Canonical("ADA") {
		t.Errorf("zero rate should rank last, got %v", top[2].Symbol)
	}
}

func TestTopNTiesKeepSymbolOrder(t *testing.T) {
	snapshot := snapshotOf(map[string]float64{
		"ETH": 0.05,
		"BTC": 0.05,
		"SOL": 0.05,
	})

	top := TopN(snapshot, true, 3)
	want := []model.SymbolKey{
		symbols.Canonical("BTC"),
		symbols.Canonical("ETH"),
		symbols.Canonical("SOL"),
	}
	for i, key := range want {
		if top[i].Symbol != key {
			t.Errorf("position %d = %v, want %v", i, top[i].Symbol, key)
		}
	}
}

func TestTopNEmptyAndNonPositiveN(t *testing.T) {
	snapshot := snapshotOf(map[string]float64{"BTC": 0.01})

	if got := TopN(model.ExchangeSnapshot{}, true, 5); len(got) != 0 {
		t.Errorf("empty snapshot should produce no entries, got %d", len(got))
	}
	if got := TopN(snapshot, true, 0); got != nil {
		t.Errorf("n=0 should produce nil, got %v", got)
	}
}

func TestThresholdAlertsFiltersRateAndVolume(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	btc := symbols.Canonical("BTC")
	pepe := symbols.Canonical("PEPE")
	doge := symbols.Canonical("DOGE")
	snapshot := model.ExchangeSnapshot{
		btc:  {Symbol: btc, Rate: 0.05, Volume: 5_000_000_000},
		pepe: {Symbol: pepe, Rate: -0.75, Volume: 2_000_000, NextFundingTime: now.Add(90 * time.Minute).UnixMilli()},
		doge: {Symbol: doge, Rate: 0.4, Volume: 100},
	}

	alerts := ThresholdAlerts(snapshot, 0.1, 1_000_000, now)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if alert.Entry.Symbol != pepe {
		t.Errorf("unexpected alert symbol %v", alert.Entry.Symbol)
	}
	if !alert.Countdown.Known || alert.Countdown.Hours != 1 || alert.Countdown.Minutes != 30 {
		t.Errorf("countdown = %+v, want 1h 30m", alert.Countdown)
	}
}

func TestThresholdAlertsUnknownCountdown(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	btc := symbols.Canonical("BTC")
	snapshot := model.ExchangeSnapshot{
		btc: {Symbol: btc, Rate: 0.5, Volume: 1_000_000, NextFundingTime: 0},
	}

	alerts := ThresholdAlerts(snapshot, 0.1, 0, now)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if got := alerts[0].Countdown.String(); got != "unknown" {
		t.Errorf("countdown string = %q, want \"unknown\"", got)
	}
}

func TestThresholdAlertsPastSettlementClampsToZero(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	btc := symbols.Canonical("BTC")
	snapshot := model.ExchangeSnapshot{
		btc: {Symbol: btc, Rate: 0.5, Volume: 0, NextFundingTime: now.Add(-time.Hour).UnixMilli()},
	}

	alerts := ThresholdAlerts(snapshot, 0.1, 0, now)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	c := alerts[0].Countdown
	if !c.Known || c.Hours != 0 || c.Minutes != 0 {
		t.Errorf("countdown = %+v, want 0h 0m", c)
	}
	if got := c.String(); got != "0h 0m" {
		t.Errorf("countdown string = %q", got)
	}
}
