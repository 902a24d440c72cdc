package symbols

import (
	"testing"

	"fundingflow/internal/model"
)

func TestCanonical(t *testing.T) {
	if got := Canonical("BTC"); got != model.SymbolKey("BTC/USDT:USDT") {
		t.Errorf("Canonical(BTC)=%s", got)
	}
	if got := Base(model.SymbolKey("ETH/USDT:USDT")); got != "ETH" {
		t.Errorf("Base=%s want ETH", got)
	}
}

func TestFromExchangeSymbols(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) (model.SymbolKey, bool)
		in   string
		want model.SymbolKey
		ok   bool
	}{
		{"binance", FromBinancePerp, "BTCUSDT", "BTC/USDT:USDT", true},
		{"binance non-usdt", FromBinancePerp, "BTCBUSD", "", false},
		{"binance empty base", FromBinancePerp, "USDT", "", false},
		{"bybit", FromBybitPerp, "ETHUSDT", "ETH/USDT:USDT", true},
		{"bitget", FromBitgetPerp, "BTCUSDT_UMCBL", "BTC/USDT:USDT", true},
		{"bitget missing suffix", FromBitgetPerp, "BTCUSDT", "", false},
		{"bitget non-usdt", FromBitgetPerp, "BTCUSD_DMCBL", "", false},
		{"okx", FromOkxSwap, "BTC-USDT-SWAP", "BTC/USDT:USDT", true},
		{"okx spot id", FromOkxSwap, "BTC-USDT", "", false},
	}
	for _, tt := range tests {
		got, ok := tt.fn(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s: (%s)=(%s,%v) want (%s,%v)", tt.name, tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

// Different exchanges' native spellings of the same pair must normalize to an
// identical key.
func TestCrossExchangeIdentity(t *testing.T) {
	binance, _ := FromBinancePerp("SOLUSDT")
	bybit, _ := FromBybitPerp("SOLUSDT")
	bitget, _ := FromBitgetPerp("SOLUSDT_UMCBL")
	okx, _ := FromOkxSwap("SOL-USDT-SWAP")
	if binance != bybit || bybit != bitget || bitget != okx {
		t.Errorf("keys diverge: %s %s %s %s", binance, bybit, bitget, okx)
	}
}
