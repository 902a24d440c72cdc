package symbols

import (
	"strings"

	"fundingflow/internal/model"
)

const quoteSuffix = "/USDT:USDT"

// Canonical builds the exchange independent key for a base asset quoted and
// settled in USDT, e.g. Canonical("BTC") == "BTC/USDT:USDT".
func Canonical(base string) model.SymbolKey {
	return model.SymbolKey(base + quoteSuffix)
}

// Base extracts the base asset from a canonical key.
func Base(key model.SymbolKey) string {
	s := string(key)
	if i := strings.Index(s, "/"); i >= 0 {
		return s[:i]
	}
	return s
}

// FromBinancePerp maps a Binance USDT-margined perpetual symbol such as
// "BTCUSDT" to its canonical key. Symbols not quoted in USDT are rejected.
func FromBinancePerp(sym string) (model.SymbolKey, bool) {
	return fromUSDTPair(sym)
}

// FromBybitPerp maps a Bybit linear perpetual symbol such as "BTCUSDT" to its
// canonical key.
func FromBybitPerp(sym string) (model.SymbolKey, bool) {
	return fromUSDTPair(sym)
}

// FromBitgetPerp maps a Bitget USDT-margined perpetual symbol such as
// "BTCUSDT_UMCBL" to its canonical key. The product-type suffix is required.
func FromBitgetPerp(sym string) (model.SymbolKey, bool) {
	if !strings.HasSuffix(sym, "_UMCBL") {
		return "", false
	}
	return fromUSDTPair(strings.TrimSuffix(sym, "_UMCBL"))
}

// FromOkxSwap maps an OKX swap instrument id such as "BTC-USDT-SWAP" to its
// canonical key.
func FromOkxSwap(instID string) (model.SymbolKey, bool) {
	if !strings.HasSuffix(instID, "-USDT-SWAP") {
		return "", false
	}
	base := strings.TrimSuffix(instID, "-USDT-SWAP")
	if base == "" {
		return "", false
	}
	return Canonical(base), true
}

func fromUSDTPair(sym string) (model.SymbolKey, bool) {
	if !strings.HasSuffix(sym, "USDT") {
		return "", false
	}
	base := strings.TrimSuffix(sym, "USDT")
	if base == "" {
		return "", false
	}
	return Canonical(base), true
}
