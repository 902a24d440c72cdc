package model

// Exchange identifiers used as keys in AggregatedResult and in configuration.
const (
	ExchangeBinance = "binance"
	ExchangeBybit   = "bybit"
	ExchangeBitget  = "bitget"
	ExchangeOkx     = "okx"
)

// KnownExchanges lists every exchange the aggregation subsystem supports.
func KnownExchanges() []string {
	return []string{ExchangeBinance, ExchangeBybit, ExchangeBitget, ExchangeOkx}
}

// SymbolKey is the canonical cross-exchange instrument identity in the form
// BASE/QUOTE:SETTLE, e.g. "BTC/USDT:USDT". All exchange-native spellings are
// normalized to this form before being stored or compared.
type SymbolKey string

// FundingEntry is one instrument's current funding state. Rate is the raw
// funding fraction multiplied by 100 (a percentage). NextFundingTime is an
// epoch-millisecond timestamp and stays 0 when the source does not expose it.
type FundingEntry struct {
	Symbol          SymbolKey `json:"symbol"`
	Rate            float64   `json:"rate"`
	Price           float64   `json:"price"`
	Volume          float64   `json:"volume"`
	NextFundingTime int64     `json:"next_funding"`
}

// ExchangeSnapshot maps canonical symbols to funding entries for one exchange.
type ExchangeSnapshot map[SymbolKey]FundingEntry

// AggregatedResult maps exchange identifiers to their snapshots. It is the
// unit returned to callers of the aggregator.
type AggregatedResult map[string]ExchangeSnapshot

// MarkUpdate carries the funding half of a streaming message.
type MarkUpdate struct {
	Rate            float64
	Price           float64
	NextFundingTime int64
}

// TickerUpdate carries the ticker half of a streaming message.
type TickerUpdate struct {
	Price       float64
	QuoteVolume float64
}

// FundingUpdate is one parsed streaming message delivered through the update
// mailbox to the goroutine that owns a monitor's state. Either half may be
// nil depending on the channel the message arrived on.
type FundingUpdate struct {
	Exchange string
	Symbol   SymbolKey
	Mark     *MarkUpdate
	Ticker   *TickerUpdate
}
