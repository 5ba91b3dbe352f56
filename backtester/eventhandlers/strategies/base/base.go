package base

import (
	"errors"
	"fmt"

	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange"
)

// Init does nothing. Strategies which need setup override it
func (s *Strategy) Init(API) error {
	return nil
}

// SetCustomSettings rejects any settings for strategies without options
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	if len(customSettings) > 0 {
		return ErrCustomSettingsUnsupported
	}
	return nil
}

// SetDefaults does nothing for strategies without options
func (s *Strategy) SetDefaults() {}

// FreshSymbols returns the symbols in the step that observed a bar of their
// own rather than a forward-filled one
func FreshSymbols(st *data.Step) []string {
	symbols := st.Symbols()
	resp := symbols[:0]
	for i := range symbols {
		if st.Bars[symbols[i]].Stale {
			continue
		}
		resp = append(resp, symbols[i])
	}
	return resp
}

// Closes returns up to lookback closing prices for the symbol as floats for
// indicator input
func Closes(api API, symbol string, lookback int) []float64 {
	return extract(api.Bars(symbol, lookback), func(b *data.Bar) float64 { return b.Close.InexactFloat64() })
}

// HighLowClose returns the highs, lows and closes used by range indicators
func HighLowClose(api API, symbol string, lookback int) (highs, lows, closes []float64) {
	bars := api.Bars(symbol, lookback)
	highs = extract(bars, func(b *data.Bar) float64 { return b.High.InexactFloat64() })
	lows = extract(bars, func(b *data.Bar) float64 { return b.Low.InexactFloat64() })
	closes = extract(bars, func(b *data.Bar) float64 { return b.Close.InexactFloat64() })
	return highs, lows, closes
}

func extract(bars []data.Bar, fn func(*data.Bar) float64) []float64 {
	resp := make([]float64, len(bars))
	for i := range bars {
		resp[i] = fn(&bars[i])
	}
	return resp
}

// ParseFloat reads a positive number from a custom settings value
func ParseFloat(key string, v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return 0, fmt.Errorf("%w provided %v value could not be parsed: %v", ErrInvalidCustomSettings, key, v)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%w provided %v value must be positive: %v", ErrInvalidCustomSettings, key, v)
	}
	return f, nil
}

// IgnoreOrderOutcome drops the errors which describe an order the market
// would not take rather than a fault in the strategy
func IgnoreOrderOutcome(err error) error {
	if errors.Is(err, exchange.ErrOrderRejected) ||
		errors.Is(err, exchange.ErrNoPosition) ||
		errors.Is(err, ErrNothingToOrder) {
		return nil
	}
	return err
}
