package rsi

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/barsim/log"
	"github.com/thrasher-corp/gct-ta/indicators"
)

const (
	// Name is the strategy name
	Name         = "rsi"
	rsiPeriodKey = "rsi-period"
	rsiLowKey    = "rsi-low"
	rsiHighKey   = "rsi-high"
	description  = `The relative strength index is a technical indicator used in the analysis of financial markets. It is intended to chart the current and historical strength or weakness of a stock or market based on the closing prices of a recent trading period`
)

// Strategy is an implementation of the Handler interface
type Strategy struct {
	base.Strategy
	rsiPeriod decimal.Decimal
	rsiLow    decimal.Decimal
	rsiHigh   decimal.Decimal
}

// Name returns the name of the strategy
func (s *Strategy) Name() string {
	return Name
}

// Description provides a nice overview of the strategy
// be it definition of terms or to highlight its purpose
func (s *Strategy) Description() string {
	return description
}

// OnBar buys with the configured sizer when RSI is at or below the low level
// and closes the position when it is at or above the high level
func (s *Strategy) OnBar(api base.API, st data.Step) error {
	if api == nil {
		return common.ErrNilArguments
	}
	if s.rsiPeriod.IsZero() {
		s.SetDefaults()
	}
	period := int(s.rsiPeriod.IntPart())
	for _, sym := range base.FreshSymbols(&st) {
		closes := base.Closes(api, sym, data.DefaultLookback)
		if len(closes) <= period {
			continue
		}
		rsi := indicators.RSI(closes, period)
		latest := decimal.NewFromFloat(rsi[len(rsi)-1])
		api.AddIndicator(sym+" rsi", latest.InexactFloat64())

		pos := api.Position(sym)
		switch {
		case latest.LessThanOrEqual(s.rsiLow) && pos.IsFlat():
			api.AddSignal(fmt.Sprintf("%v BUY RSI at %v", sym, latest.Round(2)))
			if _, err := api.Buy(sym, decimal.Zero); base.IgnoreOrderOutcome(err) != nil {
				return err
			}
		case latest.GreaterThanOrEqual(s.rsiHigh) && pos.IsLong():
			api.AddSignal(fmt.Sprintf("%v SELL RSI at %v", sym, latest.Round(2)))
			if _, err := api.Close(sym); base.IgnoreOrderOutcome(err) != nil {
				return err
			}
		default:
			log.Debugf(common.Strategy, "%v RSI at %v", sym, latest.Round(2))
		}
	}
	return nil
}

// SetCustomSettings allows a user to modify the RSI limits in their config
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	for k, v := range customSettings {
		switch k {
		case rsiHighKey:
			rsiHigh, ok := v.(float64)
			if !ok || rsiHigh <= 0 {
				return fmt.Errorf("%w provided rsi-high value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.rsiHigh = decimal.NewFromFloat(rsiHigh)
		case rsiLowKey:
			rsiLow, ok := v.(float64)
			if !ok || rsiLow <= 0 {
				return fmt.Errorf("%w provided rsi-low value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.rsiLow = decimal.NewFromFloat(rsiLow)
		case rsiPeriodKey:
			rsiPeriod, ok := v.(float64)
			if !ok || rsiPeriod < 1 {
				return fmt.Errorf("%w provided rsi-period value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.rsiPeriod = decimal.NewFromFloat(rsiPeriod).Floor()
		default:
			return fmt.Errorf("%w unrecognised custom setting key %v with value %v. Cannot apply", base.ErrInvalidCustomSettings, k, v)
		}
	}
	if s.rsiLow.GreaterThanOrEqual(s.rsiHigh) && !s.rsiHigh.IsZero() && !s.rsiLow.IsZero() {
		return fmt.Errorf("%w rsi-low %v must be below rsi-high %v", base.ErrInvalidCustomSettings, s.rsiLow, s.rsiHigh)
	}
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.rsiHigh = decimal.NewFromInt(70)
	s.rsiLow = decimal.NewFromInt(30)
	s.rsiPeriod = decimal.NewFromInt(14)
}
