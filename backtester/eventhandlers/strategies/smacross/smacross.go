package smacross

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/gct-ta/indicators"
)

const (
	// Name is the strategy name
	Name          = "smacross"
	fastPeriodKey = "fast-period"
	slowPeriodKey = "slow-period"
	allowShortKey = "allow-short"
	description   = `The moving average crossover enters long when a fast simple moving average crosses above a slow one and exits when it crosses back below. When shorting is allowed the downward cross also opens a short position`
)

// Strategy is an implementation of the Handler interface
type Strategy struct {
	base.Strategy
	fastPeriod int
	slowPeriod int
	allowShort bool
}

// Name returns the name of the strategy
func (s *Strategy) Name() string {
	return Name
}

// Description provides a nice overview of the strategy
func (s *Strategy) Description() string {
	return description
}

// OnBar compares the two most recent values of both averages and trades on
// a change of sign
func (s *Strategy) OnBar(api base.API, st data.Step) error {
	if api == nil {
		return common.ErrNilArguments
	}
	if s.slowPeriod == 0 {
		s.SetDefaults()
	}
	for _, sym := range base.FreshSymbols(&st) {
		closes := base.Closes(api, sym, s.slowPeriod+1)
		if len(closes) <= s.slowPeriod {
			continue
		}
		fast := indicators.SMA(closes, s.fastPeriod)
		slow := indicators.SMA(closes, s.slowPeriod)
		if len(fast) < 2 || len(slow) < 2 {
			continue
		}
		f, sl := len(fast)-1, len(slow)-1
		api.AddIndicator(sym+" sma fast", fast[f])
		api.AddIndicator(sym+" sma slow", slow[sl])

		crossedUp := fast[f-1] <= slow[sl-1] && fast[f] > slow[sl]
		crossedDown := fast[f-1] >= slow[sl-1] && fast[f] < slow[sl]
		pos := api.Position(sym)
		switch {
		case crossedUp:
			api.AddSignal(sym + " golden cross")
			if pos.IsShort() {
				if _, err := api.Close(sym); base.IgnoreOrderOutcome(err) != nil {
					return err
				}
			}
			if !pos.IsLong() {
				if _, err := api.Buy(sym, decimal.Zero); base.IgnoreOrderOutcome(err) != nil {
					return err
				}
			}
		case crossedDown:
			api.AddSignal(sym + " death cross")
			if pos.IsLong() {
				if _, err := api.Close(sym); base.IgnoreOrderOutcome(err) != nil {
					return err
				}
			}
			if s.allowShort && !pos.IsShort() {
				if _, err := api.Sell(sym, decimal.Zero); base.IgnoreOrderOutcome(err) != nil {
					return err
				}
			}
		}
	}
	return nil
}

// SetCustomSettings sets the averaging periods and whether to short
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	if len(customSettings) == 0 {
		return nil
	}
	for k, v := range customSettings {
		switch k {
		case fastPeriodKey:
			f, err := base.ParseFloat(k, v)
			if err != nil {
				return err
			}
			s.fastPeriod = int(f)
		case slowPeriodKey:
			f, err := base.ParseFloat(k, v)
			if err != nil {
				return err
			}
			s.slowPeriod = int(f)
		case allowShortKey:
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("%w provided allow-short value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.allowShort = b
		default:
			return fmt.Errorf("%w unrecognised custom setting key %v with value %v. Cannot apply", base.ErrInvalidCustomSettings, k, v)
		}
	}
	if s.fastPeriod < 1 || s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("%w fast-period %v must be below slow-period %v", base.ErrInvalidCustomSettings, s.fastPeriod, s.slowPeriod)
	}
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.fastPeriod = 10
	s.slowPeriod = 30
	s.allowShort = false
}
