package bracketbreakout

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
	"github.com/thrasher-corp/barsim/log"
	"github.com/thrasher-corp/gct-ta/indicators"
)

// Name returns the name of the strategy
func (s *Strategy) Name() string {
	return Name
}

// Description provides a nice overview of the strategy
func (s *Strategy) Description() string {
	return description
}

// Init clears any state left from a previous run
func (s *Strategy) Init(base.API) error {
	if s.breakoutPeriod == 0 {
		s.SetDefaults()
	}
	s.trades = make(map[string]*tracked)
	return nil
}

// OnBar looks for a close above the prior window's highest high on symbols
// which have no position or pending entry
func (s *Strategy) OnBar(api base.API, st data.Step) error {
	if api == nil {
		return common.ErrNilArguments
	}
	if s.trades == nil {
		if err := s.Init(api); err != nil {
			return err
		}
	}
	lookback := s.breakoutPeriod + 1
	if s.atrPeriod+1 > lookback {
		lookback = s.atrPeriod + 1
	}
	for _, sym := range base.FreshSymbols(&st) {
		if _, ok := s.trades[sym]; ok || !api.Position(sym).IsFlat() {
			continue
		}
		highs, lows, closes := base.HighLowClose(api, sym, lookback)
		if len(closes) < lookback {
			continue
		}
		n := len(closes) - 1
		ceiling := highs[n-s.breakoutPeriod]
		for _, h := range highs[n-s.breakoutPeriod : n] {
			if h > ceiling {
				ceiling = h
			}
		}
		atr := indicators.ATR(highs, lows, closes, s.atrPeriod)
		if len(atr) == 0 {
			continue
		}
		latest := atr[len(atr)-1]
		latestATR := decimal.NewFromFloat(latest)
		api.AddIndicator(sym+" atr", latest)
		api.AddIndicator(sym+" breakout level", ceiling)
		if closes[n] <= ceiling || !latestATR.IsPositive() {
			continue
		}

		price := st.Bars[sym].Close
		takeProfit := price.Add(latestATR.Mul(s.targetMultiplier))
		stopDistance := latestATR.Mul(s.stopMultiplier)
		stopLoss := decimal.Zero
		if !s.trailing {
			stopLoss = price.Sub(stopDistance)
			if !stopLoss.IsPositive() {
				continue
			}
		}
		api.AddSignal(fmt.Sprintf("%v breakout above %v", sym, ceiling))
		orders, err := api.BuyBracket(sym, decimal.Zero, stopLoss, takeProfit)
		if base.IgnoreOrderOutcome(err) != nil {
			return err
		}
		if orders.Entry.Status != order.Accepted {
			continue
		}
		s.trades[sym] = &tracked{
			entryID:      orders.Entry.ID,
			takeProfitID: orders.TakeProfit.ID,
			stopID:       orders.StopLoss.ID,
			trailAmount:  stopDistance,
		}
	}
	return nil
}

// OnOrder attaches the trailing stop once an entry fills and unwinds the
// protection left over when either exit fills
func (s *Strategy) OnOrder(api base.API, o order.Order) {
	t, ok := s.trades[o.Symbol]
	if !ok {
		return
	}
	switch o.ID {
	case t.entryID:
		switch {
		case o.Status == order.Filled && s.trailing:
			stop, err := api.TrailingStop(o.Symbol, decimal.Zero, t.trailAmount, decimal.Zero)
			if err != nil {
				log.Warnf(common.Strategy, "%v could not place trailing stop: %v", o.Symbol, err)
				return
			}
			t.stopID = stop.ID
		case o.Status == order.Rejected || o.Status == order.Canceled:
			delete(s.trades, o.Symbol)
		}
	case t.takeProfitID:
		if o.Status == order.Filled {
			s.unwind(api, o.Symbol, t.stopID)
		}
	case t.stopID:
		if o.Status == order.Filled {
			s.unwind(api, o.Symbol, t.takeProfitID)
		}
	}
}

// unwind cancels the surviving exit. Bracket children already cancel each
// other, so only a strategy placed trailing stop needs this
func (s *Strategy) unwind(api base.API, symbol, survivor string) {
	if survivor != "" {
		if err := api.Cancel(survivor); err != nil {
			log.Warnf(common.Strategy, "%v could not cancel %v: %v", symbol, survivor, err)
		}
	}
	delete(s.trades, symbol)
}

// SetCustomSettings sets the window lengths and ATR multiples
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	for k, v := range customSettings {
		switch k {
		case breakoutPeriodKey, atrPeriodKey:
			f, err := base.ParseFloat(k, v)
			if err != nil {
				return err
			}
			if f < 1 {
				return fmt.Errorf("%w provided %v value must be at least 1: %v", base.ErrInvalidCustomSettings, k, v)
			}
			if k == breakoutPeriodKey {
				s.breakoutPeriod = int(f)
			} else {
				s.atrPeriod = int(f)
			}
		case stopMultiplierKey:
			f, err := base.ParseFloat(k, v)
			if err != nil {
				return err
			}
			s.stopMultiplier = decimal.NewFromFloat(f)
		case targetMultiplierKey:
			f, err := base.ParseFloat(k, v)
			if err != nil {
				return err
			}
			s.targetMultiplier = decimal.NewFromFloat(f)
		case trailingKey:
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("%w provided trailing value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.trailing = b
		default:
			return fmt.Errorf("%w unrecognised custom setting key %v with value %v. Cannot apply", base.ErrInvalidCustomSettings, k, v)
		}
	}
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.breakoutPeriod = defaultBreakout
	s.atrPeriod = defaultATRPeriod
	s.stopMultiplier = decimal.NewFromInt(defaultStopMultiple)
	s.targetMultiplier = decimal.NewFromInt(defaultTargetMultiple)
	s.trailing = true
}
