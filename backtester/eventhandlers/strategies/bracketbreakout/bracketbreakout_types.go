package bracketbreakout

import (
	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
)

const (
	// Name is the strategy name
	Name                  = "bracketbreakout"
	breakoutPeriodKey     = "breakout-period"
	atrPeriodKey          = "atr-period"
	stopMultiplierKey     = "stop-multiplier"
	targetMultiplierKey   = "target-multiplier"
	trailingKey           = "trailing"
	description           = `The bracket breakout enters long when the close clears the highest high of the lookback window. Every entry is protected by an OCO pair sized from the average true range: a take profit above, and either a fixed stop or a trailing stop below`
	defaultBreakout       = 20
	defaultATRPeriod      = 14
	defaultStopMultiple   = 2
	defaultTargetMultiple = 3
)

// Strategy is an implementation of the Handler interface
type Strategy struct {
	base.Strategy
	breakoutPeriod   int
	atrPeriod        int
	stopMultiplier   decimal.Decimal
	targetMultiplier decimal.Decimal
	trailing         bool
	trades           map[string]*tracked
}

// tracked holds the ids of the orders guarding one symbol's position
type tracked struct {
	entryID      string
	takeProfitID string
	stopID       string
	trailAmount  decimal.Decimal
}
