package size

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

// Sizer names
const (
	FixedName   = "fixed"
	PercentName = "percent"
	AllInName   = "allin"
	RiskName    = "risk"
)

var (
	// ErrUnknownSizer is returned when a sizer name is not recognised
	ErrUnknownSizer = errors.New("unknown sizer")
	// ErrInvalidParams is returned when sizer parameters are out of range
	ErrInvalidParams = errors.New("invalid sizer parameters")
)

// Sizer converts a trade intent into an order quantity. Implementations must
// not hold references to broker state; everything they need is in the
// snapshot. Zero means do not trade
type Sizer interface {
	Name() string
	Size(side order.Side, snap Snapshot, state State) decimal.Decimal
}

// Snapshot is a value copy of the account at the time of sizing
type Snapshot struct {
	Symbol   string
	Cash     decimal.Decimal
	Equity   decimal.Decimal
	Position decimal.Decimal
	Price    decimal.Decimal
	// TakerRate and MinimumFee describe the commission a market order at
	// Price would pay
	TakerRate  decimal.Decimal
	MinimumFee decimal.Decimal
}

// State carries strategy supplied inputs such as a volatility measure
type State struct {
	Volatility decimal.Decimal
}

// Params configures all sizers
type Params struct {
	Stake         decimal.Decimal `json:"stake"`
	Percent       decimal.Decimal `json:"percent"`
	RiskPercent   decimal.Decimal `json:"risk-percent"`
	ATRPeriod     int             `json:"atr-period"`
	ATRMultiplier decimal.Decimal `json:"atr-multiplier"`
	Limits        MinMax          `json:"limits"`
}

// MinMax are the rules which limit the quantity of an order
type MinMax struct {
	Minimum decimal.Decimal `json:"minimum"`
	Maximum decimal.Decimal `json:"maximum"`
}

// Fixed always returns the stake
type Fixed struct {
	Stake  decimal.Decimal
	Limits MinMax
}

// Percent allocates a percentage of equity
type Percent struct {
	Percent decimal.Decimal
	Limits  MinMax
}

// AllIn allocates all available cash
type AllIn struct {
	Limits MinMax
}

// Risk sizes so that a move of volatility*multiplier loses riskPercent of
// equity
type Risk struct {
	RiskPercent   decimal.Decimal
	ATRMultiplier decimal.Decimal
	ATRPeriod     int
	Fallback      decimal.Decimal
	Limits        MinMax
}
