package slippage

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Slippage model names
const (
	NoneName    = "none"
	FixedName   = "fixed"
	PercentName = "percent"
	VolumeName  = "volume"
)

var (
	// ErrUnknownModel is returned when a slippage model name is not recognised
	ErrUnknownModel = errors.New("unknown slippage model")
	// ErrNegativeParameter is returned when a slippage parameter is below zero
	ErrNegativeParameter = errors.New("slippage parameters cannot be negative")

	// DefaultPercent is the default proportional slippage
	DefaultPercent = decimal.NewFromFloat(0.0005)
	// DefaultVolumeImpact is the default impact coefficient of the volume model
	DefaultVolumeImpact = decimal.NewFromFloat(0.1)
)

// Model adjusts a nominal price to the price actually executed. Buys are
// never improved and sells are never improved by a model
type Model interface {
	Name() string
	Apply(price, quantity decimal.Decimal, isBuy bool, barVolume decimal.Decimal) decimal.Decimal
}

// Params configures the slippage models
type Params struct {
	FixedAmount  decimal.Decimal `json:"fixed-amount"`
	Percent      decimal.Decimal `json:"percent"`
	VolumeImpact decimal.Decimal `json:"volume-impact"`
}

// None applies no slippage
type None struct{}

// Fixed moves the price by a constant amount
type Fixed struct {
	Amount decimal.Decimal
}

// Percent moves the price by a fraction of itself
type Percent struct {
	Rate decimal.Decimal
}

// Volume moves the price in proportion to the order's share of bar volume
type Volume struct {
	Impact decimal.Decimal
}
