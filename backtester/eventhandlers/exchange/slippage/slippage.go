package slippage

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultParams returns the default slippage parameters
func DefaultParams() Params {
	return Params{
		Percent:      DefaultPercent,
		VolumeImpact: DefaultVolumeImpact,
	}
}

// New returns a slippage model by name
func New(name string, p Params) (Model, error) {
	if p.FixedAmount.IsNegative() || p.Percent.IsNegative() || p.VolumeImpact.IsNegative() {
		return nil, ErrNegativeParameter
	}
	switch strings.ToLower(name) {
	case NoneName, "":
		return None{}, nil
	case FixedName:
		return &Fixed{Amount: p.FixedAmount}, nil
	case PercentName:
		return &Percent{Rate: p.Percent}, nil
	case VolumeName:
		return &Volume{Impact: p.VolumeImpact}, nil
	}
	return nil, fmt.Errorf("%w '%v'", ErrUnknownModel, name)
}

// applySlippageToPrice adds the adjustment for buys and subtracts it for
// sells. A sell is never pushed below zero
func applySlippageToPrice(price, adjustment decimal.Decimal, isBuy bool) decimal.Decimal {
	if !adjustment.IsPositive() {
		return price
	}
	if isBuy {
		return price.Add(adjustment)
	}
	resp := price.Sub(adjustment)
	if resp.IsNegative() {
		return decimal.Zero
	}
	return resp
}

// Name returns the model name
func (None) Name() string { return NoneName }

// Apply returns the price unchanged
func (None) Apply(price, _ decimal.Decimal, _ bool, _ decimal.Decimal) decimal.Decimal {
	return price
}

// Name returns the model name
func (f *Fixed) Name() string { return FixedName }

// Apply moves the price by the fixed amount against the trader
func (f *Fixed) Apply(price, _ decimal.Decimal, isBuy bool, _ decimal.Decimal) decimal.Decimal {
	return applySlippageToPrice(price, f.Amount, isBuy)
}

// Name returns the model name
func (p *Percent) Name() string { return PercentName }

// Apply moves the price by price*rate against the trader
func (p *Percent) Apply(price, _ decimal.Decimal, isBuy bool, _ decimal.Decimal) decimal.Decimal {
	return applySlippageToPrice(price, price.Mul(p.Rate), isBuy)
}

// Name returns the model name
func (v *Volume) Name() string { return VolumeName }

// Apply moves the price by price * |quantity|/barVolume * impact. Without bar
// volume no slippage can be estimated and the price is returned unchanged
func (v *Volume) Apply(price, quantity decimal.Decimal, isBuy bool, barVolume decimal.Decimal) decimal.Decimal {
	if !barVolume.IsPositive() {
		return price
	}
	ratio := quantity.Abs().Div(barVolume)
	return applySlippageToPrice(price, price.Mul(ratio).Mul(v.Impact), isBuy)
}
