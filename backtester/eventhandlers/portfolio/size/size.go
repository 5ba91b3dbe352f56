package size

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

var oneHundred = decimal.NewFromInt(100)

// allInPrecision is the number of decimal places an all in quantity is
// truncated to, so rounding never pushes the cost above cash
const allInPrecision = 8

// DefaultParams returns the default sizer parameters
func DefaultParams() Params {
	return Params{
		Stake:         decimal.NewFromInt(1),
		Percent:       decimal.NewFromInt(20),
		RiskPercent:   decimal.NewFromInt(2),
		ATRPeriod:     14,
		ATRMultiplier: decimal.NewFromInt(2),
	}
}

// Validate ensures parameters are usable
func (p *Params) Validate() error {
	switch {
	case p.Stake.IsNegative():
		return fmt.Errorf("%w: stake %v", ErrInvalidParams, p.Stake)
	case p.Percent.IsNegative() || p.Percent.GreaterThan(oneHundred):
		return fmt.Errorf("%w: percent %v must be between 0 and 100", ErrInvalidParams, p.Percent)
	case p.RiskPercent.IsNegative() || p.RiskPercent.GreaterThan(oneHundred):
		return fmt.Errorf("%w: risk percent %v must be between 0 and 100", ErrInvalidParams, p.RiskPercent)
	case p.ATRPeriod < 0:
		return fmt.Errorf("%w: atr period %v", ErrInvalidParams, p.ATRPeriod)
	case p.ATRMultiplier.IsNegative():
		return fmt.Errorf("%w: atr multiplier %v", ErrInvalidParams, p.ATRMultiplier)
	}
	return p.Limits.validate()
}

func (m *MinMax) validate() error {
	if m.Minimum.IsNegative() || m.Maximum.IsNegative() {
		return fmt.Errorf("%w: limits cannot be negative", ErrInvalidParams)
	}
	if m.Maximum.IsPositive() && m.Minimum.GreaterThan(m.Maximum) {
		return fmt.Errorf("%w: minimum %v greater than maximum %v", ErrInvalidParams, m.Minimum, m.Maximum)
	}
	return nil
}

// apply clamps a quantity to the maximum and drops it when below the minimum
func (m *MinMax) apply(q decimal.Decimal) decimal.Decimal {
	if !q.IsPositive() {
		return decimal.Zero
	}
	if m.Maximum.IsPositive() && q.GreaterThan(m.Maximum) {
		q = m.Maximum
	}
	if q.LessThan(m.Minimum) {
		return decimal.Zero
	}
	return q
}

// New returns a sizer by name
func New(name string, p Params) (Sizer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(name) {
	case FixedName, "":
		return &Fixed{Stake: p.Stake, Limits: p.Limits}, nil
	case PercentName:
		return &Percent{Percent: p.Percent, Limits: p.Limits}, nil
	case AllInName, "all-in", "all_in":
		return &AllIn{Limits: p.Limits}, nil
	case RiskName:
		return &Risk{
			RiskPercent:   p.RiskPercent,
			ATRMultiplier: p.ATRMultiplier,
			ATRPeriod:     p.ATRPeriod,
			Fallback:      p.Stake,
			Limits:        p.Limits,
		}, nil
	}
	return nil, fmt.Errorf("%w '%v'", ErrUnknownSizer, name)
}

// Name returns the sizer name
func (f *Fixed) Name() string { return FixedName }

// Size returns the configured stake
func (f *Fixed) Size(order.Side, Snapshot, State) decimal.Decimal {
	return f.Limits.apply(f.Stake)
}

// Name returns the sizer name
func (p *Percent) Name() string { return PercentName }

// Size returns equity * percent / 100 / price
func (p *Percent) Size(_ order.Side, snap Snapshot, _ State) decimal.Decimal {
	if !snap.Price.IsPositive() || !snap.Equity.IsPositive() {
		return decimal.Zero
	}
	return p.Limits.apply(snap.Equity.Mul(p.Percent).Div(oneHundred).Div(snap.Price))
}

// Name returns the sizer name
func (a *AllIn) Name() string { return AllInName }

// Size returns the largest quantity whose cost plus taker fee is covered by
// cash. Selling while long returns the held quantity so the position is
// closed rather than flipped
func (a *AllIn) Size(side order.Side, snap Snapshot, _ State) decimal.Decimal {
	if side == order.Sell && snap.Position.IsPositive() {
		return a.Limits.apply(snap.Position)
	}
	if side == order.Buy && snap.Position.IsNegative() {
		return a.Limits.apply(snap.Position.Abs())
	}
	if !snap.Price.IsPositive() || !snap.Cash.IsPositive() {
		return decimal.Zero
	}
	q := snap.Cash.Div(snap.Price.Mul(decimal.NewFromInt(1).Add(snap.TakerRate)))
	if snap.MinimumFee.IsPositive() {
		q = decimal.Min(q, snap.Cash.Sub(snap.MinimumFee).Div(snap.Price))
	}
	return a.Limits.apply(q.Truncate(allInPrecision))
}

// Name returns the sizer name
func (r *Risk) Name() string { return RiskName }

// Size returns equity * risk% / (volatility * multiplier), or the fallback
// stake when no volatility measure is available yet
func (r *Risk) Size(_ order.Side, snap Snapshot, state State) decimal.Decimal {
	denominator := state.Volatility.Mul(r.ATRMultiplier)
	if !denominator.IsPositive() {
		return r.Limits.apply(r.Fallback)
	}
	if !snap.Equity.IsPositive() {
		return decimal.Zero
	}
	return r.Limits.apply(snap.Equity.Mul(r.RiskPercent).Div(oneHundred).Div(denominator))
}
