package holdings

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

// Update applies a signed quantity change at price and returns the realised
// profit or loss of any reduction along with the quantity it closed. Adds in
// the same direction average the entry price, reductions realise against it
// and a reversal re-bases the remaining quantity at price
func (p *Position) Update(delta, price decimal.Decimal) (pnl, closed decimal.Decimal) {
	if delta.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	pnl, closed = decimal.Zero, decimal.Zero
	next := p.Quantity.Add(delta)
	switch {
	case p.Quantity.IsZero() || p.Quantity.Sign() == delta.Sign():
		if !next.IsZero() {
			p.AveragePrice = p.Quantity.Abs().Mul(p.AveragePrice).
				Add(delta.Abs().Mul(price)).
				Div(next.Abs())
		}
	default:
		closed = decimal.Min(delta.Abs(), p.Quantity.Abs())
		pnl = closed.Mul(price.Sub(p.AveragePrice))
		if p.Quantity.IsNegative() {
			pnl = pnl.Neg()
		}
		if !next.IsZero() && next.Sign() != p.Quantity.Sign() {
			p.AveragePrice = price
		}
	}
	p.Quantity = next
	if p.Quantity.Abs().LessThan(dustQuantity) {
		p.Quantity = decimal.Zero
		p.AveragePrice = decimal.Zero
	}
	p.RealisedPnL = p.RealisedPnL.Add(pnl)
	return pnl, closed
}

// IsFlat returns whether no quantity is held
func (p Position) IsFlat() bool {
	return p.Quantity.IsZero()
}

// IsLong returns whether the position is long
func (p Position) IsLong() bool {
	return p.Quantity.IsPositive()
}

// IsShort returns whether the position is short
func (p Position) IsShort() bool {
	return p.Quantity.IsNegative()
}

// Value returns the marked value of the position, negative for shorts
func (p *Position) Value(mark decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(mark)
}

// UnrealisedPnL returns the open profit or loss at mark
func (p *Position) UnrealisedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	return p.Quantity.Mul(mark.Sub(p.AveragePrice))
}

// NewLedger returns a ledger funded with capital
func NewLedger(capital decimal.Decimal) (*Ledger, error) {
	if err := validateCapital(capital); err != nil {
		return nil, err
	}
	return &Ledger{
		initialCapital: capital,
		cash:           capital,
		positions:      make(map[string]*Position),
		marks:          make(map[string]decimal.Decimal),
	}, nil
}

func validateCapital(capital decimal.Decimal) error {
	if !capital.IsPositive() || capital.GreaterThan(MaxCapital) {
		return fmt.Errorf("%w, received %v", ErrInvalidCapital, capital)
	}
	return nil
}

// SetCapital replaces the starting balance. It is only permitted before the
// first fill
func (l *Ledger) SetCapital(capital decimal.Decimal) error {
	if l.fills > 0 {
		return ErrCapitalLocked
	}
	if err := validateCapital(capital); err != nil {
		return err
	}
	l.initialCapital = capital
	l.cash = capital
	return nil
}

// InitialCapital returns the starting balance
func (l *Ledger) InitialCapital() decimal.Decimal {
	return l.initialCapital
}

// Cash returns the cash balance
func (l *Ledger) Cash() decimal.Decimal {
	return l.cash
}

// TotalFees returns all commission paid
func (l *Ledger) TotalFees() decimal.Decimal {
	return l.fees
}

// FillCount returns how many fills have been applied
func (l *Ledger) FillCount() int {
	return l.fills
}

// Mark records the latest price for a symbol used to value its position
func (l *Ledger) Mark(symbol string, price decimal.Decimal) {
	if price.IsPositive() {
		l.marks[symbol] = price
	}
}

// MarkPrice returns the latest recorded price for a symbol
func (l *Ledger) MarkPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := l.marks[symbol]
	return p, ok
}

// Position returns a copy of the position for a symbol. Unknown symbols
// return a flat position
func (l *Ledger) Position(symbol string) Position {
	if p, ok := l.positions[symbol]; ok {
		return *p
	}
	return Position{Symbol: symbol}
}

// Positions returns copies of all open positions sorted by symbol
func (l *Ledger) Positions() []Position {
	resp := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.IsFlat() {
			continue
		}
		resp = append(resp, *p)
	}
	sort.Slice(resp, func(i, j int) bool {
		return resp[i].Symbol < resp[j].Symbol
	})
	return resp
}

// Equity returns cash plus the marked value of every position. A position
// without a mark is valued at its entry price
func (l *Ledger) Equity() decimal.Decimal {
	equity := l.cash
	for sym, p := range l.positions {
		if p.IsFlat() {
			continue
		}
		mark, ok := l.marks[sym]
		if !ok {
			mark = p.AveragePrice
		}
		equity = equity.Add(p.Value(mark))
	}
	return equity
}

// CanAfford returns whether a buy of quantity at price plus fee is covered
// by cash
func (l *Ledger) CanAfford(quantity, price, fee decimal.Decimal) bool {
	return quantity.Mul(price).Add(fee).LessThanOrEqual(l.cash)
}

// Apply books a fill. Buys debit notional plus fee, sells credit notional
// less fee. It returns the realised profit or loss on the position and the
// quantity of it the fill closed
func (l *Ledger) Apply(symbol string, side order.Side, quantity, price, fee decimal.Decimal, t time.Time) (pnl, closed decimal.Decimal, err error) {
	if !quantity.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w, received %v", order.ErrInvalidQuantity, quantity)
	}
	notional := quantity.Mul(price)
	delta := quantity
	switch side {
	case order.Buy:
		if !l.CanAfford(quantity, price, fee) {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%w: cost %v fee %v cash %v", ErrInsufficientFunds, notional, fee, l.cash)
		}
		l.cash = l.cash.Sub(notional).Sub(fee)
		l.boughtValue = l.boughtValue.Add(notional)
	case order.Sell:
		delta = quantity.Neg()
		l.cash = l.cash.Add(notional).Sub(fee)
		l.soldValue = l.soldValue.Add(notional)
	default:
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w %q", order.ErrInvalidSide, side)
	}
	l.fees = l.fees.Add(fee)
	l.fills++

	p, ok := l.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		l.positions[symbol] = p
	}
	pnl, closed = p.Update(delta, price)
	if side == order.Buy {
		p.BoughtAmount = p.BoughtAmount.Add(quantity)
		p.BoughtValue = p.BoughtValue.Add(notional)
	} else {
		p.SoldAmount = p.SoldAmount.Add(quantity)
		p.SoldValue = p.SoldValue.Add(notional)
	}
	p.TotalFees = p.TotalFees.Add(fee)
	p.UpdatedAt = t
	l.Mark(symbol, price)
	return pnl, closed, nil
}

// Reconcile verifies the cash balance is non-negative and equals the
// starting balance adjusted by every recorded fill
func (l *Ledger) Reconcile() error {
	if l.cash.IsNegative() {
		return fmt.Errorf("%w: %v", ErrNegativeCash, l.cash)
	}
	expected := l.initialCapital.Add(l.soldValue).Sub(l.boughtValue).Sub(l.fees)
	if !expected.Equal(l.cash) {
		return fmt.Errorf("%w: expected %v, have %v", ErrLedgerMismatch, expected, l.cash)
	}
	return nil
}
