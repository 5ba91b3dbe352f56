package fill

import "github.com/shopspring/decimal"

// Notional returns the traded value before fees
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// Closes returns whether the fill closed or reduced a position, including
// closes at the entry price which realise no profit or loss
func (t *Trade) Closes() bool {
	return t.ClosedQuantity.IsPositive()
}

// NetPnL is the realised profit or loss less the fee paid on the fill
func (t *Trade) NetPnL() decimal.Decimal {
	return t.PnL.Sub(t.Fee)
}
