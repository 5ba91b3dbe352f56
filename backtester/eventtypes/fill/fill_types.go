package fill

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

// Trade is the immutable record of a single fill
type Trade struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order-id"`
	Symbol   string          `json:"symbol"`
	Side     order.Side      `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Fee      decimal.Decimal `json:"fee"`
	Slippage decimal.Decimal `json:"slippage"`
	Time     time.Time       `json:"time"`
	// PnL is the realised profit or loss when the fill reduced or closed a
	// position. It is zero for opening fills
	PnL decimal.Decimal `json:"pnl"`
	// ClosedQuantity is how much of an existing position the fill closed
	ClosedQuantity decimal.Decimal `json:"closed-quantity"`
}
