package exchange

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/commission"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/slippage"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/holdings"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

var (
	// ErrOrderRejected is returned when an order fails validation on submission
	ErrOrderRejected = errors.New("order rejected")
	// ErrOrderNotFound is returned when an order id is not known to the exchange
	ErrOrderNotFound = errors.New("order not found")
	// ErrInvariantViolation is returned when the exchange's accounting is
	// inconsistent. It is fatal to a run
	ErrInvariantViolation = errors.New("exchange invariant violated")
	// ErrNoPosition is returned when closing a symbol with no open position
	ErrNoPosition = errors.New("no open position")
	// ErrTradingStarted is returned when changing settings after the first step
	ErrTradingStarted = errors.New("trading has already started")
	// ErrInvalidBracket is returned when a bracket has neither a stop loss nor a take profit
	ErrInvalidBracket = errors.New("bracket requires a stop loss or take profit")

	errNilSettings = errors.New("nil exchange settings")
)

// Notifier receives order status changes and realised trades
type Notifier interface {
	OnOrder(order.Order)
	OnTrade(fill.Trade)
}

// Settings configures a simulated exchange
type Settings struct {
	InitialCapital decimal.Decimal
	// Symbols lists the tradable symbols. When empty any symbol is accepted
	Symbols []string
	// MarketPrice is the bar field market orders fill at, open or close
	MarketPrice string
	Slippage    slippage.Model
	Commission  *commission.Manager
}

// Bracket is an entry order with optional protective children. The children
// sit PENDING until the entry fills and cancel each other once active
type Bracket struct {
	Entry        order.Order
	StopLoss     decimal.Decimal
	TakeProfit   decimal.Decimal
	TrailAmount  decimal.Decimal
	TrailPercent decimal.Decimal
}

// BracketOrders holds the orders created for a bracket. Children which were
// not requested are left empty
type BracketOrders struct {
	Entry      order.Order `json:"entry"`
	StopLoss   order.Order `json:"stop-loss"`
	TakeProfit order.Order `json:"take-profit"`
}

// Exchange is the simulated broker. It owns the order arena, the ledger and
// the trade record of a single run and is not safe for concurrent use
type Exchange struct {
	ledger      *holdings.Ledger
	slippage    slippage.Model
	commission  *commission.Manager
	marketPrice string
	symbols     map[string]struct{}
	notifier    Notifier

	orders   map[string]*order.Order
	sequence []string
	active   []string
	children map[string][]string
	groups   map[string][]string
	trades   []fill.Trade

	lastPrice map[string]decimal.Decimal
	orderSeq  int
	tradeSeq  int
	groupSeq  int
	now       time.Time
	started   bool
}
