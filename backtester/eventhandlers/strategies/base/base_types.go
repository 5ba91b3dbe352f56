package base

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/holdings"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/size"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

var (
	// ErrCustomSettingsUnsupported used when custom settings are found in the start config when they shouldn't be
	ErrCustomSettingsUnsupported = errors.New("custom settings not supported")
	// ErrStrategyNotFound used when strategy specified in start config does not exist
	ErrStrategyNotFound = errors.New("not found. Please ensure the strategy-settings field 'name' is spelled properly in your config")
	// ErrStrategyAlreadyDefined is returned when a strategy name is registered twice
	ErrStrategyAlreadyDefined = errors.New("strategy already defined")
	// ErrInvalidCustomSettings used when bad custom settings are found in the start config
	ErrInvalidCustomSettings = errors.New("invalid custom settings in config")
	// ErrTooMuchBadData used when there is too much missing data
	ErrTooMuchBadData = errors.New("backtesting cannot continue as there is too much invalid data. Please review your dataset")
	// ErrNothingToOrder is returned when an order has no explicit quantity and
	// the sizer could not produce one
	ErrNothingToOrder = errors.New("sizer returned no quantity to order")
)

// API is the surface a running backtest exposes to a strategy. It is only
// valid inside Init, OnBar and the notification hooks
type API interface {
	// Buy submits a market buy. A zero quantity asks the sizer
	Buy(symbol string, quantity decimal.Decimal) (order.Order, error)
	// Sell submits a market sell. A zero quantity asks the sizer
	Sell(symbol string, quantity decimal.Decimal) (order.Order, error)
	Order(symbol string, side order.Side, quantity decimal.Decimal, orderType order.Type, price, trigger decimal.Decimal) (order.Order, error)
	// TrailingStop protects the current position when quantity is zero
	TrailingStop(symbol string, quantity, trailAmount, trailPercent decimal.Decimal) (order.Order, error)
	BuyBracket(symbol string, quantity, stopLoss, takeProfit decimal.Decimal) (exchange.BracketOrders, error)
	SellBracket(symbol string, quantity, stopLoss, takeProfit decimal.Decimal) (exchange.BracketOrders, error)
	Cancel(id string) error
	Close(symbol string) (order.Order, error)

	Position(symbol string) holdings.Position
	Cash() decimal.Decimal
	Equity() decimal.Decimal
	Bars(symbol string, lookback int) []data.Bar
	Bar(symbol string, offset int) (data.Bar, error)
	Symbols() []string
	Time() time.Time

	SetSizer(name string, p *size.Params) error
	Size(symbol string, side order.Side) decimal.Decimal
	SetCapital(amount decimal.Decimal) error

	AddIndicator(name string, value float64)
	AddSignal(signal string)
	AddNote(note string)
}

// Strategy is base implementation of the Handler interface
type Strategy struct{}
