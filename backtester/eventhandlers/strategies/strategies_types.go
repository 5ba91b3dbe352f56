package strategies

import (
	"errors"

	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

var errNilConstructor = errors.New("received nil")

// Handler defines all functions required to run strategies against data events
type Handler interface {
	Name() string
	Description() string
	Init(base.API) error
	OnBar(base.API, data.Step) error
	SetCustomSettings(map[string]any) error
	SetDefaults()
}

// OrderNotifiee is implemented by strategies that want order status changes
type OrderNotifiee interface {
	OnOrder(base.API, order.Order)
}

// TradeNotifiee is implemented by strategies that want completed trades
type TradeNotifiee interface {
	OnTrade(base.API, fill.Trade)
}
