package engine

import (
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/holdings"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/size"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
	"github.com/thrasher-corp/barsim/log"
	"github.com/thrasher-corp/gct-ta/indicators"
)

// defaultBracketSize is used for brackets when the sizer cannot produce a
// quantity
var defaultBracketSize = decimal.NewFromFloat(0.1)

var (
	_ base.API          = (*runContext)(nil)
	_ exchange.Notifier = (*runContext)(nil)
)

func newRunContext(exch *exchange.Exchange, sizer size.Sizer, params size.Params, symbols []string, strategy strategies.Handler, historyLimit int, disableLog bool) *runContext {
	return &runContext{
		exch:       exch,
		history:    data.NewHistory(historyLimit),
		sizer:      sizer,
		params:     params,
		symbols:    symbols,
		strategy:   strategy,
		disableLog: disableLog,
		observed:   make(map[string]struct{}),
		firstClose: make(map[string]decimal.Decimal),
	}
}

// Buy submits a market buy. A zero quantity asks the sizer
func (r *runContext) Buy(symbol string, quantity decimal.Decimal) (order.Order, error) {
	return r.Order(symbol, order.Buy, quantity, order.Market, decimal.Zero, decimal.Zero)
}

// Sell submits a market sell. A zero quantity asks the sizer
func (r *runContext) Sell(symbol string, quantity decimal.Decimal) (order.Order, error) {
	return r.Order(symbol, order.Sell, quantity, order.Market, decimal.Zero, decimal.Zero)
}

// Order submits any supported order type. A zero quantity asks the sizer
func (r *runContext) Order(symbol string, side order.Side, quantity decimal.Decimal, orderType order.Type, price, trigger decimal.Decimal) (order.Order, error) {
	if quantity.IsZero() {
		quantity = r.Size(symbol, side)
		if !quantity.IsPositive() {
			return order.Order{}, fmt.Errorf("%w %v %v", base.ErrNothingToOrder, side, symbol)
		}
	}
	return r.exch.Submit(order.Order{
		Symbol:       symbol,
		Side:         side,
		Type:         orderType,
		Quantity:     quantity,
		Price:        price,
		TriggerPrice: trigger,
	})
}

// TrailingStop submits a trailing stop. With a zero quantity it protects the
// whole current position, otherwise it sells the given quantity
func (r *runContext) TrailingStop(symbol string, quantity, trailAmount, trailPercent decimal.Decimal) (order.Order, error) {
	side := order.Sell
	if quantity.IsZero() {
		p := r.exch.Position(symbol)
		if p.IsFlat() {
			return order.Order{}, fmt.Errorf("%w: %v", exchange.ErrNoPosition, symbol)
		}
		if p.IsShort() {
			side = order.Buy
		}
		quantity = p.Quantity.Abs()
	}
	return r.exch.Submit(order.Order{
		Symbol:       symbol,
		Side:         side,
		Type:         order.StopTrail,
		Quantity:     quantity,
		TrailAmount:  trailAmount,
		TrailPercent: trailPercent,
	})
}

// BuyBracket enters long at market with optional stop loss and take profit
func (r *runContext) BuyBracket(symbol string, quantity, stopLoss, takeProfit decimal.Decimal) (exchange.BracketOrders, error) {
	return r.bracket(symbol, order.Buy, quantity, stopLoss, takeProfit)
}

// SellBracket enters short at market with optional stop loss and take profit
func (r *runContext) SellBracket(symbol string, quantity, stopLoss, takeProfit decimal.Decimal) (exchange.BracketOrders, error) {
	return r.bracket(symbol, order.Sell, quantity, stopLoss, takeProfit)
}

func (r *runContext) bracket(symbol string, side order.Side, quantity, stopLoss, takeProfit decimal.Decimal) (exchange.BracketOrders, error) {
	if quantity.IsZero() {
		quantity = r.Size(symbol, side)
		if !quantity.IsPositive() {
			quantity = defaultBracketSize
		}
	}
	return r.exch.SubmitBracket(&exchange.Bracket{
		Entry: order.Order{
			Symbol:   symbol,
			Side:     side,
			Type:     order.Market,
			Quantity: quantity,
		},
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	})
}

// Cancel cancels an order by id
func (r *runContext) Cancel(id string) error {
	return r.exch.Cancel(id)
}

// Close flattens the position in symbol at market
func (r *runContext) Close(symbol string) (order.Order, error) {
	return r.exch.Close(symbol)
}

// Position returns a copy of the position in symbol
func (r *runContext) Position(symbol string) holdings.Position {
	return r.exch.Position(symbol)
}

// Cash returns the free cash balance
func (r *runContext) Cash() decimal.Decimal {
	return r.exch.Cash()
}

// Equity returns cash plus positions marked at the latest close
func (r *runContext) Equity() decimal.Decimal {
	return r.exch.Equity()
}

// Bars returns up to lookback fresh bars for symbol, oldest first
func (r *runContext) Bars(symbol string, lookback int) []data.Bar {
	return r.history.Bars(symbol, lookback)
}

// Bar returns a historical bar where 0 and -1 are the latest
func (r *runContext) Bar(symbol string, offset int) (data.Bar, error) {
	return r.history.Bar(symbol, offset)
}

// Symbols returns the symbols of the feed
func (r *runContext) Symbols() []string {
	return slices.Clone(r.symbols)
}

// Time returns the time of the current step
func (r *runContext) Time() time.Time {
	return r.exch.Now()
}

// SetSizer replaces the sizer used for zero quantity orders. Nil params keep
// the configured ones
func (r *runContext) SetSizer(name string, p *size.Params) error {
	params := r.params
	if p != nil {
		params = *p
	}
	s, err := size.New(name, params)
	if err != nil {
		return err
	}
	r.sizer = s
	r.params = params
	return nil
}

// Size asks the active sizer for a quantity. Zero means do not trade
func (r *runContext) Size(symbol string, side order.Side) decimal.Decimal {
	if r.sizer == nil {
		return decimal.Zero
	}
	price, ok := r.exch.LastPrice(symbol)
	if !ok {
		return decimal.Zero
	}
	p := r.exch.Position(symbol)
	fees := r.exch.FeeScheme(symbol)
	return r.sizer.Size(side, size.Snapshot{
		Symbol:     symbol,
		Cash:       r.exch.Cash(),
		Equity:     r.exch.Equity(),
		Position:   p.Quantity,
		Price:      price,
		TakerRate:  fees.Taker,
		MinimumFee: fees.Minimum,
	}, size.State{Volatility: r.volatility(symbol)})
}

// volatility is the latest ATR over the sizer's period, zero until enough
// history exists
func (r *runContext) volatility(symbol string) decimal.Decimal {
	period := r.params.ATRPeriod
	if period <= 0 || r.history.Len(symbol) <= period {
		return decimal.Zero
	}
	highs, lows, closes := base.HighLowClose(r, symbol, period*3)
	atr := indicators.ATR(highs, lows, closes, period)
	if len(atr) == 0 {
		return decimal.Zero
	}
	latest := atr[len(atr)-1]
	if math.IsNaN(latest) || math.IsInf(latest, 0) || latest <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(latest)
}

// SetCapital replaces the starting balance before the first step
func (r *runContext) SetCapital(amount decimal.Decimal) error {
	return r.exch.SetCapital(amount)
}

// AddIndicator records an indicator value against the current step
func (r *runContext) AddIndicator(name string, value float64) {
	log.Debugf(common.Strategy, "%v indicator %v: %v", r.exch.Now().Format(common.SimpleTimeFormat), name, value)
	if r.entry == nil {
		return
	}
	if r.entry.Indicators == nil {
		r.entry.Indicators = make(map[string]float64)
	}
	r.entry.Indicators[name] = value
}

// AddSignal records a trading signal against the current step
func (r *runContext) AddSignal(signal string) {
	log.Infof(common.Strategy, "%v %v", r.exch.Now().Format(common.SimpleTimeFormat), signal)
	if r.entry == nil {
		return
	}
	r.entry.Signals = append(r.entry.Signals, signal)
}

// AddNote records free text against the current step
func (r *runContext) AddNote(note string) {
	log.Debugf(common.Strategy, "%v %v", r.exch.Now().Format(common.SimpleTimeFormat), note)
	if r.entry == nil {
		return
	}
	r.entry.Notes = append(r.entry.Notes, note)
}

// OnOrder queues an order status change for the strategy
func (r *runContext) OnOrder(o order.Order) {
	if r.entry != nil {
		r.entry.Orders = append(r.entry.Orders, o)
	}
	r.queue = append(r.queue, notification{order: &o})
}

// OnTrade queues a fill for the strategy. Only fills which closed some of a
// position complete a trade
func (r *runContext) OnTrade(t fill.Trade) {
	if !t.Closes() {
		return
	}
	r.queue = append(r.queue, notification{trade: &t})
}

// dispatch hands queued notifications to the strategy. Notifications raised
// from within a callback are delivered in the same pass
func (r *runContext) dispatch() error {
	orderHandler, wantsOrders := r.strategy.(strategies.OrderNotifiee)
	tradeHandler, wantsTrades := r.strategy.(strategies.TradeNotifiee)
	defer func() {
		r.queue = r.queue[:0]
	}()
	for i := 0; i < len(r.queue); i++ {
		if i >= maxNotificationsPerStep {
			return fmt.Errorf("%w: %v", ErrStrategyFault, errNotificationOverflow)
		}
		n := r.queue[i]
		var err error
		switch {
		case n.order != nil && wantsOrders:
			err = guard(func() error {
				orderHandler.OnOrder(r, *n.order)
				return nil
			})
		case n.trade != nil && wantsTrades:
			err = guard(func() error {
				tradeHandler.OnTrade(r, *n.trade)
				return nil
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// beginStep prepares the log entry for a step and tracks observed symbols
func (r *runContext) beginStep(s *data.Step) {
	r.step = s
	for sym, b := range s.Bars {
		r.observed[sym] = struct{}{}
		if _, ok := r.firstClose[sym]; !ok && !b.Stale {
			r.firstClose[sym] = b.Close
		}
	}
	if r.disableLog {
		return
	}
	bars := make(map[string]data.Bar, len(s.Bars))
	for sym, b := range s.Bars {
		bars[sym] = b
	}
	r.entry = &LogEntry{
		Index: s.Index,
		Time:  s.Time,
		Bars:  bars,
	}
}

// commitStep closes the step's log entry
func (r *runContext) commitStep() *LogEntry {
	e := r.entry
	r.entry = nil
	if e == nil {
		return nil
	}
	e.Positions = r.exch.Positions()
	e.Cash = r.exch.Cash()
	e.Equity = r.exch.Equity()
	return e
}

// guard converts a strategy error or panic into a strategy fault
func guard(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic: %v", ErrStrategyFault, rec)
		}
	}()
	if err = fn(); err != nil {
		return fmt.Errorf("%w: %w", ErrStrategyFault, err)
	}
	return nil
}
