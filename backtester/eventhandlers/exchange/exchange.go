package exchange

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/commission"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/slippage"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/holdings"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
	"github.com/thrasher-corp/barsim/log"
)

// New returns a funded exchange ready to accept orders
func New(s *Settings) (*Exchange, error) {
	if s == nil {
		return nil, errNilSettings
	}
	ledger, err := holdings.NewLedger(s.InitialCapital)
	if err != nil {
		return nil, err
	}
	marketPrice, err := common.ValidateMarketPrice(s.MarketPrice)
	if err != nil {
		return nil, err
	}
	e := &Exchange{
		ledger:      ledger,
		slippage:    s.Slippage,
		commission:  s.Commission,
		marketPrice: marketPrice,
		symbols:     make(map[string]struct{}, len(s.Symbols)),
		orders:      make(map[string]*order.Order),
		children:    make(map[string][]string),
		groups:      make(map[string][]string),
		lastPrice:   make(map[string]decimal.Decimal),
	}
	if e.slippage == nil {
		e.slippage = slippage.None{}
	}
	if e.commission == nil {
		e.commission, err = commission.NewManager(commission.DefaultScheme())
		if err != nil {
			return nil, err
		}
	}
	for i := range s.Symbols {
		e.symbols[s.Symbols[i]] = struct{}{}
	}
	return e, nil
}

// SetNotifier sets the receiver of order and trade notifications
func (e *Exchange) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetCapital replaces the starting balance. It is rejected once the first
// step has been processed
func (e *Exchange) SetCapital(amount decimal.Decimal) error {
	if e.started {
		return ErrTradingStarted
	}
	return e.ledger.SetCapital(amount)
}

// Submit validates an order and either accepts it into the active set or
// rejects it. The stored order is returned by value along with an error
// wrapping ErrOrderRejected on rejection
func (e *Exchange) Submit(o order.Order) (order.Order, error) {
	stored := e.register(o)
	return e.submit(stored)
}

// SubmitOCO submits orders linked so that a fill of any one cancels the rest
func (e *Exchange) SubmitOCO(orders ...order.Order) ([]order.Order, error) {
	group := e.nextGroup()
	resp := make([]order.Order, len(orders))
	var errs error
	for i := range orders {
		orders[i].OCOID = group
		stored := e.register(orders[i])
		e.groups[group] = append(e.groups[group], stored.ID)
		var err error
		resp[i], err = e.submit(stored)
		errs = common.AppendError(errs, err)
	}
	return resp, errs
}

// SubmitBracket submits an entry order and its protective children. The
// children are held PENDING until the entry fills, are canceled if it does
// not, and form an OCO group once active
func (e *Exchange) SubmitBracket(b *Bracket) (BracketOrders, error) {
	var resp BracketOrders
	if b == nil {
		return resp, common.ErrNilArguments
	}
	trailing := b.TrailAmount.IsPositive() || b.TrailPercent.IsPositive()
	if !b.StopLoss.IsPositive() && !b.TakeProfit.IsPositive() && !trailing {
		return resp, ErrInvalidBracket
	}
	entry := e.register(b.Entry)
	exit := entry.Side.Opposite()
	group := e.nextGroup()

	var kids []*order.Order
	if b.StopLoss.IsPositive() || trailing {
		stop := &order.Order{
			Symbol:       entry.Symbol,
			Side:         exit,
			Type:         order.Stop,
			Quantity:     entry.Quantity,
			TriggerPrice: b.StopLoss,
		}
		if trailing {
			stop.Type = order.StopTrail
			stop.TrailAmount = b.TrailAmount
			stop.TrailPercent = b.TrailPercent
		}
		kids = append(kids, stop)
	}
	if b.TakeProfit.IsPositive() {
		kids = append(kids, &order.Order{
			Symbol:   entry.Symbol,
			Side:     exit,
			Type:     order.Limit,
			Quantity: entry.Quantity,
			Price:    b.TakeProfit,
		})
	}
	for i := range kids {
		kids[i].ParentID = entry.ID
		if len(kids) > 1 {
			kids[i].OCOID = group
		}
		child := e.register(*kids[i])
		if err := child.SetStatus(order.Pending, "", e.now); err != nil {
			return resp, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		e.children[entry.ID] = append(e.children[entry.ID], child.ID)
		if child.OCOID != "" {
			e.groups[group] = append(e.groups[group], child.ID)
		}
		if child.Type == order.Limit {
			resp.TakeProfit = *child
		} else {
			resp.StopLoss = *child
		}
	}

	var err error
	resp.Entry, err = e.submit(entry)
	if err != nil {
		if cErr := e.cancelChildren(entry.ID); cErr != nil {
			return resp, cErr
		}
	}
	if resp.StopLoss.ID != "" {
		resp.StopLoss = *e.orders[resp.StopLoss.ID]
	}
	if resp.TakeProfit.ID != "" {
		resp.TakeProfit = *e.orders[resp.TakeProfit.ID]
	}
	return resp, err
}

// Cancel cancels a non-terminal order. Canceling a terminal order is a no-op.
// Pending children of a canceled parent are canceled with it
func (e *Exchange) Cancel(id string) error {
	o, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("%w: %v", ErrOrderNotFound, id)
	}
	if o.Status.IsTerminal() {
		return nil
	}
	if err := o.SetStatus(order.Canceled, order.ReasonUserCanceled, e.now); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	e.notifyOrder(o)
	err := e.cancelChildren(id)
	e.prune()
	return err
}

// Close submits a market order which flattens the position in symbol
func (e *Exchange) Close(symbol string) (order.Order, error) {
	p := e.ledger.Position(symbol)
	if p.IsFlat() {
		return order.Order{}, fmt.Errorf("%w: %v", ErrNoPosition, symbol)
	}
	side := order.Sell
	if p.IsShort() {
		side = order.Buy
	}
	return e.Submit(order.Order{
		Symbol:   symbol,
		Side:     side,
		Type:     order.Market,
		Quantity: p.Quantity.Abs(),
	})
}

// Process matches every active order against the step's bars and returns the
// trades it produced. Only fresh bars match orders. An error is only
// returned for an invariant violation
func (e *Exchange) Process(s *data.Step) ([]fill.Trade, error) {
	if s == nil {
		return nil, common.ErrNilEvent
	}
	e.started = true
	e.now = s.Time
	for sym, b := range s.Bars {
		e.lastPrice[sym] = b.Close
		e.ledger.Mark(sym, b.Close)
	}

	ids := make([]string, len(e.active))
	copy(ids, e.active)
	sort.Slice(ids, func(i, j int) bool {
		return idLess(ids[i], ids[j])
	})

	var trades []fill.Trade
	for _, id := range ids {
		o := e.orders[id]
		if !o.Status.IsActive() {
			continue
		}
		b, ok := s.Bars[o.Symbol]
		if !ok || b.Stale {
			continue
		}
		ratchet(o, &b)
		price, matched := e.match(o, &b)
		if !matched {
			continue
		}
		t, err := e.execute(o, price, &b)
		if err != nil {
			e.prune()
			return trades, err
		}
		if t != nil {
			trades = append(trades, *t)
		}
	}
	e.prune()
	return trades, nil
}

// ratchet moves a trailing stop's trigger in the favourable direction only
func ratchet(o *order.Order, b *data.Bar) {
	if o.Type != order.StopTrail {
		return
	}
	if o.Side == order.Sell {
		if b.High.GreaterThan(o.HighestPrice) {
			o.HighestPrice = b.High
		}
		next := o.HighestPrice.Sub(trailDistance(o, o.HighestPrice))
		if next.GreaterThan(o.TriggerPrice) {
			o.TriggerPrice = next
		}
		return
	}
	if o.LowestPrice.IsZero() || b.Low.LessThan(o.LowestPrice) {
		o.LowestPrice = b.Low
	}
	next := o.LowestPrice.Add(trailDistance(o, o.LowestPrice))
	if o.TriggerPrice.IsZero() || next.LessThan(o.TriggerPrice) {
		o.TriggerPrice = next
	}
}

// trailDistance prefers an absolute amount, otherwise a fraction of the
// extreme price
func trailDistance(o *order.Order, extreme decimal.Decimal) decimal.Decimal {
	if o.TrailAmount.IsPositive() {
		return o.TrailAmount
	}
	return extreme.Mul(o.TrailPercent)
}

// seedTrail initialises a trailing stop from a reference price so it
// protects from the first bar
func seedTrail(o *order.Order, ref decimal.Decimal) {
	if o.Type != order.StopTrail || !ref.IsPositive() {
		return
	}
	o.HighestPrice = ref
	o.LowestPrice = ref
	if o.Side == order.Sell {
		o.TriggerPrice = ref.Sub(trailDistance(o, ref))
	} else {
		o.TriggerPrice = ref.Add(trailDistance(o, ref))
	}
}

func (e *Exchange) referencePrice(b *data.Bar) decimal.Decimal {
	if e.marketPrice == common.MarketPriceOpen {
		return b.Open
	}
	return b.Close
}

// match returns the nominal fill price when the order's condition is met by
// the bar. Stops trigger and fill within the same bar. A triggered stop
// limit which cannot fill rests as a limit order
func (e *Exchange) match(o *order.Order, b *data.Bar) (decimal.Decimal, bool) {
	switch o.Type {
	case order.Market:
		return e.referencePrice(b), true
	case order.Limit:
		return limitFill(o, b)
	case order.Stop, order.StopTrail:
		if !o.Triggered {
			if !stopTriggered(o, b) {
				return decimal.Zero, false
			}
			o.Triggered = true
		}
		return e.referencePrice(b), true
	case order.StopLimit:
		if !o.Triggered {
			if !stopTriggered(o, b) {
				return decimal.Zero, false
			}
			o.Triggered = true
		}
		return limitFill(o, b)
	}
	return decimal.Zero, false
}

func limitFill(o *order.Order, b *data.Bar) (decimal.Decimal, bool) {
	if o.Side == order.Buy {
		if b.Low.LessThanOrEqual(o.Price) {
			return decimal.Min(o.Price, b.Open), true
		}
		return decimal.Zero, false
	}
	if b.High.GreaterThanOrEqual(o.Price) {
		return decimal.Max(o.Price, b.Open), true
	}
	return decimal.Zero, false
}

func stopTriggered(o *order.Order, b *data.Bar) bool {
	if !o.TriggerPrice.IsPositive() {
		return false
	}
	if o.Side == order.Buy {
		return b.High.GreaterThanOrEqual(o.TriggerPrice)
	}
	return b.Low.LessThanOrEqual(o.TriggerPrice)
}

// execute books a matched order. A cash shortfall at fill time rejects the
// order rather than erroring
func (e *Exchange) execute(o *order.Order, nominal decimal.Decimal, b *data.Bar) (*fill.Trade, error) {
	price := e.slippage.Apply(nominal, o.Quantity, o.IsBuy(), b.Volume)
	fee := e.commission.Calculate(o.Symbol, o.Quantity, price, o.IsMaker())
	if !e.coverable(o, price, fee) {
		if err := o.SetStatus(order.Rejected, order.ReasonFundsAtFill, e.now); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		log.Warnf(common.Broker, "%v %v %v %v rejected at %v: %v", o.ID, o.Side, o.Quantity, o.Symbol, price, o.Reason)
		e.notifyOrder(o)
		return nil, e.cancelChildren(o.ID)
	}
	pnl, closed, err := e.ledger.Apply(o.Symbol, o.Side, o.Quantity, price, fee, e.now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	o.FilledQuantity = o.Quantity
	o.FilledAvgPrice = price
	o.Fee = fee
	if err = o.SetStatus(order.Filled, "", e.now); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	e.tradeSeq++
	t := fill.Trade{
		ID:             fmt.Sprintf("T%06d", e.tradeSeq),
		OrderID:        o.ID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Price:          price,
		Quantity:       o.Quantity,
		Fee:            fee,
		Slippage:       price.Sub(nominal).Abs(),
		Time:           e.now,
		PnL:            pnl,
		ClosedQuantity: closed,
	}
	e.trades = append(e.trades, t)
	if err = e.ledger.Reconcile(); err != nil {
		return &t, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	log.Debugf(common.Broker, "%v filled %v %v %v at %v fee %v pnl %v", o.ID, o.Side, o.Quantity, o.Symbol, price, fee, pnl)

	e.notifyOrder(o)
	if t.Closes() {
		e.notifyTrade(&t)
	}
	if err = e.activateChildren(o.ID, price); err != nil {
		return &t, err
	}
	return &t, e.cancelSiblings(o)
}

// coverable checks a buy can be paid for and an opening short is covered by
// cash. Sells against a long position are always allowed
func (e *Exchange) coverable(o *order.Order, price, fee decimal.Decimal) bool {
	if o.IsBuy() {
		return e.ledger.CanAfford(o.Quantity, price, fee)
	}
	if e.ledger.Position(o.Symbol).IsLong() {
		return true
	}
	return e.ledger.CanAfford(o.Quantity, price, fee)
}

// validate returns a rejection reason or an empty string when the order
// may be accepted
func (e *Exchange) validate(o *order.Order) string {
	if len(e.symbols) > 0 {
		if _, ok := e.symbols[o.Symbol]; !ok {
			return order.ReasonUnknownSymbol
		}
	}
	if err := o.Validate(); err != nil {
		switch {
		case errors.Is(err, order.ErrInvalidQuantity):
			return order.ReasonInvalidQuantity
		case errors.Is(err, order.ErrPriceRequired),
			errors.Is(err, order.ErrTriggerRequired):
			return order.ReasonInvalidPrice
		case errors.Is(err, order.ErrTrailRequired),
			errors.Is(err, order.ErrInvalidTrail):
			return order.ReasonInvalidTrail
		default:
			return order.ReasonInvalidParameters
		}
	}
	ref := o.Price
	if !ref.IsPositive() {
		ref = o.TriggerPrice
	}
	if !ref.IsPositive() {
		ref = e.lastPrice[o.Symbol]
	}
	if !ref.IsPositive() {
		return ""
	}
	fee := e.commission.Calculate(o.Symbol, o.Quantity, ref, o.IsMaker())
	if e.ledger.CanAfford(o.Quantity, ref, fee) {
		return ""
	}
	if o.IsBuy() {
		return order.ReasonInsufficientFunds
	}
	if e.ledger.Position(o.Symbol).IsLong() {
		return ""
	}
	return order.ReasonInsufficientMargin
}

// idLess orders sequence ids numerically. Ids share a prefix and are zero
// padded, so a longer id always carries the larger sequence
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// register stores a new order in the arena and assigns its id
func (e *Exchange) register(o order.Order) *order.Order {
	e.orderSeq++
	o.ID = fmt.Sprintf("O%06d", e.orderSeq)
	o.Status = order.Created
	o.Reason = ""
	o.Triggered = false
	o.FilledQuantity = decimal.Zero
	o.FilledAvgPrice = decimal.Zero
	o.Fee = decimal.Zero
	o.CreatedAt = e.now
	o.UpdatedAt = e.now
	stored := &o
	e.orders[o.ID] = stored
	e.sequence = append(e.sequence, o.ID)
	return stored
}

// submit moves a registered order through SUBMITTED to ACCEPTED or REJECTED
func (e *Exchange) submit(o *order.Order) (order.Order, error) {
	if err := o.SetStatus(order.Submitted, "", e.now); err != nil {
		return *o, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	if reason := e.validate(o); reason != "" {
		if err := o.SetStatus(order.Rejected, reason, e.now); err != nil {
			return *o, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		log.Warnf(common.Broker, "%v %v %v %v rejected: %v", o.ID, o.Side, o.Quantity, o.Symbol, reason)
		e.notifyOrder(o)
		return *o, fmt.Errorf("%w: %v %v", ErrOrderRejected, o.ID, reason)
	}
	if err := o.SetStatus(order.Accepted, "", e.now); err != nil {
		return *o, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	seedTrail(o, e.lastPrice[o.Symbol])
	e.active = append(e.active, o.ID)
	e.notifyOrder(o)
	return *o, nil
}

// activateChildren submits the pending children of a filled parent
func (e *Exchange) activateChildren(parentID string, fillPrice decimal.Decimal) error {
	for _, id := range e.children[parentID] {
		c := e.orders[id]
		if c.Status != order.Pending {
			continue
		}
		if _, err := e.submit(c); err != nil && !errors.Is(err, ErrOrderRejected) {
			return err
		}
		if c.Status.IsActive() && c.Type == order.StopTrail {
			seedTrail(c, fillPrice)
		}
	}
	return nil
}

// cancelChildren cancels the pending children of an order which will never fill
func (e *Exchange) cancelChildren(parentID string) error {
	for _, id := range e.children[parentID] {
		c := e.orders[id]
		if c.Status != order.Pending {
			continue
		}
		if err := c.SetStatus(order.Canceled, order.ReasonParentInactive, e.now); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		e.notifyOrder(c)
	}
	return nil
}

// cancelSiblings cancels the other live members of a filled order's OCO group
func (e *Exchange) cancelSiblings(filled *order.Order) error {
	if filled.OCOID == "" {
		return nil
	}
	for _, id := range e.groups[filled.OCOID] {
		if id == filled.ID {
			continue
		}
		s := e.orders[id]
		if s.Status.IsTerminal() {
			continue
		}
		if err := s.SetStatus(order.Canceled, order.ReasonOCOPrefix+filled.ID, e.now); err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		e.notifyOrder(s)
	}
	return nil
}

// prune drops orders which are no longer active from the active set
func (e *Exchange) prune() {
	kept := e.active[:0]
	for _, id := range e.active {
		if e.orders[id].Status.IsActive() {
			kept = append(kept, id)
		}
	}
	e.active = kept
}

func (e *Exchange) nextGroup() string {
	e.groupSeq++
	return fmt.Sprintf("G%06d", e.groupSeq)
}

func (e *Exchange) notifyOrder(o *order.Order) {
	if e.notifier != nil {
		e.notifier.OnOrder(*o)
	}
}

func (e *Exchange) notifyTrade(t *fill.Trade) {
	if e.notifier != nil {
		e.notifier.OnTrade(*t)
	}
}

// Order returns a copy of an order by id
func (e *Exchange) Order(id string) (order.Order, error) {
	o, ok := e.orders[id]
	if !ok {
		return order.Order{}, fmt.Errorf("%w: %v", ErrOrderNotFound, id)
	}
	return *o, nil
}

// Orders returns copies of every order in submission order
func (e *Exchange) Orders() []order.Order {
	resp := make([]order.Order, len(e.sequence))
	for i, id := range e.sequence {
		resp[i] = *e.orders[id]
	}
	return resp
}

// ActiveOrders returns copies of the orders which can currently match
func (e *Exchange) ActiveOrders() []order.Order {
	resp := make([]order.Order, 0, len(e.active))
	for _, id := range e.active {
		resp = append(resp, *e.orders[id])
	}
	return resp
}

// Trades returns a copy of every fill
func (e *Exchange) Trades() []fill.Trade {
	resp := make([]fill.Trade, len(e.trades))
	copy(resp, e.trades)
	return resp
}

// Cash returns the cash balance
func (e *Exchange) Cash() decimal.Decimal {
	return e.ledger.Cash()
}

// Equity returns cash plus marked positions
func (e *Exchange) Equity() decimal.Decimal {
	return e.ledger.Equity()
}

// InitialCapital returns the starting balance
func (e *Exchange) InitialCapital() decimal.Decimal {
	return e.ledger.InitialCapital()
}

// TotalFees returns all commission paid
func (e *Exchange) TotalFees() decimal.Decimal {
	return e.ledger.TotalFees()
}

// FeeScheme returns the commission scheme charged on a symbol
func (e *Exchange) FeeScheme(symbol string) commission.Scheme {
	return e.commission.Scheme(symbol)
}

// Position returns a copy of the position in symbol
func (e *Exchange) Position(symbol string) holdings.Position {
	return e.ledger.Position(symbol)
}

// Positions returns copies of all open positions
func (e *Exchange) Positions() []holdings.Position {
	return e.ledger.Positions()
}

// LastPrice returns the latest close seen for a symbol
func (e *Exchange) LastPrice(symbol string) (decimal.Decimal, bool) {
	p, ok := e.lastPrice[symbol]
	return p, ok
}

// Now returns the time of the step being processed
func (e *Exchange) Now() time.Time {
	return e.now
}

// SetTime sets the clock used to stamp orders submitted before processing
func (e *Exchange) SetTime(t time.Time) {
	e.now = t
}
