package script

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
	"github.com/thrasher-corp/barsim/log"
)

// Name returns the name of the strategy
func (s *Strategy) Name() string {
	return Name
}

// Description provides a nice overview of the strategy
func (s *Strategy) Description() string {
	return description
}

// SetSource replaces the script source
func (s *Strategy) SetSource(src []byte) {
	s.source = src
	s.compiled = nil
}

// Init reads and compiles the script once for the run
func (s *Strategy) Init(base.API) error {
	if s.timeout == 0 {
		s.SetDefaults()
	}
	if len(s.source) == 0 && s.path != "" {
		src, err := os.ReadFile(s.path)
		if err != nil {
			return err
		}
		s.source = src
	}
	if len(s.source) == 0 {
		return errNoSource
	}
	script := tengo.NewScript(s.source)
	script.SetImports(stdlib.GetModuleMap("math", "text", "times", "enum"))
	for _, name := range scriptGlobals {
		if err := script.Add(name, nil); err != nil {
			return err
		}
	}
	compiled, err := script.Compile()
	if err != nil {
		return fmt.Errorf("%w: %v", errScriptFailed, err)
	}
	s.compiled = compiled
	s.state = make(map[string]any)
	log.Debugf(log.ScriptMgr, "compiled script of %v bytes", len(s.source))
	return nil
}

// OnBar exposes the step to the script, runs it and applies its intents
func (s *Strategy) OnBar(api base.API, st data.Step) error {
	if api == nil {
		return common.ErrNilArguments
	}
	if s.compiled == nil {
		return errNotCompiled
	}
	if err := s.setGlobals(api, &st); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.compiled.RunContext(ctx); err != nil {
		return fmt.Errorf("%w at step %v: %v", errScriptFailed, st.Index, err)
	}

	if state := s.compiled.Get(stateVar).Map(); state != nil {
		s.state = state
	}
	indicators := s.compiled.Get(indicatorsVar).Map()
	names := make([]string, 0, len(indicators))
	for k := range indicators {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if f, ok := toFloat(indicators[k]); ok {
			api.AddIndicator(k, f)
		}
	}
	for _, v := range s.compiled.Get(signalsVar).Array() {
		api.AddSignal(fmt.Sprint(v))
	}
	for _, v := range s.compiled.Get(notesVar).Array() {
		api.AddNote(fmt.Sprint(v))
	}
	for i, v := range s.compiled.Get(ordersVar).Array() {
		intent, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w %v: expected a map, received %T", errInvalidIntent, i, v)
		}
		if err := s.apply(api, &st, intent); base.IgnoreOrderOutcome(err) != nil {
			return err
		}
	}
	return nil
}

func (s *Strategy) setGlobals(api base.API, st *data.Step) error {
	bars := make(map[string]any, len(st.Bars))
	history := make(map[string]any, len(st.Bars))
	positions := make(map[string]any, len(st.Bars))
	for sym, b := range st.Bars {
		bars[sym] = map[string]any{
			"open":   b.Open.InexactFloat64(),
			"high":   b.High.InexactFloat64(),
			"low":    b.Low.InexactFloat64(),
			"close":  b.Close.InexactFloat64(),
			"volume": b.Volume.InexactFloat64(),
			"time":   b.Time,
			"stale":  b.Stale,
		}
		closes := base.Closes(api, sym, s.lookback)
		h := make([]any, len(closes))
		for i := range closes {
			h[i] = closes[i]
		}
		history[sym] = h
		positions[sym] = api.Position(sym).Quantity.InexactFloat64()
	}
	globals := map[string]any{
		barsVar:       bars,
		historyVar:    history,
		positionsVar:  positions,
		cashVar:       api.Cash().InexactFloat64(),
		equityVar:     api.Equity().InexactFloat64(),
		indexVar:      st.Index,
		timeVar:       st.Time,
		stateVar:      s.state,
		ordersVar:     []any{},
		notesVar:      []any{},
		signalsVar:    []any{},
		indicatorsVar: map[string]any{},
	}
	for k, v := range globals {
		if err := s.compiled.Set(k, v); err != nil {
			return fmt.Errorf("%w setting %v: %v", errScriptFailed, k, err)
		}
	}
	return nil
}

// apply turns one intent into a call on the strategy API
func (s *Strategy) apply(api base.API, st *data.Step, intent map[string]any) error {
	symbol, _ := intent["symbol"].(string)
	if symbol == "" {
		b, ok := st.Single()
		if !ok {
			return fmt.Errorf("%w: symbol required with many symbols", errInvalidIntent)
		}
		symbol = b.Symbol
	}
	action, _ := intent["action"].(string)
	switch strings.ToLower(action) {
	case "close":
		_, err := api.Close(symbol)
		return err
	case "cancel":
		id, _ := intent["id"].(string)
		if id == "" {
			return fmt.Errorf("%w: cancel requires an id", errInvalidIntent)
		}
		return api.Cancel(id)
	case "", "order":
	default:
		return fmt.Errorf("%w: unknown action %q", errInvalidIntent, action)
	}

	sideStr, _ := intent["side"].(string)
	side := order.Side(strings.ToUpper(sideStr))
	if side != order.Buy && side != order.Sell {
		return fmt.Errorf("%w: side %q", errInvalidIntent, sideStr)
	}
	quantity := decimalField(intent, "quantity")
	stopLoss := decimalField(intent, "stop_loss")
	takeProfit := decimalField(intent, "take_profit")
	if stopLoss.IsPositive() || takeProfit.IsPositive() {
		var err error
		if side == order.Buy {
			_, err = api.BuyBracket(symbol, quantity, stopLoss, takeProfit)
		} else {
			_, err = api.SellBracket(symbol, quantity, stopLoss, takeProfit)
		}
		return err
	}

	typeStr, _ := intent["type"].(string)
	orderType := order.Type(strings.ToUpper(typeStr))
	switch orderType {
	case order.UnknownType, order.Market:
		if side == order.Buy {
			_, err := api.Buy(symbol, quantity)
			return err
		}
		_, err := api.Sell(symbol, quantity)
		return err
	case order.StopTrail:
		_, err := api.TrailingStop(symbol, quantity, decimalField(intent, "trail_amount"), decimalField(intent, "trail_percent"))
		return err
	}
	if !quantity.IsPositive() {
		quantity = api.Size(symbol, side)
	}
	_, err := api.Order(symbol, side, quantity, orderType, decimalField(intent, "price"), decimalField(intent, "trigger"))
	return err
}

func decimalField(m map[string]any, key string) decimal.Decimal {
	f, ok := toFloat(m[key])
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	}
	return 0, false
}

// SetCustomSettings accepts the script inline or as a file path
func (s *Strategy) SetCustomSettings(customSettings map[string]any) error {
	for k, v := range customSettings {
		switch k {
		case sourceKey:
			src, ok := v.(string)
			if !ok || src == "" {
				return fmt.Errorf("%w provided script value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.SetSource([]byte(src))
		case sourceFileKey:
			path, ok := v.(string)
			if !ok || path == "" {
				return fmt.Errorf("%w provided script-file value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.path = path
		case lookbackKey:
			f, err := base.ParseFloat(k, v)
			if err != nil {
				return err
			}
			s.lookback = int(f)
		case timeoutKey:
			str, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w provided timeout value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			d, err := time.ParseDuration(str)
			if err != nil || d <= 0 {
				return fmt.Errorf("%w provided timeout value could not be parsed: %v", base.ErrInvalidCustomSettings, v)
			}
			s.timeout = d
		default:
			return fmt.Errorf("%w unrecognised custom setting key %v with value %v. Cannot apply", base.ErrInvalidCustomSettings, k, v)
		}
	}
	return nil
}

// SetDefaults sets the custom settings to their default values
func (s *Strategy) SetDefaults() {
	s.lookback = data.DefaultLookback
	s.timeout = defaultTimeout
}
