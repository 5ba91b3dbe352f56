package strategies

import (
	"fmt"
	"strings"
	"sync"

	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/bracketbreakout"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/rsi"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/script"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/smacross"
)

var (
	m              sync.Mutex
	userStrategies = make(map[string]func() Handler)
	builtIns       = []func() Handler{
		func() Handler { return new(rsi.Strategy) },
		func() Handler { return new(smacross.Strategy) },
		func() Handler { return new(bracketbreakout.Strategy) },
		func() Handler { return new(script.Strategy) },
	}
)

// LoadStrategyByName returns a fresh strategy with default settings applied
func LoadStrategyByName(name string) (Handler, error) {
	strats := GetStrategies()
	for i := range strats {
		if !strings.EqualFold(name, strats[i].Name()) {
			continue
		}
		strats[i].SetDefaults()
		return strats[i], nil
	}
	return nil, fmt.Errorf("strategy '%v' %w", name, base.ErrStrategyNotFound)
}

// GetStrategies returns a new instance of every registered strategy
func GetStrategies() []Handler {
	m.Lock()
	defer m.Unlock()
	strats := make([]Handler, 0, len(builtIns)+len(userStrategies))
	for i := range builtIns {
		strats = append(strats, builtIns[i]())
	}
	for _, fn := range userStrategies {
		strats = append(strats, fn())
	}
	return strats
}

// AddStrategy registers a strategy constructor so it can be loaded by name
func AddStrategy(fn func() Handler) error {
	if fn == nil {
		return fmt.Errorf("%w strategy constructor", errNilConstructor)
	}
	name := strings.ToLower(fn().Name())
	for _, s := range GetStrategies() {
		if strings.EqualFold(s.Name(), name) {
			return fmt.Errorf("'%v' %w", name, base.ErrStrategyAlreadyDefined)
		}
	}
	m.Lock()
	defer m.Unlock()
	userStrategies[name] = fn
	return nil
}
