// Package enginetest holds shared values and helpers for tests which drive a
// strategy through a full backtest
package enginetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/config"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/engine"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/slippage"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/size"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies"
)

// Symbol is the default symbol used in tests
const Symbol = "BTC"

// Start is the time of the first generated bar
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Config returns a frictionless config: no slippage, no commission and a
// fixed stake of one
func Config() *config.Config {
	return &config.Config{
		Nickname:         "test",
		StrategySettings: config.StrategySettings{Name: "test"},
		DataSettings:     config.DataSettings{Interval: data.OneHour},
		BrokerSettings: config.BrokerSettings{
			InitialCapital: decimal.NewFromInt(10000),
			MarketPrice:    common.MarketPriceClose,
			Slippage:       config.SlippageSettings{Model: slippage.NoneName},
			Sizer: config.SizerSettings{
				Name: size.FixedName,
				Params: size.Params{
					Stake:         decimal.NewFromInt(1),
					ATRPeriod:     14,
					ATRMultiplier: decimal.NewFromInt(2),
					RiskPercent:   decimal.NewFromInt(1),
				},
			},
		},
		StatisticSettings: config.StatisticSettings{PeriodsPerYear: 8760},
	}
}

// Bars returns hourly bars from Start with the given closes. Opens match the
// close and the high and low sit one either side
func Bars(symbol string, closes ...float64) []data.Bar {
	resp := make([]data.Bar, len(closes))
	one := decimal.NewFromInt(1)
	for i, c := range closes {
		p := decimal.NewFromFloat(c)
		resp[i] = data.Bar{
			Symbol: symbol,
			Time:   Start.Add(time.Duration(i) * time.Hour),
			Open:   p,
			High:   p.Add(one),
			Low:    p.Sub(one),
			Close:  p,
			Volume: decimal.NewFromInt(1000),
			Offset: int64(i + 1),
		}
	}
	return resp
}

// Run backtests h over bars with cfg, defaulting to Config, and returns the
// result of the run
func Run(t *testing.T, h strategies.Handler, cfg *config.Config, bars map[string][]data.Bar) *engine.Result {
	t.Helper()
	if cfg == nil {
		cfg = Config()
	}
	feed, err := data.NewFeed(bars)
	require.NoError(t, err)
	bt, err := engine.NewBackTest(cfg, feed, h)
	require.NoError(t, err)
	res, err := bt.Run(context.Background())
	require.NoError(t, err)
	return res
}
