package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/config"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/commission"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/slippage"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/size"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

const testSymbol = "BTC"

var (
	errTest   = errors.New("test error")
	startTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

// testStrategy delegates to optional hooks and records notifications
type testStrategy struct {
	base.Strategy
	initFn func(base.API) error
	onBar  func(base.API, data.Step) error
	onOrd  func(base.API, order.Order)
	mu     sync.Mutex
	orders []order.Order
	trades []fill.Trade
}

func (s *testStrategy) Name() string        { return "test" }
func (s *testStrategy) Description() string { return "runs the hooks it is given" }

func (s *testStrategy) Init(api base.API) error {
	if s.initFn != nil {
		return s.initFn(api)
	}
	return nil
}

func (s *testStrategy) OnBar(api base.API, st data.Step) error {
	if s.onBar != nil {
		return s.onBar(api, st)
	}
	return nil
}

func (s *testStrategy) OnOrder(api base.API, o order.Order) {
	s.mu.Lock()
	s.orders = append(s.orders, o)
	s.mu.Unlock()
	if s.onOrd != nil {
		s.onOrd(api, o)
	}
}

func (s *testStrategy) OnTrade(_ base.API, t fill.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
}

func testConfig() *config.Config {
	return &config.Config{
		Nickname:         "unit",
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
					Percent:       decimal.NewFromInt(20),
					RiskPercent:   decimal.NewFromInt(2),
					ATRPeriod:     3,
					ATRMultiplier: decimal.NewFromInt(2),
				},
			},
		},
		StatisticSettings: config.StatisticSettings{PeriodsPerYear: 365},
	}
}

func testBars(sym string, closes ...float64) []data.Bar {
	resp := make([]data.Bar, len(closes))
	for i, c := range closes {
		p := decimal.NewFromFloat(c)
		resp[i] = data.Bar{
			Symbol: sym,
			Time:   startTime.Add(time.Duration(i) * time.Hour),
			Open:   p,
			High:   p.Add(decimal.NewFromInt(1)),
			Low:    p.Sub(decimal.NewFromInt(1)),
			Close:  p,
			Volume: decimal.NewFromInt(100),
		}
	}
	return resp
}

func newTestBackTest(t *testing.T, s *testStrategy, closes ...float64) *BackTest {
	t.Helper()
	bt, err := NewBackTest(testConfig(), data.NewSingleFeed(testSymbol, testBars(testSymbol, closes...)), s)
	require.NoError(t, err)
	return bt
}

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func TestNewBackTest(t *testing.T) {
	t.Parallel()
	feed := data.NewSingleFeed(testSymbol, testBars(testSymbol, 1))
	_, err := NewBackTest(nil, feed, &testStrategy{})
	assert.ErrorIs(t, err, common.ErrNilArguments)
	_, err = NewBackTest(testConfig(), nil, &testStrategy{})
	assert.ErrorIs(t, err, errNilFeed)
	_, err = NewBackTest(testConfig(), data.NewSingleFeed(testSymbol, nil), &testStrategy{})
	assert.ErrorIs(t, err, errEmptyFeed)
	empty, err := data.NewMultiFeed(nil)
	require.NoError(t, err)
	_, err = NewBackTest(testConfig(), empty, &testStrategy{})
	assert.ErrorIs(t, err, errEmptyFeed)
	_, err = NewBackTest(testConfig(), feed, nil)
	assert.ErrorIs(t, err, errNilStrategy)

	cfg := testConfig()
	cfg.BrokerSettings.Slippage.Model = "magic"
	_, err = NewBackTest(cfg, feed, &testStrategy{})
	assert.ErrorIs(t, err, slippage.ErrUnknownModel)

	cfg = testConfig()
	cfg.BrokerSettings.Sizer.Name = "guess"
	_, err = NewBackTest(cfg, feed, &testStrategy{})
	assert.ErrorIs(t, err, size.ErrUnknownSizer)

	bt, err := NewBackTest(testConfig(), feed, &testStrategy{})
	require.NoError(t, err)
	assert.False(t, bt.MetaData.ID.IsNil())
	assert.Equal(t, StatusPending, bt.MetaData.Status)
	assert.Equal(t, "test", bt.MetaData.Strategy)
	assert.Equal(t, "unit", bt.MetaData.Nickname)
}

func TestSetupMetaData(t *testing.T) {
	t.Parallel()
	var bt *BackTest
	assert.ErrorIs(t, bt.SetupMetaData(), common.ErrNilPointer)

	bt = &BackTest{}
	require.NoError(t, bt.SetupMetaData())
	id := bt.MetaData.ID
	assert.False(t, id.IsNil())
	require.NoError(t, bt.SetupMetaData())
	assert.Equal(t, id, bt.MetaData.ID, "metadata is only assigned once")
}

func TestRun(t *testing.T) {
	t.Parallel()
	s := &testStrategy{
		onBar: func(api base.API, st data.Step) error {
			switch st.Index {
			case 0:
				api.AddSignal("enter")
				_, err := api.Buy(testSymbol, d(10))
				return err
			case 2:
				api.AddIndicator("close", st.Bars[testSymbol].Close.InexactFloat64())
				_, err := api.Close(testSymbol)
				return err
			}
			return nil
		},
	}
	var progress []Progress
	bt, err := NewBackTest(testConfig(), data.NewSingleFeed(testSymbol, testBars(testSymbol, 100, 110, 120, 115)), s,
		WithProgress(func(p Progress) { progress = append(progress, p) }))
	require.NoError(t, err)

	res, err := bt.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.Error)
	assert.Equal(t, 4, res.StepsProcessed)
	assert.Equal(t, 4, res.TotalSteps)
	assert.True(t, res.InitialCapital.Equal(d(10000)))
	assert.True(t, res.FinalEquity.Equal(d(10050)), res.FinalEquity.String())

	require.Len(t, res.EquityCurve, 4)
	for i, want := range []float64{10000, 10000, 10100, 10050} {
		assert.True(t, res.EquityCurve[i].Value.Equal(d(want)), "point %v: %v", i, res.EquityCurve[i].Value)
	}

	require.Len(t, res.Trades, 2)
	assert.True(t, res.Trades[0].Price.Equal(d(110)))
	assert.True(t, res.Trades[1].PnL.Equal(d(50)))
	require.Len(t, res.Orders, 2)
	for i := range res.Orders {
		assert.Equal(t, order.Filled, res.Orders[i].Status)
	}
	assert.Equal(t, []string{testSymbol}, res.Symbols)
	assert.Equal(t, []string{testSymbol}, res.TradedSymbols)

	require.Len(t, s.trades, 1, "only fills which close a position reach the strategy")
	assert.Len(t, s.orders, 4)

	require.Len(t, res.Log, 4)
	assert.Equal(t, []string{"enter"}, res.Log[0].Signals)
	assert.Len(t, res.Log[0].Orders, 1)
	assert.Len(t, res.Log[1].Trades, 1)
	assert.InDelta(t, 120, res.Log[2].Indicators["close"], 0)
	assert.True(t, res.Log[3].Cash.Equal(d(10050)))

	require.NotNil(t, res.Metrics)
	assert.InDelta(t, 0.005, res.Metrics.TotalReturn, 1e-12)
	assert.Equal(t, 1, res.Metrics.WinningTrades)

	require.Len(t, progress, 4)
	for i := range progress {
		assert.Equal(t, i+1, progress[i].Index)
		assert.Equal(t, 4, progress[i].Total)
	}
	assert.True(t, progress[3].Equity.Equal(d(10050)))

	assert.True(t, bt.HasRan())
	assert.False(t, bt.IsRunning())
	stored, err := bt.Result()
	require.NoError(t, err)
	assert.Same(t, res, stored)

	_, err = bt.Run(context.Background())
	assert.ErrorIs(t, err, errAlreadyRan)
}

func TestRunDeterministic(t *testing.T) {
	t.Parallel()
	closes := []float64{100, 104, 97, 111, 108, 95, 102, 120, 117, 99}
	run := func() *Result {
		s := &testStrategy{
			onBar: func(api base.API, st data.Step) error {
				switch st.Index % 3 {
				case 0:
					_, err := api.Buy(testSymbol, d(2))
					return base.IgnoreOrderOutcome(err)
				case 2:
					_, err := api.Close(testSymbol)
					return base.IgnoreOrderOutcome(err)
				}
				return nil
			},
		}
		cfg := testConfig()
		cfg.BrokerSettings.Commission = commission.Scheme{Maker: d(0.001), Taker: d(0.002)}
		bt, err := NewBackTest(cfg, data.NewSingleFeed(testSymbol, testBars(testSymbol, closes...)), s)
		require.NoError(t, err)
		res, err := bt.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, res.Status)
		return res
	}
	first, second := run(), run()
	require.NotEmpty(t, first.Trades)

	require.Len(t, second.EquityCurve, len(first.EquityCurve))
	for i := range first.EquityCurve {
		assert.Equal(t, first.EquityCurve[i].Time, second.EquityCurve[i].Time)
		assert.Truef(t, first.EquityCurve[i].Value.Equal(second.EquityCurve[i].Value), "point %v: %v != %v", i, first.EquityCurve[i].Value, second.EquityCurve[i].Value)
	}
	require.Len(t, second.Trades, len(first.Trades))
	for i := range first.Trades {
		a, b := first.Trades[i], second.Trades[i]
		assert.Equal(t, a.ID, b.ID)
		assert.Equal(t, a.OrderID, b.OrderID)
		assert.Equal(t, a.Side, b.Side)
		assert.Equal(t, a.Time, b.Time)
		assert.True(t, a.Price.Equal(b.Price))
		assert.True(t, a.Quantity.Equal(b.Quantity))
		assert.True(t, a.Fee.Equal(b.Fee))
		assert.True(t, a.PnL.Equal(b.PnL))
	}
	require.Len(t, second.Orders, len(first.Orders))
	for i := range first.Orders {
		assert.Equal(t, first.Orders[i].ID, second.Orders[i].ID)
		assert.Equal(t, first.Orders[i].Status, second.Orders[i].Status)
	}
	assert.True(t, first.FinalEquity.Equal(second.FinalEquity))
	require.NotNil(t, first.Metrics)
	require.NotNil(t, second.Metrics)
	assert.Equal(t, first.Metrics.SharpeRatio, second.Metrics.SharpeRatio)
	assert.Equal(t, first.Metrics.MaxDrawdown, second.Metrics.MaxDrawdown)
}

func TestRunEquityMatchesCashAndPositions(t *testing.T) {
	t.Parallel()
	feed, err := data.NewMultiFeed(map[string][]data.Bar{
		testSymbol: testBars(testSymbol, 100, 105, 98, 110, 103),
		"ETH":      testBars("ETH", 50, 47, 52, 49, 55),
	})
	require.NoError(t, err)
	var checked, hedged int
	s := &testStrategy{
		onBar: func(api base.API, st data.Step) error {
			if st.Index == 0 {
				if _, err := api.Buy(testSymbol, d(2)); err != nil {
					return err
				}
				_, err := api.Sell("ETH", d(3))
				return err
			}
			expected := api.Cash()
			for sym, b := range st.Bars {
				expected = expected.Add(api.Position(sym).Quantity.Mul(b.Close))
			}
			if !expected.Equal(api.Equity()) {
				return fmt.Errorf("step %v: cash plus positions %v, equity %v", st.Index, expected, api.Equity())
			}
			checked++
			if api.Position(testSymbol).IsLong() && api.Position("ETH").IsShort() {
				hedged++
			}
			return nil
		},
	}
	bt, err := NewBackTest(testConfig(), feed, s)
	require.NoError(t, err)
	res, err := bt.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status, res.Error)
	assert.Equal(t, 4, checked)
	assert.Equal(t, 4, hedged, "both a long and a short are open after the first fill")

	// bought 2 at 105, shorted 3 at 47
	assert.True(t, res.FinalEquity.Equal(d(9972)), res.FinalEquity.String())
	require.Len(t, res.Positions, 2)
	require.Len(t, res.EquityCurve, 5)
	assert.True(t, res.EquityCurve[4].Value.Equal(res.FinalEquity))
}

func TestRunInvariantViolationHalts(t *testing.T) {
	t.Parallel()
	bars := testBars(testSymbol, 100, 100, 100, 100)
	bars[2].Open = d(-20000)
	bars[2].Low = d(-20000)
	bars[2].Close = d(-20000)
	var after bool
	s := &testStrategy{
		onBar: func(api base.API, st data.Step) error {
			switch st.Index {
			case 0:
				_, err := api.Buy(testSymbol, d(1))
				return err
			case 1:
				_, err := api.Close(testSymbol)
				return err
			case 2, 3:
				after = true
			}
			return nil
		},
	}
	bt, err := NewBackTest(testConfig(), data.NewSingleFeed(testSymbol, bars), s)
	require.NoError(t, err)
	res, err := bt.Run(context.Background())
	require.NoError(t, err, "violations are reported through the result")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, exchange.ErrInvariantViolation.Error())
	assert.Equal(t, 3, res.StepsProcessed, "the run halts on the violating step")
	assert.False(t, after, "the strategy is not shown the violating step")
	assert.Len(t, res.EquityCurve, 3)
	assert.Equal(t, StatusFailed, bt.MetaData.Status)
}

func TestRunMisuse(t *testing.T) {
	t.Parallel()
	var bt *BackTest
	_, err := bt.Run(context.Background())
	assert.ErrorIs(t, err, common.ErrNilPointer)

	bt = &BackTest{}
	_, err = bt.Run(context.Background())
	assert.ErrorIs(t, err, errNotSetup)

	bt = newTestBackTest(t, &testStrategy{}, 1)
	_, err = bt.Run(nil) //nolint:staticcheck // nil context is rejected
	assert.ErrorIs(t, err, common.ErrNilArguments)
}

func TestRunStrategyFault(t *testing.T) {
	t.Parallel()
	s := &testStrategy{
		onBar: func(_ base.API, st data.Step) error {
			if st.Index == 1 {
				return errTest
			}
			return nil
		},
	}
	res, err := newTestBackTest(t, s, 1, 2, 3).Run(context.Background())
	require.NoError(t, err, "faults are reported through the result")
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, ErrStrategyFault.Error())
	assert.Contains(t, res.Error, errTest.Error())
	assert.Equal(t, 2, res.StepsProcessed)
	assert.Len(t, res.EquityCurve, 2, "the faulting step keeps its equity point")
	assert.Len(t, res.Log, 2)
	assert.NotNil(t, res.Metrics)
}

func TestRunStrategyPanic(t *testing.T) {
	t.Parallel()
	s := &testStrategy{
		onBar: func(base.API, data.Step) error {
			var m map[string]int
			m["boom"]++
			return nil
		},
	}
	res, err := newTestBackTest(t, s, 1, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, "panic")
	assert.Equal(t, 1, res.StepsProcessed)
}

func TestRunInitFault(t *testing.T) {
	t.Parallel()
	s := &testStrategy{
		initFn: func(base.API) error { return errTest },
	}
	res, err := newTestBackTest(t, s, 1, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Zero(t, res.StepsProcessed)
	assert.Empty(t, res.EquityCurve)
	assert.True(t, res.FinalEquity.Equal(d(10000)))
}

func TestRunSetCapitalInInit(t *testing.T) {
	t.Parallel()
	var lateErr error
	s := &testStrategy{
		initFn: func(api base.API) error {
			return api.SetCapital(d(500))
		},
		onBar: func(api base.API, _ data.Step) error {
			lateErr = api.SetCapital(d(1))
			return nil
		},
	}
	res, err := newTestBackTest(t, s, 10).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.True(t, res.InitialCapital.Equal(d(500)))
	assert.Error(t, lateErr)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &testStrategy{
		onBar: func(_ base.API, st data.Step) error {
			if st.Index == 1 {
				cancel()
			}
			return nil
		},
	}
	res, err := newTestBackTest(t, s, 1, 2, 3, 4).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, res.Status)
	assert.Equal(t, 2, res.StepsProcessed)
	assert.Len(t, res.EquityCurve, 2)
}

func TestRunNotificationOverflow(t *testing.T) {
	t.Parallel()
	s := &testStrategy{
		initFn: func(api base.API) error {
			_, err := api.Buy(testSymbol, d(1e9))
			return base.IgnoreOrderOutcome(err)
		},
	}
	s.onOrd = func(api base.API, o order.Order) {
		if o.Status == order.Rejected {
			_, _ = api.Buy(testSymbol, d(1e9))
		}
	}
	res, err := newTestBackTest(t, s, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, errNotificationOverflow.Error())
}

func TestRunDisableLogAndHistoryLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RunSettings.DisableRunLog = true
	cfg.RunSettings.HistoryLimit = 2
	var seen int
	s := &testStrategy{
		onBar: func(api base.API, _ data.Step) error {
			seen = len(api.Bars(testSymbol, 10))
			return nil
		},
	}
	bt, err := NewBackTest(cfg, data.NewSingleFeed(testSymbol, testBars(testSymbol, 1, 2, 3, 4)), s)
	require.NoError(t, err)
	res, err := bt.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Log)
	assert.Len(t, res.EquityCurve, 4)
	assert.Equal(t, 2, seen)
}

func TestRunMultiSymbolBenchmark(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.BrokerSettings.Benchmark = "ETH"
	eth := testBars("ETH", 50, 55)
	eth[0].Time = startTime.Add(time.Hour)
	eth[1].Time = startTime.Add(2 * time.Hour)
	feed, err := data.NewMultiFeed(map[string][]data.Bar{
		testSymbol: testBars(testSymbol, 100, 101, 102),
		"ETH":      eth,
	})
	require.NoError(t, err)
	var staleSeen bool
	s := &testStrategy{
		onBar: func(api base.API, st data.Step) error {
			if _, ok := st.Bars["ETH"]; !ok && st.Index == 0 {
				staleSeen = len(api.Bars("ETH", 5)) == 0
			}
			return nil
		},
	}
	bt, err := NewBackTest(cfg, feed, s)
	require.NoError(t, err)
	res, err := bt.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{testSymbol, "ETH"}, res.Symbols)
	assert.Empty(t, res.TradedSymbols)
	assert.True(t, staleSeen, "a symbol is absent before its first observation")
	require.NotNil(t, res.Benchmark)
	assert.True(t, res.Benchmark.FirstClose.Equal(d(50)))
	assert.True(t, res.Benchmark.LastClose.Equal(d(55)))
	assert.InDelta(t, 0.1, res.Benchmark.TotalReturn, 1e-12)
}

func TestExecuteStrategy(t *testing.T) {
	t.Parallel()
	var bt *BackTest
	assert.ErrorIs(t, bt.ExecuteStrategy(false), common.ErrNilPointer)

	bt = newTestBackTest(t, &testStrategy{}, 1, 2, 3)
	require.NoError(t, bt.ExecuteStrategy(false))
	<-bt.Done()
	assert.True(t, bt.HasRan())
	assert.ErrorIs(t, bt.ExecuteStrategy(true), errAlreadyRan)

	bt = newTestBackTest(t, &testStrategy{}, 1, 2, 3)
	require.NoError(t, bt.ExecuteStrategy(true))
	res, err := bt.Result()
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestStop(t *testing.T) {
	t.Parallel()
	var bt *BackTest
	assert.ErrorIs(t, bt.Stop(), common.ErrNilPointer)

	release := make(chan struct{})
	entered := make(chan struct{})
	s := &testStrategy{
		onBar: func(_ base.API, st data.Step) error {
			if st.Index == 0 {
				close(entered)
				<-release
			}
			return nil
		},
	}
	bt = newTestBackTest(t, s, 1, 2, 3)
	assert.ErrorIs(t, bt.Stop(), errTaskHasNotRan)

	require.NoError(t, bt.ExecuteStrategy(false))
	<-entered
	assert.True(t, bt.IsRunning())
	assert.ErrorIs(t, bt.ExecuteStrategy(false), errTaskIsRunning)
	require.NoError(t, bt.Stop())
	close(release)
	<-bt.Done()

	res, err := bt.Result()
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, res.Status)
	assert.Equal(t, 1, res.StepsProcessed)
	assert.ErrorIs(t, bt.Stop(), errAlreadyRan)
}

func TestEqualAndMatchesID(t *testing.T) {
	t.Parallel()
	var bt *BackTest
	assert.False(t, bt.Equal(nil))
	assert.False(t, bt.MatchesID(uuid.Nil))

	bt = newTestBackTest(t, &testStrategy{}, 1)
	bt2 := newTestBackTest(t, &testStrategy{}, 1)
	assert.True(t, bt.Equal(bt))
	assert.False(t, bt.Equal(bt2))
	assert.True(t, bt.MatchesID(bt.MetaData.ID))
	assert.False(t, bt.MatchesID(bt2.MetaData.ID))
	assert.False(t, bt.MatchesID(uuid.Nil))
}

func TestGenerateSummary(t *testing.T) {
	t.Parallel()
	var bt *BackTest
	_, err := bt.GenerateSummary()
	assert.ErrorIs(t, err, common.ErrNilPointer)
	_, err = bt.Result()
	assert.ErrorIs(t, err, common.ErrNilPointer)

	bt = newTestBackTest(t, &testStrategy{}, 1, 2)
	sum, err := bt.GenerateSummary()
	require.NoError(t, err)
	assert.Equal(t, StatusPending, sum.MetaData.Status)
	assert.Nil(t, sum.Metrics)
	_, err = bt.Result()
	assert.ErrorIs(t, err, errNoResult)

	require.NoError(t, bt.ExecuteStrategy(true))
	sum, err = bt.GenerateSummary()
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sum.MetaData.Status)
	assert.True(t, sum.MetaData.Closed)
	assert.Equal(t, 2, sum.Progress.Index)
	assert.NotNil(t, sum.Metrics)
}

func TestAddProgressFunc(t *testing.T) {
	t.Parallel()
	var bt *BackTest
	assert.ErrorIs(t, bt.AddProgressFunc(func(Progress) {}), common.ErrNilPointer)
	bt = newTestBackTest(t, &testStrategy{}, 1, 2)
	assert.ErrorIs(t, bt.AddProgressFunc(nil), errNilSubscriber)

	var calls int
	require.NoError(t, bt.AddProgressFunc(func(Progress) { calls++ }))
	require.NoError(t, bt.ExecuteStrategy(true))
	assert.Equal(t, 2, calls)
}

func TestMetrics(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors cannot be registered twice")

	s := &testStrategy{
		onBar: func(api base.API, st data.Step) error {
			if st.Index == 0 {
				_, err := api.Buy(testSymbol, d(1))
				return err
			}
			return nil
		},
	}
	bt, err := NewBackTest(testConfig(), data.NewSingleFeed(testSymbol, testBars(testSymbol, 1, 2, 3)), s, WithMetrics(m))
	require.NoError(t, err)
	_, err = bt.Run(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.runsStarted), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.barsProcessed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.fills), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runsFinished.WithLabelValues(StatusCompleted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.orders.WithLabelValues(string(order.Filled))), 0)

	unregistered, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, unregistered)
	var nilMetrics *Metrics
	nilMetrics.runStarted()
	nilMetrics.stepProcessed()
	nilMetrics.runFinished(&Result{})
}
