package statistics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
)

var tt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func curve(values ...float64) []ValueAtTime {
	resp := make([]ValueAtTime, len(values))
	for i := range values {
		resp[i] = ValueAtTime{
			Time:  tt.Add(time.Duration(i) * time.Hour * 24),
			Value: decimal.NewFromFloat(values[i]),
		}
	}
	return resp
}

func TestCalculateErrors(t *testing.T) {
	t.Parallel()
	_, err := Calculate(decimal.Zero, nil, nil, nil)
	assert.ErrorIs(t, err, errNonPositiveCapital)
	_, err = Calculate(decimal.NewFromInt(1), nil, nil, &Options{PeriodsPerYear: -1})
	assert.ErrorIs(t, err, errInvalidPeriods)
}

func TestCalculateEmpty(t *testing.T) {
	t.Parallel()
	m, err := Calculate(decimal.NewFromInt(100), nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, m.FinalEquity.Equal(decimal.NewFromInt(100)))
	assert.Zero(t, m.TotalReturn)
	assert.False(t, m.AnnualisedReturn.Valid)
	assert.False(t, m.SharpeRatio.Valid)
	assert.False(t, m.WinRate.Valid)
	assert.False(t, m.ProfitFactor.Valid)
	assert.Zero(t, m.TradeCount)
}

func TestCalculateFlatCurve(t *testing.T) {
	t.Parallel()
	m, err := Calculate(decimal.NewFromInt(100), curve(100, 100, 100, 100), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.MaxDrawdown)
	require.True(t, m.AnnualisedReturn.Valid)
	assert.Zero(t, m.AnnualisedReturn.Float64)
	assert.False(t, m.SharpeRatio.Valid)
	assert.False(t, m.SortinoRatio.Valid)
	assert.False(t, m.CalmarRatio.Valid)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sharpe-ratio":null`)
	assert.Contains(t, string(b), `"calmar-ratio":null`)
}

func TestCalculateConstantGrowth(t *testing.T) {
	t.Parallel()
	c := make([]ValueAtTime, 30)
	v := decimal.NewFromInt(10000)
	for i := range c {
		c[i] = ValueAtTime{Time: tt.Add(time.Duration(i) * time.Hour * 24), Value: v}
		v = v.Mul(decimal.NewFromFloat(1.01))
	}
	m, err := Calculate(decimal.NewFromInt(10000), c, nil, nil)
	require.NoError(t, err)
	assert.Positive(t, m.TotalReturn)
	assert.False(t, m.SharpeRatio.Valid, "a riskless curve has no sharpe ratio")
	assert.False(t, m.SortinoRatio.Valid)
}

func TestCalculateSinglePoint(t *testing.T) {
	t.Parallel()
	m, err := Calculate(decimal.NewFromInt(100), curve(110), nil, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, m.TotalReturn, 1e-12)
	assert.False(t, m.SharpeRatio.Valid)
	assert.False(t, m.Volatility.Valid)
}

func TestCalculateRatios(t *testing.T) {
	t.Parallel()
	m, err := Calculate(decimal.NewFromInt(100), curve(100, 110, 99, 120), nil, &Options{PeriodsPerYear: 365})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, m.TotalReturn, 1e-12)
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-12)
	assert.True(t, m.MaxDrawdownSwing.Highest.Value.Equal(decimal.NewFromInt(110)))
	assert.True(t, m.MaxDrawdownSwing.Lowest.Value.Equal(decimal.NewFromInt(99)))
	assert.Equal(t, int64(1), m.MaxDrawdownSwing.IntervalDuration)
	assert.Equal(t, 1, m.LongestDrawdownPeriods)
	assert.True(t, m.SharpeRatio.Valid)
	assert.Positive(t, m.SharpeRatio.Float64)
	assert.True(t, m.SortinoRatio.Valid)
	assert.Greater(t, m.SortinoRatio.Float64, m.SharpeRatio.Float64)
	require.True(t, m.CalmarRatio.Valid)
	assert.InDelta(t, m.AnnualisedReturn.Float64/0.1, m.CalmarRatio.Float64, 1e-9)
	assert.True(t, m.Volatility.Valid)
}

func TestCalculateMaxDrawdown(t *testing.T) {
	t.Parallel()
	s, longest := CalculateMaxDrawdown(nil)
	assert.Zero(t, s.DrawdownPercent)
	assert.Zero(t, longest)

	s, longest = CalculateMaxDrawdown(curve(100, 90, 95, 101, 80))
	assert.InDelta(t, (101.0-80.0)/101.0, s.DrawdownPercent, 1e-12)
	assert.Equal(t, 2, longest)
	assert.Equal(t, tt.Add(3*24*time.Hour), s.Highest.Time)

	s, _ = CalculateMaxDrawdown(curve(100, -20))
	assert.Equal(t, 1.0, s.DrawdownPercent)
}

func TestCalculateTrades(t *testing.T) {
	t.Parallel()
	fee := decimal.NewFromInt(1)
	one := decimal.NewFromInt(1)
	trades := []fill.Trade{
		{PnL: decimal.Zero, Fee: fee},
		{PnL: decimal.NewFromInt(100), Fee: fee, ClosedQuantity: one},
		{PnL: decimal.NewFromInt(-50), Fee: fee, ClosedQuantity: one},
		{PnL: decimal.NewFromInt(30), Fee: fee, ClosedQuantity: one},
	}
	m, err := Calculate(decimal.NewFromInt(1000), nil, trades, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, m.TradeCount)
	assert.Equal(t, 3, m.ClosedTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	require.True(t, m.WinRate.Valid)
	assert.InDelta(t, 2.0/3.0, m.WinRate.Float64, 1e-12)
	require.True(t, m.ProfitFactor.Valid)
	assert.InDelta(t, 2.6, m.ProfitFactor.Float64, 1e-12)
	assert.True(t, m.AverageWin.Equal(decimal.NewFromInt(65)))
	assert.True(t, m.AverageLoss.Equal(decimal.NewFromInt(-50)))
	assert.True(t, m.LargestWin.Equal(decimal.NewFromInt(100)))
	assert.True(t, m.LargestLoss.Equal(decimal.NewFromInt(-50)))
	assert.True(t, m.TotalFees.Equal(decimal.NewFromInt(4)))
	assert.True(t, m.NetPnL.Equal(decimal.NewFromInt(76)))

	m, err = Calculate(decimal.NewFromInt(1000), nil, trades[:2], nil)
	require.NoError(t, err)
	assert.False(t, m.ProfitFactor.Valid)
	assert.Equal(t, 1.0, m.WinRate.Float64)
}

func TestCalculateTradesBreakEven(t *testing.T) {
	t.Parallel()
	one := decimal.NewFromInt(1)
	trades := []fill.Trade{
		{Quantity: one},
		{Quantity: one, ClosedQuantity: one},
		{Quantity: one},
		{Quantity: one, PnL: decimal.NewFromInt(10), ClosedQuantity: one},
	}
	m, err := Calculate(decimal.NewFromInt(1000), nil, trades, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.ClosedTrades, "a close at the entry price is still a closed trade")
	assert.Equal(t, 1, m.WinningTrades)
	assert.Zero(t, m.LosingTrades)
	require.True(t, m.WinRate.Valid)
	assert.Equal(t, 0.5, m.WinRate.Float64)
	assert.True(t, m.LargestLoss.IsZero())
}

func TestPrintResults(t *testing.T) {
	t.Parallel()
	m, err := Calculate(decimal.NewFromInt(100), curve(100, 101), nil, nil)
	require.NoError(t, err)
	assert.NotPanics(t, m.PrintResults)
}
