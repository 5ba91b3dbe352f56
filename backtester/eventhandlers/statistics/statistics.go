package statistics

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	gctmath "github.com/thrasher-corp/barsim/common/math"
	"github.com/thrasher-corp/barsim/log"
	"github.com/volatiletech/null"
)

// DefaultOptions returns daily annualisation with no risk free rate
func DefaultOptions() Options {
	return Options{PeriodsPerYear: DefaultPeriodsPerYear}
}

// Calculate derives run metrics from the starting balance, the equity curve
// and the list of fills. It never mutates its inputs
func Calculate(initialCapital decimal.Decimal, curve []ValueAtTime, trades []fill.Trade, opts *Options) (*Metrics, error) {
	if !initialCapital.IsPositive() {
		return nil, fmt.Errorf("%w, received %v", errNonPositiveCapital, initialCapital)
	}
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.PeriodsPerYear == 0 {
		o.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if o.PeriodsPerYear < 0 {
		return nil, errInvalidPeriods
	}
	m := &Metrics{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		Periods:        len(curve),
	}
	calculateTrades(m, trades)
	if len(curve) == 0 {
		return m, nil
	}

	m.FinalEquity = curve[len(curve)-1].Value
	initial := initialCapital.InexactFloat64()
	m.TotalReturn = gctmath.CalculatePercentageGainOrLoss(m.FinalEquity.InexactFloat64(), initial)

	annualised, err := gctmath.CalculateCompoundAnnualGrowthRate(m.TotalReturn, o.PeriodsPerYear, float64(len(curve)))
	if err == nil && !math.IsInf(annualised, 0) && !math.IsNaN(annualised) {
		m.AnnualisedReturn = null.Float64From(annualised)
	}

	m.MaxDrawdownSwing, m.LongestDrawdownPeriods = CalculateMaxDrawdown(curve)
	m.MaxDrawdown = m.MaxDrawdownSwing.DrawdownPercent

	returns := periodReturns(curve)
	if len(returns) >= 2 {
		m.Volatility = null.Float64From(gctmath.PopulationStandardDeviation(returns) * math.Sqrt(o.PeriodsPerYear))
	}
	m.SharpeRatio = nullable(gctmath.CalculateSharpeRatio(returns, o.RiskFreeRate, o.PeriodsPerYear))
	m.SortinoRatio = nullable(gctmath.CalculateSortinoRatio(returns, o.RiskFreeRate, o.PeriodsPerYear))
	if m.AnnualisedReturn.Valid {
		m.CalmarRatio = nullable(gctmath.CalculateCalmarRatio(m.AnnualisedReturn.Float64, m.MaxDrawdown))
	}
	return m, nil
}

// nullable converts an undefined ratio into a null value
func nullable(v float64, err error) null.Float64 {
	if err != nil {
		if !errors.Is(err, gctmath.ErrInsufficientValues) &&
			!errors.Is(err, gctmath.ErrZeroStandardDeviation) &&
			!errors.Is(err, gctmath.ErrZeroDrawdown) {
			log.Warnf(common.Statistics, "ratio could not be calculated: %v", err)
		}
		return null.Float64{}
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return null.Float64{}
	}
	return null.Float64From(v)
}

// periodReturns returns the fractional change between consecutive curve
// points, divided in decimal before conversion. Points following a
// non-positive value are skipped
func periodReturns(curve []ValueAtTime) []float64 {
	if len(curve) < 2 {
		return nil
	}
	resp := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if !prev.IsPositive() {
			continue
		}
		resp = append(resp, curve[i].Value.Sub(prev).Div(prev).InexactFloat64())
	}
	return resp
}

// CalculateMaxDrawdown scans the curve once tracking the running peak. It
// returns the deepest swing as a fraction of its peak and the longest run
// of points spent below a prior peak
func CalculateMaxDrawdown(curve []ValueAtTime) (Swing, int) {
	var worst Swing
	if len(curve) == 0 {
		return worst, 0
	}
	peak := curve[0]
	peakIndex := 0
	worst.Highest = peak
	worst.Lowest = peak
	var longest, current int
	for i := range curve {
		if curve[i].Value.GreaterThanOrEqual(peak.Value) {
			peak = curve[i]
			peakIndex = i
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
		if !peak.Value.IsPositive() {
			continue
		}
		dd := math.Min(peak.Value.Sub(curve[i].Value).Div(peak.Value).InexactFloat64(), 1)
		if dd > worst.DrawdownPercent {
			worst = Swing{
				Highest:          peak,
				Lowest:           curve[i],
				DrawdownPercent:  dd,
				IntervalDuration: int64(i - peakIndex),
			}
		}
	}
	return worst, longest
}

// calculateTrades derives win rate and profit factor from fills which closed
// a position. Break-even closes count as closed trades but neither win nor
// lose
func calculateTrades(m *Metrics, trades []fill.Trade) {
	m.TradeCount = len(trades)
	for i := range trades {
		m.TotalFees = m.TotalFees.Add(trades[i].Fee)
		m.NetPnL = m.NetPnL.Add(trades[i].PnL)
		if !trades[i].Closes() {
			continue
		}
		m.ClosedTrades++
		pnl := trades[i].PnL
		if pnl.IsZero() {
			continue
		}
		if pnl.IsPositive() {
			m.WinningTrades++
			m.GrossProfit = m.GrossProfit.Add(pnl)
			if pnl.GreaterThan(m.LargestWin) {
				m.LargestWin = pnl
			}
			continue
		}
		m.LosingTrades++
		m.GrossLoss = m.GrossLoss.Add(pnl.Abs())
		if pnl.LessThan(m.LargestLoss) {
			m.LargestLoss = pnl
		}
	}
	m.NetPnL = m.NetPnL.Sub(m.TotalFees)
	if m.ClosedTrades > 0 {
		m.WinRate = null.Float64From(float64(m.WinningTrades) / float64(m.ClosedTrades))
	}
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.GrossLoss.Div(decimal.NewFromInt(int64(m.LosingTrades))).Neg()
		m.ProfitFactor = null.Float64From(m.GrossProfit.Div(m.GrossLoss).InexactFloat64())
	}
}

// fSIL shorthand wrapper for FitStringToLimit
func fSIL(str string, limit int) string {
	return common.FitStringToLimit(str, " ", limit, true)
}

func nullString(f null.Float64) string {
	if !f.Valid {
		return "N/A"
	}
	return fmt.Sprintf("%.4f", f.Float64)
}

// PrintResults outputs the metrics to the statistics logger
func (m *Metrics) PrintResults() {
	const width = 24
	sep := "------------------------------------------------------"
	log.Info(common.Statistics, sep)
	log.Info(common.Statistics, "Performance")
	log.Info(common.Statistics, sep)
	log.Infof(common.Statistics, "%s: %v", fSIL("Initial capital", width), m.InitialCapital)
	log.Infof(common.Statistics, "%s: %v", fSIL("Final equity", width), m.FinalEquity.Round(8))
	log.Infof(common.Statistics, "%s: %.4f%%", fSIL("Total return", width), m.TotalReturn*100)
	log.Infof(common.Statistics, "%s: %s", fSIL("Annualised return", width), nullString(m.AnnualisedReturn))
	log.Infof(common.Statistics, "%s: %s", fSIL("Volatility", width), nullString(m.Volatility))
	log.Infof(common.Statistics, "%s: %.4f%%", fSIL("Max drawdown", width), m.MaxDrawdown*100)
	log.Infof(common.Statistics, "%s: %v", fSIL("Longest drawdown", width), m.LongestDrawdownPeriods)
	log.Infof(common.Statistics, "%s: %s", fSIL("Sharpe ratio", width), nullString(m.SharpeRatio))
	log.Infof(common.Statistics, "%s: %s", fSIL("Sortino ratio", width), nullString(m.SortinoRatio))
	log.Infof(common.Statistics, "%s: %s", fSIL("Calmar ratio", width), nullString(m.CalmarRatio))
	log.Info(common.Statistics, sep)
	log.Info(common.Statistics, "Trades")
	log.Info(common.Statistics, sep)
	log.Infof(common.Statistics, "%s: %v", fSIL("Fills", width), m.TradeCount)
	log.Infof(common.Statistics, "%s: %v", fSIL("Closed trades", width), m.ClosedTrades)
	log.Infof(common.Statistics, "%s: %s", fSIL("Win rate", width), nullString(m.WinRate))
	log.Infof(common.Statistics, "%s: %s", fSIL("Profit factor", width), nullString(m.ProfitFactor))
	log.Infof(common.Statistics, "%s: %v", fSIL("Average win", width), m.AverageWin.Round(8))
	log.Infof(common.Statistics, "%s: %v", fSIL("Average loss", width), m.AverageLoss.Round(8))
	log.Infof(common.Statistics, "%s: %v", fSIL("Largest win", width), m.LargestWin.Round(8))
	log.Infof(common.Statistics, "%s: %v", fSIL("Largest loss", width), m.LargestLoss.Round(8))
	log.Infof(common.Statistics, "%s: %v", fSIL("Total fees", width), m.TotalFees.Round(8))
	log.Infof(common.Statistics, "%s: %v", fSIL("Net PnL", width), m.NetPnL.Round(8))
}
