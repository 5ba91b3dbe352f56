package statistics

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/volatiletech/null"
)

// DefaultPeriodsPerYear annualises per bar returns assuming daily bars
const DefaultPeriodsPerYear = 365

var (
	errInvalidPeriods     = errors.New("periods per year must be greater than zero")
	errNonPositiveCapital = errors.New("initial capital must be greater than zero")
)

// ValueAtTime is a single point of an equity curve
type ValueAtTime struct {
	Time  time.Time       `json:"time"`
	Value decimal.Decimal `json:"value"`
}

// Swing holds the peak and trough of a drawdown
type Swing struct {
	Highest         ValueAtTime `json:"highest"`
	Lowest          ValueAtTime `json:"lowest"`
	DrawdownPercent float64     `json:"drawdown"`
	// IntervalDuration is the number of curve points from peak to trough
	IntervalDuration int64 `json:"interval-duration"`
}

// Options tune the annualisation of ratios
type Options struct {
	PeriodsPerYear float64 `json:"periods-per-year"`
	RiskFreeRate   float64 `json:"risk-free-rate"`
}

// Metrics are the performance results of a run. Ratios which are undefined
// for the data, for example a Sharpe ratio of a flat curve, are null
type Metrics struct {
	InitialCapital         decimal.Decimal `json:"initial-capital"`
	FinalEquity            decimal.Decimal `json:"final-equity"`
	Periods                int             `json:"periods"`
	TotalReturn            float64         `json:"total-return"`
	AnnualisedReturn       null.Float64    `json:"annualised-return"`
	Volatility             null.Float64    `json:"volatility"`
	MaxDrawdown            float64         `json:"max-drawdown"`
	MaxDrawdownSwing       Swing           `json:"max-drawdown-swing"`
	LongestDrawdownPeriods int             `json:"longest-drawdown-periods"`
	SharpeRatio            null.Float64    `json:"sharpe-ratio"`
	SortinoRatio           null.Float64    `json:"sortino-ratio"`
	CalmarRatio            null.Float64    `json:"calmar-ratio"`
	TradeCount             int             `json:"trade-count"`
	ClosedTrades           int             `json:"closed-trades"`
	WinningTrades          int             `json:"winning-trades"`
	LosingTrades           int             `json:"losing-trades"`
	WinRate                null.Float64    `json:"win-rate"`
	ProfitFactor           null.Float64    `json:"profit-factor"`
	GrossProfit            decimal.Decimal `json:"gross-profit"`
	GrossLoss              decimal.Decimal `json:"gross-loss"`
	AverageWin             decimal.Decimal `json:"average-win"`
	AverageLoss            decimal.Decimal `json:"average-loss"`
	LargestWin             decimal.Decimal `json:"largest-win"`
	LargestLoss            decimal.Decimal `json:"largest-loss"`
	TotalFees              decimal.Decimal `json:"total-fees"`
	NetPnL                 decimal.Decimal `json:"net-pnl"`
}
