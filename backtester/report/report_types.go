package report

import (
	"errors"
	"time"

	"github.com/thrasher-corp/barsim/backtester/engine"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/statistics"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
)

const (
	resultFileSuffix = "-result.json"
	logFileSuffix    = "-log.jsonl"
	reportFileSuffix = ".html"
	fileTimeFormat   = "2006-01-02-15-04-05"
	// maxChartPoints caps how many equity points are drawn, longer curves
	// are sampled evenly
	maxChartPoints = 5000
)

var (
	errNoResult     = errors.New("no result to report")
	errNoOutputPath = errors.New("no output directory set")
)

// Data holds everything needed to write the result, run log and html
// report of a single run
type Data struct {
	Result    *engine.Result
	OutputDir string
	// UseDarkMode switches the html report's colour scheme
	UseDarkMode bool
	// TemplatePath overrides the embedded html template when set
	TemplatePath string
	// GeneratedAt is stamped into file names, defaults to now
	GeneratedAt time.Time

	// populated while generating
	Title          string
	EquityChart    *Chart
	DrawdownChart  *Chart
	PnLChart       *Chart
	Metrics        *statistics.Metrics
	Trades         []fill.Trade
	ClosedTrades   int
	SymbolsTraded  []string
	TopLineSummary []SummaryLine
}

// SummaryLine is a name and formatted value shown in the report header
type SummaryLine struct {
	Name  string
	Value string
}

// Chart holds chart properties for the html report
type Chart struct {
	AxisType string      `json:"axis-type"`
	Data     []ChartLine `json:"data"`
}

// ChartLine holds the individual line data for a chart
type ChartLine struct {
	Name      string     `json:"name"`
	LinePlots []LinePlot `json:"line-plots"`
}

// LinePlot holds a value at a unix millisecond timestamp
type LinePlot struct {
	Value     float64 `json:"value"`
	UnixMilli int64   `json:"unix-milli"`
}

// Paths are the files written by GenerateReport
type Paths struct {
	Result string `json:"result"`
	Log    string `json:"log"`
	HTML   string `json:"html"`
}
