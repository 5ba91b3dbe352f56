package report

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"path/filepath"
	"strings"
	"time"

	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/engine"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/statistics"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	"github.com/thrasher-corp/barsim/common/file"
	"github.com/thrasher-corp/barsim/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed tpl.gohtml
var defaultTemplate string

var titleCaser = cases.Title(language.English)

// NewReport wraps a finished run for writing to outputDir
func NewReport(res *engine.Result, outputDir string) (*Data, error) {
	if res == nil {
		return nil, errNoResult
	}
	if outputDir == "" {
		return nil, errNoOutputPath
	}
	return &Data{
		Result:      res,
		OutputDir:   outputDir,
		GeneratedAt: time.Now(),
	}, nil
}

// GenerateReport writes the run's result as JSON, its step log as JSONL,
// its trades as CSV and a html report for someone to view
func (d *Data) GenerateReport() (*Paths, error) {
	if d == nil || d.Result == nil {
		return nil, errNoResult
	}
	if d.OutputDir == "" {
		return nil, errNoOutputPath
	}
	if d.GeneratedAt.IsZero() {
		d.GeneratedAt = time.Now()
	}
	if err := d.enhance(); err != nil {
		return nil, err
	}

	name := d.baseName()
	paths := &Paths{
		Result: filepath.Join(d.OutputDir, name+resultFileSuffix),
		Log:    filepath.Join(d.OutputDir, name+logFileSuffix),
		HTML:   filepath.Join(d.OutputDir, name+reportFileSuffix),
	}
	var err error
	if err = d.writeResult(paths.Result); err != nil {
		return nil, err
	}
	if len(d.Result.Log) > 0 {
		if err = d.writeLog(paths.Log); err != nil {
			return nil, err
		}
	} else {
		paths.Log = ""
	}
	if len(d.Trades) > 0 {
		if err = file.WriteAsCSV(filepath.Join(d.OutputDir, name+"-trades.csv"), tradeRows(d)); err != nil {
			return nil, err
		}
	}
	if err = d.writeHTML(paths.HTML); err != nil {
		return nil, err
	}
	log.Infof(common.Report, "report for run %v written to %v", d.Result.ID, paths.HTML)
	return paths, nil
}

// enhance derives the charts and summary lines shown by the template
func (d *Data) enhance() error {
	res := d.Result
	d.Title = titleCaser.String(strings.TrimSpace(res.Strategy + " " + res.Nickname))
	d.Metrics = res.Metrics
	d.Trades = res.Trades
	d.SymbolsTraded = res.TradedSymbols

	curve := res.EquityCurve
	if curve == nil {
		curve = []statistics.ValueAtTime{}
	}
	var err error
	if d.EquityChart, err = createEquityChart(curve); err != nil {
		return err
	}
	if d.DrawdownChart, err = createDrawdownChart(curve); err != nil {
		return err
	}
	trades := res.Trades
	if trades == nil {
		trades = []fill.Trade{}
	}
	if d.PnLChart, err = createPnLChart(trades); err != nil {
		return err
	}
	d.ClosedTrades = 0
	for i := range trades {
		if trades[i].Closes() {
			d.ClosedTrades++
		}
	}

	d.TopLineSummary = []SummaryLine{
		{Name: "Status", Value: titleCaser.String(res.Status)},
		{Name: "Steps", Value: fmt.Sprintf("%v of %v", res.StepsProcessed, res.TotalSteps)},
		{Name: "Initial capital", Value: res.InitialCapital.StringFixed(2)},
		{Name: "Final equity", Value: res.FinalEquity.StringFixed(2)},
	}
	if res.Error != "" {
		d.TopLineSummary = append(d.TopLineSummary, SummaryLine{Name: "Error", Value: res.Error})
	}
	if m := res.Metrics; m != nil {
		d.TopLineSummary = append(d.TopLineSummary,
			SummaryLine{Name: "Total return", Value: percent(m.TotalReturn)},
			SummaryLine{Name: "Max drawdown", Value: percent(m.MaxDrawdown)},
			SummaryLine{Name: "Sharpe ratio", Value: nullable(m.SharpeRatio.Valid, m.SharpeRatio.Float64)},
			SummaryLine{Name: "Sortino ratio", Value: nullable(m.SortinoRatio.Valid, m.SortinoRatio.Float64)},
			SummaryLine{Name: "Calmar ratio", Value: nullable(m.CalmarRatio.Valid, m.CalmarRatio.Float64)},
			SummaryLine{Name: "Win rate", Value: nullablePercent(m.WinRate.Valid, m.WinRate.Float64)},
			SummaryLine{Name: "Profit factor", Value: nullable(m.ProfitFactor.Valid, m.ProfitFactor.Float64)},
			SummaryLine{Name: "Trades", Value: fmt.Sprint(m.TradeCount)},
		)
	}
	if b := res.Benchmark; b != nil {
		d.TopLineSummary = append(d.TopLineSummary, SummaryLine{
			Name:  b.Symbol + " buy and hold",
			Value: percent(b.TotalReturn),
		})
	}
	return nil
}

func (d *Data) baseName() string {
	name := d.Result.Strategy
	if d.Result.Nickname != "" {
		name += "-" + d.Result.Nickname
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '-'
	}, strings.ToLower(name))
	return name + "-" + d.GeneratedAt.Format(fileTimeFormat)
}

func (d *Data) writeResult(path string) error {
	payload, err := json.MarshalIndent(d.Result, "", " ")
	if err != nil {
		return err
	}
	return file.Write(path, payload)
}

// writeLog writes one JSON document per step
func (d *Data) writeLog(path string) (err error) {
	f, err := file.Writer(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range d.Result.Log {
		if err = enc.Encode(&d.Result.Log[i]); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (d *Data) writeHTML(path string) (err error) {
	var tmpl *template.Template
	funcs := template.FuncMap{
		"chartJSON": chartJSON,
		"timeFmt":   func(t time.Time) string { return t.UTC().Format(common.SimpleTimeFormat) },
	}
	if d.TemplatePath != "" {
		tmpl, err = template.New(filepath.Base(d.TemplatePath)).Funcs(funcs).ParseFiles(d.TemplatePath)
	} else {
		tmpl, err = template.New("report").Funcs(funcs).Parse(defaultTemplate)
	}
	if err != nil {
		return err
	}
	f, err := file.Writer(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return tmpl.Execute(f, d)
}

// chartJSON renders a chart for embedding in a script block
func chartJSON(c *Chart) (template.JS, error) {
	if c == nil {
		return "null", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil //nolint:gosec // chart data is numbers and names we generated
}

func tradeRows(d *Data) [][]string {
	rows := make([][]string, 0, len(d.Trades)+1)
	rows = append(rows, []string{"id", "order-id", "time", "symbol", "side", "quantity", "price", "fee", "slippage", "pnl"})
	for i := range d.Trades {
		t := &d.Trades[i]
		rows = append(rows, []string{
			t.ID,
			t.OrderID,
			t.Time.UTC().Format(time.RFC3339),
			t.Symbol,
			string(t.Side),
			t.Quantity.String(),
			t.Price.String(),
			t.Fee.String(),
			t.Slippage.String(),
			t.PnL.String(),
		})
	}
	return rows
}

func percent(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}

func nullable(valid bool, f float64) string {
	if !valid {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", f)
}

func nullablePercent(valid bool, f float64) string {
	if !valid {
		return "n/a"
	}
	return percent(f)
}
