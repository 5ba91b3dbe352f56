package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/statistics"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
)

// createEquityChart used for creating a chart in the HTML report
// to show how much the account was worth over time
func createEquityChart(items []statistics.ValueAtTime) (*Chart, error) {
	if items == nil {
		return nil, fmt.Errorf("%w missing values at time", common.ErrNilPointer)
	}
	items = sample(items, maxChartPoints)
	plots := make([]LinePlot, len(items))
	for i := range items {
		plots[i] = LinePlot{
			Value:     items[i].Value.InexactFloat64(),
			UnixMilli: items[i].Time.UnixMilli(),
		}
	}
	return &Chart{
		AxisType: "linear",
		Data:     []ChartLine{{Name: "Equity", LinePlots: plots}},
	}, nil
}

// createDrawdownChart shows how far below its running peak the equity sat
// at each step, as a percentage
func createDrawdownChart(items []statistics.ValueAtTime) (*Chart, error) {
	if items == nil {
		return nil, fmt.Errorf("%w missing values at time", common.ErrNilPointer)
	}
	items = sample(items, maxChartPoints)
	hundred := decimal.NewFromInt(100)
	plots := make([]LinePlot, len(items))
	var peak decimal.Decimal
	for i := range items {
		if items[i].Value.GreaterThan(peak) {
			peak = items[i].Value
		}
		var dd decimal.Decimal
		if peak.IsPositive() {
			dd = peak.Sub(items[i].Value).Div(peak).Mul(hundred).Neg()
		}
		plots[i] = LinePlot{
			Value:     dd.InexactFloat64(),
			UnixMilli: items[i].Time.UnixMilli(),
		}
	}
	return &Chart{
		AxisType: "linear",
		Data:     []ChartLine{{Name: "Drawdown %", LinePlots: plots}},
	}, nil
}

// createPnLChart shows the running realised PnL per symbol and in total
func createPnLChart(trades []fill.Trade) (*Chart, error) {
	if trades == nil {
		return nil, fmt.Errorf("%w missing trades", common.ErrNilPointer)
	}
	response := &Chart{
		AxisType: "linear",
	}
	total := ChartLine{Name: "Total realised PnL"}
	var running decimal.Decimal
	bySymbol := make(map[string]*ChartLine)
	symbolRunning := make(map[string]decimal.Decimal)
	var symbols []string
	for i := range trades {
		if !trades[i].Closes() {
			continue
		}
		ms := trades[i].Time.UnixMilli()
		running = running.Add(trades[i].PnL)
		total.LinePlots = append(total.LinePlots, LinePlot{Value: running.InexactFloat64(), UnixMilli: ms})

		line, ok := bySymbol[trades[i].Symbol]
		if !ok {
			line = &ChartLine{Name: trades[i].Symbol + " realised PnL"}
			bySymbol[trades[i].Symbol] = line
			symbols = append(symbols, trades[i].Symbol)
		}
		symbolRunning[trades[i].Symbol] = symbolRunning[trades[i].Symbol].Add(trades[i].PnL)
		line.LinePlots = append(line.LinePlots, LinePlot{
			Value:     symbolRunning[trades[i].Symbol].InexactFloat64(),
			UnixMilli: ms,
		})
	}
	if len(total.LinePlots) == 0 {
		return response, nil
	}
	response.Data = append(response.Data, total)
	if len(symbols) > 1 {
		for _, sym := range symbols {
			response.Data = append(response.Data, *bySymbol[sym])
		}
	}
	return response, nil
}

// sample evenly thins items down to limit points, always keeping the last
func sample(items []statistics.ValueAtTime, limit int) []statistics.ValueAtTime {
	if limit <= 1 || len(items) <= limit {
		return items
	}
	resp := make([]statistics.ValueAtTime, 0, limit)
	step := float64(len(items)-1) / float64(limit-1)
	for i := 0; i < limit; i++ {
		resp = append(resp, items[int(float64(i)*step)])
	}
	resp[limit-1] = items[len(items)-1]
	return resp
}
