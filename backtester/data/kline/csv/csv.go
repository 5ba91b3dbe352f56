package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/data/kline"
	"github.com/thrasher-corp/barsim/log"
)

var errMissingColumn = errors.New("missing column")

// column positions of a candle file without a header row
var defaultColumns = map[string]int{
	"time":   0,
	"open":   1,
	"high":   2,
	"low":    3,
	"close":  4,
	"volume": 5,
}

var timeAliases = []string{"time", "timestamp", "date", "datetime", "open_time"}

// LoadData reads candles for symbol from a CSV file. A header row names the
// columns, otherwise they are time,open,high,low,close,volume. Unknown
// numeric header columns are kept as extra bar fields
func LoadData(path, symbol string) ([]data.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Errorln(log.DataMgr, closeErr)
		}
	}()
	return Read(f, symbol)
}

// Read parses CSV candles from r
func Read(r io.Reader, symbol string) ([]data.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var (
		columns map[string]int
		extra   map[string]int
		resp    []data.Bar
		line    int
	)
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		line++
		if line == 1 {
			if _, err = kline.ParseTime(row[0]); err != nil {
				columns, extra, err = parseHeader(row)
				if err != nil {
					return nil, err
				}
				continue
			}
			columns = defaultColumns
		}
		b, err := parseRow(row, columns, extra)
		if err != nil {
			return nil, fmt.Errorf("%v line %v: %w", symbol, line, err)
		}
		b.Symbol = symbol
		b.Offset = int64(len(resp) + 1)
		resp = append(resp, b)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w for %v", kline.ErrNoCandleData, symbol)
	}
	return resp, nil
}

func parseHeader(row []string) (columns, extra map[string]int, err error) {
	columns = make(map[string]int)
	extra = make(map[string]int)
	for i := range row {
		name := strings.ToLower(strings.TrimSpace(row[i]))
		switch {
		case slices.Contains(timeAliases, name):
			if _, ok := columns["time"]; !ok {
				columns["time"] = i
			}
		case name == "open" || name == "high" || name == "low" || name == "close" || name == "volume":
			columns[name] = i
		case name != "":
			extra[name] = i
		}
	}
	for _, required := range []string{"time", "open", "high", "low", "close"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("%w '%v' in header %v", errMissingColumn, required, row)
		}
	}
	return columns, extra, nil
}

func parseRow(row []string, columns, extra map[string]int) (data.Bar, error) {
	field := func(name string) (string, bool) {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}
	var b data.Bar
	ts, ok := field("time")
	if !ok {
		return b, fmt.Errorf("%w 'time'", errMissingColumn)
	}
	t, err := kline.ParseTime(ts)
	if err != nil {
		return b, err
	}
	b.Time = t
	for _, p := range []struct {
		name string
		dst  *decimal.Decimal
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"close", &b.Close},
		{"volume", &b.Volume},
	} {
		v, ok := field(p.name)
		if !ok {
			if p.name == "volume" {
				continue
			}
			return b, fmt.Errorf("%w '%v'", errMissingColumn, p.name)
		}
		if *p.dst, err = decimal.NewFromString(v); err != nil {
			return b, fmt.Errorf("%v: %w", p.name, err)
		}
	}
	for name, i := range extra {
		if i >= len(row) {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(row[i]))
		if err != nil {
			continue
		}
		if b.Extra == nil {
			b.Extra = make(map[string]decimal.Decimal, len(extra))
		}
		b.Extra[name] = v
	}
	return b, nil
}
