package kline

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/log"
)

var (
	// ErrNoCandleData is returned when a source produced no bars in range
	ErrNoCandleData = errors.New("no candle data provided")
	// ErrInvalidTimestamp is returned for timestamps which cannot be parsed
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// unix timestamps above this are treated as milliseconds
const millisecondThreshold = 1e11

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads unix seconds, unix milliseconds or a date string. Times
// without a zone are UTC
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n <= 0 {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, s)
		}
		if n >= millisecondThreshold {
			return time.UnixMilli(int64(n)).UTC(), nil
		}
		return time.Unix(int64(n), 0).UTC(), nil
	}
	for i := range timeLayouts {
		if t, err := time.Parse(timeLayouts[i], s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, s)
}

// Prepare readies bars loaded for symbol for a feed. It stamps the symbol,
// drops bars outside of [start, end] where either bound may be zero, sorts
// by time, keeps the first bar of any duplicated timestamp and validates
// the rest
func Prepare(symbol string, bars []data.Bar, start, end time.Time) ([]data.Bar, error) {
	resp := make([]data.Bar, 0, len(bars))
	for i := range bars {
		t := bars[i].Time
		if (!start.IsZero() && t.Before(start)) || (!end.IsZero() && t.After(end)) {
			continue
		}
		b := bars[i]
		b.Symbol = symbol
		resp = append(resp, b)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w for %v", ErrNoCandleData, symbol)
	}
	sort.SliceStable(resp, func(i, j int) bool {
		return resp[i].Time.Before(resp[j].Time)
	})

	deduped := resp[:1]
	for i := 1; i < len(resp); i++ {
		if resp[i].Time.Equal(deduped[len(deduped)-1].Time) {
			log.Warnf(log.DataMgr, "%v duplicate bar at %v ignored", symbol, resp[i].Time)
			continue
		}
		deduped = append(deduped, resp[i])
	}
	for i := range deduped {
		if err := deduped[i].Validate(); err != nil {
			return nil, err
		}
	}
	return deduped, nil
}
