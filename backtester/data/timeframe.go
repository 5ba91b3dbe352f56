package data

import (
	"fmt"
	"sort"
)

// NewTimeframeAlignedFeed wraps a base feed with higher timeframe bars keyed
// by interval then symbol. The base feed drives the timeline and is the only
// source the broker matches against
func NewTimeframeAlignedFeed(base Feed, higher map[Interval]map[string][]Bar) (*TimeframeAlignedFeed, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: base feed", ErrSymbolHasNoData)
	}
	f := &TimeframeAlignedFeed{
		base:    base,
		higher:  make(map[Interval]map[string][]Bar, len(higher)),
		cursors: make(map[Interval]map[string]int, len(higher)),
		seen:    make(map[Interval]map[string]Bar, len(higher)),
	}
	for interval, symbols := range higher {
		if interval <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
		}
		f.higher[interval] = make(map[string][]Bar, len(symbols))
		f.cursors[interval] = make(map[string]int, len(symbols))
		f.seen[interval] = make(map[string]Bar, len(symbols))
		for sym, bars := range symbols {
			sorted := make([]Bar, len(bars))
			copy(sorted, bars)
			sort.SliceStable(sorted, func(i, j int) bool {
				return sorted[i].Time.Before(sorted[j].Time)
			})
			for i := range sorted {
				sorted[i].Symbol = sym
				sorted[i].Offset = int64(i + 1)
			}
			f.higher[interval][sym] = sorted
		}
	}
	return f, nil
}

// Next advances the base feed and attaches every higher timeframe bar which
// has closed by the step's time
func (f *TimeframeAlignedFeed) Next() (Step, bool) {
	s, ok := f.base.Next()
	if !ok {
		return Step{}, false
	}
	for interval, symbols := range f.higher {
		for sym, bars := range symbols {
			c := f.cursors[interval][sym]
			for c < len(bars) && !bars[c].Time.Add(interval.Duration()).After(s.Time) {
				f.seen[interval][sym] = bars[c]
				c++
			}
			f.cursors[interval][sym] = c
		}
		if len(f.seen[interval]) == 0 {
			continue
		}
		if s.Frames == nil {
			s.Frames = make(map[Interval]map[string]Bar, len(f.higher))
		}
		frame := make(map[string]Bar, len(f.seen[interval]))
		for sym, b := range f.seen[interval] {
			frame[sym] = b
		}
		s.Frames[interval] = frame
	}
	return s, true
}

// Len returns the number of base steps
func (f *TimeframeAlignedFeed) Len() int {
	return f.base.Len()
}

// Symbols returns the base feed symbols
func (f *TimeframeAlignedFeed) Symbols() []string {
	return f.base.Symbols()
}
