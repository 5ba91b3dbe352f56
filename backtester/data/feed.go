package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/thrasher-corp/barsim/backtester/common"
)

// NewSingleFeed returns a feed for one symbol. Bars are copied, tagged with
// the symbol and sorted by time
func NewSingleFeed(symbol string, bars []Bar) *SingleFeed {
	if symbol == "" {
		symbol = common.DefaultSymbol
	}
	f := &SingleFeed{symbol: symbol}
	f.base.SetStream(bars)
	for i := range f.base.stream {
		f.base.stream[i].Symbol = symbol
		f.base.stream[i].Stale = false
	}
	f.base.SortStream()
	return f
}

// Next returns the next step
func (f *SingleFeed) Next() (Step, bool) {
	b, ok := f.base.Next()
	if !ok {
		return Step{}, false
	}
	return Step{
		Index: f.base.Offset() - 1,
		Time:  b.Time,
		Bars:  map[string]Bar{f.symbol: b},
	}, true
}

// Len returns the total number of steps
func (f *SingleFeed) Len() int {
	return len(f.base.stream)
}

// Symbols returns the feed's symbol
func (f *SingleFeed) Symbols() []string {
	return []string{f.symbol}
}

// NewMultiFeed aligns the supplied symbols onto a single timeline. A symbol
// with no bars at all is a configuration error. An empty map produces an
// empty feed
func NewMultiFeed(bars map[string][]Bar) (*MultiFeed, error) {
	f := &MultiFeed{
		streams: make(map[string][]Bar, len(bars)),
		cursors: make(map[string]int, len(bars)),
		last:    make(map[string]*Bar, len(bars)),
	}
	seen := make(map[int64]time.Time)
	for sym, b := range bars {
		if len(b) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrSymbolHasNoData, sym)
		}
		var base Base
		base.SetStream(b)
		for i := range base.stream {
			base.stream[i].Symbol = sym
			base.stream[i].Stale = false
		}
		base.SortStream()
		f.streams[sym] = base.stream
		f.symbols = append(f.symbols, sym)
		for i := range base.stream {
			seen[base.stream[i].Time.UnixNano()] = base.stream[i].Time
		}
	}
	sort.Strings(f.symbols)
	f.timeline = make([]time.Time, 0, len(seen))
	for _, t := range seen {
		f.timeline = append(f.timeline, t)
	}
	sort.Slice(f.timeline, func(i, j int) bool {
		return f.timeline[i].Before(f.timeline[j])
	})
	return f, nil
}

// Next builds the step for the next union timestamp. Only bars at or before
// that timestamp are consulted
func (f *MultiFeed) Next() (Step, bool) {
	if f.offset >= len(f.timeline) {
		return Step{}, false
	}
	t := f.timeline[f.offset]
	s := Step{
		Index: f.offset,
		Time:  t,
		Bars:  make(map[string]Bar, len(f.symbols)),
	}
	for _, sym := range f.symbols {
		stream := f.streams[sym]
		fresh := false
		for f.cursors[sym] < len(stream) && !stream[f.cursors[sym]].Time.After(t) {
			f.last[sym] = &stream[f.cursors[sym]]
			fresh = stream[f.cursors[sym]].Time.Equal(t)
			f.cursors[sym]++
		}
		prev, ok := f.last[sym]
		if !ok {
			continue
		}
		b := *prev
		b.Stale = !fresh
		s.Bars[sym] = b
	}
	f.offset++
	return s, true
}

// Len returns the number of distinct timestamps
func (f *MultiFeed) Len() int {
	return len(f.timeline)
}

// Symbols returns the aligned symbols in sorted order
func (f *MultiFeed) Symbols() []string {
	resp := make([]string, len(f.symbols))
	copy(resp, f.symbols)
	return resp
}

// NewFeed returns a single symbol feed for one symbol and an aligned
// multi symbol feed otherwise
func NewFeed(bars map[string][]Bar) (Feed, error) {
	if len(bars) == 1 {
		for sym, b := range bars {
			if len(b) == 0 {
				return nil, fmt.Errorf("%w: %v", ErrSymbolHasNoData, sym)
			}
			return NewSingleFeed(sym, b), nil
		}
	}
	return NewMultiFeed(bars)
}
