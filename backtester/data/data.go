package data

import (
	"fmt"
	"sort"
)

// Validate ensures the bar's prices are internally consistent
func (b *Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("%w: %v missing timestamp", ErrInvalidBar, b.Symbol)
	}
	if b.High.LessThan(b.Low) {
		return fmt.Errorf("%w: %v %v high %v below low %v", ErrInvalidBar, b.Symbol, b.Time, b.High, b.Low)
	}
	if b.Open.GreaterThan(b.High) || b.Open.LessThan(b.Low) ||
		b.Close.GreaterThan(b.High) || b.Close.LessThan(b.Low) {
		return fmt.Errorf("%w: %v %v open/close outside of high/low range", ErrInvalidBar, b.Symbol, b.Time)
	}
	if b.Volume.IsNegative() {
		return fmt.Errorf("%w: %v %v negative volume", ErrInvalidBar, b.Symbol, b.Time)
	}
	return nil
}

// SetStream replaces the stream with a copy of the supplied bars
func (b *Base) SetStream(s []Bar) {
	b.stream = make([]Bar, len(s))
	copy(b.stream, s)
	b.offset = 0
}

// Offset returns how many bars have been consumed
func (b *Base) Offset() int {
	return b.offset
}

// Next will return the next bar in the list and also shift the offset one
func (b *Base) Next() (Bar, bool) {
	if len(b.stream) <= b.offset {
		return Bar{}, false
	}
	ret := b.stream[b.offset]
	b.offset++
	return ret, true
}

// SortStream sorts the stream by timestamp, keeping the original order of
// bars sharing a timestamp, and renumbers offsets
func (b *Base) SortStream() {
	sort.SliceStable(b.stream, func(i, j int) bool {
		return b.stream[i].Time.Before(b.stream[j].Time)
	})
	for i := range b.stream {
		b.stream[i].Offset = int64(i + 1)
	}
}

// Bar returns the bar for a symbol at this step
func (s *Step) Bar(symbol string) (Bar, bool) {
	b, ok := s.Bars[symbol]
	return b, ok
}

// Single returns the bar when the step holds exactly one symbol
func (s *Step) Single() (Bar, bool) {
	if len(s.Bars) != 1 {
		return Bar{}, false
	}
	for _, b := range s.Bars {
		return b, true
	}
	return Bar{}, false
}

// Symbols returns the symbols present at this step in sorted order
func (s *Step) Symbols() []string {
	resp := make([]string, 0, len(s.Bars))
	for k := range s.Bars {
		resp = append(resp, k)
	}
	sort.Strings(resp)
	return resp
}

// Frame returns the latest closed bar of a higher timeframe for a symbol
func (s *Step) Frame(i Interval, symbol string) (Bar, bool) {
	if s.Frames == nil {
		return Bar{}, false
	}
	b, ok := s.Frames[i][symbol]
	return b, ok
}
