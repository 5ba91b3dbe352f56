package data

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NewHistory returns a history store retaining at most limit bars per symbol.
// A limit of zero or less retains everything
func NewHistory(limit int) *History {
	return &History{
		max:  limit,
		bars: make(map[string][]Bar),
	}
}

// Add records the fresh observations of a step. Forward-filled bars are not
// recorded as they are repeats of an earlier observation
func (h *History) Add(s *Step) {
	for sym, b := range s.Bars {
		if b.Stale {
			continue
		}
		h.bars[sym] = append(h.bars[sym], b)
		if h.max > 0 && len(h.bars[sym]) > h.max {
			h.bars[sym] = h.bars[sym][len(h.bars[sym])-h.max:]
		}
	}
}

// Bars returns up to lookback of the most recent bars for a symbol, oldest
// first. A lookback of zero or less uses DefaultLookback
func (h *History) Bars(symbol string, lookback int) []Bar {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	b := h.bars[symbol]
	if len(b) > lookback {
		b = b[len(b)-lookback:]
	}
	resp := make([]Bar, len(b))
	copy(resp, b)
	return resp
}

// Bar returns a single bar. Offset -1 is the latest bar, -2 the one before
// and so on. Offset 0 is treated as -1
func (h *History) Bar(symbol string, offset int) (Bar, error) {
	b, ok := h.bars[symbol]
	if !ok || len(b) == 0 {
		return Bar{}, fmt.Errorf("%w: %v", ErrNoDataForSymbol, symbol)
	}
	if offset == 0 {
		offset = -1
	}
	idx := len(b) + offset
	if offset > 0 || idx < 0 {
		return Bar{}, fmt.Errorf("%w: %v offset %d with %d bars", ErrOffsetOutOfRange, symbol, offset, len(b))
	}
	return b[idx], nil
}

// Len returns how many bars are retained for a symbol
func (h *History) Len(symbol string) int {
	return len(h.bars[symbol])
}

// Closes returns the retained close prices of a symbol as floats, which is
// the form technical indicator libraries consume
func (h *History) Closes(symbol string) []float64 {
	return h.floats(symbol, func(b *Bar) decimal.Decimal { return b.Close })
}

// Highs returns the retained high prices of a symbol as floats
func (h *History) Highs(symbol string) []float64 {
	return h.floats(symbol, func(b *Bar) decimal.Decimal { return b.High })
}

// Lows returns the retained low prices of a symbol as floats
func (h *History) Lows(symbol string) []float64 {
	return h.floats(symbol, func(b *Bar) decimal.Decimal { return b.Low })
}

func (h *History) floats(symbol string, fn func(*Bar) decimal.Decimal) []float64 {
	b := h.bars[symbol]
	resp := make([]float64, len(b))
	for i := range b {
		resp[i] = fn(&b[i]).InexactFloat64()
	}
	return resp
}
