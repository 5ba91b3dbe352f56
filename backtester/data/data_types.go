package data

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrSymbolHasNoData is returned when a symbol is requested for a run but
	// has no observations in the whole window
	ErrSymbolHasNoData = errors.New("symbol has no data")
	// ErrNoDataForSymbol is returned when history is requested for a symbol
	// which has not produced a bar yet
	ErrNoDataForSymbol = errors.New("no data for symbol")
	// ErrOffsetOutOfRange is returned when a historical bar offset is beyond
	// the retained history
	ErrOffsetOutOfRange = errors.New("offset out of range")
	// ErrInvalidInterval is returned for unparseable or non-positive intervals
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrInvalidBar is returned when OHLC values are inconsistent
	ErrInvalidBar = errors.New("invalid bar")
)

// DefaultLookback is the default number of bars returned by history lookups
const DefaultLookback = 100

// Bar is one OHLCV sample for a fixed time interval. It is a value type and
// is never mutated once produced by a feed
type Bar struct {
	Symbol string          `json:"symbol"`
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
	// Offset is the 1-based position of the bar within its own stream
	Offset int64 `json:"offset"`
	// Stale is set when the bar was forward-filled onto a timestamp at which
	// the symbol had no observation of its own
	Stale bool `json:"stale,omitempty"`
	// Extra carries optional exchange specific fields such as quote volume
	Extra map[string]decimal.Decimal `json:"extra,omitempty"`
}

// Step is a single aligned observation handed to the broker and strategy
type Step struct {
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
	// Bars holds the base timeframe bar per symbol. Symbols without any
	// observation up to Time are absent
	Bars map[string]Bar `json:"bars"`
	// Frames holds closed higher timeframe bars keyed by interval
	Frames map[Interval]map[string]Bar `json:"frames,omitempty"`
}

// Feed produces a finite, single pass sequence of aligned steps
type Feed interface {
	Next() (Step, bool)
	Len() int
	Symbols() []string
}

// Base is the base implementation of a single symbol stream
type Base struct {
	stream []Bar
	offset int
}

// SingleFeed passes one symbol's bars through in ascending time order
type SingleFeed struct {
	symbol string
	base   Base
}

// MultiFeed aligns many symbols onto the union of their timestamps,
// forward-filling symbols which have no observation at a timestamp
type MultiFeed struct {
	symbols  []string
	streams  map[string][]Bar
	cursors  map[string]int
	last     map[string]*Bar
	timeline []time.Time
	offset   int
}

// TimeframeAlignedFeed exposes closed higher timeframe bars alongside a base
// feed. A higher timeframe bar opening at T becomes visible at T+interval
type TimeframeAlignedFeed struct {
	base    Feed
	higher  map[Interval]map[string][]Bar
	cursors map[Interval]map[string]int
	seen    map[Interval]map[string]Bar
}

// History retains the bars a strategy has already been shown
type History struct {
	max  int
	bars map[string][]Bar
}
