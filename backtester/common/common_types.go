package common

import (
	"errors"

	"github.com/thrasher-corp/barsim/log"
)

const (
	// DefaultSymbol is used by single symbol feeds when no symbol is supplied
	DefaultSymbol = "DEFAULT"
	// MarketPriceClose fills market orders at the bar's close
	MarketPriceClose = "close"
	// MarketPriceOpen fills market orders at the bar's open
	MarketPriceOpen = "open"
	// SimpleTimeFormat is used when printing dates to logs and reports
	SimpleTimeFormat = "2006-01-02 15:04:05"
)

var (
	// ErrNilArguments is a common error response to highlight that nils were passed in
	// when they should not have been
	ErrNilArguments = errors.New("received nil argument(s)")
	// ErrNilEvent is a common error for whenever a nil event occurs when it shouldn't have
	ErrNilEvent = errors.New("nil event received")
	// ErrNilPointer is returned when a method is called on a nil receiver
	ErrNilPointer = errors.New("nil pointer")
	// ErrFileNotFound is returned when a config or data file does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrInvalidMarketPrice is returned when a market price reference is not open or close
	ErrInvalidMarketPrice = errors.New("invalid market price reference")
)

// sub loggers for the backtester
var (
	Backtester = log.MustNewSubLogger("BACKTESTER")
	Setup      = log.MustNewSubLogger("SETUP")
	Broker     = log.MustNewSubLogger("BROKER")
	Strategy   = log.MustNewSubLogger("STRATEGY")
	Statistics = log.MustNewSubLogger("STATISTICS")
	Report     = log.MustNewSubLogger("REPORT")
)
