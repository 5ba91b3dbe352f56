package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/config"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/holdings"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/size"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/statistics"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/fill"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
	"golang.org/x/time/rate"
)

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// maxNotificationsPerStep bounds the order and trade callbacks a single step
// can generate, a strategy which resubmits from every callback would
// otherwise never yield
const maxNotificationsPerStep = 10000

var (
	// ErrStrategyFault is recorded as the run error when a strategy callback
	// returns an error or panics
	ErrStrategyFault = errors.New("strategy fault")

	errNilFeed              = errors.New("nil data feed")
	errEmptyFeed            = errors.New("data feed has no steps")
	errNilStrategy          = errors.New("nil strategy")
	errNotSetup             = errors.New("backtest not setup")
	errTaskNotFound         = errors.New("task not found")
	errTaskAlreadyMonitored = errors.New("task already monitored")
	errAlreadyRan           = errors.New("task already ran")
	errTaskHasNotRan        = errors.New("task hasn't ran yet")
	errTaskIsRunning        = errors.New("task is already running")
	errCannotClear          = errors.New("cannot clear task")
	errNotificationOverflow = errors.New("too many order notifications in a single step")
	errNoResult             = errors.New("task has no result yet")
	errNilSubscriber        = errors.New("nil progress subscriber")
)

// Progress is reported after every processed step
type Progress struct {
	Index  int             `json:"index"`
	Total  int             `json:"total"`
	Equity decimal.Decimal `json:"equity"`
	Time   time.Time       `json:"time"`
}

// ProgressFunc receives progress updates. It is called on the run's
// goroutine and must not block
type ProgressFunc func(Progress)

// Option configures a BackTest
type Option func(*BackTest)

// BackTest is a single simulation run. It owns its broker, history and
// strategy and runs at most once
type BackTest struct {
	m        sync.Mutex
	MetaData TaskMetaData
	Strategy strategies.Handler

	cfg       *config.Config
	feed      data.Feed
	exch      *exchange.Exchange
	rc        *runContext
	progress  []ProgressFunc
	metrics   *Metrics
	statistic statistics.Options
	cancel    context.CancelFunc
	last      Progress
	result    *Result
	done      chan struct{}
}

// runContext is the strategy's view of a running backtest. It implements
// base.API and receives the exchange's notifications
type runContext struct {
	exch       *exchange.Exchange
	history    *data.History
	sizer      size.Sizer
	params     size.Params
	symbols    []string
	strategy   strategies.Handler
	step       *data.Step
	entry      *LogEntry
	disableLog bool
	queue      []notification
	observed   map[string]struct{}
	firstClose map[string]decimal.Decimal
}

// TaskMetaData contains details about a run such as when it was loaded
type TaskMetaData struct {
	ID          uuid.UUID `json:"id"`
	Strategy    string    `json:"strategy"`
	Nickname    string    `json:"nickname,omitempty"`
	Status      string    `json:"status"`
	DateLoaded  time.Time `json:"date-loaded"`
	DateStarted time.Time `json:"date-started"`
	DateEnded   time.Time `json:"date-ended"`
	Closed      bool      `json:"closed"`
}

// TaskSummary holds details of a BackTest
type TaskSummary struct {
	MetaData TaskMetaData        `json:"metadata"`
	Progress Progress            `json:"progress"`
	Error    string              `json:"error,omitempty"`
	Metrics  *statistics.Metrics `json:"metrics,omitempty"`
}

// Result is everything a run produced. Canceled and failed runs carry the
// history recorded up to the point they stopped
type Result struct {
	ID             uuid.UUID                `json:"id"`
	Strategy       string                   `json:"strategy"`
	Nickname       string                   `json:"nickname,omitempty"`
	Status         string                   `json:"status"`
	Error          string                   `json:"error,omitempty"`
	InitialCapital decimal.Decimal          `json:"initial-capital"`
	FinalEquity    decimal.Decimal          `json:"final-equity"`
	StepsProcessed int                      `json:"steps-processed"`
	TotalSteps     int                      `json:"total-steps"`
	EquityCurve    []statistics.ValueAtTime `json:"equity-curve"`
	Trades         []fill.Trade             `json:"trades"`
	Orders         []order.Order            `json:"orders"`
	Positions      []holdings.Position      `json:"positions"`
	Log            []LogEntry               `json:"-"`
	Metrics        *statistics.Metrics      `json:"metrics,omitempty"`
	// Symbols lists every symbol which produced a bar or traded
	Symbols []string `json:"symbols"`
	// TradedSymbols lists the symbols with at least one fill
	TradedSymbols []string   `json:"traded-symbols"`
	Benchmark     *Benchmark `json:"benchmark,omitempty"`
}

// Benchmark is the buy and hold return of a reference symbol over the run
type Benchmark struct {
	Symbol      string          `json:"symbol"`
	FirstClose  decimal.Decimal `json:"first-close"`
	LastClose   decimal.Decimal `json:"last-close"`
	TotalReturn float64         `json:"total-return"`
}

// LogEntry is the per step record of what the strategy saw and did
type LogEntry struct {
	Index      int                 `json:"index"`
	Time       time.Time           `json:"time"`
	Bars       map[string]data.Bar `json:"bars"`
	Indicators map[string]float64  `json:"indicators,omitempty"`
	Signals    []string            `json:"signals,omitempty"`
	Orders     []order.Order       `json:"orders,omitempty"`
	Trades     []fill.Trade        `json:"trades,omitempty"`
	Positions  []holdings.Position `json:"positions,omitempty"`
	Cash       decimal.Decimal     `json:"cash"`
	Equity     decimal.Decimal     `json:"equity"`
	Notes      []string            `json:"notes,omitempty"`
}

// notification is an order or trade event waiting to be handed to the
// strategy
type notification struct {
	order *order.Order
	trade *fill.Trade
}

// TaskManager contains all strategy tasks
type TaskManager struct {
	m       sync.Mutex
	tasks   []*BackTest
	rate    rate.Limit
	metrics *Metrics

	subM        sync.Mutex
	subscribers map[uuid.UUID][]*subscriber
}

// subscriber receives rate limited progress for a single task
type subscriber struct {
	m       sync.Mutex
	limiter *rate.Limiter
	updates chan Progress
	done    chan struct{}
	once    sync.Once
	closed  bool
}
