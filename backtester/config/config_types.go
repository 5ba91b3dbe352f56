package config

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/commission"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/slippage"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/size"
)

// EnvPrefix prefixes environment variables which override config values,
// for example BARSIM_BROKER_SETTINGS_INITIAL_CAPITAL
const EnvPrefix = "BARSIM"

// Supported database drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	errNilConfig             = errors.New("nil config received")
	errInvalidConfig         = errors.New("invalid config")
	errNoDataSource          = errors.New("no data source configured")
	errMultipleDataSources   = errors.New("only one data source can be configured")
	errNoSymbols             = errors.New("no symbols configured")
	errBadDate               = errors.New("start date must be before end date")
	errUnsupportedDriver     = errors.New("unsupported database driver")
	errInvalidStatistics     = errors.New("invalid statistic settings")
	errInvalidRunSettings    = errors.New("invalid run settings")
	errCapitalOutOfRange     = errors.New("initial capital out of range")
	errUnsupportedDataFormat = errors.New("unsupported data file format")
)

// Config defines what is in an individual strategy config
type Config struct {
	Nickname          string            `json:"nickname"`
	Goal              string            `json:"goal"`
	StrategySettings  StrategySettings  `json:"strategy-settings"`
	DataSettings      DataSettings      `json:"data-settings"`
	BrokerSettings    BrokerSettings    `json:"broker-settings"`
	StatisticSettings StatisticSettings `json:"statistic-settings"`
	RunSettings       RunSettings       `json:"run-settings"`
}

// StrategySettings contains what strategy to load, along with custom settings
type StrategySettings struct {
	Name           string         `json:"name"`
	CustomSettings map[string]any `json:"custom-settings,omitempty"`
}

// DataSettings is a container for each type of data retrieval setting.
// Only one of file or database data can be set
type DataSettings struct {
	Interval     data.Interval `json:"interval"`
	StartDate    time.Time     `json:"start-date"`
	EndDate      time.Time     `json:"end-date"`
	FileData     *FileData     `json:"file-data,omitempty"`
	DatabaseData *DatabaseData `json:"database-data,omitempty"`
}

// FileData lists a candle file per symbol
type FileData struct {
	Files []FileSource `json:"files"`
}

// FileSource is one symbol's candles in a CSV or JSON file
type FileSource struct {
	Symbol string `json:"symbol"`
	Path   string `json:"path"`
}

// DatabaseData defines the database settings to use for the strategy
type DatabaseData struct {
	Driver           string   `json:"driver"`
	ConnectionString string   `json:"connection-string"`
	Symbols          []string `json:"symbols"`
	RunMigrations    bool     `json:"run-migrations"`
	// MigrationDir overrides the candle schema migration folder
	MigrationDir string `json:"migration-dir,omitempty"`
}

// BrokerSettings configures the simulated broker
type BrokerSettings struct {
	InitialCapital decimal.Decimal   `json:"initial-capital"`
	MarketPrice    string            `json:"market-price"`
	Commission     commission.Scheme `json:"commission"`
	Slippage       SlippageSettings  `json:"slippage"`
	Sizer          SizerSettings     `json:"sizer"`
	// Benchmark is an optional symbol whose buy and hold return is reported
	// alongside the run
	Benchmark string `json:"benchmark,omitempty"`
}

// SlippageSettings selects a slippage model and its parameters
type SlippageSettings struct {
	Model string `json:"model"`
	slippage.Params
}

// SizerSettings selects the default sizer and its parameters
type SizerSettings struct {
	Name string `json:"name"`
	size.Params
}

// StatisticSettings tune the analyser
type StatisticSettings struct {
	PeriodsPerYear float64 `json:"periods-per-year"`
	RiskFreeRate   float64 `json:"risk-free-rate"`
}

// RunSettings tune the engine
type RunSettings struct {
	// HistoryLimit caps the bars retained per symbol for strategies. Zero
	// keeps everything
	HistoryLimit  int  `json:"history-limit"`
	DisableRunLog bool `json:"disable-run-log"`
}
