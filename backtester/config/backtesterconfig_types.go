package config

import (
	"github.com/thrasher-corp/barsim/log"
)

// DefaultListenAddress is where the task server listens unless configured
const DefaultListenAddress = "localhost:9054"

// BacktesterConfig contains the configuration for the backtester
// application rather than a single run
type BacktesterConfig struct {
	Verbose             bool       `json:"verbose"`
	StopAllTasksOnClose bool       `json:"stop-all-tasks-on-close"`
	Report              Report     `json:"report"`
	Server              Server     `json:"server"`
	Logging             log.Config `json:"logging"`
}

// Report contains the report settings
type Report struct {
	GenerateReport bool   `json:"output-report"`
	OutputPath     string `json:"output-path"`
	RunLog         bool   `json:"output-run-log"`
}

// Server holds the task server configuration
type Server struct {
	Enabled       bool   `json:"enabled"`
	ListenAddress string `json:"listen-address"`
	// ProgressRate caps progress messages per second for each subscriber
	ProgressRate float64 `json:"progress-rate"`
	Metrics      bool    `json:"metrics"`
}
