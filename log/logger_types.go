package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	timestampFormat = "02/01/2006 15:04:05"
	defaultLevels   = "INFO|WARN|DEBUG|ERROR"
)

var (
	// read/write mutex for logger
	mu = &sync.RWMutex{}

	subLoggers = map[string]*SubLogger{}

	globalConfig = GenDefaultSettings()
	core         zapcore.Core
	base         *zap.Logger
)

// Config holds configuration settings loaded from the backtester config
type Config struct {
	Enabled bool `json:"enabled"`
	SubLoggerConfig
	// Encoding is either "console" or "json"
	Encoding        string            `json:"encoding"`
	TimestampFormat string            `json:"timestamp-format"`
	SubLoggers      []SubLoggerConfig `json:"subloggers,omitempty"`
}

// SubLoggerConfig holds sub logger configuration settings
type SubLoggerConfig struct {
	Name   string `json:"name,omitempty"`
	Level  string `json:"level"`
	Output string `json:"output"`
}

// Levels flags for each sub logger type
type Levels struct {
	Info, Debug, Warn, Error bool
}

// SubLogger defines a sub logger can be used externally for packages wanted to
// leverage GCT library logger features.
type SubLogger struct {
	name   string
	levels Levels
	output string
	zl     *zap.Logger
}
