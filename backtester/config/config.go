package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kat-co/vala"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/slippage"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/holdings"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/portfolio/size"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies"
	"github.com/thrasher-corp/barsim/log"
)

// runDefaults are applied beneath every run config
var runDefaults = map[string]any{
	"data-settings.interval":                 "1d",
	"broker-settings.initial-capital":        100000,
	"broker-settings.market-price":           common.MarketPriceClose,
	"broker-settings.commission.maker":       0.001,
	"broker-settings.commission.taker":       0.001,
	"broker-settings.commission.minimum":     0,
	"broker-settings.slippage.model":         slippage.PercentName,
	"broker-settings.slippage.fixed-amount":  0,
	"broker-settings.slippage.percent":       0.0005,
	"broker-settings.slippage.volume-impact": 0.1,
	"broker-settings.sizer.name":             size.FixedName,
	"broker-settings.sizer.stake":            1,
	"broker-settings.sizer.percent":          20,
	"broker-settings.sizer.risk-percent":     2,
	"broker-settings.sizer.atr-period":       14,
	"broker-settings.sizer.atr-multiplier":   2,
	"statistic-settings.periods-per-year":    365,
	"statistic-settings.risk-free-rate":      0,
	"run-settings.history-limit":             0,
	"run-settings.disable-run-log":           false,
}

func newViper(defaults map[string]any) *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// decode round trips viper's merged settings through the json tags so
// decimals and intervals use their own unmarshallers
func decode(v *viper.Viper, resp any) error {
	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, resp)
}

// ReadConfigFromFile will take a config from a path
func ReadConfigFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrFileNotFound, path)
	}
	v := newViper(runDefaults)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var resp Config
	if err := decode(v, &resp); err != nil {
		return nil, err
	}
	log.Debugf(log.ConfigMgr, "read run config %v", path)
	return &resp, nil
}

// LoadConfig unmarshalls json data into a config struct over the defaults
func LoadConfig(data []byte) (*Config, error) {
	v := newViper(runDefaults)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	var resp Config
	if err := decode(v, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate checks all config settings. Every failing section is reported
func (c *Config) Validate() error {
	if c == nil {
		return errNilConfig
	}
	var errs error
	for _, fn := range []func() error{
		c.validateStrategySettings,
		c.validateDataSettings,
		c.validateBrokerSettings,
		c.validateStatisticSettings,
		c.validateRunSettings,
	} {
		errs = common.AppendError(errs, fn())
	}
	if errs != nil {
		return fmt.Errorf("%w: %w", errInvalidConfig, errs)
	}
	return nil
}

func (c *Config) validateStrategySettings() error {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.StrategySettings.Name, "strategy-settings.name"),
	).Check()
	if err != nil {
		return err
	}
	strat, err := strategies.LoadStrategyByName(c.StrategySettings.Name)
	if err != nil {
		return err
	}
	return strat.SetCustomSettings(c.StrategySettings.CustomSettings)
}

func (c *Config) validateDataSettings() error {
	d := &c.DataSettings
	if d.Interval <= 0 {
		return fmt.Errorf("data-settings.interval %w", data.ErrInvalidInterval)
	}
	if !d.StartDate.IsZero() && !d.EndDate.IsZero() && !d.StartDate.Before(d.EndDate) {
		return fmt.Errorf("%w start: %v end: %v", errBadDate, d.StartDate, d.EndDate)
	}
	switch {
	case d.FileData == nil && d.DatabaseData == nil:
		return errNoDataSource
	case d.FileData != nil && d.DatabaseData != nil:
		return errMultipleDataSources
	case d.FileData != nil:
		if len(d.FileData.Files) == 0 {
			return fmt.Errorf("file-data %w", errNoSymbols)
		}
		for i := range d.FileData.Files {
			f := &d.FileData.Files[i]
			err := vala.BeginValidation().Validate(
				vala.StringNotEmpty(f.Symbol, "file-data.files.symbol"),
				vala.StringNotEmpty(f.Path, "file-data.files.path"),
			).Check()
			if err != nil {
				return err
			}
			switch strings.ToLower(filepath.Ext(f.Path)) {
			case ".csv", ".json":
			default:
				return fmt.Errorf("%w '%v'", errUnsupportedDataFormat, f.Path)
			}
		}
	default:
		db := d.DatabaseData
		err := vala.BeginValidation().Validate(
			vala.StringNotEmpty(db.ConnectionString, "database-data.connection-string"),
			oneOf(db.Driver, "database-data.driver", DriverSQLite, DriverPostgres),
		).Check()
		if err != nil {
			return fmt.Errorf("%w: %v", errUnsupportedDriver, err)
		}
		if len(db.Symbols) == 0 {
			return fmt.Errorf("database-data %w", errNoSymbols)
		}
	}
	return nil
}

func (c *Config) validateBrokerSettings() error {
	b := &c.BrokerSettings
	err := vala.BeginValidation().Validate(
		decimalWithin(b.InitialCapital, decimal.Zero, holdings.MaxCapital, "broker-settings.initial-capital"),
	).Check()
	if err != nil {
		return fmt.Errorf("%w: %v", errCapitalOutOfRange, err)
	}
	if b.MarketPrice, err = common.ValidateMarketPrice(b.MarketPrice); err != nil {
		return err
	}
	if err = b.Commission.Validate(); err != nil {
		return err
	}
	if _, err = b.SlippageModel(); err != nil {
		return err
	}
	_, err = b.DefaultSizer()
	return err
}

func (c *Config) validateStatisticSettings() error {
	err := vala.BeginValidation().Validate(
		floatAbove(c.StatisticSettings.PeriodsPerYear, 0, "statistic-settings.periods-per-year"),
		floatAbove(c.StatisticSettings.RiskFreeRate, -1, "statistic-settings.risk-free-rate"),
	).Check()
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidStatistics, err)
	}
	return nil
}

func (c *Config) validateRunSettings() error {
	err := vala.BeginValidation().Validate(
		vala.Not(vala.GreaterThan(0, c.RunSettings.HistoryLimit, "run-settings.history-limit")),
	).Check()
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidRunSettings, err)
	}
	return nil
}

// SlippageModel builds the configured slippage model
func (b *BrokerSettings) SlippageModel() (slippage.Model, error) {
	return slippage.New(b.Slippage.Model, b.Slippage.Params)
}

// DefaultSizer builds the configured default sizer
func (b *BrokerSettings) DefaultSizer() (size.Sizer, error) {
	return size.New(b.Sizer.Name, b.Sizer.Params)
}

// Symbols returns the symbols the data settings load in config order
func (c *Config) Symbols() []string {
	switch {
	case c.DataSettings.FileData != nil:
		resp := make([]string, len(c.DataSettings.FileData.Files))
		for i := range c.DataSettings.FileData.Files {
			resp[i] = c.DataSettings.FileData.Files[i].Symbol
		}
		return resp
	case c.DataSettings.DatabaseData != nil:
		return c.DataSettings.DatabaseData.Symbols
	}
	return nil
}

func oneOf(v, name string, allowed ...string) vala.Checker {
	return func() (bool, string) {
		for i := range allowed {
			if strings.EqualFold(v, allowed[i]) {
				return true, ""
			}
		}
		return false, fmt.Sprintf("%v '%v' must be one of %v", name, v, strings.Join(allowed, ", "))
	}
}

func decimalWithin(v, exclusiveMinimum, maximum decimal.Decimal, name string) vala.Checker {
	return func() (bool, string) {
		if v.GreaterThan(exclusiveMinimum) && v.LessThanOrEqual(maximum) {
			return true, ""
		}
		return false, fmt.Sprintf("%v %v must be above %v and at most %v", name, v, exclusiveMinimum, maximum)
	}
}

func floatAbove(v, exclusiveMinimum float64, name string) vala.Checker {
	return func() (bool, string) {
		if v > exclusiveMinimum {
			return true, ""
		}
		return false, fmt.Sprintf("%v %v must be above %v", name, v, exclusiveMinimum)
	}
}

// PrintSetting prints relevant settings to the console for easy reading
func (c *Config) PrintSetting() {
	log.Info(common.Setup, "------------------Backtester Settings------------------------")
	log.Info(common.Setup, "------------------Strategy Settings--------------------------")
	log.Infof(common.Setup, "Strategy: %s", c.StrategySettings.Name)
	if len(c.StrategySettings.CustomSettings) > 0 {
		log.Info(common.Setup, "Custom strategy variables:")
		for k, v := range c.StrategySettings.CustomSettings {
			if k == "script" {
				v = fmt.Sprintf("%v bytes", len(fmt.Sprint(v)))
			}
			log.Infof(common.Setup, "%s: %v", k, v)
		}
	} else {
		log.Info(common.Setup, "Custom strategy variables: unset")
	}
	log.Info(common.Setup, "------------------Broker Settings----------------------------")
	b := &c.BrokerSettings
	log.Infof(common.Setup, "Initial capital: %v", b.InitialCapital)
	log.Infof(common.Setup, "Market price reference: %v", b.MarketPrice)
	log.Infof(common.Setup, "Maker fee: %v", b.Commission.Maker)
	log.Infof(common.Setup, "Taker fee: %v", b.Commission.Taker)
	log.Infof(common.Setup, "Minimum fee: %v", b.Commission.Minimum)
	log.Infof(common.Setup, "Slippage model: %v %+v", b.Slippage.Model, b.Slippage.Params)
	log.Infof(common.Setup, "Sizer: %v", b.Sizer.Name)
	if b.Benchmark != "" {
		log.Infof(common.Setup, "Benchmark: %v", b.Benchmark)
	}
	log.Info(common.Setup, "------------------Data Settings------------------------------")
	log.Infof(common.Setup, "Interval: %v", c.DataSettings.Interval)
	log.Infof(common.Setup, "Symbols: %v", strings.Join(c.Symbols(), ", "))
	if !c.DataSettings.StartDate.IsZero() {
		log.Infof(common.Setup, "Start date: %v", c.DataSettings.StartDate.Format(common.SimpleTimeFormat))
	}
	if !c.DataSettings.EndDate.IsZero() {
		log.Infof(common.Setup, "End date: %v", c.DataSettings.EndDate.Format(common.SimpleTimeFormat))
	}
	if c.DataSettings.DatabaseData != nil {
		log.Infof(common.Setup, "Database driver: %v", c.DataSettings.DatabaseData.Driver)
	}
}

// GenerateDefaultConfig returns the default application config
func GenerateDefaultConfig() (*BacktesterConfig, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return &BacktesterConfig{
		Report: Report{
			GenerateReport: true,
			OutputPath:     filepath.Join(wd, "results"),
			RunLog:         true,
		},
		Server: Server{
			ListenAddress: DefaultListenAddress,
			ProgressRate:  10,
			Metrics:       true,
		},
		Logging: log.GenDefaultSettings(),
	}, nil
}

// ReadBacktesterConfigFromPath loads the application config over its
// defaults
func ReadBacktesterConfigFromPath(path string) (*BacktesterConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrFileNotFound, path)
	}
	def, err := GenerateDefaultConfig()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	v := newViper(nil)
	if err = v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	v.SetConfigFile(path)
	if err = v.MergeInConfig(); err != nil {
		return nil, err
	}
	var resp BacktesterConfig
	if err = decode(v, &resp); err != nil {
		return nil, err
	}
	log.Debugf(log.ConfigMgr, "read application config %v", path)
	return &resp, nil
}
