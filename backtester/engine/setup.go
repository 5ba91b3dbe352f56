package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/config"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/data/kline"
	"github.com/thrasher-corp/barsim/backtester/data/kline/csv"
	"github.com/thrasher-corp/barsim/backtester/data/kline/database"
	"github.com/thrasher-corp/barsim/backtester/data/kline/jsonfile"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies"
	"github.com/thrasher-corp/barsim/log"
)

var errUnsupportedFile = errors.New("unsupported candle file")

// NewFromConfig validates cfg, loads its strategy and candles and returns a
// backtest ready to run
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*BackTest, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w config", common.ErrNilArguments)
	}
	log.Infoln(common.Setup, "loading config...")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.PrintSetting()

	strategy, err := strategies.LoadStrategyByName(cfg.StrategySettings.Name)
	if err != nil {
		return nil, err
	}
	if err = strategy.SetCustomSettings(cfg.StrategySettings.CustomSettings); err != nil {
		return nil, err
	}

	bars, err := LoadBars(ctx, &cfg.DataSettings)
	if err != nil {
		return nil, err
	}
	feed, err := data.NewFeed(bars)
	if err != nil {
		return nil, err
	}
	log.Infof(log.DataMgr, "loaded %v steps for %v", feed.Len(), strings.Join(feed.Symbols(), ","))
	return NewBackTest(cfg, feed, strategy, opts...)
}

// LoadBars reads every configured symbol's candles from its file or the
// database, trimmed to the configured date range
func LoadBars(ctx context.Context, d *config.DataSettings) (map[string][]data.Bar, error) {
	if d == nil {
		return nil, fmt.Errorf("%w data settings", common.ErrNilArguments)
	}
	resp := make(map[string][]data.Bar)
	switch {
	case d.FileData != nil:
		for i := range d.FileData.Files {
			f := &d.FileData.Files[i]
			bars, err := loadFile(f.Path, f.Symbol)
			if err != nil {
				return nil, err
			}
			if resp[f.Symbol], err = kline.Prepare(f.Symbol, bars, d.StartDate, d.EndDate); err != nil {
				return nil, err
			}
			log.Debugf(log.DataMgr, "loaded %v bars for %v from %v", len(resp[f.Symbol]), f.Symbol, f.Path)
		}
	case d.DatabaseData != nil:
		err := loadDatabase(ctx, d, resp)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w data source", common.ErrNilArguments)
	}
	return resp, nil
}

func loadFile(path, symbol string) ([]data.Bar, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return csv.LoadData(path, symbol)
	case ".json":
		return jsonfile.LoadData(path, symbol)
	default:
		return nil, fmt.Errorf("%w '%v'", errUnsupportedFile, path)
	}
}

func loadDatabase(ctx context.Context, d *config.DataSettings, resp map[string][]data.Bar) (err error) {
	db := d.DatabaseData
	src, err := database.Open(db.Driver, db.ConnectionString)
	if err != nil {
		return err
	}
	defer func() {
		err = common.AppendError(err, src.Close())
	}()
	if db.RunMigrations {
		if err = src.Migrate(db.MigrationDir); err != nil {
			return err
		}
	}
	for _, sym := range db.Symbols {
		var bars []data.Bar
		bars, err = src.LoadData(ctx, sym, d.Interval, d.StartDate, d.EndDate)
		if err != nil {
			return err
		}
		if resp[sym], err = kline.Prepare(sym, bars, d.StartDate, d.EndDate); err != nil {
			return err
		}
		log.Debugf(log.DataMgr, "loaded %v bars for %v from %v", len(resp[sym]), sym, db.Driver)
	}
	return nil
}
