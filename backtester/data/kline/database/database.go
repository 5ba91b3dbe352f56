package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/data/kline"
	"github.com/thrasher-corp/barsim/log"
	"github.com/thrasher-corp/goose"
	"github.com/volatiletech/null"

	// import postgres driver
	_ "github.com/lib/pq"
	// import sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Extra bar fields persisted alongside the OHLCV columns
const (
	QuoteVolume = "quote_volume"
	TradeCount  = "trade_count"
)

// DefaultMigrationDir is the candle schema migration folder relative to the
// repository root
var DefaultMigrationDir = filepath.Join("backtester", "data", "kline", "database", "migrations")

var (
	errUnsupportedDriver = errors.New("unsupported database driver")
	errNoConnection      = errors.New("database connection not established")
	errInvalidInput      = errors.New("invalid input")
)

// Source reads and writes candles in a SQL database
type Source struct {
	db     *sql.DB
	driver string
}

// Open connects to a sqlite3 or postgres database
func Open(driver, connectionString string) (*Source, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w '%v'", errUnsupportedDriver, driver)
	}
	if connectionString == "" {
		return nil, fmt.Errorf("%w: empty connection string", errInvalidInput)
	}
	db, err := sql.Open(driver, connectionString)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, closeOnError(db, err)
	}
	log.Debugf(log.DataMgr, "connected to %v database", driver)
	return &Source{db: db, driver: driver}, nil
}

func closeOnError(db *sql.DB, err error) error {
	if closeErr := db.Close(); closeErr != nil {
		return errors.Join(err, closeErr)
	}
	return err
}

// Close closes the connection
func (s *Source) Close() error {
	if s == nil || s.db == nil {
		return errNoConnection
	}
	return s.db.Close()
}

// Migrate brings the candle schema up to date with the migrations in dir.
// An empty dir uses DefaultMigrationDir
func (s *Source) Migrate(dir string) error {
	if s == nil || s.db == nil {
		return errNoConnection
	}
	if dir == "" {
		dir = DefaultMigrationDir
	}
	log.Infof(log.DataMgr, "running %v migrations from %v", s.driver, dir)
	return goose.Run("up", s.db, s.driver, dir, "")
}

// InsertBars upserts bars keyed by symbol, interval and open time
func (s *Source) InsertBars(ctx context.Context, interval data.Interval, bars []data.Bar) error {
	if s == nil || s.db == nil {
		return errNoConnection
	}
	if interval <= 0 {
		return fmt.Errorf("%w %v", data.ErrInvalidInterval, interval)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO candlesticks
		(symbol, timeframe, open_time, open, high, low, close, volume, quote_volume, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
		open = excluded.open, high = excluded.high, low = excluded.low, close = excluded.close,
		volume = excluded.volume, quote_volume = excluded.quote_volume, trade_count = excluded.trade_count`))
	if err != nil {
		return rollback(tx, err)
	}
	defer stmt.Close()
	for i := range bars {
		b := &bars[i]
		if b.Symbol == "" {
			return rollback(tx, fmt.Errorf("%w: bar %v has no symbol", errInvalidInput, i))
		}
		if err = b.Validate(); err != nil {
			return rollback(tx, err)
		}
		var quoteVolume null.String
		if v, ok := b.Extra[QuoteVolume]; ok {
			quoteVolume = null.StringFrom(v.String())
		}
		var tradeCount null.Int64
		if v, ok := b.Extra[TradeCount]; ok {
			tradeCount = null.Int64From(v.IntPart())
		}
		_, err = stmt.ExecContext(ctx,
			strings.ToUpper(b.Symbol),
			interval.String(),
			b.Time.UnixMilli(),
			b.Open.String(),
			b.High.String(),
			b.Low.String(),
			b.Close.String(),
			b.Volume.String(),
			quoteVolume,
			tradeCount)
		if err != nil {
			return rollback(tx, err)
		}
	}
	return tx.Commit()
}

// LoadData returns symbol's candles for interval within [start, end]. Zero
// bounds are open
func (s *Source) LoadData(ctx context.Context, symbol string, interval data.Interval, start, end time.Time) ([]data.Bar, error) {
	if s == nil || s.db == nil {
		return nil, errNoConnection
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", errInvalidInput)
	}
	query := `SELECT open_time, open, high, low, close, volume, quote_volume, trade_count
		FROM candlesticks WHERE symbol = ? AND timeframe = ?`
	args := []any{strings.ToUpper(symbol), interval.String()}
	if !start.IsZero() {
		query += " AND open_time >= ?"
		args = append(args, start.UnixMilli())
	}
	if !end.IsZero() {
		query += " AND open_time <= ?"
		args = append(args, end.UnixMilli())
	}
	query += " ORDER BY open_time"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resp []data.Bar
	for rows.Next() {
		var (
			openTime                      int64
			open, high, low, closing, vol string
			quoteVolume                   null.String
			tradeCount                    null.Int64
		)
		if err = rows.Scan(&openTime, &open, &high, &low, &closing, &vol, &quoteVolume, &tradeCount); err != nil {
			return nil, err
		}
		b := data.Bar{
			Symbol: symbol,
			Time:   time.UnixMilli(openTime).UTC(),
			Offset: int64(len(resp) + 1),
		}
		for _, f := range []struct {
			v   string
			dst *decimal.Decimal
		}{
			{open, &b.Open},
			{high, &b.High},
			{low, &b.Low},
			{closing, &b.Close},
			{vol, &b.Volume},
		} {
			if *f.dst, err = decimal.NewFromString(f.v); err != nil {
				return nil, fmt.Errorf("%v %v: %w", symbol, b.Time, err)
			}
		}
		if quoteVolume.Valid {
			if v, err := decimal.NewFromString(quoteVolume.String); err == nil {
				b.Extra = map[string]decimal.Decimal{QuoteVolume: v}
			}
		}
		if tradeCount.Valid {
			if b.Extra == nil {
				b.Extra = make(map[string]decimal.Decimal, 1)
			}
			b.Extra[TradeCount] = decimal.NewFromInt(tradeCount.Int64)
		}
		resp = append(resp, b)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w for %v %v", kline.ErrNoCandleData, symbol, interval)
	}
	return resp, nil
}

// rebind converts ? placeholders to the driver's bind style
func (s *Source) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			sb.WriteByte(query[i])
			continue
		}
		n++
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}

func rollback(tx *sql.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil {
		return errors.Join(err, rbErr)
	}
	return err
}
