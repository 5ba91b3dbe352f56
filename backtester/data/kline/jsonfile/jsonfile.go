package jsonfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/buger/jsonparser"
	"github.com/shopspring/decimal"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/data/kline"
)

var (
	errUnexpectedType = errors.New("unexpected json type")
	errMissingField   = errors.New("missing field")
)

// candle object keys accepted for the bar timestamp, in order of preference
var timeKeys = []string{"time", "timestamp", "date", "open_time", "t"}

// positional fields of exchange kline arrays after the OHLCV columns
var arrayExtras = map[int]string{
	6:  "close_time",
	7:  "quote_volume",
	8:  "trade_count",
	9:  "taker_buy_base",
	10: "taker_buy_quote",
}

// LoadData reads candles for symbol from a JSON file
func LoadData(path, symbol string) ([]data.Bar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, symbol)
}

// Parse reads candles from a JSON document. The document is either an array
// or an object holding the array under "bars", "candles" or "data". Each
// candle is either an object with time, open, high, low, close and
// volume fields or an exchange kline array of
// [time, open, high, low, close, volume, ...]
func Parse(doc []byte, symbol string) ([]data.Bar, error) {
	candles, dataType, _, err := jsonparser.Get(doc)
	if err != nil {
		return nil, err
	}
	if dataType == jsonparser.Object {
		candles, err = candleArray(candles)
		if err != nil {
			return nil, err
		}
	} else if dataType != jsonparser.Array {
		return nil, fmt.Errorf("%w %v at document root", errUnexpectedType, dataType)
	}

	var (
		resp     []data.Bar
		parseErr error
	)
	_, err = jsonparser.ArrayEach(candles, func(value []byte, vt jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		var b data.Bar
		switch vt {
		case jsonparser.Object:
			b, parseErr = parseObject(value)
		case jsonparser.Array:
			b, parseErr = parseArray(value)
		default:
			parseErr = fmt.Errorf("%w %v for candle", errUnexpectedType, vt)
		}
		if parseErr != nil {
			parseErr = fmt.Errorf("%v candle %v: %w", symbol, len(resp)+1, parseErr)
			return
		}
		b.Symbol = symbol
		b.Offset = int64(len(resp) + 1)
		resp = append(resp, b)
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("%w for %v", kline.ErrNoCandleData, symbol)
	}
	return resp, nil
}

func candleArray(obj []byte) ([]byte, error) {
	for _, key := range []string{"bars", "candles", "data"} {
		v, vt, _, err := jsonparser.Get(obj, key)
		if errors.Is(err, jsonparser.KeyPathNotFoundError) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if vt != jsonparser.Array {
			return nil, fmt.Errorf("%w %v for '%v'", errUnexpectedType, vt, key)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: no bars, candles or data array", errMissingField)
}

func parseObject(obj []byte) (data.Bar, error) {
	var b data.Bar
	var err error
	found := false
	for _, key := range timeKeys {
		v, vt, _, getErr := jsonparser.Get(obj, key)
		if getErr != nil {
			continue
		}
		if b.Time, err = parseTime(v, vt); err != nil {
			return b, err
		}
		found = true
		break
	}
	if !found {
		return b, fmt.Errorf("%w 'time'", errMissingField)
	}

	fields := []struct {
		key      string
		dst      *decimal.Decimal
		optional bool
	}{
		{"open", &b.Open, false},
		{"high", &b.High, false},
		{"low", &b.Low, false},
		{"close", &b.Close, false},
		{"volume", &b.Volume, true},
	}
	for i := range fields {
		v, vt, _, getErr := jsonparser.Get(obj, fields[i].key)
		if errors.Is(getErr, jsonparser.KeyPathNotFoundError) {
			if fields[i].optional {
				continue
			}
			return b, fmt.Errorf("%w '%v'", errMissingField, fields[i].key)
		}
		if getErr != nil {
			return b, getErr
		}
		if *fields[i].dst, err = parseDecimal(v, vt); err != nil {
			return b, fmt.Errorf("%v: %w", fields[i].key, err)
		}
	}
	return b, nil
}

func parseArray(arr []byte) (data.Bar, error) {
	var (
		b    data.Bar
		vals [][]byte
		vts  []jsonparser.ValueType
	)
	_, err := jsonparser.ArrayEach(arr, func(value []byte, vt jsonparser.ValueType, _ int, _ error) {
		vals = append(vals, value)
		vts = append(vts, vt)
	})
	if err != nil {
		return b, err
	}
	if len(vals) < 5 {
		return b, fmt.Errorf("%w: kline array needs at least 5 fields, got %v", errMissingField, len(vals))
	}
	if b.Time, err = parseTime(vals[0], vts[0]); err != nil {
		return b, err
	}
	dst := []*decimal.Decimal{&b.Open, &b.High, &b.Low, &b.Close, &b.Volume}
	for i := range dst {
		if i+1 >= len(vals) {
			break
		}
		if *dst[i], err = parseDecimal(vals[i+1], vts[i+1]); err != nil {
			return b, err
		}
	}
	for i, name := range arrayExtras {
		if i >= len(vals) {
			continue
		}
		v, err := parseDecimal(vals[i], vts[i])
		if err != nil {
			continue
		}
		if b.Extra == nil {
			b.Extra = make(map[string]decimal.Decimal, len(arrayExtras))
		}
		b.Extra[name] = v
	}
	return b, nil
}

func parseTime(v []byte, vt jsonparser.ValueType) (time.Time, error) {
	switch vt {
	case jsonparser.Number, jsonparser.String:
		return kline.ParseTime(string(v))
	default:
		return time.Time{}, fmt.Errorf("%w %v for time", errUnexpectedType, vt)
	}
}

func parseDecimal(v []byte, vt jsonparser.ValueType) (decimal.Decimal, error) {
	switch vt {
	case jsonparser.Number, jsonparser.String:
		return decimal.NewFromString(string(v))
	default:
		return decimal.Zero, fmt.Errorf("%w %v for number", errUnexpectedType, vt)
	}
}
