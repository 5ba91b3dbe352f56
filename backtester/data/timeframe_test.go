package data

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframeAlignedFeed(t *testing.T) {
	t.Parallel()
	var base []Bar
	for i := 0; i < 130; i += 10 {
		base = append(base, bar("", i, float64(i)))
	}
	hourly := []Bar{
		{Time: tt, Open: decimal.NewFromInt(1), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2)},
		{Time: tt.Add(time.Hour), Open: decimal.NewFromInt(2), High: decimal.NewFromInt(3), Low: decimal.NewFromInt(2), Close: decimal.NewFromInt(3)},
	}
	f, err := NewTimeframeAlignedFeed(NewSingleFeed("BTC", base), map[Interval]map[string][]Bar{
		OneHour: {"BTC": hourly},
	})
	require.NoError(t, err)
	assert.Equal(t, len(base), f.Len())
	assert.Equal(t, []string{"BTC"}, f.Symbols())

	steps := drain(t, f)
	require.Len(t, steps, 13)
	for i := range steps {
		elapsed := steps[i].Time.Sub(tt)
		h, ok := steps[i].Frame(OneHour, "BTC")
		switch {
		case elapsed < time.Hour:
			assert.Falsef(t, ok, "hourly bar visible before close at %v", elapsed)
		case elapsed < 2*time.Hour:
			require.True(t, ok)
			assert.Equal(t, tt, h.Time)
		default:
			require.True(t, ok)
			assert.Equal(t, tt.Add(time.Hour), h.Time)
		}
	}
}

func TestTimeframeAlignedFeedErrors(t *testing.T) {
	t.Parallel()
	_, err := NewTimeframeAlignedFeed(nil, nil)
	assert.ErrorIs(t, err, ErrSymbolHasNoData)

	_, err = NewTimeframeAlignedFeed(NewSingleFeed("A", nil), map[Interval]map[string][]Bar{0: nil})
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
