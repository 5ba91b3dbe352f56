package slippage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

func TestNew(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", NoneName, FixedName, "PERCENT", VolumeName} {
		m, err := New(name, DefaultParams())
		require.NoError(t, err, name)
		assert.NotNil(t, m)
	}
	_, err := New("random", DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = New(FixedName, Params{FixedAmount: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, ErrNegativeParameter)
}

func TestNone(t *testing.T) {
	t.Parallel()
	m := None{}
	assert.Equal(t, NoneName, m.Name())
	assert.True(t, m.Apply(hundred, one, true, hundred).Equal(hundred))
}

func TestFixed(t *testing.T) {
	t.Parallel()
	m := &Fixed{Amount: decimal.NewFromFloat(0.01)}
	assert.Equal(t, FixedName, m.Name())
	assert.True(t, m.Apply(hundred, one, true, decimal.Zero).Equal(decimal.NewFromFloat(100.01)))
	assert.True(t, m.Apply(hundred, one, false, decimal.Zero).Equal(decimal.NewFromFloat(99.99)))

	m = &Fixed{Amount: decimal.NewFromInt(500)}
	assert.True(t, m.Apply(hundred, one, false, decimal.Zero).IsZero(), "sells cannot go below zero")
}

func TestPercent(t *testing.T) {
	t.Parallel()
	m := &Percent{Rate: decimal.NewFromFloat(0.001)}
	assert.Equal(t, PercentName, m.Name())
	assert.True(t, m.Apply(hundred, one, true, decimal.Zero).Equal(decimal.NewFromFloat(100.1)))
	assert.True(t, m.Apply(hundred, one, false, decimal.Zero).Equal(decimal.NewFromFloat(99.9)))
}

func TestVolume(t *testing.T) {
	t.Parallel()
	m := &Volume{Impact: DefaultVolumeImpact}
	assert.Equal(t, VolumeName, m.Name())
	assert.True(t, m.Apply(hundred, one, true, decimal.Zero).Equal(hundred), "no volume means no estimate")

	// 10/1000 * 0.1 = 0.001
	assert.True(t, m.Apply(hundred, decimal.NewFromInt(10), true, decimal.NewFromInt(1000)).Equal(decimal.NewFromFloat(100.1)))
	assert.True(t, m.Apply(hundred, decimal.NewFromInt(-10), false, decimal.NewFromInt(1000)).Equal(decimal.NewFromFloat(99.9)))

	// monotonic in quantity and never favourable
	prev := hundred
	for q := int64(1); q <= 50; q++ {
		p := m.Apply(hundred, decimal.NewFromInt(q), true, decimal.NewFromInt(1000))
		assert.True(t, p.GreaterThanOrEqual(prev))
		assert.True(t, p.GreaterThanOrEqual(hundred))
		prev = p
	}
}
