package size

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestNew(t *testing.T) {
	t.Parallel()
	for _, name := range []string{FixedName, PercentName, AllInName, RiskName, "ALLIN", ""} {
		s, err := New(name, DefaultParams())
		require.NoErrorf(t, err, "sizer %q", name)
		assert.NotNil(t, s)
	}
	_, err := New("kelly", DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownSizer)

	p := DefaultParams()
	p.Percent = d(101)
	_, err = New(PercentName, p)
	assert.ErrorIs(t, err, ErrInvalidParams)

	p = DefaultParams()
	p.Limits = MinMax{Minimum: d(5), Maximum: d(1)}
	_, err = New(FixedName, p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestFixed(t *testing.T) {
	t.Parallel()
	f := &Fixed{Stake: d(3)}
	assert.Equal(t, FixedName, f.Name())
	assert.True(t, f.Size(order.Buy, Snapshot{}, State{}).Equal(d(3)))
	assert.True(t, f.Size(order.Sell, Snapshot{Price: d(10)}, State{}).Equal(d(3)))
}

func TestPercent(t *testing.T) {
	t.Parallel()
	p := &Percent{Percent: d(20)}
	got := p.Size(order.Buy, Snapshot{Equity: d(100000), Cash: d(100000), Price: d(20000)}, State{})
	assert.True(t, got.Equal(d(1)), got.String())

	assert.True(t, p.Size(order.Buy, Snapshot{Equity: d(100000)}, State{}).IsZero())
	assert.True(t, p.Size(order.Buy, Snapshot{Equity: d(-1), Price: d(1)}, State{}).IsZero())
}

func TestAllIn(t *testing.T) {
	t.Parallel()
	a := &AllIn{}
	snap := Snapshot{Cash: d(1000), Equity: d(1000), Price: d(250)}
	assert.True(t, a.Size(order.Buy, snap, State{}).Equal(d(4)))

	snap.Position = d(2.5)
	assert.True(t, a.Size(order.Sell, snap, State{}).Equal(d(2.5)))

	snap.Position = d(-3)
	assert.True(t, a.Size(order.Buy, snap, State{}).Equal(d(3)))

	assert.True(t, a.Size(order.Buy, Snapshot{Price: d(10)}, State{}).IsZero())
}

func TestAllInFeeHeadroom(t *testing.T) {
	t.Parallel()
	a := &AllIn{}
	snap := Snapshot{Cash: d(1000), Equity: d(1000), Price: d(250), TakerRate: d(0.001)}
	q := a.Size(order.Buy, snap, State{})
	require.True(t, q.IsPositive())
	cost := q.Mul(snap.Price)
	assert.True(t, cost.Add(cost.Mul(snap.TakerRate)).LessThanOrEqual(snap.Cash), q.String())
	assert.True(t, q.LessThan(d(4)))

	// the minimum fee binds when the rate based fee is smaller
	snap = Snapshot{Cash: d(1000), Equity: d(1000), Price: d(250), MinimumFee: d(10)}
	q = a.Size(order.Buy, snap, State{})
	assert.True(t, q.Equal(d(3.96)), q.String())

	// quantities which do not divide evenly are truncated below cash
	snap = Snapshot{Cash: d(2000), Equity: d(2000), Price: d(3)}
	q = a.Size(order.Buy, snap, State{})
	assert.True(t, q.Mul(snap.Price).LessThanOrEqual(snap.Cash), q.String())

	snap = Snapshot{Cash: d(5), Equity: d(5), Price: d(1), MinimumFee: d(10)}
	assert.True(t, a.Size(order.Buy, snap, State{}).IsZero())
}

func TestRisk(t *testing.T) {
	t.Parallel()
	r, err := New(RiskName, DefaultParams())
	require.NoError(t, err)
	snap := Snapshot{Equity: d(100000), Cash: d(100000), Price: d(50)}

	// 100000 * 2% / (5 * 2) = 200
	got := r.Size(order.Buy, snap, State{Volatility: d(5)})
	assert.True(t, got.Equal(d(200)), got.String())

	// no volatility yet falls back to the stake
	assert.True(t, r.Size(order.Buy, snap, State{}).Equal(d(1)))
	assert.True(t, r.Size(order.Buy, snap, State{Volatility: d(-1)}).Equal(d(1)))
}

func TestLimits(t *testing.T) {
	t.Parallel()
	p := &Percent{Percent: d(50), Limits: MinMax{Minimum: d(1), Maximum: d(10)}}
	assert.True(t, p.Size(order.Buy, Snapshot{Equity: d(1000), Price: d(1)}, State{}).Equal(d(10)))
	assert.True(t, p.Size(order.Buy, Snapshot{Equity: d(1000), Price: d(1000)}, State{}).IsZero())
	assert.True(t, p.Size(order.Buy, Snapshot{Equity: d(1000), Price: d(100)}, State{}).Equal(d(5)))
}
