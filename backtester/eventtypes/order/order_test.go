package order

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stringsToOrderSide = []struct {
	in  string
	out Side
	err error
}{
	{"buy", Buy, nil},
	{"BUY", Buy, nil},
	{"bUy", Buy, nil},
	{"sell", Sell, nil},
	{"SELL", Sell, nil},
	{"sElL", Sell, nil},
	{"woahMan", UnknownSide, ErrInvalidSide},
}

func TestStringToOrderSide(t *testing.T) {
	t.Parallel()
	for i := range stringsToOrderSide {
		testData := &stringsToOrderSide[i]
		t.Run(testData.in, func(t *testing.T) {
			t.Parallel()
			out, err := StringToOrderSide(testData.in)
			if !errors.Is(err, testData.err) {
				t.Errorf("received '%v' expected '%v'", err, testData.err)
			}
			if out != testData.out {
				t.Errorf("received '%v' expected '%v'", out, testData.out)
			}
		})
	}
}

var stringsToOrderType = []struct {
	in  string
	out Type
	err error
}{
	{"market", Market, nil},
	{"LIMIT", Limit, nil},
	{"stop", Stop, nil},
	{"stop_limit", StopLimit, nil},
	{"stoplimit", StopLimit, nil},
	{"STOP_TRAIL", StopTrail, nil},
	{"trailing_stop", StopTrail, nil},
	{"iceberg", UnknownType, ErrInvalidType},
}

func TestStringToOrderType(t *testing.T) {
	t.Parallel()
	for i := range stringsToOrderType {
		testData := &stringsToOrderType[i]
		t.Run(testData.in, func(t *testing.T) {
			t.Parallel()
			out, err := StringToOrderType(testData.in)
			if !errors.Is(err, testData.err) {
				t.Errorf("received '%v' expected '%v'", err, testData.err)
			}
			if out != testData.out {
				t.Errorf("received '%v' expected '%v'", out, testData.out)
			}
		})
	}
}

func TestStringToOrderStatus(t *testing.T) {
	t.Parallel()
	s, err := StringToOrderStatus("filled")
	require.NoError(t, err)
	assert.Equal(t, Filled, s)

	s, err = StringToOrderStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, Canceled, s)

	_, err = StringToOrderStatus("lost")
	assert.Error(t, err)
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()
	for _, s := range []Status{Filled, Canceled, Rejected, Expired} {
		assert.Truef(t, s.IsTerminal(), "%v should be terminal", s)
		assert.False(t, s.IsActive())
	}
	for _, s := range []Status{Created, Pending, Submitted, Accepted, Partial} {
		assert.Falsef(t, s.IsTerminal(), "%v should not be terminal", s)
	}
	assert.True(t, Accepted.IsActive())
	assert.True(t, Partial.IsActive())
	assert.False(t, Pending.IsActive())
}

func TestSetStatus(t *testing.T) {
	t.Parallel()
	tt := time.Now()
	o := &Order{ID: "O000001", Status: Created}
	require.NoError(t, o.SetStatus(Submitted, "", tt))
	require.NoError(t, o.SetStatus(Accepted, "", tt))
	assert.ErrorIs(t, o.SetStatus(Submitted, "", tt), ErrInvalidTransition)
	require.NoError(t, o.SetStatus(Partial, "", tt))
	require.NoError(t, o.SetStatus(Partial, "", tt))
	require.NoError(t, o.SetStatus(Filled, "", tt))
	assert.Equal(t, tt, o.UpdatedAt)

	for _, s := range []Status{Created, Accepted, Canceled, Filled} {
		assert.ErrorIs(t, o.SetStatus(s, "", tt), ErrOrderTerminal)
	}
	assert.Equal(t, Filled, o.Status)

	o = &Order{Status: Created}
	require.NoError(t, o.SetStatus(Rejected, ReasonInsufficientFunds, tt))
	assert.Equal(t, ReasonInsufficientFunds, o.Reason)

	o = &Order{Status: Created}
	assert.ErrorIs(t, o.SetStatus("HALF_BAKED", "", tt), ErrInvalidTransition)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	one := decimal.NewFromInt(1)
	for _, ti := range []struct {
		name string
		o    Order
		err  error
	}{
		{name: "bad side", o: Order{Side: "HODL", Type: Market, Quantity: one}, err: ErrInvalidSide},
		{name: "zero quantity", o: Order{Side: Buy, Type: Market}, err: ErrInvalidQuantity},
		{name: "market", o: Order{Side: Buy, Type: Market, Quantity: one}},
		{name: "limit no price", o: Order{Side: Buy, Type: Limit, Quantity: one}, err: ErrPriceRequired},
		{name: "limit", o: Order{Side: Sell, Type: Limit, Quantity: one, Price: one}},
		{name: "stop no trigger", o: Order{Side: Sell, Type: Stop, Quantity: one}, err: ErrTriggerRequired},
		{name: "stop limit no price", o: Order{Side: Sell, Type: StopLimit, Quantity: one, TriggerPrice: one}, err: ErrPriceRequired},
		{name: "stop limit no trigger", o: Order{Side: Sell, Type: StopLimit, Quantity: one, Price: one}, err: ErrTriggerRequired},
		{name: "trail no distance", o: Order{Side: Sell, Type: StopTrail, Quantity: one}, err: ErrTrailRequired},
		{name: "trail percent", o: Order{Side: Sell, Type: StopTrail, Quantity: one, TrailPercent: decimal.NewFromFloat(0.05)}},
		{name: "trail percent whole", o: Order{Side: Sell, Type: StopTrail, Quantity: one, TrailPercent: one}, err: ErrInvalidTrail},
		{name: "trail percent too wide", o: Order{Side: Sell, Type: StopTrail, Quantity: one, TrailPercent: decimal.NewFromInt(5)}, err: ErrInvalidTrail},
		{name: "trail percent negative", o: Order{Side: Buy, Type: StopTrail, Quantity: one, TrailPercent: decimal.NewFromFloat(-0.1)}, err: ErrInvalidTrail},
		{name: "trail amount negative", o: Order{Side: Sell, Type: StopTrail, Quantity: one, TrailAmount: decimal.NewFromInt(-10)}, err: ErrInvalidTrail},
		{name: "unknown type", o: Order{Side: Sell, Type: "FOK", Quantity: one}, err: ErrInvalidType},
	} {
		ti := ti
		t.Run(ti.name, func(t *testing.T) {
			t.Parallel()
			err := ti.o.Validate()
			if !errors.Is(err, ti.err) {
				t.Errorf("received '%v' expected '%v'", err, ti.err)
			}
		})
	}
}

func TestSideAndTypeHelpers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Sell, Buy.Opposite())
	assert.Equal(t, Buy, Sell.Opposite())
	assert.Equal(t, UnknownSide, UnknownSide.Opposite())
	assert.Equal(t, "buy", Buy.Lower())
	assert.Equal(t, "stop_limit", StopLimit.Lower())
	assert.True(t, StopTrail.IsStop())
	assert.False(t, Limit.IsStop())

	o := Order{Type: StopLimit}
	assert.False(t, o.IsMaker())
	o.Triggered = true
	assert.True(t, o.IsMaker())
	o.Type = Market
	assert.False(t, o.IsMaker())
}
