package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendError(t *testing.T) {
	t.Parallel()
	errOne := errors.New("one")
	errTwo := errors.New("two")
	assert.NoError(t, AppendError(nil, nil))
	assert.ErrorIs(t, AppendError(nil, errOne), errOne)
	assert.ErrorIs(t, AppendError(errOne, nil), errOne)
	err := AppendError(errOne, errTwo)
	assert.ErrorIs(t, err, errOne)
	assert.ErrorIs(t, err, errTwo)
}

func TestValidateMarketPrice(t *testing.T) {
	t.Parallel()
	for _, ti := range []struct {
		in       string
		expected string
		err      error
	}{
		{in: "", expected: MarketPriceClose},
		{in: "CLOSE", expected: MarketPriceClose},
		{in: "open", expected: MarketPriceOpen},
		{in: "vwap", err: ErrInvalidMarketPrice},
	} {
		ti := ti
		t.Run(ti.in, func(t *testing.T) {
			t.Parallel()
			resp, err := ValidateMarketPrice(ti.in)
			if !errors.Is(err, ti.err) {
				t.Errorf("received '%v' expected '%v'", err, ti.err)
			}
			if resp != ti.expected {
				t.Errorf("received '%v' expected '%v'", resp, ti.expected)
			}
		})
	}
}

func TestFitStringToLimit(t *testing.T) {
	t.Parallel()
	for _, ti := range []struct {
		str      string
		sep      string
		limit    int
		expected string
		upper    bool
	}{
		{
			str:      "good",
			sep:      " ",
			limit:    5,
			expected: "GOOD ",
			upper:    true,
		},
		{
			str:      "negative limit",
			sep:      " ",
			limit:    -1,
			expected: "negative limit",
		},
		{
			str:      "long spacer",
			sep:      "--",
			limit:    14,
			expected: "long spacer---",
		},
		{
			str:      "zero limit",
			sep:      "--",
			limit:    0,
			expected: "",
		},
		{
			str:      "over limit",
			sep:      "--",
			limit:    6,
			expected: "ove...",
		},
		{
			str:      "hi",
			sep:      " ",
			limit:    1,
			expected: "h",
		},
	} {
		test := ti
		t.Run(test.str, func(t *testing.T) {
			t.Parallel()
			result := FitStringToLimit(test.str, test.sep, test.limit, test.upper)
			if result != test.expected {
				t.Errorf("received '%v' expected '%v'", result, test.expected)
			}
		})
	}
}
