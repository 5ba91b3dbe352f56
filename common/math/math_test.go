package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatePercentageGainOrLoss(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.5, CalculatePercentageGainOrLoss(150, 100), 1e-12)
	assert.InDelta(t, -0.25, CalculatePercentageGainOrLoss(75, 100), 1e-12)
	assert.Zero(t, CalculatePercentageGainOrLoss(75, 0))
}

func TestCalculateCompoundAnnualGrowthRate(t *testing.T) {
	t.Parallel()
	_, err := CalculateCompoundAnnualGrowthRate(0.1, 365, 0)
	assert.ErrorIs(t, err, ErrNonPositiveValue)

	r, err := CalculateCompoundAnnualGrowthRate(0.1, 365, 365)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, r, 1e-12)

	r, err = CalculateCompoundAnnualGrowthRate(0.21, 1, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, r, 1e-12)

	r, err = CalculateCompoundAnnualGrowthRate(-1, 365, 10)
	require.NoError(t, err)
	assert.Equal(t, -1.0, r)
}

func TestCalculateCalmarRatio(t *testing.T) {
	t.Parallel()
	_, err := CalculateCalmarRatio(0.2, 0)
	assert.ErrorIs(t, err, ErrZeroDrawdown)

	r, err := CalculateCalmarRatio(0.2, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r, 1e-12)

	r, err = CalculateCalmarRatio(0.2, -0.1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, r, 1e-12)
}

func TestStandardDeviations(t *testing.T) {
	t.Parallel()
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 2.0, PopulationStandardDeviation(vals), 1e-12)
	assert.InDelta(t, 2.138089935299395, SampleStandardDeviation(vals), 1e-12)
	assert.Zero(t, PopulationStandardDeviation(nil))
	assert.Zero(t, SampleStandardDeviation([]float64{1}))
	assert.InDelta(t, 5.0, ArithmeticAverage(vals), 1e-12)
	assert.Zero(t, ArithmeticAverage(nil))
}

func TestCalculateSharpeRatio(t *testing.T) {
	t.Parallel()
	_, err := CalculateSharpeRatio([]float64{0.1}, 0, 365)
	assert.ErrorIs(t, err, ErrInsufficientValues)

	_, err = CalculateSharpeRatio([]float64{0.1, 0.1, 0.1}, 0, 365)
	assert.ErrorIs(t, err, ErrZeroStandardDeviation)

	// residue from float division of a constant growth curve
	_, err = CalculateSharpeRatio([]float64{0.01, 0.01 + 1e-17, 0.01 - 2e-17, 0.01}, 0, 365)
	assert.ErrorIs(t, err, ErrZeroStandardDeviation)

	_, err = CalculateSharpeRatio([]float64{0.1, 0.2}, 0, 0)
	assert.ErrorIs(t, err, ErrNonPositiveValue)

	r, err := CalculateSharpeRatio([]float64{0.1, -0.1}, 0, 1)
	require.NoError(t, err)
	assert.Zero(t, r)

	r, err = CalculateSharpeRatio([]float64{0.02, 0.04}, 0, 4)
	require.NoError(t, err)
	// mean 0.03, population sd 0.01, sqrt(4)=2
	assert.InDelta(t, 6.0, r, 1e-9)
}

func TestCalculateSortinoRatio(t *testing.T) {
	t.Parallel()
	_, err := CalculateSortinoRatio([]float64{0.1, 0.2}, 0, 365)
	assert.ErrorIs(t, err, ErrZeroStandardDeviation)

	_, err = CalculateSortinoRatio([]float64{0.01, -1e-18, 0.01}, 0, 365)
	assert.ErrorIs(t, err, ErrZeroStandardDeviation)

	r, err := CalculateSortinoRatio([]float64{0.04, -0.02}, 0, 1)
	require.NoError(t, err)
	// mean 0.01, downside sqrt(0.0004/2)
	assert.InDelta(t, 0.01/math.Sqrt(0.0002), r, 1e-9)
}

func TestRoundFloat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1.23, RoundFloat(1.2345, 2))
}
