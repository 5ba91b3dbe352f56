package math

import (
	"errors"
	"math"
)

var (
	// ErrNoValues is returned when a calculation is given an empty series
	ErrNoValues = errors.New("no values")
	// ErrInsufficientValues is returned when a series is too short to produce a result
	ErrInsufficientValues = errors.New("insufficient values")
	// ErrZeroStandardDeviation is returned when the dispersion of a series is zero
	// and a ratio using it as a denominator is undefined
	ErrZeroStandardDeviation = errors.New("standard deviation is zero")
	// ErrZeroDrawdown is returned when a drawdown denominator is zero
	ErrZeroDrawdown = errors.New("drawdown is zero")
	// ErrNonPositiveValue is returned when a value must be greater than zero
	ErrNonPositiveValue = errors.New("value must be greater than zero")
)

// deviationEpsilon is the dispersion below which a series is treated as
// constant. Float rounding leaves residue on series which are flat in exact
// arithmetic
const deviationEpsilon = 1e-12

// CalculatePercentageGainOrLoss returns the fractional rise over a certain
// period
func CalculatePercentageGainOrLoss(priceNow, priceThen float64) float64 {
	if priceThen == 0 {
		return 0
	}
	return (priceNow - priceThen) / priceThen
}

// CalculateCompoundAnnualGrowthRate calculates CAGR as a fraction.
// Using days, intervals per year would be 365 and number of intervals would be the number of days
func CalculateCompoundAnnualGrowthRate(totalReturn, intervalsPerYear, numberOfIntervals float64) (float64, error) {
	if numberOfIntervals <= 0 || intervalsPerYear <= 0 {
		return 0, ErrNonPositiveValue
	}
	if totalReturn <= -1 {
		// a total loss cannot be compounded
		return -1, nil
	}
	return math.Pow(1+totalReturn, intervalsPerYear/numberOfIntervals) - 1, nil
}

// CalculateCalmarRatio is the annualised rate of return versus its maximum drawdown.
func CalculateCalmarRatio(annualisedReturn, maxDrawdown float64) (float64, error) {
	if maxDrawdown == 0 {
		return 0, ErrZeroDrawdown
	}
	return annualisedReturn / math.Abs(maxDrawdown), nil
}

// PopulationStandardDeviation calculates standard deviation using population based calculation
func PopulationStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	avg := ArithmeticAverage(values)
	var combined float64
	for x := range values {
		combined += (values[x] - avg) * (values[x] - avg)
	}
	return math.Sqrt(combined / float64(len(values)))
}

// SampleStandardDeviation standard deviation is a statistic that
// measures the dispersion of a dataset relative to its mean and
// is calculated as the square root of the variance
func SampleStandardDeviation(vals []float64) float64 {
	if len(vals) <= 1 {
		return 0
	}
	mean := ArithmeticAverage(vals)
	var combined float64
	for i := range vals {
		combined += (vals[i] - mean) * (vals[i] - mean)
	}
	return math.Sqrt(combined / float64(len(vals)-1))
}

// ArithmeticAverage is the basic form of calculating an average.
// Divide the sum of all values by the length of values
func ArithmeticAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sumOfValues float64
	for x := range values {
		sumOfValues += values[x]
	}
	return sumOfValues / float64(len(values))
}

// CalculateSharpeRatio returns the annualised sharpe ratio of per period
// returns. riskFreeRate is an annual rate and is spread evenly over
// periodsPerYear
func CalculateSharpeRatio(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientValues
	}
	if periodsPerYear <= 0 {
		return 0, ErrNonPositiveValue
	}
	sd := PopulationStandardDeviation(returns)
	if sd < deviationEpsilon {
		return 0, ErrZeroStandardDeviation
	}
	excess := ArithmeticAverage(returns) - riskFreeRate/periodsPerYear
	return excess / sd * math.Sqrt(periodsPerYear), nil
}

// CalculateSortinoRatio returns the annualised sortino ratio of per period
// returns, only penalising downside deviation
func CalculateSortinoRatio(returns []float64, riskFreeRate, periodsPerYear float64) (float64, error) {
	if len(returns) < 2 {
		return 0, ErrInsufficientValues
	}
	if periodsPerYear <= 0 {
		return 0, ErrNonPositiveValue
	}
	var totalNegativeResultsSquared float64
	for x := range returns {
		if returns[x] < 0 {
			totalNegativeResultsSquared += returns[x] * returns[x]
		}
	}
	downside := math.Sqrt(totalNegativeResultsSquared / float64(len(returns)))
	if downside < deviationEpsilon {
		return 0, ErrZeroStandardDeviation
	}
	excess := ArithmeticAverage(returns) - riskFreeRate/periodsPerYear
	return excess / downside * math.Sqrt(periodsPerYear), nil
}

// RoundFloat rounds your floating point number to the desired decimal place
func RoundFloat(x float64, prec int) float64 {
	pow := math.Pow(10, float64(prec))
	return math.Round(x*pow) / pow
}
