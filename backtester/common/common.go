package common

import (
	"errors"
	"fmt"
	"strings"
)

// AppendError appends an error to a list of existing errors
// either by wrapping the error or returning the new error if
// the existing list is empty
func AppendError(original, incoming error) error {
	switch {
	case incoming == nil:
		return original
	case original == nil:
		return incoming
	}
	return errors.Join(original, incoming)
}

// ValidateMarketPrice ensures a market price reference is supported.
// Empty values default to the close price
func ValidateMarketPrice(ref string) (string, error) {
	switch strings.ToLower(ref) {
	case "", MarketPriceClose:
		return MarketPriceClose, nil
	case MarketPriceOpen:
		return MarketPriceOpen, nil
	}
	return "", fmt.Errorf("%w '%v'", ErrInvalidMarketPrice, ref)
}

// FitStringToLimit ensures a string is of the length of the limit
// either by truncating the string with ellipses or padding with the spacer
func FitStringToLimit(str, spacer string, limit int, upper bool) string {
	if limit < 0 {
		return str
	}
	if limit == 0 {
		return ""
	}
	limResp := limit - len(str)
	if upper {
		str = strings.ToUpper(str)
	}
	if limResp < 0 {
		if limit-3 > 0 {
			return str[0:limit-3] + "..."
		}
		return str[0:limit]
	}
	spacerLen := len(spacer)
	for i := 0; i < limResp; i++ {
		str += spacer
		for j := 0; j < spacerLen; j++ {
			if j > 0 {
				// prevent clever people from going beyond
				// the limit by having a spacer longer than 1
				i++
			}
		}
	}

	return str[0:limit]
}
