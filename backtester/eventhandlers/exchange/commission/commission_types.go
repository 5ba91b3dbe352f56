package commission

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeRate is returned when a fee rate or minimum is below zero
	ErrNegativeRate = errors.New("commission rates cannot be negative")

	// DefaultRate is applied to both makers and takers unless configured
	DefaultRate = decimal.NewFromFloat(0.001)
)

// Scheme holds the fee rates of a market
type Scheme struct {
	Maker   decimal.Decimal `json:"maker"`
	Taker   decimal.Decimal `json:"taker"`
	Minimum decimal.Decimal `json:"minimum"`
}

// Manager resolves the fee scheme for a symbol, falling back to a default
type Manager struct {
	m       sync.RWMutex
	def     Scheme
	schemes map[string]Scheme
}
