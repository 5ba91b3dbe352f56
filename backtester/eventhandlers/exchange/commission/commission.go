package commission

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultScheme returns the default fee scheme
func DefaultScheme() Scheme {
	return Scheme{Maker: DefaultRate, Taker: DefaultRate}
}

// Validate ensures no rate is negative
func (s *Scheme) Validate() error {
	if s.Maker.IsNegative() || s.Taker.IsNegative() || s.Minimum.IsNegative() {
		return fmt.Errorf("%w maker: %v taker: %v minimum: %v", ErrNegativeRate, s.Maker, s.Taker, s.Minimum)
	}
	return nil
}

// Calculate returns |quantity| * price * rate, floored at the minimum fee
func (s *Scheme) Calculate(quantity, price decimal.Decimal, isMaker bool) decimal.Decimal {
	rate := s.Taker
	if isMaker {
		rate = s.Maker
	}
	fee := quantity.Abs().Mul(price).Mul(rate)
	if fee.LessThan(s.Minimum) {
		return s.Minimum
	}
	return fee
}

// NewManager returns a manager using the supplied scheme as the default
func NewManager(def Scheme) (*Manager, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &Manager{def: def, schemes: make(map[string]Scheme)}, nil
}

// SetScheme sets the scheme for a symbol. An empty symbol replaces the default
func (m *Manager) SetScheme(s Scheme, symbol string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.m.Lock()
	defer m.m.Unlock()
	if symbol == "" {
		m.def = s
		return nil
	}
	if m.schemes == nil {
		m.schemes = make(map[string]Scheme)
	}
	m.schemes[symbol] = s
	return nil
}

// Scheme returns the scheme used for a symbol
func (m *Manager) Scheme(symbol string) Scheme {
	m.m.RLock()
	defer m.m.RUnlock()
	if s, ok := m.schemes[symbol]; ok {
		return s
	}
	return m.def
}

// Calculate returns the fee for a fill on a symbol
func (m *Manager) Calculate(symbol string, quantity, price decimal.Decimal, isMaker bool) decimal.Decimal {
	s := m.Scheme(symbol)
	return s.Calculate(quantity, price, isMaker)
}

// Reset restores the default scheme and removes all overrides
func (m *Manager) Reset() {
	m.m.Lock()
	defer m.m.Unlock()
	m.def = DefaultScheme()
	m.schemes = make(map[string]Scheme)
}
