package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// String implements the stringer interface
func (s Side) String() string {
	return string(s)
}

// Lower returns the side lower case string
func (s Side) Lower() string {
	return strings.ToLower(string(s))
}

// Opposite returns the side which would close a position opened by s
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return UnknownSide
}

// String implements the stringer interface
func (t Type) String() string {
	return string(t)
}

// Lower returns the type lower case string
func (t Type) Lower() string {
	return strings.ToLower(string(t))
}

// IsStop returns whether the order type waits on a trigger price
func (t Type) IsStop() bool {
	return t == Stop || t == StopLimit || t == StopTrail
}

// String implements the stringer interface
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns whether no further transitions can occur
func (s Status) IsTerminal() bool {
	switch s {
	case Filled, Canceled, Rejected, Expired:
		return true
	}
	return false
}

// IsActive returns whether an order in this state can be matched
func (s Status) IsActive() bool {
	return s == Accepted || s == Partial
}

// StringToOrderSide for converting case insensitive order side
// and returning a real Side
func StringToOrderSide(side string) (Side, error) {
	switch {
	case strings.EqualFold(side, Buy.String()):
		return Buy, nil
	case strings.EqualFold(side, Sell.String()):
		return Sell, nil
	default:
		return UnknownSide, fmt.Errorf("%w: %s not recognised as side type", ErrInvalidSide, side)
	}
}

// StringToOrderType for converting case insensitive order type
// and returning a real Type
func StringToOrderType(oType string) (Type, error) {
	switch {
	case strings.EqualFold(oType, Market.String()):
		return Market, nil
	case strings.EqualFold(oType, Limit.String()):
		return Limit, nil
	case strings.EqualFold(oType, Stop.String()):
		return Stop, nil
	case strings.EqualFold(oType, StopLimit.String()),
		strings.EqualFold(oType, "stoplimit"):
		return StopLimit, nil
	case strings.EqualFold(oType, StopTrail.String()),
		strings.EqualFold(oType, "trailing_stop"),
		strings.EqualFold(oType, "stoptrail"):
		return StopTrail, nil
	default:
		return UnknownType, fmt.Errorf("%w: %s not recognised as order type", ErrInvalidType, oType)
	}
}

// StringToOrderStatus for converting case insensitive order status
// and returning a real Status
func StringToOrderStatus(status string) (Status, error) {
	for s := range statusRank {
		if strings.EqualFold(status, s.String()) {
			return s, nil
		}
	}
	if strings.EqualFold(status, "cancelled") {
		return Canceled, nil
	}
	return UnknownStatus, fmt.Errorf("%s not recognised as order status", status)
}

// SetStatus moves the order forward through its lifecycle. Orders never
// leave a terminal state and never move back to an earlier state
func (o *Order) SetStatus(s Status, reason string, t time.Time) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("%w: order %v is %v, cannot become %v", ErrOrderTerminal, o.ID, o.Status, s)
	}
	next, ok := statusRank[s]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s)
	}
	if next <= statusRank[o.Status] && s != Partial {
		return fmt.Errorf("%w: %v to %v", ErrInvalidTransition, o.Status, s)
	}
	o.Status = s
	if reason != "" {
		o.Reason = reason
	}
	o.UpdatedAt = t
	return nil
}

// Validate checks the order parameters are internally consistent
func (o *Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w %q", ErrInvalidSide, o.Side)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w, received %v", ErrInvalidQuantity, o.Quantity)
	}
	switch o.Type {
	case Market:
	case Limit:
		if !o.Price.IsPositive() {
			return ErrPriceRequired
		}
	case Stop:
		if !o.TriggerPrice.IsPositive() {
			return ErrTriggerRequired
		}
	case StopLimit:
		if !o.TriggerPrice.IsPositive() {
			return ErrTriggerRequired
		}
		if !o.Price.IsPositive() {
			return ErrPriceRequired
		}
	case StopTrail:
		if o.TrailAmount.IsNegative() || o.TrailPercent.IsNegative() {
			return fmt.Errorf("%w, received amount %v percent %v", ErrInvalidTrail, o.TrailAmount, o.TrailPercent)
		}
		if o.TrailPercent.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w, percent %v must be below 1", ErrInvalidTrail, o.TrailPercent)
		}
		if !o.TrailAmount.IsPositive() && !o.TrailPercent.IsPositive() {
			return ErrTrailRequired
		}
	default:
		return fmt.Errorf("%w %q", ErrInvalidType, o.Type)
	}
	return nil
}

// IsBuy returns whether the order buys
func (o *Order) IsBuy() bool {
	return o.Side == Buy
}

// IsMaker returns whether the order rests on the book and provides liquidity
func (o *Order) IsMaker() bool {
	return o.Type == Limit || (o.Type == StopLimit && o.Triggered)
}
