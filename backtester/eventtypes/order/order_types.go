package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Side enforces a standard for order sides across the code base
type Side string

// Order side types
const (
	UnknownSide Side = ""
	Buy         Side = "BUY"
	Sell        Side = "SELL"
)

// Type enforces a standard for order types across the code base
type Type string

// Defined package order types
const (
	UnknownType Type = ""
	Market      Type = "MARKET"
	Limit       Type = "LIMIT"
	Stop        Type = "STOP"
	StopLimit   Type = "STOP_LIMIT"
	StopTrail   Type = "STOP_TRAIL"
)

// Status defines order status types
type Status string

// All order status types
const (
	UnknownStatus Status = ""
	Created       Status = "CREATED"
	// Pending orders are dormant bracket children waiting on their parent
	Pending   Status = "PENDING"
	Submitted Status = "SUBMITTED"
	Accepted  Status = "ACCEPTED"
	Partial   Status = "PARTIAL"
	Filled    Status = "FILLED"
	Canceled  Status = "CANCELED"
	Rejected  Status = "REJECTED"
	Expired   Status = "EXPIRED"
)

// statusRank orders the lifecycle. Terminal states share the highest rank
var statusRank = map[Status]int{
	Created:   0,
	Pending:   1,
	Submitted: 2,
	Accepted:  3,
	Partial:   4,
	Filled:    5,
	Canceled:  5,
	Rejected:  5,
	Expired:   5,
}

// Rejection and cancellation reasons
const (
	ReasonUnknownSymbol      = "unknown symbol"
	ReasonInvalidQuantity    = "invalid quantity"
	ReasonInvalidPrice       = "invalid price"
	ReasonInvalidTrail       = "invalid trailing distance"
	ReasonInvalidParameters  = "invalid parameters"
	ReasonInsufficientFunds  = "insufficient funds"
	ReasonInsufficientMargin = "insufficient margin"
	ReasonFundsAtFill        = "insufficient funds at fill"
	ReasonUserCanceled       = "canceled"
	ReasonParentInactive     = "parent order not filled"
	ReasonOCOPrefix          = "oco: "
)

var (
	// ErrOrderTerminal is returned when a terminal order is asked to change state
	ErrOrderTerminal = errors.New("order is in a terminal state")
	// ErrInvalidTransition is returned when a status change would move an order backwards
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInvalidSide is returned for sides other than buy or sell
	ErrInvalidSide = errors.New("invalid order side")
	// ErrInvalidType is returned for unsupported order types
	ErrInvalidType = errors.New("invalid order type")
	// ErrInvalidQuantity is returned when an order quantity is not positive
	ErrInvalidQuantity = errors.New("order quantity must be greater than zero")
	// ErrPriceRequired is returned when a limit price is missing
	ErrPriceRequired = errors.New("limit price must be set")
	// ErrTriggerRequired is returned when a trigger price is missing
	ErrTriggerRequired = errors.New("trigger price must be set")
	// ErrTrailRequired is returned when a trailing stop has no distance
	ErrTrailRequired = errors.New("trailing stop requires a trail amount or percent")
	// ErrInvalidTrail is returned when a trailing distance is negative or the
	// percent would put the trigger at or below zero
	ErrInvalidTrail = errors.New("invalid trailing stop distance")
)

// Order is a trading intent tracked by the broker
type Order struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Type           Type            `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	TriggerPrice   decimal.Decimal `json:"trigger-price"`
	TrailAmount    decimal.Decimal `json:"trail-amount"`
	TrailPercent   decimal.Decimal `json:"trail-percent"`
	HighestPrice   decimal.Decimal `json:"highest-price"`
	LowestPrice    decimal.Decimal `json:"lowest-price"`
	Triggered      bool            `json:"triggered"`
	ParentID       string          `json:"parent-id,omitempty"`
	OCOID          string          `json:"oco-id,omitempty"`
	Status         Status          `json:"status"`
	FilledQuantity decimal.Decimal `json:"filled-quantity"`
	FilledAvgPrice decimal.Decimal `json:"filled-average-price"`
	Fee            decimal.Decimal `json:"fee"`
	Reason         string          `json:"reason,omitempty"`
	CreatedAt      time.Time       `json:"created-at"`
	UpdatedAt      time.Time       `json:"updated-at"`
}
