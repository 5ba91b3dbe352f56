package holdings

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCapital is returned when capital is not within (0, MaxCapital]
	ErrInvalidCapital = errors.New("capital must be greater than zero and no more than 1e12")
	// ErrCapitalLocked is returned when capital is changed after trading started
	ErrCapitalLocked = errors.New("capital cannot be changed once trading has started")
	// ErrNegativeCash is returned when a ledger's cash balance drops below zero
	ErrNegativeCash = errors.New("cash balance is negative")
	// ErrLedgerMismatch is returned when cash does not reconcile with recorded flows
	ErrLedgerMismatch = errors.New("cash does not reconcile with recorded fills")
	// ErrInsufficientFunds is returned when a buy costs more than the cash available
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// MaxCapital is the largest starting balance accepted
var MaxCapital = decimal.NewFromInt(1_000_000_000_000)

// dustQuantity is the magnitude below which a position is considered flat
var dustQuantity = decimal.New(1, -10)

// Position is the net holding of a single symbol. Quantity is signed,
// negative values are shorts
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average-price"`
	RealisedPnL  decimal.Decimal `json:"realised-pnl"`
	BoughtAmount decimal.Decimal `json:"bought-amount"`
	BoughtValue  decimal.Decimal `json:"bought-value"`
	SoldAmount   decimal.Decimal `json:"sold-amount"`
	SoldValue    decimal.Decimal `json:"sold-value"`
	TotalFees    decimal.Decimal `json:"total-fees"`
	UpdatedAt    time.Time       `json:"updated-at"`
}

// Ledger holds the cash balance and positions of a run. It is owned by a
// single broker and is not safe for concurrent use
type Ledger struct {
	initialCapital decimal.Decimal
	cash           decimal.Decimal
	boughtValue    decimal.Decimal
	soldValue      decimal.Decimal
	fees           decimal.Decimal
	fills          int
	positions      map[string]*Position
	marks          map[string]decimal.Decimal
}
