package script

import (
	"errors"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies/base"
)

const (
	// Name is the strategy name
	Name           = "script"
	sourceKey      = "script"
	sourceFileKey  = "script-file"
	lookbackKey    = "lookback"
	timeoutKey     = "timeout"
	defaultTimeout = time.Second
	description    = `The script strategy runs a tengo script once per step. The script reads the globals bars, history, positions, cash, equity, index, time and state, and appends order intents to orders. Intents are maps of symbol, side, quantity, type, price and trigger, or an action of close or cancel. Assign to the provided globals with = rather than declaring them`
)

// globals shared with the script
const (
	barsVar       = "bars"
	historyVar    = "history"
	positionsVar  = "positions"
	cashVar       = "cash"
	equityVar     = "equity"
	indexVar      = "index"
	timeVar       = "time"
	stateVar      = "state"
	ordersVar     = "orders"
	notesVar      = "notes"
	signalsVar    = "signals"
	indicatorsVar = "indicators"
)

var (
	errNoSource      = errors.New("no script source provided")
	errNotCompiled   = errors.New("script has not been compiled")
	errInvalidIntent = errors.New("invalid order intent")
	errScriptFailed  = errors.New("script execution failed")
)

var scriptGlobals = []string{
	barsVar, historyVar, positionsVar, cashVar, equityVar, indexVar,
	timeVar, stateVar, ordersVar, notesVar, signalsVar, indicatorsVar,
}

// Strategy is an implementation of the Handler interface backed by a tengo
// script. The script cannot reach the broker except through the intents it
// returns
type Strategy struct {
	base.Strategy
	source   []byte
	path     string
	lookback int
	timeout  time.Duration
	compiled *tengo.Compiled
	state    map[string]any
}
