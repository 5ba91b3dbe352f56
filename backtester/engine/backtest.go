package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/config"
	"github.com/thrasher-corp/barsim/backtester/data"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/exchange/commission"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/statistics"
	"github.com/thrasher-corp/barsim/backtester/eventhandlers/strategies"
	"github.com/thrasher-corp/barsim/log"
)

// WithProgress adds a progress callback
func WithProgress(fn ProgressFunc) Option {
	return func(bt *BackTest) {
		if fn != nil {
			bt.progress = append(bt.progress, fn)
		}
	}
}

// WithMetrics reports the run to prometheus collectors
func WithMetrics(m *Metrics) Option {
	return func(bt *BackTest) {
		bt.metrics = m
	}
}

// NewBackTest wires a broker, sizer and history for a single run of strategy
// over feed using the broker, statistic and run settings of cfg
func NewBackTest(cfg *config.Config, feed data.Feed, strategy strategies.Handler, opts ...Option) (*BackTest, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w config", common.ErrNilArguments)
	}
	if feed == nil {
		return nil, errNilFeed
	}
	if feed.Len() == 0 {
		return nil, errEmptyFeed
	}
	if strategy == nil {
		return nil, errNilStrategy
	}
	b := &cfg.BrokerSettings
	slip, err := b.SlippageModel()
	if err != nil {
		return nil, err
	}
	sizer, err := b.DefaultSizer()
	if err != nil {
		return nil, err
	}
	fees, err := commission.NewManager(b.Commission)
	if err != nil {
		return nil, err
	}
	exch, err := exchange.New(&exchange.Settings{
		InitialCapital: b.InitialCapital,
		Symbols:        feed.Symbols(),
		MarketPrice:    b.MarketPrice,
		Slippage:       slip,
		Commission:     fees,
	})
	if err != nil {
		return nil, err
	}

	bt := &BackTest{
		Strategy: strategy,
		cfg:      cfg,
		feed:     feed,
		exch:     exch,
		statistic: statistics.Options{
			PeriodsPerYear: cfg.StatisticSettings.PeriodsPerYear,
			RiskFreeRate:   cfg.StatisticSettings.RiskFreeRate,
		},
	}
	bt.rc = newRunContext(exch, sizer, b.Sizer.Params, feed.Symbols(), strategy, cfg.RunSettings.HistoryLimit, cfg.RunSettings.DisableRunLog)
	exch.SetNotifier(bt.rc)
	for _, opt := range opts {
		opt(bt)
	}
	if err = bt.SetupMetaData(); err != nil {
		return nil, err
	}
	return bt, nil
}

// SetupMetaData assigns an id and load time to the run if it has none
func (bt *BackTest) SetupMetaData() error {
	if bt == nil {
		return fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	if !bt.MetaData.ID.IsNil() && !bt.MetaData.DateLoaded.IsZero() {
		return nil
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	bt.MetaData.ID = id
	bt.MetaData.DateLoaded = time.Now()
	bt.MetaData.Status = StatusPending
	if bt.Strategy != nil {
		bt.MetaData.Strategy = bt.Strategy.Name()
	}
	if bt.cfg != nil {
		bt.MetaData.Nickname = bt.cfg.Nickname
	}
	return nil
}

// Run executes the backtest to completion, cancellation or the first
// strategy fault. The returned result is never nil when the error is nil;
// faults are reported through its Status and Error fields
func (bt *BackTest) Run(ctx context.Context) (*Result, error) {
	ctx, err := bt.start(ctx)
	if err != nil {
		return nil, err
	}
	res := bt.run(ctx)
	bt.finish(res)
	return res, nil
}

// ExecuteStrategy runs the backtest with a background context, optionally
// waiting for it to finish
func (bt *BackTest) ExecuteStrategy(waitForOfflineCompletion bool) error {
	if bt == nil {
		return fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	ctx, err := bt.start(context.Background())
	if err != nil {
		return err
	}
	if waitForOfflineCompletion {
		bt.finish(bt.run(ctx))
		return nil
	}
	go func() {
		bt.finish(bt.run(ctx))
	}()
	return nil
}

// start marks the run as started and returns the context it runs under
func (bt *BackTest) start(ctx context.Context) (context.Context, error) {
	if bt == nil {
		return nil, fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	if ctx == nil {
		return nil, fmt.Errorf("%w context", common.ErrNilArguments)
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	switch {
	case bt.feed == nil || bt.Strategy == nil || bt.exch == nil || bt.rc == nil:
		return nil, errNotSetup
	case bt.MetaData.Closed:
		return nil, fmt.Errorf("%w %v", errAlreadyRan, bt.MetaData.ID)
	case !bt.MetaData.DateStarted.IsZero():
		return nil, fmt.Errorf("%w %v", errTaskIsRunning, bt.MetaData.ID)
	}
	bt.MetaData.DateStarted = time.Now()
	bt.MetaData.Status = StatusRunning
	bt.last = Progress{Total: bt.feed.Len(), Equity: bt.exch.Equity()}
	ctx, bt.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (bt *BackTest) finish(res *Result) {
	bt.m.Lock()
	bt.MetaData.DateEnded = time.Now()
	bt.MetaData.Closed = true
	bt.MetaData.Status = res.Status
	bt.result = res
	if bt.cancel != nil {
		bt.cancel()
		bt.cancel = nil
	}
	if bt.done == nil {
		bt.done = make(chan struct{})
	}
	close(bt.done)
	bt.m.Unlock()
	bt.metrics.runFinished(res)
}

// run drives the step loop. It owns all broker and strategy state for its
// duration
func (bt *BackTest) run(ctx context.Context) *Result {
	bt.m.Lock()
	meta := bt.MetaData
	bt.m.Unlock()

	bt.metrics.runStarted()
	log.Infof(common.Backtester, "running strategy %v over %v steps", meta.Strategy, bt.feed.Len())

	res := &Result{
		ID:         meta.ID,
		Strategy:   meta.Strategy,
		Nickname:   meta.Nickname,
		Status:     StatusCompleted,
		TotalSteps: bt.feed.Len(),
	}
	fail := func(err error) {
		res.Status = StatusFailed
		res.Error = err.Error()
		log.Errorf(common.Backtester, "run %v stopped: %v", meta.ID, err)
	}

	err := guard(func() error { return bt.Strategy.Init(bt.rc) })
	if err == nil {
		err = bt.rc.dispatch()
	}
	if err != nil {
		fail(err)
		return bt.collect(res)
	}

	for {
		select {
		case <-ctx.Done():
			res.Status = StatusCanceled
			res.Error = ctx.Err().Error()
			log.Warnf(common.Backtester, "run %v canceled after %v of %v steps", meta.ID, res.StepsProcessed, res.TotalSteps)
			return bt.collect(res)
		default:
		}
		s, ok := bt.feed.Next()
		if !ok {
			break
		}
		err = bt.processStep(&s, res)
		res.StepsProcessed++
		bt.metrics.stepProcessed()
		bt.reportProgress(Progress{
			Index:  res.StepsProcessed,
			Total:  res.TotalSteps,
			Equity: bt.exch.Equity(),
			Time:   s.Time,
		})
		if err != nil {
			fail(err)
			return bt.collect(res)
		}
	}
	log.Infof(common.Backtester, "run %v completed %v steps", meta.ID, res.StepsProcessed)
	return bt.collect(res)
}

// processStep matches orders against the step, shows the step to the
// strategy and records equity and the run log. The equity point and log
// entry are recorded even when the strategy faults
func (bt *BackTest) processStep(s *data.Step, res *Result) error {
	rc := bt.rc
	rc.beginStep(s)
	trades, err := bt.exch.Process(s)
	if rc.entry != nil {
		rc.entry.Trades = trades
	}
	if err == nil {
		rc.history.Add(s)
		err = rc.dispatch()
	}
	if err == nil {
		err = guard(func() error { return bt.Strategy.OnBar(rc, *s) })
	}
	if err == nil {
		err = rc.dispatch()
	}
	res.EquityCurve = append(res.EquityCurve, statistics.ValueAtTime{
		Time:  s.Time,
		Value: bt.exch.Equity(),
	})
	if e := rc.commitStep(); e != nil {
		res.Log = append(res.Log, *e)
	}
	return err
}

func (bt *BackTest) reportProgress(p Progress) {
	bt.m.Lock()
	bt.last = p
	fns := bt.progress
	bt.m.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// collect fills the result from the broker and analyser
func (bt *BackTest) collect(res *Result) *Result {
	res.InitialCapital = bt.exch.InitialCapital()
	res.FinalEquity = bt.exch.Equity()
	res.Trades = bt.exch.Trades()
	res.Orders = bt.exch.Orders()
	res.Positions = bt.exch.Positions()

	traded := make(map[string]struct{})
	for i := range res.Trades {
		traded[res.Trades[i].Symbol] = struct{}{}
		bt.rc.observed[res.Trades[i].Symbol] = struct{}{}
	}
	res.Symbols = sortedKeys(bt.rc.observed)
	res.TradedSymbols = sortedKeys(traded)

	m, err := statistics.Calculate(res.InitialCapital, res.EquityCurve, res.Trades, &bt.statistic)
	if err != nil {
		log.Errorf(common.Statistics, "could not calculate metrics: %v", err)
	} else {
		res.Metrics = m
	}
	res.Benchmark = bt.benchmark()
	return res
}

// benchmark returns the buy and hold return of the configured benchmark
// symbol, nil when it is unset or never traded a fresh bar
func (bt *BackTest) benchmark() *Benchmark {
	sym := bt.cfg.BrokerSettings.Benchmark
	if sym == "" {
		return nil
	}
	first, ok := bt.rc.firstClose[sym]
	if !ok || !first.IsPositive() {
		return nil
	}
	last, err := bt.rc.history.Bar(sym, -1)
	if err != nil {
		return nil
	}
	ret, _ := last.Close.Sub(first).Div(first).Float64()
	return &Benchmark{
		Symbol:      sym,
		FirstClose:  first,
		LastClose:   last.Close,
		TotalReturn: ret,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	resp := make([]string, 0, len(m))
	for k := range m {
		resp = append(resp, k)
	}
	sort.Strings(resp)
	return resp
}

// Stop cancels a running backtest. The run returns with the history
// recorded so far
func (bt *BackTest) Stop() error {
	if bt == nil {
		return fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	switch {
	case bt.MetaData.Closed:
		return fmt.Errorf("%w %v", errAlreadyRan, bt.MetaData.ID)
	case bt.MetaData.DateStarted.IsZero():
		return fmt.Errorf("%w %v", errTaskHasNotRan, bt.MetaData.ID)
	}
	if bt.cancel != nil {
		bt.cancel()
	}
	return nil
}

// IsRunning checks if the run has started and not yet finished
func (bt *BackTest) IsRunning() bool {
	if bt == nil {
		return false
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	return !bt.MetaData.DateStarted.IsZero() && !bt.MetaData.Closed
}

// HasRan checks if the run has finished
func (bt *BackTest) HasRan() bool {
	if bt == nil {
		return false
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	return bt.MetaData.Closed
}

// Equal checks if the incoming run matches
func (bt *BackTest) Equal(bt2 *BackTest) bool {
	if bt == nil || bt2 == nil {
		return false
	}
	if bt == bt2 {
		return true
	}
	bt.m.Lock()
	btM := bt.MetaData
	bt.m.Unlock()
	bt2.m.Lock()
	btM2 := bt2.MetaData
	bt2.m.Unlock()
	return btM == btM2
}

// MatchesID checks if the backtesting run's ID matches the supplied
func (bt *BackTest) MatchesID(id uuid.UUID) bool {
	if bt == nil || id.IsNil() {
		return false
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	return bt.MetaData.ID == id
}

// GenerateSummary creates a summary of a run
func (bt *BackTest) GenerateSummary() (*TaskSummary, error) {
	if bt == nil {
		return nil, fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	sum := &TaskSummary{
		MetaData: bt.MetaData,
		Progress: bt.last,
	}
	if bt.result != nil {
		sum.Error = bt.result.Error
		sum.Metrics = bt.result.Metrics
	}
	return sum, nil
}

// Result returns the outcome of a finished run
func (bt *BackTest) Result() (*Result, error) {
	if bt == nil {
		return nil, fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	if bt.result == nil {
		return nil, fmt.Errorf("%w %v", errNoResult, bt.MetaData.ID)
	}
	return bt.result, nil
}

// Done is closed once the run has finished
func (bt *BackTest) Done() <-chan struct{} {
	bt.m.Lock()
	defer bt.m.Unlock()
	if bt.done == nil {
		bt.done = make(chan struct{})
	}
	return bt.done
}

// AddProgressFunc registers a progress callback before the run starts
func (bt *BackTest) AddProgressFunc(fn ProgressFunc) error {
	if bt == nil {
		return fmt.Errorf("%w BackTest", common.ErrNilPointer)
	}
	if fn == nil {
		return errNilSubscriber
	}
	bt.m.Lock()
	defer bt.m.Unlock()
	bt.progress = append(bt.progress, fn)
	return nil
}
