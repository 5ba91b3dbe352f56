package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/thrasher-corp/barsim/backtester/common"
	"github.com/thrasher-corp/barsim/backtester/config"
	"github.com/thrasher-corp/barsim/backtester/engine"
	"github.com/thrasher-corp/barsim/backtester/report"
	"github.com/thrasher-corp/barsim/log"
	"github.com/thrasher-corp/barsim/signaler"
	"github.com/urfave/cli/v2"
)

var (
	configPaths    cli.StringSlice
	appConfigPath  string
	outputDir      string
	logLevel       string
	strategyName   string
	serveAddress   string
	darkReport     bool
	disableRunLog  bool
	errNoRunConfig = errors.New("no run config provided, use --config")
)

func main() {
	app := cli.NewApp()
	app.Name = "barsim"
	app.Usage = "replays historical bars through a trading strategy against a simulated broker"
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "the run config to execute, repeat to run several",
			Destination: &configPaths,
		},
		&cli.StringFlag{
			Name:        "appconfig",
			Usage:       "the application config holding report, server and logging settings",
			Destination: &appConfigPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "directory results and reports are written to, overrides the application config",
			Destination: &outputDir,
		},
		&cli.StringFlag{
			Name:        "loglevel",
			Usage:       "log levels to print, eg INFO|WARN|ERROR",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "strategy",
			Usage:       "runs every config with this strategy and its default settings instead",
			Destination: &strategyName,
		},
		&cli.StringFlag{
			Name:        "serve",
			Usage:       "serves the task API on this address and waits for an interrupt, eg " + config.DefaultListenAddress,
			Destination: &serveAddress,
		},
		&cli.BoolFlag{
			Name:        "darkreport",
			Usage:       "writes the html report with a dark theme",
			Destination: &darkReport,
		},
		&cli.BoolFlag{
			Name:        "disablerunlog",
			Usage:       "skips recording and writing the per step run log",
			Destination: &disableRunLog,
		},
	}
	app.Action = run

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-signaler.WaitForInterrupt()
		cancel()
	}()
	err := app.RunContext(ctx, os.Args)
	log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	appCfg, err := loadAppConfig()
	if err != nil {
		return err
	}
	if err = log.SetupGlobalLogger(&appCfg.Logging); err != nil {
		return err
	}

	var reg *prometheus.Registry
	var m *engine.Metrics
	if appCfg.Server.Metrics {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if m, err = engine.NewMetrics(reg); err != nil {
			return err
		}
	}
	manager := engine.NewTaskManager(appCfg.Server.ProgressRate, m)

	serve := appCfg.Server.Enabled || serveAddress != ""
	if len(configPaths.Value()) == 0 && !serve {
		return errNoRunConfig
	}
	tasks := make([]*engine.BackTest, 0, len(configPaths.Value()))
	for _, path := range configPaths.Value() {
		bt, err := loadTask(c.Context, path)
		if err != nil {
			return fmt.Errorf("%v: %w", path, err)
		}
		if err = manager.AddTask(bt); err != nil {
			return err
		}
		tasks = append(tasks, bt)
	}

	if serve {
		return runServer(c.Context, manager, reg, appCfg)
	}

	if _, err = manager.StartAllTasks(); err != nil {
		return err
	}
	waitForTasks(c.Context, manager, tasks)
	return writeReports(appCfg, tasks)
}

func loadAppConfig() (*config.BacktesterConfig, error) {
	var (
		appCfg *config.BacktesterConfig
		err    error
	)
	if appConfigPath != "" {
		appCfg, err = config.ReadBacktesterConfigFromPath(appConfigPath)
	} else {
		appCfg, err = config.GenerateDefaultConfig()
	}
	if err != nil {
		return nil, err
	}
	if outputDir != "" {
		appCfg.Report.OutputPath = outputDir
	}
	if logLevel != "" {
		appCfg.Logging.Level = strings.ToUpper(logLevel)
	}
	if disableRunLog {
		appCfg.Report.RunLog = false
	}
	if serveAddress != "" {
		appCfg.Server.ListenAddress = serveAddress
	}
	return appCfg, nil
}

func loadTask(ctx context.Context, path string) (*engine.BackTest, error) {
	cfg, err := config.ReadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if strategyName != "" && !strings.EqualFold(strategyName, cfg.StrategySettings.Name) {
		log.Warnf(common.Setup, "%v: replacing strategy %v with %v", path, cfg.StrategySettings.Name, strategyName)
		cfg.StrategySettings.Name = strategyName
		cfg.StrategySettings.CustomSettings = nil
	}
	if disableRunLog {
		cfg.RunSettings.DisableRunLog = true
	}
	return engine.NewFromConfig(ctx, cfg)
}

// waitForTasks blocks until every task is done, stopping them all when ctx
// is canceled first
func waitForTasks(ctx context.Context, manager *engine.TaskManager, tasks []*engine.BackTest) {
	var wg sync.WaitGroup
	for _, bt := range tasks {
		wg.Add(1)
		go func(bt *engine.BackTest) {
			defer wg.Done()
			<-bt.Done()
		}(bt)
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		log.Warnln(common.Backtester, "interrupted, stopping all tasks")
		if _, err := manager.StopAllTasks(); err != nil {
			log.Errorln(common.Backtester, err)
		}
		<-finished
	}
}

func runServer(ctx context.Context, manager *engine.TaskManager, reg *prometheus.Registry, appCfg *config.BacktesterConfig) error {
	var gatherer prometheus.Gatherer
	if reg != nil {
		gatherer = reg
	}
	srv, err := engine.NewServer(manager, gatherer)
	if err != nil {
		return err
	}
	err = srv.ListenAndServe(ctx, appCfg.Server.ListenAddress)
	if appCfg.StopAllTasksOnClose {
		if _, stopErr := manager.StopAllTasks(); stopErr != nil {
			err = common.AppendError(err, stopErr)
		}
	}
	return err
}

func writeReports(appCfg *config.BacktesterConfig, tasks []*engine.BackTest) error {
	var errs error
	for _, bt := range tasks {
		res, err := bt.Result()
		if err != nil {
			errs = common.AppendError(errs, err)
			continue
		}
		printResult(res)
		if !appCfg.Report.GenerateReport {
			continue
		}
		d, err := report.NewReport(res, appCfg.Report.OutputPath)
		if err != nil {
			errs = common.AppendError(errs, err)
			continue
		}
		d.UseDarkMode = darkReport
		if !appCfg.Report.RunLog {
			res.Log = nil
		}
		if _, err = d.GenerateReport(); err != nil {
			errs = common.AppendError(errs, err)
		}
	}
	return errs
}

func printResult(res *engine.Result) {
	log.Infof(common.Backtester, "%v %v: %v after %v of %v steps, final equity %v",
		res.Strategy, res.ID, res.Status, res.StepsProcessed, res.TotalSteps, res.FinalEquity.StringFixed(2))
	if res.Error != "" {
		log.Errorf(common.Backtester, "%v %v: %v", res.Strategy, res.ID, res.Error)
	}
	if m := res.Metrics; m != nil {
		log.Infof(common.Statistics, "total return %.2f%%, max drawdown %.2f%%, trades %v",
			m.TotalReturn*100, m.MaxDrawdown*100, m.TradeCount)
	}
}
