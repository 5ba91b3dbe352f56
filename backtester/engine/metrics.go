package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/thrasher-corp/barsim/backtester/eventtypes/order"
)

// Metrics are the prometheus collectors updated by backtest runs
type Metrics struct {
	runsStarted   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	barsProcessed prometheus.Counter
	orders        *prometheus.CounterVec
	fills         prometheus.Counter
}

// NewMetrics creates the run collectors and registers them with reg. A nil
// registerer leaves them unregistered
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "barsim",
			Name:      "runs_started_total",
			Help:      "Total number of backtest runs started",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barsim",
			Name:      "runs_finished_total",
			Help:      "Total number of backtest runs finished by status",
		}, []string{"status"}),
		barsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "barsim",
			Name:      "steps_processed_total",
			Help:      "Total number of aligned steps processed across all runs",
		}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barsim",
			Name:      "orders_total",
			Help:      "Total number of orders by final status",
		}, []string{"status"}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "barsim",
			Name:      "fills_total",
			Help:      "Total number of fills across all runs",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.runsStarted, m.runsFinished, m.barsProcessed, m.orders, m.fills} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.runsStarted.Inc()
}

func (m *Metrics) stepProcessed() {
	if m == nil {
		return
	}
	m.barsProcessed.Inc()
}

func (m *Metrics) runFinished(res *Result) {
	if m == nil || res == nil {
		return
	}
	m.runsFinished.WithLabelValues(res.Status).Inc()
	m.fills.Add(float64(len(res.Trades)))
	for i := range res.Orders {
		status := res.Orders[i].Status
		if !status.IsTerminal() {
			status = order.Status("OPEN")
		}
		m.orders.WithLabelValues(string(status)).Inc()
	}
}
