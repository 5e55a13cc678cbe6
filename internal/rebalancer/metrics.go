package rebalancer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rebalancesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanline_rebalances_total",
		Help: "Total campaigns rebalanced after an instance went down",
	})
	requeuedJobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanline_requeued_jobs_total",
		Help: "Total jobs detached from a dead instance for redistribution",
	})
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanline_reconcile_runs_total",
		Help: "Total reconciler sweeps that found stranded jobs",
	})
)
