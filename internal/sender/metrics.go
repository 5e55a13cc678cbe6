package sender

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanline_sends_total",
		Help: "Total recipients successfully sent to",
	})
	sendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanline_send_failures_total",
		Help: "Total recipients marked failed after exhausting retries",
	})
	sendRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fanline_send_retries_total",
		Help: "Total send attempts retried after a transient failure",
	})
)
