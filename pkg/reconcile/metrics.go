package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerchat_reconcile_events_applied_total",
		Help: "Boundary events applied, by kind.",
	}, []string{"kind"})
	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_reconcile_events_dropped_total",
		Help: "Malformed or failing boundary events logged and dropped.",
	})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerchat_reconcile_queue_depth",
		Help: "Events waiting in the reconcile queue.",
	})
)
