package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_ledger_inserts_total",
		Help: "Messages inserted into the ledger.",
	})
	dupSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_ledger_duplicate_guid_total",
		Help: "Inserts skipped because the guid already existed (successful no-ops).",
	})
	tombSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_ledger_tombstone_suppressed_total",
		Help: "Inserts suppressed by an existing deletion tombstone.",
	})
	deletes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_ledger_deletes_total",
		Help: "Messages removed from the ledger.",
	})
	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerchat_ledger_state_transitions_total",
		Help: "Delivery state transitions applied, by resulting state.",
	}, []string{"state"})
	tombsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerchat_ledger_tombstones_purged_total",
		Help: "Expired deletion tombstones removed by the retention sweep.",
	})
)
