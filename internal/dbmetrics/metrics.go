// Package dbmetrics exposes Prometheus collectors for the transaction
// manager, plus a rewrite-rule counter that package ra does not increment.
// Each TransactionManager owns its own Registry so multiple managers (as in
// tests) never collide.
package dbmetrics

import "github.com/prometheus/client_golang/prometheus"

type Registry struct {
	reg *prometheus.Registry

	TransactionsStarted   prometheus.Counter
	TransactionsCommitted prometheus.Counter
	TransactionsAborted   *prometheus.CounterVec
	StatementsDeferred    prometheus.Counter
	PendingQueueDepth     prometheus.Gauge
	RuleApplications      *prometheus.CounterVec
}

// AbortReason enumerates the label values for TransactionsAborted.
type AbortReason string

const (
	AbortExplicit    AbortReason = "explicit"
	AbortLockOrder   AbortReason = "lock_order"
	AbortValidation  AbortReason = "validation"
	AbortAssert      AbortReason = "assert"
	AbortMissingRow  AbortReason = "missing_row"
)

func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		TransactionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transactions_started_total",
			Help: "Number of transactions begun.",
		}),
		TransactionsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transactions_committed_total",
			Help: "Number of transactions committed.",
		}),
		TransactionsAborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transactions_aborted_total",
			Help: "Number of transactions aborted, by reason.",
		}, []string{"reason"}),
		StatementsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_statements_deferred_total",
			Help: "Number of statements pushed to a pending queue.",
		}),
		PendingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "schedule_pending_queue_depth",
			Help: "Total number of statements across all pending queues, sampled after each step.",
		}),
		RuleApplications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewrite_rule_applications_total",
			Help: "Number of times a rewrite rule modified the plan, by rule name.",
		}, []string{"rule"}),
	}

	reg.MustRegister(
		r.TransactionsStarted,
		r.TransactionsCommitted,
		r.TransactionsAborted,
		r.StatementsDeferred,
		r.PendingQueueDepth,
		r.RuleApplications,
	)
	return r
}

// Gatherer exposes the underlying registry for a promhttp.Handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
