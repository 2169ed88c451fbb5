package tm

import (
	"math"
	"sort"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/internal/dblog"
	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

// committedMVCC records a committed MVCC transaction's write set, kept
// around so later transactions can validate against it (§4.8.2). Once more
// than gcThreshold entries are kept, the manager drops those that committed
// before the oldest active MVCC transaction began.
type committedMVCC struct {
	commitTS uint64
	writeSet map[LockKey]struct{}
}

const gcThreshold = 10

// TransactionManager owns the table registry, the shared lock table, a
// monotonic MVCC timestamp counter, and the metrics registry every
// transaction reports into (§4.8, §4.12).
type TransactionManager struct {
	tables map[string]*Table
	locks  *LockTable

	nextTS        uint64
	committed     []committedMVCC
	activeMVCC    map[string]*MVCCTransaction

	metrics *dbmetrics.Registry
	log     *dblog.Scoped
}

// NewTransactionManager constructs an empty manager. metrics may be nil,
// in which case a private registry is created (matching dbmetrics.New's
// per-manager isolation contract).
func NewTransactionManager(metrics *dbmetrics.Registry) *TransactionManager {
	if metrics == nil {
		metrics = dbmetrics.New()
	}
	return &TransactionManager{
		tables:     make(map[string]*Table),
		locks:      NewLockTable(),
		activeMVCC: make(map[string]*MVCCTransaction),
		metrics:    metrics,
		log:        dblog.WithField("component", "transaction-manager"),
	}
}

// AddTable registers a new table, prepending the reserved attributes in
// the fixed order row_id, then (MVCC only) begin_ts, end_ts, ahead of the
// caller-supplied user attributes (§3).
func (m *TransactionManager) AddTable(name string, userAttrs []ra.Attribute, multiversion bool) (*Table, error) {
	if _, exists := m.tables[name]; exists {
		return nil, dberr.New(dberr.SchemaViolation, "table %s already exists", name)
	}
	attrs := []ra.Attribute{{Name: RowIDAttr, Domain: ra.Integer}}
	if multiversion {
		attrs = append(attrs,
			ra.Attribute{Name: BeginTSAttr, Domain: ra.Integer},
			ra.Attribute{Name: EndTSAttr, Domain: ra.Integer},
		)
	}
	attrs = append(attrs, userAttrs...)
	schema := ra.NewSchema(attrs...)
	tbl := NewTable(name, schema, multiversion)
	m.tables[name] = tbl
	return tbl, nil
}

// Table looks up a registered table by name.
func (m *TransactionManager) Table(name string) (*Table, error) {
	tbl, ok := m.tables[name]
	if !ok {
		return nil, dberr.New(dberr.MissingAttribute, "no such table %s", name)
	}
	return tbl, nil
}

// BeginTransaction mints a Transaction of the concurrency-control
// protocol implied by isolation: SnapshotIsolation uses MVCC, every other
// level uses pessimistic locking (§4.8).
func (m *TransactionManager) BeginTransaction(name string, isolation IsolationLevel) Transaction {
	m.metrics.TransactionsStarted.Inc()
	if isolation.UsesMVCC() {
		tx := newMVCCTransaction(name, isolation, m)
		m.activeMVCC[name] = tx
		m.log.Debug("begin mvcc transaction %s at ts=%d", name, tx.beginTS)
		return tx
	}
	m.log.Debug("begin lock-based transaction %s level=%s", name, isolation)
	return newLockBasedTransaction(name, isolation, m)
}

// nextTimestamp allocates the next MVCC logical timestamp.
func (m *TransactionManager) nextTimestamp() uint64 {
	m.nextTS++
	return m.nextTS
}

// recordCommittedMVCC appends a committed write set. Once the history
// exceeds gcThreshold it keeps only the entries that committed after the
// begin timestamp of the oldest active MVCC transaction, since no other
// entry can still take part in a validation.
func (m *TransactionManager) recordCommittedMVCC(commitTS uint64, writeSet map[LockKey]struct{}) {
	m.committed = append(m.committed, committedMVCC{commitTS: commitTS, writeSet: writeSet})
	if len(m.committed) > gcThreshold {
		oldest := uint64(math.MaxUint64)
		for _, tx := range m.activeMVCC {
			if tx.beginTS < oldest {
				oldest = tx.beginTS
			}
		}
		kept := m.committed[:0]
		for _, c := range m.committed {
			if c.commitTS > oldest {
				kept = append(kept, c)
			}
		}
		m.committed = kept
	}
}

// committedSince returns the write sets of every MVCC transaction that
// committed after since, sorted by commit timestamp, for use in
// commit-time conflict validation.
func (m *TransactionManager) committedSince(since uint64) []committedMVCC {
	out := make([]committedMVCC, 0, len(m.committed))
	for _, c := range m.committed {
		if c.commitTS > since {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].commitTS < out[j].commitTS })
	return out
}

func (m *TransactionManager) forgetActiveMVCC(name string) {
	delete(m.activeMVCC, name)
}
