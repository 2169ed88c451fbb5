package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

func TestAddTablePrependsReservedAttributes(t *testing.T) {
	mgr := NewTransactionManager(dbmetrics.New())

	tbl, err := mgr.AddTable("account", []ra.Attribute{{Name: "balance", Domain: ra.Integer}}, false)
	require.NoError(t, err)
	names := tbl.Relation.Schema.Names()
	assert.Equal(t, []string{RowIDAttr, "balance"}, names)

	mvccTbl, err := mgr.AddTable("ledger", []ra.Attribute{{Name: "amount", Domain: ra.Integer}}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{RowIDAttr, BeginTSAttr, EndTSAttr, "amount"}, mvccTbl.Relation.Schema.Names())
}

func TestAddTableRejectsDuplicateName(t *testing.T) {
	mgr := NewTransactionManager(dbmetrics.New())
	_, err := mgr.AddTable("account", []ra.Attribute{{Name: "balance", Domain: ra.Integer}}, false)
	require.NoError(t, err)

	_, err = mgr.AddTable("account", []ra.Attribute{{Name: "balance", Domain: ra.Integer}}, false)
	assert.Error(t, err)
}

func TestTableLooksUpRegisteredTable(t *testing.T) {
	mgr := NewTransactionManager(dbmetrics.New())
	_, err := mgr.AddTable("account", []ra.Attribute{{Name: "balance", Domain: ra.Integer}}, false)
	require.NoError(t, err)

	_, err = mgr.Table("account")
	assert.NoError(t, err)

	_, err = mgr.Table("missing")
	assert.Error(t, err)
}

func TestBeginTransactionDispatchesByIsolationLevel(t *testing.T) {
	mgr := NewTransactionManager(dbmetrics.New())
	_, err := mgr.AddTable("account", []ra.Attribute{{Name: "balance", Domain: ra.Integer}}, true)
	require.NoError(t, err)

	snapshot := mgr.BeginTransaction("a", SnapshotIsolation)
	_, isMVCC := snapshot.(*MVCCTransaction)
	assert.True(t, isMVCC, "snapshot isolation must be served by MVCCTransaction")

	for _, level := range []IsolationLevel{Serializable, ReadCommitted, ReadUncommitted, RepeatableReads} {
		tx := mgr.BeginTransaction("x", level)
		_, isLockBased := tx.(*LockBasedTransaction)
		assert.True(t, isLockBased, "isolation level %s must be served by LockBasedTransaction", level)
	}
}

func TestCommittedSinceFiltersAndGarbageCollects(t *testing.T) {
	mgr := NewTransactionManager(dbmetrics.New())

	for i := 0; i < gcThreshold+5; i++ {
		ts := mgr.nextTimestamp()
		mgr.recordCommittedMVCC(ts, map[LockKey]struct{}{{Table: "t", RowID: uint64(i)}: {}})
	}

	assert.LessOrEqual(t, len(mgr.committed), gcThreshold, "history must not grow past gcThreshold")

	since := mgr.committedSince(0)
	for i := 1; i < len(since); i++ {
		assert.Less(t, since[i-1].commitTS, since[i].commitTS, "committedSince must return entries sorted by commit timestamp")
	}
}
