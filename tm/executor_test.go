package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

func newExecutorAccountManager(t *testing.T) *TransactionManager {
	mgr := NewTransactionManager(dbmetrics.New())
	_, err := mgr.AddTable("account", []ra.Attribute{
		{Name: "balance", Domain: ra.Integer},
	}, false)
	require.NoError(t, err)
	setup := mgr.BeginTransaction("setup", ReadCommitted)
	_, err = setup.Insert("account", map[string]ra.Value{"balance": int64(100)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit())
	return mgr
}

// TestExecuteScheduleSimpleSequence runs a single transaction's schedule
// start to finish and checks the trace and final status.
func TestExecuteScheduleSimpleSequence(t *testing.T) {
	mgr := newExecutorAccountManager(t)
	lines := []string{
		"t1;BEGIN()",
		"t1;x = READ(table_name=account, rowid=0, column=balance)",
		"t1;UPDATE(table_name=account, rowid=0, values={'balance': 200})",
		"t1;COMMIT()",
	}
	stmts, err := ParseSchedule(lines)
	require.NoError(t, err)

	trace, statuses, err := ExecuteSchedule(mgr, stmts, ReadCommitted)
	require.NoError(t, err)
	require.Len(t, trace, 4)
	assert.Equal(t, Committed, statuses["t1"])
	assert.Equal(t, int64(100), trace[1].Value)
}

// TestExecuteScheduleDefersOnLockConflictThenResolves builds a schedule
// where t2's read is interleaved textually between t1's write-lock
// acquisition and t1's commit -- the executor must defer t2's statement
// and drain it once t1 releases the lock, rather than failing the whole
// schedule.
func TestExecuteScheduleDefersOnLockConflictThenResolves(t *testing.T) {
	mgr := newExecutorAccountManager(t)
	lines := []string{
		"t1;BEGIN()",
		"t2;BEGIN()",
		"t1;UPDATE(table_name=account, rowid=0, values={'balance': 500})",
		"t2;y = READ(table_name=account, rowid=0, column=balance)",
		"t1;COMMIT()",
		"t2;COMMIT()",
	}
	stmts, err := ParseSchedule(lines)
	require.NoError(t, err)

	trace, statuses, err := ExecuteSchedule(mgr, stmts, RepeatableReads)
	require.NoError(t, err)

	assert.Equal(t, Committed, statuses["t1"])
	assert.Equal(t, Committed, statuses["t2"])

	var sawT2Read bool
	for _, ex := range trace {
		if ex.TxID == "t2" && ex.Kind == StmtRead {
			sawT2Read = true
			assert.Equal(t, int64(500), ex.Value, "t2's deferred read must observe t1's committed write")
		}
	}
	assert.True(t, sawT2Read, "t2's read must eventually drain from the pending queue")
}

// TestExecuteScheduleSkipsStatementsOfAbortedTransaction checks that once
// a transaction self-aborts (here via a failed assertion), its remaining
// statements are silently skipped rather than erroring the whole run.
func TestExecuteScheduleSkipsStatementsOfAbortedTransaction(t *testing.T) {
	mgr := newExecutorAccountManager(t)
	lines := []string{
		"t1;BEGIN()",
		"t1;x = READ(table_name=account, rowid=0, column=balance)",
		"t1;ASSERT(constraint=x == 999)",
		"t1;UPDATE(table_name=account, rowid=0, values={'balance': 1})",
		"t1;COMMIT()",
	}
	stmts, err := ParseSchedule(lines)
	require.NoError(t, err)

	trace, statuses, err := ExecuteSchedule(mgr, stmts, ReadCommitted)
	require.NoError(t, err)
	assert.Equal(t, Aborted, statuses["t1"])

	for _, ex := range trace {
		assert.NotEqual(t, StmtUpdate, ex.Kind, "an update after a failed assertion must be skipped, not applied")
	}
}

// TestExecuteScheduleInsertResolvesRowID checks that ExecutedStatement
// records the row id the executor actually allocated for an insert.
func TestExecuteScheduleInsertResolvesRowID(t *testing.T) {
	mgr := newExecutorAccountManager(t)
	lines := []string{
		"t1;BEGIN()",
		"t1;INSERT(table_name=account, values={'balance': 42})",
		"t1;COMMIT()",
	}
	stmts, err := ParseSchedule(lines)
	require.NoError(t, err)

	trace, statuses, err := ExecuteSchedule(mgr, stmts, ReadCommitted)
	require.NoError(t, err)
	assert.Equal(t, Committed, statuses["t1"])

	var found bool
	for _, ex := range trace {
		if ex.Kind == StmtInsert {
			found = true
			assert.Equal(t, uint64(1), ex.ResolvedRowID, "second inserted row in a single-version table gets id 1")
		}
	}
	assert.True(t, found)
}
