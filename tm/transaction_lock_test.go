package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

func newAccountManager(t *testing.T) *TransactionManager {
	mgr := NewTransactionManager(dbmetrics.New())
	_, err := mgr.AddTable("account", []ra.Attribute{
		{Name: "balance", Domain: ra.Integer},
	}, false)
	require.NoError(t, err)
	return mgr
}

func TestLockBasedInsertReadUpdateDelete(t *testing.T) {
	mgr := newAccountManager(t)
	tx := mgr.BeginTransaction("t1", ReadCommitted)

	id, err := tx.Insert("account", map[string]ra.Value{"balance": int64(100)})
	require.NoError(t, err)

	v, err := tx.Read("account", id, "balance")
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)

	require.NoError(t, tx.Update("account", id, map[string]ra.Value{"balance": int64(50)}))
	v, err = tx.Read("account", id, "balance")
	require.NoError(t, err)
	assert.Equal(t, int64(50), v)

	require.NoError(t, tx.Delete("account", id))
	_, err = tx.Read("account", id, "balance")
	assert.Error(t, err)

	require.NoError(t, tx.Commit())
	assert.Equal(t, Committed, tx.Status())
}

func TestLockBasedRollbackUndoesWrites(t *testing.T) {
	mgr := newAccountManager(t)

	setup := mgr.BeginTransaction("setup", ReadCommitted)
	id, err := setup.Insert("account", map[string]ra.Value{"balance": int64(100)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	tx := mgr.BeginTransaction("t1", ReadCommitted)
	require.NoError(t, tx.Update("account", id, map[string]ra.Value{"balance": int64(999)}))
	tx.Rollback()
	assert.Equal(t, Aborted, tx.Status())

	verify := mgr.BeginTransaction("verify", ReadCommitted)
	v, err := verify.Read("account", id, "balance")
	require.NoError(t, err)
	assert.Equal(t, int64(100), v, "rollback must restore the pre-update value")
}

func TestLockBasedWriteLockExcludesConcurrentReader(t *testing.T) {
	mgr := newAccountManager(t)
	setup := mgr.BeginTransaction("setup", ReadCommitted)
	id, err := setup.Insert("account", map[string]ra.Value{"balance": int64(100)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	writer := mgr.BeginTransaction("writer", RepeatableReads)
	require.NoError(t, writer.Update("account", id, map[string]ra.Value{"balance": int64(200)}))

	reader := mgr.BeginTransaction("reader", RepeatableReads)
	_, err = reader.Read("account", id, "balance")
	assert.Error(t, err, "a held write lock must block a concurrent repeatable-read")
}

func TestLockBasedLockOrderViolationAborts(t *testing.T) {
	mgr := newAccountManager(t)
	setup := mgr.BeginTransaction("setup", ReadCommitted)
	idA, err := setup.Insert("account", map[string]ra.Value{"balance": int64(1)})
	require.NoError(t, err)
	idB, err := setup.Insert("account", map[string]ra.Value{"balance": int64(2)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit())
	if idA > idB {
		idA, idB = idB, idA
	}

	tx := mgr.BeginTransaction("t1", Serializable)
	_, err = tx.Read("account", idB, "balance")
	require.NoError(t, err)

	_, err = tx.Read("account", idA, "balance")
	assert.Error(t, err, "acquiring a lower-ordered key after a higher one must be rejected")
	assert.Equal(t, Aborted, tx.Status(), "a lock-order violation self-aborts the transaction")
}

func TestLockBasedReadUncommittedSeesUncommittedWrites(t *testing.T) {
	mgr := newAccountManager(t)
	setup := mgr.BeginTransaction("setup", ReadCommitted)
	id, err := setup.Insert("account", map[string]ra.Value{"balance": int64(1)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	writer := mgr.BeginTransaction("writer", ReadCommitted)
	require.NoError(t, writer.Update("account", id, map[string]ra.Value{"balance": int64(2)}))

	dirtyReader := mgr.BeginTransaction("dirty", ReadUncommitted)
	v, err := dirtyReader.Read("account", id, "balance")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v, "read-uncommitted must observe the writer's uncommitted value")
}
