package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

func newMVCCAccountManager(t *testing.T) (*TransactionManager, uint64) {
	mgr := NewTransactionManager(dbmetrics.New())
	_, err := mgr.AddTable("account", []ra.Attribute{
		{Name: "balance", Domain: ra.Integer},
	}, true)
	require.NoError(t, err)

	setup := mgr.BeginTransaction("setup", SnapshotIsolation)
	id, err := setup.Insert("account", map[string]ra.Value{"balance": int64(100)})
	require.NoError(t, err)
	require.NoError(t, setup.Commit())
	return mgr, id
}

func TestMVCCSnapshotIsolatesConcurrentWriters(t *testing.T) {
	mgr, id := newMVCCAccountManager(t)

	txA := mgr.BeginTransaction("a", SnapshotIsolation)
	txB := mgr.BeginTransaction("b", SnapshotIsolation)

	require.NoError(t, txA.Update("account", id, map[string]ra.Value{"balance": int64(200)}))
	require.NoError(t, txA.Commit())

	vBeforeCommit, err := txB.Read("account", id, "balance")
	require.NoError(t, err)
	assert.Equal(t, int64(100), vBeforeCommit, "txB's snapshot must not see txA's commit")

	require.NoError(t, txB.Update("account", id, map[string]ra.Value{"balance": int64(300)}))
	err = txB.Commit()
	assert.Error(t, err, "write-write conflict on the same row must abort txB")
	assert.Equal(t, Aborted, txB.Status())
}

func TestMVCCSerializableAbortsOnReadWriteConflict(t *testing.T) {
	mgr, id := newMVCCAccountManager(t)

	// BeginTransaction only routes SnapshotIsolation through MVCC; construct
	// the MVCC transaction directly to exercise the serializable validation
	// branch, which only applies under that isolation level.
	reader := newMVCCTransaction("reader", Serializable, mgr)
	_, err := reader.Read("account", id, "balance")
	require.NoError(t, err)

	writer := mgr.BeginTransaction("writer", SnapshotIsolation)
	require.NoError(t, writer.Update("account", id, map[string]ra.Value{"balance": int64(500)}))
	require.NoError(t, writer.Commit())

	err = reader.Commit()
	assert.Error(t, err, "a serializable reader must abort when a concurrent writer committed over a key it read")
}

func TestMVCCReadAfterDeleteFails(t *testing.T) {
	mgr, id := newMVCCAccountManager(t)
	tx := mgr.BeginTransaction("t1", SnapshotIsolation)
	require.NoError(t, tx.Delete("account", id))

	_, err := tx.Read("account", id, "balance")
	assert.Error(t, err)
}

func TestMVCCInsertVisibleWithinOwnTransactionOnly(t *testing.T) {
	mgr, _ := newMVCCAccountManager(t)

	txA := mgr.BeginTransaction("a", SnapshotIsolation)
	newID, err := txA.Insert("account", map[string]ra.Value{"balance": int64(42)})
	require.NoError(t, err)

	v, err := txA.Read("account", newID, "balance")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	txB := mgr.BeginTransaction("b", SnapshotIsolation)
	_, err = txB.Read("account", newID, "balance")
	assert.Error(t, err, "an uncommitted insert must not be visible to another snapshot")

	require.NoError(t, txA.Commit())
}
