package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockKeyLess(t *testing.T) {
	a := LockKey{Table: "account", RowID: 1}
	b := LockKey{Table: "account", RowID: 2}
	c := LockKey{Table: "champion", RowID: 0}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, a.Less(c))
}

func TestLockTableReadersBlockWriter(t *testing.T) {
	lt := NewLockTable()
	key := LockKey{Table: "account", RowID: 1}

	assert.True(t, lt.TryAcquireRead(key))
	assert.True(t, lt.TryAcquireRead(key))
	assert.False(t, lt.TryAcquireWrite(key), "a writer must not acquire while readers are active")

	lt.ReleaseRead(key)
	assert.False(t, lt.TryAcquireWrite(key), "one reader remains")

	lt.ReleaseRead(key)
	assert.True(t, lt.TryAcquireWrite(key))
}

func TestLockTableWriterBlocksEverything(t *testing.T) {
	lt := NewLockTable()
	key := LockKey{Table: "account", RowID: 1}

	assert.True(t, lt.TryAcquireWrite(key))
	assert.False(t, lt.TryAcquireRead(key))
	assert.False(t, lt.TryAcquireWrite(key))

	lt.ReleaseWrite(key)
	assert.True(t, lt.TryAcquireRead(key))
}

func TestLockTablePendingWriterSlot(t *testing.T) {
	lt := NewLockTable()
	key := LockKey{Table: "account", RowID: 1}

	assert.True(t, lt.WaitForWrite(key, "t1"))
	assert.True(t, lt.WaitForWrite(key, "t1"), "re-registering the same pending writer is a no-op success")
	assert.False(t, lt.WaitForWrite(key, "t2"), "a second transaction cannot take the pending-writer slot")

	lt.ClearPendingWriter(key, "t1")
	assert.True(t, lt.WaitForWrite(key, "t2"))
}
