package tm

import (
	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

type undoEntry struct {
	key      LockKey
	isInsert bool
	original ra.Tuple
}

// LockBasedTransaction implements read-uncommitted, read-committed,
// repeatable-reads, and serializable over single-version tables using
// pessimistic 2-phase locking with lock-order deadlock avoidance (§4.8.1).
type LockBasedTransaction struct {
	txBase

	heldRead  []LockKey
	heldWrite []LockKey
	localReads map[LockKey]ra.Tuple
	savedOriginal map[LockKey]bool
	undo      []undoEntry

	hasLastLock bool
	lastLock    LockKey
}

func newLockBasedTransaction(name string, isolation IsolationLevel, mgr *TransactionManager) *LockBasedTransaction {
	return &LockBasedTransaction{
		txBase:        newTxBase(name, isolation, mgr),
		localReads:    make(map[LockKey]ra.Tuple),
		savedOriginal: make(map[LockKey]bool),
	}
}

func (t *LockBasedTransaction) aborted() bool { return t.status == Aborted }

// checkLockOrder enforces the total (table,row-id) ordering deadlock
// avoidance scheme: acquiring a key smaller than the last acquired key
// rolls the transaction back immediately.
func (t *LockBasedTransaction) checkLockOrder(key LockKey) error {
	if t.hasLastLock && key.Less(t.lastLock) {
		t.rollbackInternal()
		t.manager.metrics.TransactionsAborted.WithLabelValues(string(dbmetrics.AbortLockOrder)).Inc()
		t.log.Warning("deadlock avoided, lock-order incorrect: %v < %v", key, t.lastLock)
		return dberr.New(dberr.LockOrderViolation, "lock order violation on %v (last=%v)", key, t.lastLock)
	}
	return nil
}

func (t *LockBasedTransaction) hasReadLock(key LockKey) bool {
	for _, k := range t.heldRead {
		if k == key {
			return true
		}
	}
	return false
}

func (t *LockBasedTransaction) hasWriteLock(key LockKey) bool {
	for _, k := range t.heldWrite {
		if k == key {
			return true
		}
	}
	return false
}

func (t *LockBasedTransaction) removeReadLock(key LockKey) {
	for i, k := range t.heldRead {
		if k == key {
			t.heldRead = append(t.heldRead[:i], t.heldRead[i+1:]...)
			return
		}
	}
}

// acquireReadLock implements §4.8.1's _read_lock_acquire: ordering check,
// non-blocking try-acquire, bookkeeping of lastLockID (updated even when
// the lock is already held locally, per the design notes' documented
// quirk -- callers must not rely on it for ordering).
func (t *LockBasedTransaction) acquireReadLock(key LockKey, enforceOrder bool) error {
	if enforceOrder {
		if err := t.checkLockOrder(key); err != nil {
			return err
		}
	}
	t.hasLastLock = true
	t.lastLock = key
	if t.hasReadLock(key) || t.hasWriteLock(key) {
		return nil
	}
	if !t.manager.locks.TryAcquireRead(key) {
		return dberr.New(dberr.LockAcquireFailed, "read lock unavailable on %v", key)
	}
	t.heldRead = append(t.heldRead, key)
	return nil
}

// acquireWriteLock implements §4.8.1's _write_lock_acquire, including the
// read-to-write upgrade protocol and pending-writer preemption.
func (t *LockBasedTransaction) acquireWriteLock(key LockKey, enforceOrder bool) error {
	if enforceOrder {
		if err := t.checkLockOrder(key); err != nil {
			return err
		}
	}
	if t.hasWriteLock(key) {
		t.hasLastLock = true
		t.lastLock = key
		return nil
	}

	if t.hasReadLock(key) {
		// upgrade: release read, try write
		t.manager.locks.ReleaseRead(key)
		t.removeReadLock(key)
		if t.manager.locks.TryAcquireWrite(key) {
			t.heldWrite = append(t.heldWrite, key)
			t.hasLastLock = true
			t.lastLock = key
			return nil
		}
		// failed: re-acquire read lock and register as pending writer
		t.manager.locks.TryAcquireRead(key)
		t.heldRead = append(t.heldRead, key)
		if !t.manager.locks.WaitForWrite(key, t.name) {
			t.rollbackInternal()
			t.manager.metrics.TransactionsAborted.WithLabelValues(string(dbmetrics.AbortLockOrder)).Inc()
			return dberr.New(dberr.LockOrderViolation, "another transaction already pending writer on %v", key)
		}
		return dberr.New(dberr.LockAcquireFailed, "write_lock_acquire_failed on %v", key)
	}

	if t.manager.locks.TryAcquireWrite(key) {
		t.heldWrite = append(t.heldWrite, key)
		t.hasLastLock = true
		t.lastLock = key
		return nil
	}
	return dberr.New(dberr.LockAcquireFailed, "write lock unavailable on %v", key)
}

func (t *LockBasedTransaction) table(name string) (*Table, error) {
	tbl, ok := t.manager.tables[name]
	if !ok {
		return nil, dberr.New(dberr.MissingAttribute, "no such table %s", name)
	}
	return tbl, nil
}

func (t *LockBasedTransaction) saveOriginal(key LockKey, tbl *Table, rowID uint64) {
	if t.savedOriginal[key] {
		return
	}
	t.savedOriginal[key] = true
	chain := tbl.Get(rowID)
	if len(chain) == 0 {
		t.undo = append(t.undo, undoEntry{key: key, isInsert: true})
	} else {
		cp := append(ra.Tuple{}, chain[len(chain)-1]...)
		t.undo = append(t.undo, undoEntry{key: key, original: cp})
	}
}

func (t *LockBasedTransaction) Read(tableName string, rowID uint64, column string) (ra.Value, error) {
	if t.aborted() {
		return nil, dberr.New(dberr.MissingRow, "transaction %s already aborted", t.name)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return nil, err
	}
	key := LockKey{Table: tableName, RowID: rowID}

	readLatest := func() (ra.Value, error) {
		chain := tbl.Get(rowID)
		if len(chain) == 0 {
			return nil, dberr.New(dberr.MissingRow, "row %d of %s does not exist", rowID, tableName)
		}
		idx, err := tbl.Relation.AttributeIndex(column)
		if err != nil {
			return nil, err
		}
		return chain[len(chain)-1][idx], nil
	}

	switch t.isolation {
	case ReadUncommitted:
		return readLatest()
	case ReadCommitted:
		if err := t.acquireReadLock(key, true); err != nil {
			return nil, err
		}
		v, err := readLatest()
		t.manager.locks.ReleaseRead(key)
		t.removeReadLock(key)
		return v, err
	case RepeatableReads, Serializable:
		if row, ok := t.localReads[key]; ok {
			idx, err := tbl.Relation.AttributeIndex(column)
			if err != nil {
				return nil, err
			}
			return row[idx], nil
		}
		if err := t.acquireReadLock(key, true); err != nil {
			return nil, err
		}
		chain := tbl.Get(rowID)
		if len(chain) == 0 {
			return nil, dberr.New(dberr.MissingRow, "row %d of %s does not exist", rowID, tableName)
		}
		row := append(ra.Tuple{}, chain[len(chain)-1]...)
		t.localReads[key] = row
		idx, err := tbl.Relation.AttributeIndex(column)
		if err != nil {
			return nil, err
		}
		return row[idx], nil
	default:
		return nil, dberr.New(dberr.ParseError, "unsupported isolation level for lock-based transaction: %v", t.isolation)
	}
}

func (t *LockBasedTransaction) Update(tableName string, rowID uint64, values map[string]ra.Value) error {
	if t.aborted() {
		return dberr.New(dberr.MissingRow, "transaction %s already aborted", t.name)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return err
	}
	key := LockKey{Table: tableName, RowID: rowID}
	if err := t.acquireWriteLock(key, true); err != nil {
		return err
	}
	chain := tbl.Get(rowID)
	if len(chain) == 0 {
		return dberr.New(dberr.MissingRow, "row %d of %s does not exist", rowID, tableName)
	}
	t.saveOriginal(key, tbl, rowID)
	newRow := append(ra.Tuple{}, chain[len(chain)-1]...)
	for name, v := range values {
		idx, err := tbl.Relation.AttributeIndex(name)
		if err != nil {
			return err
		}
		newRow[idx] = v
	}
	return tbl.Put(newRow)
}

func (t *LockBasedTransaction) Insert(tableName string, values map[string]ra.Value) (uint64, error) {
	if t.aborted() {
		return 0, dberr.New(dberr.MissingRow, "transaction %s already aborted", t.name)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return 0, err
	}
	rowID := tbl.GetNextRowID()
	key := LockKey{Table: tableName, RowID: rowID}
	// insert allocates a fresh id, so ordering cannot be violated by it;
	// still record it as the most recent lock for future order checks.
	if err := t.acquireWriteLock(key, false); err != nil {
		return 0, err
	}
	t.savedOriginal[key] = true
	t.undo = append(t.undo, undoEntry{key: key, isInsert: true})

	row := make(ra.Tuple, len(tbl.Relation.Schema.Attributes))
	ridIdx, _ := tbl.Relation.AttributeIndex(RowIDAttr)
	row[ridIdx] = int64(rowID)
	for name, v := range values {
		idx, err := tbl.Relation.AttributeIndex(name)
		if err != nil {
			return 0, err
		}
		row[idx] = v
	}
	if err := tbl.Put(row); err != nil {
		return 0, err
	}
	return rowID, nil
}

func (t *LockBasedTransaction) Delete(tableName string, rowID uint64) error {
	if t.aborted() {
		return dberr.New(dberr.MissingRow, "transaction %s already aborted", t.name)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return err
	}
	key := LockKey{Table: tableName, RowID: rowID}
	if err := t.acquireWriteLock(key, true); err != nil {
		return err
	}
	if len(tbl.Get(rowID)) == 0 {
		return dberr.New(dberr.MissingRow, "row %d of %s does not exist", rowID, tableName)
	}
	t.saveOriginal(key, tbl, rowID)
	return tbl.Delete(rowID)
}

func (t *LockBasedTransaction) releaseAllLocks() {
	for _, k := range t.heldRead {
		t.manager.locks.ReleaseRead(k)
	}
	for _, k := range t.heldWrite {
		t.manager.locks.ReleaseWrite(k)
	}
	t.heldRead = nil
	t.heldWrite = nil
}

func (t *LockBasedTransaction) Commit() error {
	if t.status != Running {
		return nil
	}
	t.releaseAllLocks()
	t.status = Committed
	t.manager.metrics.TransactionsCommitted.Inc()
	t.log.Info("committed")
	return nil
}

func (t *LockBasedTransaction) Rollback() {
	t.rollbackInternal()
	t.manager.metrics.TransactionsAborted.WithLabelValues(string(dbmetrics.AbortExplicit)).Inc()
}

func (t *LockBasedTransaction) rollbackInternal() {
	if t.status != Running {
		return
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		e := t.undo[i]
		tbl := t.manager.tables[e.key.Table]
		if e.isInsert {
			tbl.Delete(e.key.RowID)
		} else {
			tbl.Put(e.original)
		}
	}
	t.releaseAllLocks()
	t.status = Aborted
	t.log.Warning("rolled back")
}
