package tm

import "sync"

// LockKey addresses a single row of a single table.
type LockKey struct {
	Table string
	RowID uint64
}

// Less gives LockKey a total order (table name, then row id), used by the
// lock-based transaction's deadlock-avoidance ordering.
func (k LockKey) Less(o LockKey) bool {
	if k.Table != o.Table {
		return k.Table < o.Table
	}
	return k.RowID < o.RowID
}

// lockRecord is a per-(table,row) advisory single-writer/multi-reader
// lock. Ownership is advisory: any caller may release any lock; there is
// no blocking, only non-blocking try-acquire with deferred retry owned by
// the schedule executor (§4.7).
type lockRecord struct {
	readers       int
	writer        bool
	pendingWriter string // transaction id, "" if none
}

// LockTable is the shared mapping (table,row) -> lock record.
type LockTable struct {
	mu      sync.Mutex
	records map[LockKey]*lockRecord
}

func NewLockTable() *LockTable {
	return &LockTable{records: make(map[LockKey]*lockRecord)}
}

func (lt *LockTable) recordFor(key LockKey) *lockRecord {
	r, ok := lt.records[key]
	if !ok {
		r = &lockRecord{}
		lt.records[key] = r
	}
	return r
}

// TryAcquireRead succeeds iff no writer is active.
func (lt *LockTable) TryAcquireRead(key LockKey) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	r := lt.recordFor(key)
	if r.writer {
		return false
	}
	r.readers++
	return true
}

// TryAcquireWrite succeeds iff no writer and no readers are active.
func (lt *LockTable) TryAcquireWrite(key LockKey) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	r := lt.recordFor(key)
	if r.writer || r.readers > 0 {
		return false
	}
	r.writer = true
	return true
}

func (lt *LockTable) ReleaseRead(key LockKey) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	r := lt.recordFor(key)
	if r.readers > 0 {
		r.readers--
	}
}

func (lt *LockTable) ReleaseWrite(key LockKey) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	r := lt.recordFor(key)
	r.writer = false
}

// WaitForWrite records requestor as the single pending writer on key.
// Returns true if requestor became (or already was) the pending writer,
// false if another transaction already holds that slot.
func (lt *LockTable) WaitForWrite(key LockKey, requestor string) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	r := lt.recordFor(key)
	if r.pendingWriter == "" || r.pendingWriter == requestor {
		r.pendingWriter = requestor
		return true
	}
	return false
}

// ClearPendingWriter releases the pending-writer slot if held by who.
func (lt *LockTable) ClearPendingWriter(key LockKey, who string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	r := lt.recordFor(key)
	if r.pendingWriter == who {
		r.pendingWriter = ""
	}
}
