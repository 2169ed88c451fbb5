package tm

import (
	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/internal/dbmetrics"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

// staged is a locally-buffered write, not yet visible to any other
// transaction until Commit installs it (§4.8.2).
type staged struct {
	row     ra.Tuple
	deleted bool
	inserted bool
}

// MVCCTransaction implements SnapshotIsolation over multi-version tables:
// reads see the snapshot as of beginTS, writes are buffered locally and
// validated for write-write conflicts against every transaction that
// committed since the snapshot was taken.
type MVCCTransaction struct {
	txBase

	beginTS  uint64
	commitTS uint64

	readSet  map[LockKey]struct{}
	writeSet map[LockKey]struct{}
	local    map[LockKey]*staged
}

func newMVCCTransaction(name string, isolation IsolationLevel, mgr *TransactionManager) *MVCCTransaction {
	return &MVCCTransaction{
		txBase:   newTxBase(name, isolation, mgr),
		beginTS:  mgr.nextTimestamp(),
		commitTS: EndOfTime,
		readSet:  make(map[LockKey]struct{}),
		writeSet: make(map[LockKey]struct{}),
		local:    make(map[LockKey]*staged),
	}
}

func (t *MVCCTransaction) table(name string) (*Table, error) {
	tbl, ok := t.manager.tables[name]
	if !ok {
		return nil, dberr.New(dberr.MissingAttribute, "no such table %s", name)
	}
	return tbl, nil
}

// visibleVersion returns the unique version of rowID visible as of ts:
// the one whose begin_ts <= ts < end_ts.
func visibleVersion(tbl *Table, rowID uint64, ts uint64) (ra.Tuple, bool) {
	beginIdx, _ := tbl.Relation.AttributeIndex(BeginTSAttr)
	endIdx, _ := tbl.Relation.AttributeIndex(EndTSAttr)
	for _, v := range tbl.Get(rowID) {
		begin := uint64(v[beginIdx].(int64))
		end := tsOf(v[endIdx])
		if begin <= ts && ts < end {
			return v, true
		}
	}
	return nil, false
}

func tsOf(v ra.Value) uint64 {
	if v == nil {
		return EndOfTime
	}
	n := v.(int64)
	if n < 0 {
		return EndOfTime
	}
	return uint64(n)
}

func (t *MVCCTransaction) Read(tableName string, rowID uint64, column string) (ra.Value, error) {
	if t.status != Running {
		return nil, dberr.New(dberr.MissingRow, "transaction %s is %s", t.name, t.status)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return nil, err
	}
	key := LockKey{Table: tableName, RowID: rowID}
	idx, err := tbl.Relation.AttributeIndex(column)
	if err != nil {
		return nil, err
	}

	if s, ok := t.local[key]; ok {
		if s.deleted {
			return nil, dberr.New(dberr.ReadAfterDelete, "row %d of %s was deleted by this transaction", rowID, tableName)
		}
		return s.row[idx], nil
	}

	t.readSet[key] = struct{}{}
	row, ok := visibleVersion(tbl, rowID, t.beginTS)
	if !ok {
		return nil, dberr.New(dberr.MissingRow, "row %d of %s not visible at ts=%d", rowID, tableName, t.beginTS)
	}
	return row[idx], nil
}

func (t *MVCCTransaction) stageFromCurrent(tableName string, tbl *Table, rowID uint64) (ra.Tuple, error) {
	key := LockKey{Table: tableName, RowID: rowID}
	if s, ok := t.local[key]; ok {
		if s.deleted {
			return nil, dberr.New(dberr.ReadAfterDelete, "row %d of %s was deleted by this transaction", rowID, tableName)
		}
		return append(ra.Tuple{}, s.row...), nil
	}
	row, ok := visibleVersion(tbl, rowID, t.beginTS)
	if !ok {
		return nil, dberr.New(dberr.MissingRow, "row %d of %s not visible at ts=%d", rowID, tableName, t.beginTS)
	}
	return append(ra.Tuple{}, row...), nil
}

func (t *MVCCTransaction) Update(tableName string, rowID uint64, values map[string]ra.Value) error {
	if t.status != Running {
		return dberr.New(dberr.MissingRow, "transaction %s is %s", t.name, t.status)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return err
	}
	row, err := t.stageFromCurrent(tableName, tbl, rowID)
	if err != nil {
		return err
	}
	for name, v := range values {
		idx, err := tbl.Relation.AttributeIndex(name)
		if err != nil {
			return err
		}
		row[idx] = v
	}
	key := LockKey{Table: tableName, RowID: rowID}
	t.writeSet[key] = struct{}{}
	t.local[key] = &staged{row: row}
	return nil
}

func (t *MVCCTransaction) Insert(tableName string, values map[string]ra.Value) (uint64, error) {
	if t.status != Running {
		return 0, dberr.New(dberr.MissingRow, "transaction %s is %s", t.name, t.status)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return 0, err
	}
	rowID := tbl.GetNextRowID()
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
	key := LockKey{Table: tableName, RowID: rowID}
	t.writeSet[key] = struct{}{}
	t.local[key] = &staged{row: row, inserted: true}
	return rowID, nil
}

func (t *MVCCTransaction) Delete(tableName string, rowID uint64) error {
	if t.status != Running {
		return dberr.New(dberr.MissingRow, "transaction %s is %s", t.name, t.status)
	}
	tbl, err := t.table(tableName)
	if err != nil {
		return err
	}
	row, err := t.stageFromCurrent(tableName, tbl, rowID)
	if err != nil {
		return err
	}
	key := LockKey{Table: tableName, RowID: rowID}
	t.writeSet[key] = struct{}{}
	t.local[key] = &staged{row: row, deleted: true}
	return nil
}

// Commit validates the transaction's write set against every transaction
// that committed after beginTS, then installs staged rows at a freshly
// allocated commit timestamp (§4.8.2). Conflicting commits abort.
func (t *MVCCTransaction) Commit() error {
	if t.status != Running {
		return nil
	}
	for _, other := range t.manager.committedSince(t.beginTS) {
		for key := range t.writeSet {
			if _, conflict := other.writeSet[key]; conflict {
				t.abortInternal(dbmetrics.AbortValidation)
				return dberr.New(dberr.ValidationFailure, "write-write conflict on %v with transaction committed at ts=%d", key, other.commitTS)
			}
		}
		if t.isolation == Serializable {
			for key := range t.readSet {
				if _, conflict := other.writeSet[key]; conflict {
					t.abortInternal(dbmetrics.AbortValidation)
					return dberr.New(dberr.ValidationFailure, "read-write conflict on %v with transaction committed at ts=%d", key, other.commitTS)
				}
			}
		}
	}

	t.commitTS = t.manager.nextTimestamp()
	for key, s := range t.local {
		tbl := t.manager.tables[key.Table]
		if err := t.install(tbl, key.RowID, s); err != nil {
			t.abortInternal(dbmetrics.AbortValidation)
			return err
		}
	}
	t.manager.recordCommittedMVCC(t.commitTS, t.writeSet)
	t.manager.forgetActiveMVCC(t.name)
	t.status = Committed
	t.manager.metrics.TransactionsCommitted.Inc()
	t.log.Info("committed at ts=%d", t.commitTS)
	return nil
}

// install closes out the prior current version's end_ts at commitTS (for
// updates/deletes) and appends the new version beginning at commitTS (for
// inserts/updates). A pure delete leaves no new version.
func (t *MVCCTransaction) install(tbl *Table, rowID uint64, s *staged) error {
	endIdx, _ := tbl.Relation.AttributeIndex(EndTSAttr)
	chain := tbl.Get(rowID)
	if len(chain) > 0 {
		current := chain[len(chain)-1]
		if tsOf(current[endIdx]) == EndOfTime {
			// current shares backing storage with the chain: mutate its
			// end_ts in place rather than Put-ing a copy, which would only
			// append a second open-ended version under multi-version mode.
			current[endIdx] = int64(t.commitTS)
		}
	}
	if s.deleted {
		return nil
	}
	beginIdx, _ := tbl.Relation.AttributeIndex(BeginTSAttr)
	row := append(ra.Tuple{}, s.row...)
	row[beginIdx] = int64(t.commitTS)
	row[endIdx] = nil
	return tbl.Put(row)
}

func (t *MVCCTransaction) Rollback() {
	t.abortInternal(dbmetrics.AbortExplicit)
}

func (t *MVCCTransaction) abortInternal(reason dbmetrics.AbortReason) {
	if t.status != Running {
		return
	}
	t.manager.forgetActiveMVCC(t.name)
	t.status = Aborted
	t.manager.metrics.TransactionsAborted.WithLabelValues(string(reason)).Inc()
	t.log.Warning("aborted (%s)", reason)
}
