package tm

import (
	"sort"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/internal/dblog"
	"github.com/BigDataAnalyticsGroup/radb/internal/expr"
	"github.com/BigDataAnalyticsGroup/radb/ra"
)

// ExecutedStatement records one statement as it actually ran, in the
// order the executor chose to run it -- which may differ from the
// schedule's textual order once deferred retries are interleaved
// (§4.7/§6).
type ExecutedStatement struct {
	Index         int // position in the original schedule
	TxID          string
	Kind          StatementKind
	Raw           string
	ResolvedRowID uint64      // for INSERT, the row id actually allocated
	Value         ra.Value    // for READ, the value produced
}

type pendingFragment struct {
	index int
	stmt  Statement
}

// ExecuteSchedule runs stmts to completion, deferring any statement whose
// next lock is transiently unavailable and retrying it -- in FIFO order
// per transaction -- once the conflicting lock frees up (§4.7). Every
// BEGIN mints a transaction at the given isolation level. Statements of
// an already-aborted transaction are silently skipped, mirroring the
// pseudocode templates' own "if status == RUNNING" guard.
func ExecuteSchedule(mgr *TransactionManager, stmts []Statement, level IsolationLevel) ([]ExecutedStatement, map[string]Status, error) {
	log := dblog.WithField("component", "schedule-executor")

	txs := make(map[string]Transaction)
	vars := make(map[string]ra.Value)
	pending := make(map[string][]pendingFragment)
	pendingCount := 0

	var trace []ExecutedStatement
	ip := 0

	nextFragments := func() []pendingFragment {
		var out []pendingFragment
		for _, q := range pending {
			if len(q) > 0 {
				out = append(out, q[0])
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
		return out
	}

	// run attempts stmt once. ok=true means it is resolved (either it ran,
	// was a no-op on an already-terminal transaction, or failed
	// permanently); ok=false means it must be retried later.
	run := func(idx int, stmt Statement) (ok bool, err error) {
		if stmt.Kind == StmtBegin {
			txs[stmt.TxID] = mgr.BeginTransaction(stmt.TxID, level)
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw})
			return true, nil
		}

		tx, ok := txs[stmt.TxID]
		if !ok {
			return false, dberr.New(dberr.ParseError, "transaction %s used before BEGIN", stmt.TxID)
		}
		if tx.Status() != Running {
			// statements of a terminated transaction are no-ops.
			return true, nil
		}

		switch stmt.Kind {
		case StmtRead:
			v, err := tx.Read(stmt.Table, stmt.RowID, stmt.Column)
			if err != nil {
				if k, is := dberr.KindOf(err); is && k == dberr.LockAcquireFailed {
					mgr.metrics.StatementsDeferred.Inc()
					return false, nil
				}
				return true, nil // tx aborted itself (e.g. lock-order-violation)
			}
			vars[stmt.VarName] = v
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw, Value: v})
			return true, nil

		case StmtUpdate:
			if err := tx.Update(stmt.Table, stmt.RowID, stmt.Values); err != nil {
				if k, is := dberr.KindOf(err); is && k == dberr.LockAcquireFailed {
					mgr.metrics.StatementsDeferred.Inc()
					return false, nil
				}
				return true, nil
			}
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw, ResolvedRowID: stmt.RowID})
			return true, nil

		case StmtInsert:
			rowID, err := tx.Insert(stmt.Table, stmt.Values)
			if err != nil {
				if k, is := dberr.KindOf(err); is && k == dberr.LockAcquireFailed {
					mgr.metrics.StatementsDeferred.Inc()
					return false, nil
				}
				return true, nil
			}
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw, ResolvedRowID: rowID})
			return true, nil

		case StmtDelete:
			if err := tx.Delete(stmt.Table, stmt.RowID); err != nil {
				if k, is := dberr.KindOf(err); is && k == dberr.LockAcquireFailed {
					mgr.metrics.StatementsDeferred.Inc()
					return false, nil
				}
				return true, nil
			}
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw, ResolvedRowID: stmt.RowID})
			return true, nil

		case StmtAssert:
			holds, err := expr.EvalString(stmt.Predicate, vars)
			if err != nil {
				return true, err
			}
			if !holds {
				tx.Rollback()
				log.Warning("assertion failed for %s: %s", stmt.TxID, stmt.Predicate)
				return true, nil
			}
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw})
			return true, nil

		case StmtCommit:
			tx.Commit()
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw})
			return true, nil

		case StmtAbort:
			tx.Rollback()
			trace = append(trace, ExecutedStatement{Index: idx, TxID: stmt.TxID, Kind: stmt.Kind, Raw: stmt.Raw})
			return true, nil

		default:
			return true, dberr.New(dberr.ParseError, "unknown statement kind for %s", stmt.TxID)
		}
	}

	for {
		frags := nextFragments()

		if len(frags) > 0 {
			if ip < len(stmts) {
				stmt := stmts[ip]
				if len(pending[stmt.TxID]) > 0 {
					pending[stmt.TxID] = append(pending[stmt.TxID], pendingFragment{ip, stmt})
					pendingCount++
				} else {
					ok, err := run(ip, stmt)
					if err != nil {
						return trace, statusSnapshot(txs), err
					}
					if !ok {
						pending[stmt.TxID] = append(pending[stmt.TxID], pendingFragment{ip, stmt})
						pendingCount++
					}
				}
				ip++
			}

			for _, frag := range frags {
				q := pending[frag.stmt.TxID]
				drained := 0
				ok, err := run(frag.index, frag.stmt)
				if err != nil {
					return trace, statusSnapshot(txs), err
				}
				if ok {
					pendingCount--
					drained++
					for _, next := range q[1:] {
						ok, err := run(next.index, next.stmt)
						if err != nil {
							return trace, statusSnapshot(txs), err
						}
						if !ok {
							break
						}
						pendingCount--
						drained++
					}
				}
				pending[frag.stmt.TxID] = q[drained:]
			}
		} else {
			if ip < len(stmts) {
				stmt := stmts[ip]
				ok, err := run(ip, stmt)
				if err != nil {
					return trace, statusSnapshot(txs), err
				}
				if ok {
					ip++
				} else {
					pending[stmt.TxID] = append(pending[stmt.TxID], pendingFragment{ip, stmt})
					pendingCount++
					ip++
				}
			}
		}

		mgr.metrics.PendingQueueDepth.Set(float64(pendingCount))
		if ip >= len(stmts) && pendingCount == 0 {
			break
		}
	}

	return trace, statusSnapshot(txs), nil
}

func statusSnapshot(txs map[string]Transaction) map[string]Status {
	out := make(map[string]Status, len(txs))
	for name, tx := range txs {
		out[name] = tx.Status()
	}
	return out
}
