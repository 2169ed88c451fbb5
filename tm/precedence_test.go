package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildTrace pairs a Statement slice with an ExecutedStatement trace that
// simply runs them in order, as ExecuteSchedule would for a conflict-free
// schedule -- letting these tests target BuildPrecedenceGraph directly
// without driving the full executor.
func buildTrace(stmts []Statement) []ExecutedStatement {
	trace := make([]ExecutedStatement, len(stmts))
	for i, s := range stmts {
		trace[i] = ExecutedStatement{Index: i, TxID: s.TxID, Kind: s.Kind, Raw: s.Raw}
	}
	return trace
}

func TestBuildPrecedenceGraphReadThenWriteAddsEdge(t *testing.T) {
	stmts := []Statement{
		{TxID: "t1", Kind: StmtRead, Table: "account", RowID: 0},
		{TxID: "t2", Kind: StmtUpdate, Table: "account", RowID: 0},
	}
	g := BuildPrecedenceGraph(buildTrace(stmts), stmts)

	assert.Contains(t, g.Successors("t1"), "t2")
	assert.NotContains(t, g.Successors("t2"), "t1")
}

func TestBuildPrecedenceGraphIgnoresDisjointKeys(t *testing.T) {
	stmts := []Statement{
		{TxID: "t1", Kind: StmtRead, Table: "account", RowID: 0},
		{TxID: "t2", Kind: StmtUpdate, Table: "account", RowID: 1},
	}
	g := BuildPrecedenceGraph(buildTrace(stmts), stmts)

	assert.Empty(t, g.Successors("t1"))
	assert.Empty(t, g.Successors("t2"))
}

func TestBuildPrecedenceGraphInsertCountsAsWriteOnResolvedRowID(t *testing.T) {
	stmts := []Statement{
		{TxID: "t1", Kind: StmtInsert, Table: "account"},
		{TxID: "t2", Kind: StmtRead, Table: "account", RowID: 7},
	}
	trace := []ExecutedStatement{
		{Index: 0, TxID: "t1", Kind: StmtInsert, ResolvedRowID: 7},
		{Index: 1, TxID: "t2", Kind: StmtRead},
	}
	g := BuildPrecedenceGraph(trace, stmts)

	assert.Contains(t, g.Successors("t1"), "t2")
}

func TestBuildPrecedenceGraphNoSelfEdges(t *testing.T) {
	stmts := []Statement{
		{TxID: "t1", Kind: StmtRead, Table: "account", RowID: 0},
		{TxID: "t1", Kind: StmtUpdate, Table: "account", RowID: 0},
	}
	g := BuildPrecedenceGraph(buildTrace(stmts), stmts)

	assert.Empty(t, g.Successors("t1"))
}

func TestBuildPrecedenceGraphTransactionsListsAllNodes(t *testing.T) {
	stmts := []Statement{
		{TxID: "b", Kind: StmtRead, Table: "account", RowID: 0},
		{TxID: "a", Kind: StmtUpdate, Table: "account", RowID: 1},
	}
	g := BuildPrecedenceGraph(buildTrace(stmts), stmts)

	assert.Equal(t, []string{"a", "b"}, g.Transactions())
}
