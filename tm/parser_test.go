package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleSplitsTxAndStatement(t *testing.T) {
	lines := []string{
		"t1;BEGIN()",
		"",
		"t1;x = READ(table_name=account, rowid=0, column=balance)",
		"t1;COMMIT()",
	}
	stmts, err := ParseSchedule(lines)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Equal(t, StmtBegin, stmts[0].Kind)
	assert.Equal(t, StmtRead, stmts[1].Kind)
	assert.Equal(t, StmtCommit, stmts[2].Kind)
	for _, s := range stmts {
		assert.Equal(t, "t1", s.TxID)
	}
}

func TestParseScheduleRejectsMissingSeparator(t *testing.T) {
	_, err := ParseSchedule([]string{"t1 BEGIN()"})
	assert.Error(t, err)
}

func TestParseStatementBeginCommitAbort(t *testing.T) {
	for raw, kind := range map[string]StatementKind{
		"BEGIN()":  StmtBegin,
		"COMMIT()": StmtCommit,
		"ABORT()":  StmtAbort,
	} {
		stmt, err := ParseStatement("t1", raw)
		require.NoError(t, err)
		assert.Equal(t, kind, stmt.Kind)
		assert.Equal(t, "t1", stmt.TxID)
	}
}

func TestParseStatementRead(t *testing.T) {
	stmt, err := ParseStatement("t1", "x = READ(table_name=account, rowid=0, column=balance)")
	require.NoError(t, err)
	assert.Equal(t, StmtRead, stmt.Kind)
	assert.Equal(t, "x", stmt.VarName)
	assert.Equal(t, "account", stmt.Table)
	assert.Equal(t, uint64(0), stmt.RowID)
	assert.Equal(t, "balance", stmt.Column)
}

func TestParseStatementUpdate(t *testing.T) {
	stmt, err := ParseStatement("t1", "UPDATE(table_name=account, rowid=0, values={'balance': 50})")
	require.NoError(t, err)
	assert.Equal(t, StmtUpdate, stmt.Kind)
	assert.Equal(t, "account", stmt.Table)
	assert.Equal(t, uint64(0), stmt.RowID)
	require.Contains(t, stmt.Values, "balance")
	assert.Equal(t, int64(50), stmt.Values["balance"])
}

func TestParseStatementInsert(t *testing.T) {
	stmt, err := ParseStatement("t1", "INSERT(table_name=account, values={'balance': 100})")
	require.NoError(t, err)
	assert.Equal(t, StmtInsert, stmt.Kind)
	assert.Equal(t, "account", stmt.Table)
	assert.Equal(t, int64(100), stmt.Values["balance"])
}

func TestParseStatementDelete(t *testing.T) {
	stmt, err := ParseStatement("t1", "DELETE(table_name=account, rowid=3)")
	require.NoError(t, err)
	assert.Equal(t, StmtDelete, stmt.Kind)
	assert.Equal(t, "account", stmt.Table)
	assert.Equal(t, uint64(3), stmt.RowID)
}

func TestParseStatementAssert(t *testing.T) {
	stmt, err := ParseStatement("t1", "ASSERT(constraint=balance == 50)")
	require.NoError(t, err)
	assert.Equal(t, StmtAssert, stmt.Kind)
	assert.Equal(t, "balance == 50", stmt.Predicate)
}

func TestParseStatementValueDictMixedTypes(t *testing.T) {
	stmt, err := ParseStatement("t1", "INSERT(table_name=account, values={'balance': 10, 'rate': 1.5, 'name': 'bob', 'label': \"carol\"})")
	require.NoError(t, err)
	require.Equal(t, int64(10), stmt.Values["balance"])
	require.Equal(t, 1.5, stmt.Values["rate"])
	require.Equal(t, "bob", stmt.Values["name"])
	require.Equal(t, "carol", stmt.Values["label"])
}

func TestParseStatementRejectsUnrecognizedBody(t *testing.T) {
	_, err := ParseStatement("t1", "FROBNICATE(table_name=account)")
	assert.Error(t, err)
}

func TestParseStatementRejectsNonNumericRowID(t *testing.T) {
	_, err := ParseStatement("t1", "DELETE(table_name=account, rowid=abc)")
	assert.Error(t, err)
}
