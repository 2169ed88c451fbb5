package tm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BigDataAnalyticsGroup/radb/ra"
)

func newAccountTable(multiversion bool) *Table {
	attrs := []ra.Attribute{{Name: RowIDAttr, Domain: ra.Integer}}
	if multiversion {
		attrs = append(attrs,
			ra.Attribute{Name: BeginTSAttr, Domain: ra.Integer},
			ra.Attribute{Name: EndTSAttr, Domain: ra.Integer},
		)
	}
	attrs = append(attrs, ra.Attribute{Name: "balance", Domain: ra.Integer})
	return NewTable("account", ra.NewSchema(attrs...), multiversion)
}

func TestTableGetNextRowIDReusesDeletedIDs(t *testing.T) {
	tbl := newAccountTable(false)
	id0 := tbl.GetNextRowID()
	id1 := tbl.GetNextRowID()
	assert.Equal(t, uint64(0), id0)
	assert.Equal(t, uint64(1), id1)

	require.NoError(t, tbl.Put(ra.Tuple{int64(id0), int64(10)}))
	require.NoError(t, tbl.Delete(id0))

	reused := tbl.GetNextRowID()
	assert.Equal(t, id0, reused, "single-version tables should recycle freed row ids")
}

func TestTableMultiversionNeverRecyclesIDs(t *testing.T) {
	tbl := newAccountTable(true)
	id0 := tbl.GetNextRowID()
	require.NoError(t, tbl.Put(ra.Tuple{int64(id0), int64(1), nil, int64(10)}))
	require.NoError(t, tbl.Delete(id0))

	next := tbl.GetNextRowID()
	assert.NotEqual(t, id0, next, "multi-version tables must not recycle row ids")
}

func TestTablePutAppendsVersionChainWhenMultiversion(t *testing.T) {
	tbl := newAccountTable(true)
	id := tbl.GetNextRowID()
	require.NoError(t, tbl.Put(ra.Tuple{int64(id), int64(1), int64(5), int64(10)}))
	require.NoError(t, tbl.Put(ra.Tuple{int64(id), int64(5), nil, int64(20)}))

	chain := tbl.Get(id)
	require.Len(t, chain, 2)
	assert.Equal(t, int64(10), chain[0][3])
	assert.Equal(t, int64(20), chain[1][3])
}

func TestTablePutOverwritesWhenSingleVersion(t *testing.T) {
	tbl := newAccountTable(false)
	id := tbl.GetNextRowID()
	require.NoError(t, tbl.Put(ra.Tuple{int64(id), int64(10)}))
	require.NoError(t, tbl.Put(ra.Tuple{int64(id), int64(20)}))

	chain := tbl.Get(id)
	require.Len(t, chain, 1)
	assert.Equal(t, int64(20), chain[0][1])
}

func TestTablePutRejectsOutOfRangeRowID(t *testing.T) {
	tbl := newAccountTable(false)
	err := tbl.Put(ra.Tuple{int64(42), int64(10)})
	assert.Error(t, err)
}
