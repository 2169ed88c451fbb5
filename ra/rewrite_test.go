package ra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRewriteThenCompileEndToEnd builds selection(cartesian(R, S)) with a
// conjunctive predicate referencing both sides and checks that the full
// pipeline -- rewrite to a theta-join, then compile to physical operators --
// still evaluates to the same result a naive cartesian+filter would.
func TestRewriteThenCompileEndToEnd(t *testing.T) {
	lsc := NewSchema(Attribute{Name: "id", Domain: Integer}, Attribute{Name: "dept", Domain: String})
	lrel := NewRelation("Employee", lsc)
	lrel.AddTuple(Tuple{int64(1), "eng"})
	lrel.AddTuple(Tuple{int64(2), "sales"})

	rsc := NewSchema(Attribute{Name: "dept_name", Domain: String}, Attribute{Name: "budget", Domain: Integer})
	rrel := NewRelation("Dept", rsc)
	rrel.AddTuple(Tuple{"eng", int64(100)})
	rrel.AddTuple(Tuple{"sales", int64(50)})

	root := NewSelection(
		NewCartesianProduct(NewLeaf(lrel), NewLeaf(rrel)),
		"dept == dept_name and budget == 100",
	)

	rewritten := Rewrite(root)

	physical, err := Compile(rewritten)
	require.NoError(t, err)

	out, err := Evaluate(physical)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestRewriteBreaksUpConjunction(t *testing.T) {
	sc := NewSchema(Attribute{Name: "a", Domain: Integer}, Attribute{Name: "b", Domain: Integer})
	rel := NewRelation("R", sc)
	rel.AddTuple(Tuple{int64(1), int64(2)})
	rel.AddTuple(Tuple{int64(5), int64(5)})

	root := NewSelection(NewLeaf(rel), "a == 5 and b == 5")
	rewritten := Rewrite(root)

	physical, err := Compile(rewritten)
	require.NoError(t, err)
	out, err := Evaluate(physical)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, Tuple{int64(5), int64(5)}, out.Tuples()[0])
}

func TestCompileUsesIndexWhenAvailable(t *testing.T) {
	sc := NewSchema(Attribute{Name: "id", Domain: Integer})
	rel := NewRelation("R", sc)
	for i := int64(0); i < 5; i++ {
		rel.AddTuple(Tuple{i})
	}
	_, err := rel.CreateIndex("id")
	require.NoError(t, err)

	root := NewSelection(NewLeaf(rel), "id == 3")
	physical, err := Compile(root)
	require.NoError(t, err)

	_, isIndexed := physical.(*SelectionIndex)
	assert.True(t, isIndexed, "expected Selection-IndexBased, got %T", physical)

	out, err := Evaluate(physical)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}
