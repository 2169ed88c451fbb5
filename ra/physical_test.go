package ra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func employeesRelation() *Relation {
	sc := NewSchema(
		Attribute{Name: "id", Domain: Integer},
		Attribute{Name: "name", Domain: String},
		Attribute{Name: "dept", Domain: String},
	)
	rel := NewRelation("Employee", sc)
	rows := []Tuple{
		{int64(1), "alice", "eng"},
		{int64(2), "bob", "eng"},
		{int64(3), "carol", "sales"},
	}
	for _, t := range rows {
		_, err := rel.AddTuple(t)
		if err != nil {
			panic(err)
		}
	}
	return rel
}

func TestSelectionScanEvaluate(t *testing.T) {
	rel := employeesRelation()
	leaf := NewLeaf(rel)
	sel := NewSelectionScan(leaf, "dept == 'eng'")

	out, err := sel.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())
}

func TestProjectionScanEvaluate(t *testing.T) {
	rel := employeesRelation()
	leaf := NewLeaf(rel)
	proj := NewProjectionScan(leaf, []string{"name"})

	out, err := proj.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	sc, err := proj.Schema()
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, sc.Names())
}

func TestCartesianNestedLoopEvaluate(t *testing.T) {
	left := NewLeaf(employeesRelation())
	rightSchema := NewSchema(Attribute{Name: "dept_name", Domain: String})
	rightRel := NewRelation("Dept", rightSchema)
	rightRel.AddTuple(Tuple{"eng"})
	rightRel.AddTuple(Tuple{"sales"})
	right := NewLeaf(rightRel)

	prod := NewCartesianNestedLoop(left, right)
	out, err := prod.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 6, out.Len())
}

func TestThetaJoinNestedLoopEvaluate(t *testing.T) {
	left := NewLeaf(employeesRelation())
	rightSchema := NewSchema(Attribute{Name: "dept_name", Domain: String})
	rightRel := NewRelation("Dept", rightSchema)
	rightRel.AddTuple(Tuple{"eng"})
	rightRel.AddTuple(Tuple{"sales"})
	right := NewLeaf(rightRel)

	join := NewThetaJoinNestedLoop(left, right, "dept == dept_name")
	out, err := join.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
}

func TestGroupingHashEvaluateCountStar(t *testing.T) {
	rel := employeesRelation()
	leaf := NewLeaf(rel)
	grouping := NewGroupingHash(leaf, []string{"dept"}, []Aggregation{
		{Fn: AggCount, Attr: "*"},
	})

	out, err := grouping.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())

	counts := make(map[string]int64)
	for _, row := range out.Tuples() {
		counts[row[0].(string)] = row[1].(int64)
	}
	assert.Equal(t, int64(2), counts["eng"])
	assert.Equal(t, int64(1), counts["sales"])
}

func TestSetHashOperators(t *testing.T) {
	sc := NewSchema(Attribute{Name: "x", Domain: Integer})
	relA := NewRelation("A", sc)
	relA.AddTuple(Tuple{int64(1)})
	relA.AddTuple(Tuple{int64(2)})
	relB := NewRelation("B", sc)
	relB.AddTuple(Tuple{int64(2)})
	relB.AddTuple(Tuple{int64(3)})

	union := NewUnionHash(NewLeaf(relA), NewLeaf(relB))
	out, err := union.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())

	inter := NewIntersectionHash(NewLeaf(relA), NewLeaf(relB))
	out, err = inter.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())

	diff := NewDifferenceHash(NewLeaf(relA), NewLeaf(relB))
	out, err = diff.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, int64(1), out.Tuples()[0][0])
}

func TestEvaluateTopLevelOnLeaf(t *testing.T) {
	rel := employeesRelation()
	out, err := Evaluate(NewLeaf(rel))
	require.NoError(t, err)
	assert.Equal(t, rel.Len(), out.Len())
}
