package ra

import (
	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/internal/expr"
)

// Every physical operator implements Evaluate() from the Physical
// interface, materializing its children through evaluateChild.

// --- Selection-ScanBased ---------------------------------------------------

type SelectionScan struct {
	unary
	Predicate string
}

func NewSelectionScan(input Operator, predicate string) *SelectionScan {
	return &SelectionScan{unary: unary{Input: input}, Predicate: predicate}
}
func (s *SelectionScan) Kind() Kind { return KindSelectionScanPhys }
func (s *SelectionScan) Schema() (Schema, error) {
	return (&Selection{unary: s.unary, Predicate: s.Predicate}).Schema()
}
func (s *SelectionScan) HasAttribute(name string) bool {
	sc, err := s.Schema()
	return err == nil && sc.HasAttribute(name)
}
func (s *SelectionScan) String() string { return "σ_scan[" + s.Predicate + "]" }

func (s *SelectionScan) Evaluate() (*Relation, error) {
	in, err := evaluateChild(s.Input)
	if err != nil {
		return nil, err
	}
	sc := in.Schema
	clauses, err := expr.Parse(s.Predicate)
	if err != nil {
		return nil, err
	}
	out := NewRelation("Result", sc)
	for _, t := range in.Tuples() {
		ok, err := evalPredicate(clauses, sc, t)
		if err != nil {
			return nil, err
		}
		if ok {
			if _, err := out.AddTuple(t); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func evalPredicate(clauses []expr.Clause, sc Schema, t Tuple) (bool, error) {
	bindings := make(map[string]interface{}, len(sc.Attributes))
	for i, a := range sc.Attributes {
		bindings[a.Name] = t[i]
	}
	return expr.Eval(clauses, bindings)
}

// --- Selection-IndexBased ---------------------------------------------

// SelectionIndex is picked by the compiler only when the predicate
// references a single attribute that is indexed on the underlying leaf
// relation (§4.4). Like the source it is grounded on, evaluation itself
// falls back to a full scan + filter; only EstimatedResultSize differs
// from SelectionScan, which is what makes the cost-based pick meaningful.
type SelectionIndex struct {
	unary
	Predicate string
	Index     *Index
	Op        CompareOp
	Key       Value
}

func NewSelectionIndex(input Operator, predicate string, idx *Index, op CompareOp, key Value) *SelectionIndex {
	return &SelectionIndex{unary: unary{Input: input}, Predicate: predicate, Index: idx, Op: op, Key: key}
}
func (s *SelectionIndex) Kind() Kind { return KindSelectionIndexPhys }
func (s *SelectionIndex) Schema() (Schema, error) {
	return (&Selection{unary: s.unary, Predicate: s.Predicate}).Schema()
}
func (s *SelectionIndex) HasAttribute(name string) bool {
	sc, err := s.Schema()
	return err == nil && sc.HasAttribute(name)
}
func (s *SelectionIndex) String() string { return "σ_index[" + s.Predicate + "]" }

func (s *SelectionIndex) EstimatedResultSize() int {
	return s.Index.EstimatedResultSize(s.Op, s.Key)
}

func (s *SelectionIndex) Evaluate() (*Relation, error) {
	in, err := evaluateChild(s.Input)
	if err != nil {
		return nil, err
	}
	sc := in.Schema
	clauses, err := expr.Parse(s.Predicate)
	if err != nil {
		return nil, err
	}
	out := NewRelation("Result", sc)
	for _, t := range in.Tuples() {
		ok, err := evalPredicate(clauses, sc, t)
		if err != nil {
			return nil, err
		}
		if ok {
			if _, err := out.AddTuple(t); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// --- Projection-ScanBased ------------------------------------------------

type ProjectionScan struct {
	unary
	Attributes []string
}

func NewProjectionScan(input Operator, attrs []string) *ProjectionScan {
	return &ProjectionScan{unary: unary{Input: input}, Attributes: attrs}
}
func (p *ProjectionScan) Kind() Kind { return KindProjectionPhys }
func (p *ProjectionScan) Schema() (Schema, error) {
	return (&Projection{unary: p.unary, Attributes: p.Attributes}).Schema()
}
func (p *ProjectionScan) HasAttribute(name string) bool {
	for _, a := range p.Attributes {
		if a == name {
			return true
		}
	}
	return false
}
func (p *ProjectionScan) String() string { return "π_scan" }

func (p *ProjectionScan) Evaluate() (*Relation, error) {
	in, err := evaluateChild(p.Input)
	if err != nil {
		return nil, err
	}
	outSchema, err := p.Schema()
	if err != nil {
		return nil, err
	}
	idxs := make([]int, len(p.Attributes))
	for i, name := range p.Attributes {
		j, err := in.AttributeIndex(name)
		if err != nil {
			return nil, err
		}
		idxs[i] = j
	}
	out := NewRelation("Result", outSchema)
	for _, t := range in.Tuples() {
		nt := make(Tuple, len(idxs))
		for i, j := range idxs {
			nt[i] = t[j]
		}
		if _, err := out.AddTuple(nt); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- Cartesian-NestedLoop ------------------------------------------------

type CartesianNestedLoop struct {
	binary
}

func NewCartesianNestedLoop(l, r Operator) *CartesianNestedLoop {
	return &CartesianNestedLoop{binary: binary{Left: l, Right: r}}
}
func (c *CartesianNestedLoop) Kind() Kind { return KindCartesianPhys }
func (c *CartesianNestedLoop) Schema() (Schema, error) {
	return (&CartesianProduct{binary: c.binary}).Schema()
}
func (c *CartesianNestedLoop) HasAttribute(name string) bool {
	sc, err := c.Schema()
	return err == nil && sc.HasAttribute(name)
}
func (c *CartesianNestedLoop) String() string { return "×_nl" }

func (c *CartesianNestedLoop) Evaluate() (*Relation, error) {
	l, err := evaluateChild(c.Left)
	if err != nil {
		return nil, err
	}
	r, err := evaluateChild(c.Right)
	if err != nil {
		return nil, err
	}
	sc, err := c.Schema()
	if err != nil {
		return nil, err
	}
	out := NewRelation("Result", sc)
	for _, lt := range l.Tuples() {
		for _, rt := range r.Tuples() {
			nt := append(append(Tuple{}, lt...), rt...)
			if _, err := out.AddTuple(nt); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// --- Theta-join-NestedLoop -----------------------------------------------

type ThetaJoinNestedLoop struct {
	binary
	Predicate string
}

func NewThetaJoinNestedLoop(l, r Operator, predicate string) *ThetaJoinNestedLoop {
	return &ThetaJoinNestedLoop{binary: binary{Left: l, Right: r}, Predicate: predicate}
}
func (t *ThetaJoinNestedLoop) Kind() Kind { return KindThetaJoinPhys }
func (t *ThetaJoinNestedLoop) Schema() (Schema, error) {
	return (&ThetaJoin{binary: t.binary, Predicate: t.Predicate}).Schema()
}
func (t *ThetaJoinNestedLoop) HasAttribute(name string) bool {
	sc, err := t.Schema()
	return err == nil && sc.HasAttribute(name)
}
func (t *ThetaJoinNestedLoop) String() string { return "⋈_nl[" + t.Predicate + "]" }

func (t *ThetaJoinNestedLoop) Evaluate() (*Relation, error) {
	l, err := evaluateChild(t.Left)
	if err != nil {
		return nil, err
	}
	r, err := evaluateChild(t.Right)
	if err != nil {
		return nil, err
	}
	sc, err := t.Schema()
	if err != nil {
		return nil, err
	}
	clauses, err := expr.Parse(t.Predicate)
	if err != nil {
		return nil, err
	}
	out := NewRelation("Result", sc)
	for _, lt := range l.Tuples() {
		for _, rt := range r.Tuples() {
			nt := append(append(Tuple{}, lt...), rt...)
			ok, err := evalPredicate(clauses, sc, nt)
			if err != nil {
				return nil, err
			}
			if ok {
				if _, err := out.AddTuple(nt); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// --- Rename-relation-ScanBased -----------------------------------------

type RenameRelationScan struct {
	unary
	NewName string
}

func NewRenameRelationScan(input Operator, newName string) *RenameRelationScan {
	return &RenameRelationScan{unary: unary{Input: input}, NewName: newName}
}
func (r *RenameRelationScan) Kind() Kind              { return KindRenameRelationPhys }
func (r *RenameRelationScan) Schema() (Schema, error) { return r.Input.Schema() }
func (r *RenameRelationScan) HasAttribute(name string) bool {
	sc, err := r.Schema()
	return err == nil && sc.HasAttribute(name)
}
func (r *RenameRelationScan) String() string { return "ρ_scan[" + r.NewName + "]" }

func (r *RenameRelationScan) Evaluate() (*Relation, error) {
	in, err := evaluateChild(r.Input)
	if err != nil {
		return nil, err
	}
	out := NewRelation(r.NewName, in.Schema)
	for _, t := range in.Tuples() {
		if _, err := out.AddTuple(t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- Rename-attributes-ScanBased ---------------------------------------

type RenameAttributesScan struct {
	unary
	Changes []AttributeRename
}

func NewRenameAttributesScan(input Operator, changes []AttributeRename) *RenameAttributesScan {
	return &RenameAttributesScan{unary: unary{Input: input}, Changes: changes}
}
func (r *RenameAttributesScan) Kind() Kind { return KindRenameAttributesPhys }
func (r *RenameAttributesScan) Schema() (Schema, error) {
	return (&RenameAttributes{unary: r.unary, Changes: r.Changes}).Schema()
}
func (r *RenameAttributesScan) HasAttribute(name string) bool {
	sc, err := r.Schema()
	return err == nil && sc.HasAttribute(name)
}
func (r *RenameAttributesScan) String() string { return "ρ_scan_attrs" }

func (r *RenameAttributesScan) Evaluate() (*Relation, error) {
	in, err := evaluateChild(r.Input)
	if err != nil {
		return nil, err
	}
	sc, err := r.Schema()
	if err != nil {
		return nil, err
	}
	out := NewRelation("Result", sc)
	for _, t := range in.Tuples() {
		if _, err := out.AddTuple(t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- Grouping-HashBased --------------------------------------------------

type GroupingHash struct {
	unary
	GroupBy      []string
	Aggregations []Aggregation
}

func NewGroupingHash(input Operator, groupBy []string, aggs []Aggregation) *GroupingHash {
	return &GroupingHash{unary: unary{Input: input}, GroupBy: groupBy, Aggregations: aggs}
}
func (g *GroupingHash) Kind() Kind { return KindGroupingPhys }
func (g *GroupingHash) Schema() (Schema, error) {
	return (&Grouping{unary: g.unary, GroupBy: g.GroupBy, Aggregations: g.Aggregations}).Schema()
}
func (g *GroupingHash) HasAttribute(name string) bool {
	sc, err := g.Schema()
	return err == nil && sc.HasAttribute(name)
}
func (g *GroupingHash) String() string { return "γ_hash" }

func (g *GroupingHash) Evaluate() (*Relation, error) {
	in, err := evaluateChild(g.Input)
	if err != nil {
		return nil, err
	}
	outSchema, err := g.Schema()
	if err != nil {
		return nil, err
	}
	groupIdx := make([]int, len(g.GroupBy))
	for i, name := range g.GroupBy {
		j, err := in.AttributeIndex(name)
		if err != nil {
			return nil, err
		}
		groupIdx[i] = j
	}
	type bucket struct {
		key     Tuple
		members []Tuple
	}
	buckets := make(map[string]*bucket)
	order := []string{}
	for _, t := range in.Tuples() {
		key := make(Tuple, len(groupIdx))
		for i, j := range groupIdx {
			key[i] = t[j]
		}
		k := key.key()
		b, ok := buckets[k]
		if !ok {
			b = &bucket{key: key}
			buckets[k] = b
			order = append(order, k)
		}
		b.members = append(b.members, t)
	}
	out := NewRelation("Result", outSchema)
	for _, k := range order {
		b := buckets[k]
		row := append(Tuple{}, b.key...)
		for _, agg := range g.Aggregations {
			v, err := computeAggregation(agg, in, b.members)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		if _, err := out.AddTuple(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func computeAggregation(agg Aggregation, in *Relation, members []Tuple) (Value, error) {
	if agg.Fn == AggCount && agg.Attr == "*" {
		return int64(len(members)), nil
	}
	idx, err := in.AttributeIndex(agg.Attr)
	if err != nil {
		return nil, err
	}
	switch agg.Fn {
	case AggCount:
		return int64(len(members)), nil
	case AggSum:
		return sumValues(members, idx)
	case AggMin:
		return minMaxValues(members, idx, true)
	case AggMax:
		return minMaxValues(members, idx, false)
	case AggAvg:
		sum, err := sumValues(members, idx)
		if err != nil {
			return nil, err
		}
		return toFloat(sum) / float64(len(members)), nil
	default:
		return nil, dberr.New(dberr.ParseError, "unknown aggregation function %q", agg.Fn)
	}
}

func toFloat(v Value) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	default:
		return 0
	}
}

func sumValues(members []Tuple, idx int) (Value, error) {
	var isFloat bool
	var isum float64
	for _, m := range members {
		switch v := m[idx].(type) {
		case int64:
			isum += float64(v)
		case float64:
			isFloat = true
			isum += v
		default:
			return nil, dberr.New(dberr.SchemaViolation, "cannot sum non-numeric attribute")
		}
	}
	if isFloat {
		return isum, nil
	}
	return int64(isum), nil
}

func minMaxValues(members []Tuple, idx int, min bool) (Value, error) {
	var best Value
	for i, m := range members {
		v := m[idx]
		if i == 0 {
			best = v
			continue
		}
		c := compareValues(v, best)
		if (min && c < 0) || (!min && c > 0) {
			best = v
		}
	}
	return best, nil
}

// --- Set-HashBased ---------------------------------------------------------

type setPhys struct {
	binary
	kind setKind
}

func (s *setPhys) Kind() Kind {
	switch s.kind {
	case setIntersection:
		return KindIntersectionPhys
	case setUnion:
		return KindUnionPhys
	default:
		return KindDifferencePhys
	}
}
func (s *setPhys) Schema() (Schema, error) {
	return (&setOp{binary: s.binary, kind: s.kind}).Schema()
}
func (s *setPhys) HasAttribute(name string) bool {
	sc, err := s.Schema()
	return err == nil && sc.HasAttribute(name)
}

func (s *setPhys) Evaluate() (*Relation, error) {
	l, err := evaluateChild(s.Left)
	if err != nil {
		return nil, err
	}
	r, err := evaluateChild(s.Right)
	if err != nil {
		return nil, err
	}
	sc, err := s.Schema()
	if err != nil {
		return nil, err
	}
	rset := make(map[string]struct{}, r.Len())
	for _, t := range r.Tuples() {
		rset[t.key()] = struct{}{}
	}
	out := NewRelation("Result", sc)
	switch s.kind {
	case setIntersection:
		for _, t := range l.Tuples() {
			if _, ok := rset[t.key()]; ok {
				out.AddTuple(t)
			}
		}
	case setUnion:
		for _, t := range l.Tuples() {
			out.AddTuple(t)
		}
		for _, t := range r.Tuples() {
			out.AddTuple(t)
		}
	case setDifference:
		for _, t := range l.Tuples() {
			if _, ok := rset[t.key()]; !ok {
				out.AddTuple(t)
			}
		}
	}
	return out, nil
}

type IntersectionHash struct{ setPhys }
type UnionHash struct{ setPhys }
type DifferenceHash struct{ setPhys }

func NewIntersectionHash(l, r Operator) *IntersectionHash {
	return &IntersectionHash{setPhys{binary: binary{Left: l, Right: r}, kind: setIntersection}}
}
func NewUnionHash(l, r Operator) *UnionHash {
	return &UnionHash{setPhys{binary: binary{Left: l, Right: r}, kind: setUnion}}
}
func NewDifferenceHash(l, r Operator) *DifferenceHash {
	return &DifferenceHash{setPhys{binary: binary{Left: l, Right: r}, kind: setDifference}}
}

func (i *IntersectionHash) String() string { return "∩_hash" }
func (u *UnionHash) String() string        { return "∪_hash" }
func (d *DifferenceHash) String() string   { return "−_hash" }

// --- shared helpers ---------------------------------------------------------

// evaluateChild pulls a tuple relation from child, which may be a Leaf
// (base relation, returned directly) or any other Physical operator.
func evaluateChild(op Operator) (*Relation, error) {
	if l, ok := op.(*leaf); ok {
		return l.Rel, nil
	}
	phys, ok := op.(Physical)
	if !ok {
		return nil, dberr.New(dberr.SchemaViolation, "operator %s is not compiled to a physical node", op.Kind())
	}
	return phys.Evaluate()
}

// Evaluate pulls the full result relation from a compiled physical plan
// root, per the pull-based executor (§4.6). The returned relation is named
// "Result", except under a relation-rename root, whose output carries the
// new name.
func Evaluate(root Operator) (*Relation, error) {
	if l, ok := root.(*leaf); ok {
		out := NewRelation("Result", l.Rel.Schema)
		for _, t := range l.Rel.Tuples() {
			out.AddTuple(t)
		}
		return out, nil
	}
	phys, ok := root.(Physical)
	if !ok {
		return nil, dberr.New(dberr.SchemaViolation, "plan root %s is not compiled to a physical node", root.Kind())
	}
	return phys.Evaluate()
}
