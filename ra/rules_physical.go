package ra

import (
	"strconv"

	"github.com/BigDataAnalyticsGroup/radb/internal/dberr"
	"github.com/BigDataAnalyticsGroup/radb/internal/expr"
)

// compileRule is the shared shape of every Compile* rule: a one-shot
// lowering of a single logical Kind to its physical counterpart.
type compileRule struct {
	Engine
	err error
}

// --- CompileSetOperator --------------------------------------------------

type compileSetOperator struct{ compileRule }

func (r *compileSetOperator) Match(op, parent Operator) bool {
	switch op.Kind() {
	case KindIntersectionLog, KindUnionLog, KindDifferenceLog:
		return true
	}
	return false
}

func (r *compileSetOperator) Modify(op, parent Operator) (Operator, Operator) {
	var phys Operator
	l, rr := op.Child(0), op.Child(1)
	switch op.Kind() {
	case KindIntersectionLog:
		phys = NewIntersectionHash(l, rr)
	case KindUnionLog:
		phys = NewUnionHash(l, rr)
	case KindDifferenceLog:
		phys = NewDifferenceHash(l, rr)
	}
	replace(r, parent, op, op, phys, phys)
	return phys, parent
}

// --- CompileSelectionScan -------------------------------------------------

type compileSelectionScan struct{ compileRule }

func (r *compileSelectionScan) Match(op, parent Operator) bool {
	return op.Kind() == KindSelectionLog
}

func (r *compileSelectionScan) Modify(op, parent Operator) (Operator, Operator) {
	s := op.(*Selection)
	phys := NewSelectionScan(s.Input, s.Predicate)
	replace(r, parent, op, op, phys, phys)
	return phys.Child(0), phys
}

// --- CompileSelectionIndex -------------------------------------------------

type compileSelectionIndex struct{ compileRule }

// candidateLeaf walks down through Projections and Selections looking for
// a leaf relation; returns nil if anything else is encountered first.
func candidateLeaf(start Operator) *leaf {
	cur := start
	for {
		if l, ok := cur.(*leaf); ok {
			return l
		}
		switch cur.(type) {
		case *Projection, *Selection:
			cur = cur.Child(0)
		default:
			return nil
		}
	}
}

func (r *compileSelectionIndex) Match(op, parent Operator) bool {
	s, ok := op.(*Selection)
	if !ok {
		return false
	}
	attrs, err := s.GetAttributesInPredicate()
	if err != nil || len(attrs) > 1 {
		return false
	}
	lf := candidateLeaf(s.Input)
	if lf == nil {
		return false
	}
	for a := range attrs {
		if lf.Rel.HasIndexOn(a) {
			return true
		}
	}
	return false
}

func (r *compileSelectionIndex) Modify(op, parent Operator) (Operator, Operator) {
	s := op.(*Selection)

	var selections []*Selection
	selections = append(selections, s)
	// projections encountered walking down, outermost (closest to s) first.
	// §4.4(ii) permits a Projection anywhere down to the leaf; recorded here
	// so they can be restored around the rebuilt selection/index chain
	// instead of being silently dropped.
	var projections []*Projection
	var cur Operator = s.Input
	var lf *leaf
	for {
		if l, ok := cur.(*leaf); ok {
			lf = l
			break
		}
		if sel, ok := cur.(*Selection); ok {
			selections = append(selections, sel)
			cur = sel.Input
			continue
		}
		if proj, ok := cur.(*Projection); ok {
			projections = append(projections, proj)
			cur = proj.Input
			continue
		}
		break
	}

	type candidate struct {
		sel *Selection
		op  CompareOp
		key Value
	}
	var candidates []candidate
	for _, sel := range selections {
		attrs, err := sel.GetAttributesInPredicate()
		if err != nil {
			continue
		}
		for a := range attrs {
			if lf.Rel.HasIndexOn(a) {
				op2, key, err := extractIndexLookup(sel.Predicate)
				if err == nil {
					candidates = append(candidates, candidate{sel: sel, op: op2, key: key})
				}
				break
			}
		}
	}

	minSize := lf.Rel.Len()
	var picked *candidate
	for i := range candidates {
		c := &candidates[i]
		idx, ok := lf.Rel.IndexOn(attrOf(c.sel.Predicate))
		if !ok {
			continue
		}
		size := idx.EstimatedResultSize(c.op, c.key)
		if size < minSize {
			minSize = size
			picked = c
		}
	}
	if picked == nil && len(candidates) > 0 {
		picked = &candidates[0]
	}
	if picked == nil {
		r.err = dberr.New(dberr.SchemaViolation, "compile-selection-index: no indexable candidate found")
		return r.root, nil
	}

	idx, _ := lf.Rel.IndexOn(attrOf(picked.sel.Predicate))
	var next Operator = NewSelectionIndex(lf, picked.sel.Predicate, idx, picked.op, picked.key)
	for _, sel := range selections {
		if sel != picked.sel {
			next = NewSelectionScan(next, sel.Predicate)
		}
	}
	// selections commute freely and now all read off the raw leaf, so every
	// attribute any of them needs is present regardless of where it used to
	// sit. Projections don't commute past a selection the same way, but
	// reapplying them here in their original, innermost-first order -- after
	// all selections, instead of interleaved among them -- reconstructs the
	// identical final schema without disturbing their relative nesting.
	for i := len(projections) - 1; i >= 0; i-- {
		next = NewProjection(next, projections[i].Attributes)
	}

	replace(r, parent, op, nil, next, nil)
	return r.root, nil
}

// attrOf returns the sole identifier referenced by a single-clause
// predicate, used once the caller already knows exactly one exists.
func attrOf(predicate string) string {
	attrs, err := expr.Identifiers(predicate)
	if err != nil {
		return ""
	}
	for a := range attrs {
		return a
	}
	return ""
}

// extractIndexLookup decomposes a single-attribute predicate into the
// (operator, literal key) pair an Index.Lookup needs, flipping the
// operator when the literal appears on the left (`5 < a` means `a > 5`).
func extractIndexLookup(predicate string) (CompareOp, Value, error) {
	clauses, err := expr.Parse(predicate)
	if err != nil || len(clauses) != 1 {
		return "", nil, dberr.New(dberr.ParseError, "expected single-clause predicate, got %q", predicate)
	}
	c := clauses[0]
	oneIdent := map[string]struct{}{attrOf(predicate): {}}
	if _, ok := oneIdent[c.Left]; ok {
		key, err := literalValue(c.Right)
		if err != nil {
			return "", nil, err
		}
		return CompareOp(c.Op), key, nil
	}
	key, err := literalValue(c.Left)
	if err != nil {
		return "", nil, err
	}
	return CompareOp(flipOp(expr.Op(c.Op))), key, nil
}

func flipOp(op expr.Op) expr.Op {
	switch op {
	case expr.Lt:
		return expr.Gt
	case expr.Le:
		return expr.Ge
	case expr.Gt:
		return expr.Lt
	case expr.Ge:
		return expr.Le
	default:
		return op
	}
}

func literalValue(token string) (Value, error) {
	if len(token) >= 2 {
		if (token[0] == '\'' && token[len(token)-1] == '\'') || (token[0] == '"' && token[len(token)-1] == '"') {
			return token[1 : len(token)-1], nil
		}
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return f, nil
	}
	return nil, dberr.New(dberr.ParseError, "cannot parse literal %q", token)
}

// --- CompileProjection -----------------------------------------------------

type compileProjection struct{ compileRule }

func (r *compileProjection) Match(op, parent Operator) bool { return op.Kind() == KindProjectionLog }

func (r *compileProjection) Modify(op, parent Operator) (Operator, Operator) {
	p := op.(*Projection)
	phys := NewProjectionScan(p.Input, p.Attributes)
	replace(r, parent, op, op, phys, phys)
	return phys.Child(0), phys
}

// --- CompileCartesianProduct -----------------------------------------------

type compileCartesianProduct struct{ compileRule }

func (r *compileCartesianProduct) Match(op, parent Operator) bool {
	return op.Kind() == KindCartesianLog
}

func (r *compileCartesianProduct) Modify(op, parent Operator) (Operator, Operator) {
	c := op.(*CartesianProduct)
	phys := NewCartesianNestedLoop(c.Left, c.Right)
	replace(r, parent, op, op, phys, phys)
	return phys, parent
}

// --- CompileRenamingRelation -----------------------------------------------

type compileRenamingRelation struct{ compileRule }

func (r *compileRenamingRelation) Match(op, parent Operator) bool {
	return op.Kind() == KindRenameRelationLog
}

func (r *compileRenamingRelation) Modify(op, parent Operator) (Operator, Operator) {
	rr := op.(*RenameRelation)
	phys := NewRenameRelationScan(rr.Input, rr.NewName)
	replace(r, parent, op, op, phys, phys)
	return phys, parent
}

// --- CompileRenamingAttributes ----------------------------------------------

type compileRenamingAttributes struct{ compileRule }

func (r *compileRenamingAttributes) Match(op, parent Operator) bool {
	return op.Kind() == KindRenameAttributesLog
}

func (r *compileRenamingAttributes) Modify(op, parent Operator) (Operator, Operator) {
	ra2 := op.(*RenameAttributes)
	phys := NewRenameAttributesScan(ra2.Input, ra2.Changes)
	replace(r, parent, op, op, phys, phys)
	return phys, parent
}

// --- CompileThetaJoin -------------------------------------------------------

type compileThetaJoin struct{ compileRule }

func (r *compileThetaJoin) Match(op, parent Operator) bool { return op.Kind() == KindThetaJoinLog }

func (r *compileThetaJoin) Modify(op, parent Operator) (Operator, Operator) {
	t := op.(*ThetaJoin)
	phys := NewThetaJoinNestedLoop(t.Left, t.Right, t.Predicate)
	replace(r, parent, op, op, phys, phys)
	return phys, parent
}

// --- CompileGrouping ---------------------------------------------------------

type compileGrouping struct{ compileRule }

func (r *compileGrouping) Match(op, parent Operator) bool { return op.Kind() == KindGroupingLog }

func (r *compileGrouping) Modify(op, parent Operator) (Operator, Operator) {
	g := op.(*Grouping)
	phys := NewGroupingHash(g.Input, g.GroupBy, g.Aggregations)
	replace(r, parent, op, op, phys, phys)
	return phys, parent
}

type compileErrer interface{ compileErr() error }

func (r *compileRule) compileErr() error { return r.err }

// Compile runs, in the fixed order laid out in §4.5, the rules that lower
// every logical node in root to its physical counterpart.
func Compile(root Operator) (Operator, error) {
	ctors := []func(Operator) Rule{
		func(o Operator) Rule { return &compileSetOperator{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileSelectionIndex{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileSelectionScan{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileProjection{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileCartesianProduct{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileRenamingRelation{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileRenamingAttributes{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileThetaJoin{compileRule{Engine: Engine{root: o}}} },
		func(o Operator) Rule { return &compileGrouping{compileRule{Engine: Engine{root: o}}} },
	}
	last := root
	for _, ctor := range ctors {
		rule := ctor(last)
		Optimize(rule, last, nil)
		last = rule.Root()
		if ce, ok := rule.(compileErrer); ok {
			if err := ce.compileErr(); err != nil {
				return nil, err
			}
		}
	}
	return last, nil
}
