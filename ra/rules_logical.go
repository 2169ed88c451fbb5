package ra

import (
	"sort"
	"strings"
)

// --- BreakUpSelections -------------------------------------------------

// BreakUpSelections splits a selection whose predicate is an 'and'-chain
// of simple comparisons into a bottom-up chain of single-predicate
// selections (§4.5 rule 1).
type BreakUpSelections struct{ Engine }

func NewBreakUpSelections(root Operator) *BreakUpSelections {
	return &BreakUpSelections{Engine{root: root}}
}

func (r *BreakUpSelections) Match(op, parent Operator) bool {
	s, ok := op.(*Selection)
	if !ok {
		return false
	}
	return isCompoundSelection(s.Predicate)
}

func isCompoundSelection(predicate string) bool {
	if strings.ContainsAny(predicate, "()") {
		return false
	}
	subpredicates := strings.Split(predicate, " and ")
	if len(subpredicates) < 2 {
		return false
	}
	compOps := []string{"==", "<=", "<", ">", ">="}
	for _, s := range subpredicates {
		for _, o := range compOps {
			if strings.Contains(s, o) {
				if len(strings.Split(s, o)) != 2 {
					return false
				}
			}
		}
	}
	return true
}

func (r *BreakUpSelections) Modify(op, parent Operator) (Operator, Operator) {
	s := op.(*Selection)
	chain := splitCompoundSelection(s)
	top := chain[len(chain)-1]
	bottom := chain[0]
	replace(r, parent, op, nil, top, nil)
	return bottom.Child(0), bottom
}

func splitCompoundSelection(op *Selection) []*Selection {
	predicates := strings.Split(op.Predicate, " and ")
	selections := make([]*Selection, 0, len(predicates))
	var cur Operator = op.Input
	for _, p := range predicates {
		sel := NewSelection(cur, strings.TrimSpace(p))
		selections = append(selections, sel)
		cur = sel
	}
	return selections
}

// --- PushDownSelection ---------------------------------------------------

// PushDownSelection moves a selection below its child, directly above the
// grandchild(ren) that provide every predicate attribute (§4.5 rule 2).
// Only a single hop is performed per match; repeated application realizes
// the full push-down.
type PushDownSelection struct {
	Engine
	pushed map[Operator]struct{}
}

func NewPushDownSelection(root Operator) *PushDownSelection {
	return &PushDownSelection{Engine: Engine{root: root}, pushed: make(map[Operator]struct{})}
}

func (r *PushDownSelection) Match(op, parent Operator) bool {
	s, ok := op.(*Selection)
	if !ok {
		return false
	}
	_, done := r.pushed[s]
	return !done
}

func (r *PushDownSelection) Modify(op, parent Operator) (Operator, Operator) {
	s := op.(*Selection)
	attrs, err := s.GetAttributesInPredicate()
	if err != nil {
		return r.fullyPushed(s)
	}
	child := s.Child(0)

	switch child.Arity() {
	case 1:
		grandchild := child.Child(0)
		if isPushDownPossible(attrs, grandchild) {
			move(r, parent, s, child, true)
			return s, child
		}
		return r.fullyPushed(s)
	case 2:
		pushLeft := isPushDownPossible(attrs, child.Child(0))
		pushRight := isPushDownPossible(attrs, child.Child(1))
		switch {
		case pushLeft && pushRight:
			sel1 := NewSelection(child, s.Predicate)
			sel2 := NewSelection(child, s.Predicate)
			deleteUnary(r, parent, s)
			put(child, sel1, true)
			put(child, sel2, false)
			return child, parent
		case pushLeft:
			move(r, parent, s, child, true)
			return s, child
		case pushRight:
			move(r, parent, s, child, false)
			return s, child
		default:
			return r.fullyPushed(s)
		}
	default:
		return r.fullyPushed(s)
	}
}

func (r *PushDownSelection) fullyPushed(s *Selection) (Operator, Operator) {
	r.pushed[s] = struct{}{}
	return r.root, nil
}

func isPushDownPossible(attrs map[string]struct{}, node Operator) bool {
	for a := range attrs {
		if !node.HasAttribute(a) {
			return false
		}
	}
	return true
}

// --- ReplaceByJoin --------------------------------------------------------

// ReplaceByJoin rewrites a selection directly above a Cartesian product
// into a Theta-join, when the predicate references exactly one attribute
// on each side (§4.5 rule 3). Assumes PushDownSelection has already run.
type ReplaceByJoin struct{ Engine }

func NewReplaceByJoin(root Operator) *ReplaceByJoin { return &ReplaceByJoin{Engine{root: root}} }

var joinCompOps = []string{"==", "<=", ">=", "<", ">"}

func (r *ReplaceByJoin) Match(op, parent Operator) bool {
	s, ok := op.(*Selection)
	if !ok {
		return false
	}
	cp, ok := s.Child(0).(*CartesianProduct)
	if !ok {
		return false
	}
	var left, right string
	for _, o := range joinCompOps {
		if strings.Contains(s.Predicate, o) {
			parts := strings.SplitN(s.Predicate, o, 2)
			if len(parts) == 2 {
				left, right = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			}
			break
		}
	}
	if left == "" || right == "" {
		return false
	}
	lhas := cp.Left.HasAttribute(left) && cp.Right.HasAttribute(right)
	rhas := cp.Left.HasAttribute(right) && cp.Right.HasAttribute(left)
	return lhas || rhas
}

func (r *ReplaceByJoin) Modify(op, parent Operator) (Operator, Operator) {
	s := op.(*Selection)
	cp := s.Child(0).(*CartesianProduct)
	join := NewThetaJoin(cp.Left, cp.Right, s.Predicate)
	replace(r, parent, op, cp, join, join)
	return join, parent
}

// --- InsertProjection ------------------------------------------------------

// InsertProjection annotates every node with the attributes required by
// its ancestors, then inserts a minimal Projection wherever a node
// produces strictly more than its parent needs (§4.5 rule 4).
type InsertProjection struct {
	Engine
	processed map[Operator]struct{}
}

func NewInsertProjection(root Operator) *InsertProjection {
	r := &InsertProjection{Engine: Engine{root: root}, processed: make(map[Operator]struct{})}
	r.annotate(root, nil)
	return r
}

func (r *InsertProjection) Match(op, parent Operator) bool {
	if _, done := r.processed[op]; done {
		return false
	}
	if parent == nil {
		return false
	}
	if _, ok := parent.(*Projection); ok {
		return false
	}
	switch op.Arity() {
	case 0:
		if setEqual(provided(op, parent), rootRequiredAttributes(op)) {
			return false
		}
	case 1:
		if setEqual(provided(op, parent), provided(op.Child(0), op)) {
			return false
		}
	case 2:
		p1 := provided(op.Child(0), op)
		p2 := provided(op.Child(1), op)
		if setEqual(provided(op, parent), p1) && setEqual(p1, p2) {
			return false
		}
	}
	return true
}

func (r *InsertProjection) Modify(op, parent Operator) (Operator, Operator) {
	r.processed[op] = struct{}{}
	prov := provided(op, parent)
	attrs := sortedKeys(prov)
	proj := NewProjection(op, attrs)
	proj.SetRequiredAttributes(prov)

	if parent.Arity() == 2 {
		left := parent.Child(0) == op
		put(parent, proj, left)
	} else {
		put(parent, proj, true)
	}
	return op, proj
}

func provided(op, parent Operator) map[string]struct{} {
	out := make(map[string]struct{})
	for p := range parent.RequiredAttributes() {
		if op.HasAttribute(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

func (r *InsertProjection) annotate(op, parent Operator) {
	r.annotateNode(op, parent)
	switch op.Arity() {
	case 1:
		r.annotate(op.Child(0), op)
	case 2:
		r.annotate(op.Child(0), op)
		r.annotate(op.Child(1), op)
	}
}

func (r *InsertProjection) annotateNode(op, parent Operator) {
	required := requiredAttributesOf(op)
	if parent == nil {
		// the root has no consumer to narrow its columns for, so it
		// requires everything it produces, not merely what its own
		// predicate (if any) references.
		op.SetRequiredAttributes(rootRequiredAttributes(op))
		return
	}
	relevant := make(map[string]struct{})
	for p := range parent.RequiredAttributes() {
		if op.HasAttribute(p) {
			relevant[p] = struct{}{}
		}
	}
	op.SetRequiredAttributes(union(relevant, required))
}

// rootRequiredAttributes is the set of columns the rewrite's top-level
// operator must still produce: its full output schema. InsertProjection
// only narrows columns a later operator has stopped needing; the root
// itself has no such consumer, so treating it like any other operator
// (requiring only what its own predicate references) would let the rule
// drop passthrough columns the caller still expects in the result.
func rootRequiredAttributes(op Operator) map[string]struct{} {
	sc, err := op.Schema()
	if err != nil {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(sc.Attributes))
	for _, name := range sc.Names() {
		out[name] = struct{}{}
	}
	return out
}

func requiredAttributesOf(op Operator) map[string]struct{} {
	switch o := op.(type) {
	case *Selection:
		attrs, err := o.GetAttributesInPredicate()
		if err != nil {
			return map[string]struct{}{}
		}
		return attrs
	case *Projection:
		out := make(map[string]struct{}, len(o.Attributes))
		for _, a := range o.Attributes {
			out[a] = struct{}{}
		}
		return out
	case *ThetaJoin:
		attrs, err := o.GetAttributesInPredicate()
		if err != nil {
			return map[string]struct{}{}
		}
		return attrs
	default:
		return map[string]struct{}{}
	}
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
