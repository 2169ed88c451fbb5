package ra

// Rule is a match/rewrite pair over plans (§4.5, §9 design notes). Engine
// is the generic optimize traversal shared by every rule; concrete rules
// supply Match/Modify and own whatever extra state they need (e.g.
// PushDownSelection's set of already-pushed selections).
type Rule interface {
	Match(op, parent Operator) bool
	// Modify mutates the tree and returns where to resume traversal; a nil
	// contOp means optimization is finished for this rule.
	Modify(op, parent Operator) (contOp, contParent Operator)
	Root() Operator
	setRoot(Operator)
}

// Engine threads the root reference through rule applications, since a
// rule that rewrites the root must update the reference the caller holds.
type Engine struct {
	root Operator
}

func (e *Engine) Root() Operator      { return e.root }
func (e *Engine) setRoot(op Operator) { e.root = op }

// Optimize runs rule repeatedly starting at (op, parent) until no further
// match is found, applying the generic traversal described in §4.5.
func Optimize(rule Rule, op, parent Operator) bool {
	if rule.Match(op, parent) {
		contOp, contParent := rule.Modify(op, parent)
		if contOp == nil {
			return true
		}
		Optimize(rule, contOp, contParent)
		return true
	}
	modified := false
	switch op.Arity() {
	case 1:
		modified = Optimize(rule, op.Child(0), op) || modified
	case 2:
		modified = Optimize(rule, op.Child(0), op) || modified
		modified = Optimize(rule, op.Child(1), op) || modified
	}
	return modified
}

// --- tree-edit primitives, shared by every rule -------------------------

// replaceLink points parent (or the rule's root) at newTop in place of
// oldTop.
func replaceLink(rule Rule, parent, oldTop, newTop Operator) {
	if parent == nil {
		rule.setRoot(newTop)
		return
	}
	switch parent.Arity() {
	case 1:
		parent.SetChild(0, newTop)
	case 2:
		if parent.Child(0) == oldTop {
			parent.SetChild(0, newTop)
		} else {
			parent.SetChild(1, newTop)
		}
	}
}

// replace substitutes the subtree [topOfOld..bottomOfOld] with
// [topOfNew..bottomOfNew]: parent is relinked to topOfNew, and bottomOfNew
// inherits bottomOfOld's children. When bottomOfOld/bottomOfNew are nil,
// only the top link is changed (the new subtree's children are assumed
// already wired by its constructor).
func replace(rule Rule, parent, topOfOld, bottomOfOld, topOfNew, bottomOfNew Operator) {
	replaceLink(rule, parent, topOfOld, topOfNew)
	if bottomOfOld == nil || bottomOfNew == nil {
		return
	}
	switch bottomOfOld.Arity() {
	case 1:
		bottomOfNew.SetChild(0, bottomOfOld.Child(0))
	case 2:
		bottomOfNew.SetChild(0, bottomOfOld.Child(0))
		bottomOfNew.SetChild(1, bottomOfOld.Child(1))
	}
}

// deleteUnary removes a unary op from the tree, relinking parent directly
// to op's child.
func deleteUnary(rule Rule, parent, op Operator) {
	child := op.Child(0)
	if parent == nil {
		rule.setRoot(child)
		return
	}
	switch parent.Arity() {
	case 1:
		parent.SetChild(0, child)
	case 2:
		if parent.Child(0) == op {
			parent.SetChild(0, child)
		} else {
			parent.SetChild(1, child)
		}
	}
}

// put inserts unary op between newParent and newParent's current child on
// the given side (ignored if newParent is unary), rewiring op.Input to the
// old grandchild.
func put(newParent, op Operator, left bool) {
	switch newParent.Arity() {
	case 1:
		grandchild := newParent.Child(0)
		newParent.SetChild(0, op)
		op.SetChild(0, grandchild)
	case 2:
		side := 0
		if !left {
			side = 1
		}
		grandchild := newParent.Child(side)
		newParent.SetChild(side, op)
		op.SetChild(0, grandchild)
	}
}

// move relocates unary op from under oldParent to under newParent (on the
// given side), composing deleteUnary and put.
func move(rule Rule, oldParent, op, newParent Operator, left bool) {
	deleteUnary(rule, oldParent, op)
	put(newParent, op, left)
}
