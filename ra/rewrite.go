package ra

// Rewrite runs the full rule-based rewrite pipeline (§4.5) in the fixed
// order break-up-selections, push-down-selection, replace-by-join,
// insert-projection, each to a fixpoint before the next begins.
func Rewrite(root Operator) Operator {
	bu := NewBreakUpSelections(root)
	runToFixpoint(bu)
	root = bu.Root()

	pd := NewPushDownSelection(root)
	runToFixpoint(pd)
	root = pd.Root()

	rj := NewReplaceByJoin(root)
	runToFixpoint(rj)
	root = rj.Root()

	// InsertProjection's constructor annotates the tree up front, so it
	// must be (re-)built against the final root of the preceding rules.
	ip := NewInsertProjection(root)
	runToFixpoint(ip)
	return ip.Root()
}

func runToFixpoint(rule Rule) {
	for Optimize(rule, rule.Root(), nil) {
	}
}
