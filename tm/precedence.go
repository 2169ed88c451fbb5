package tm

import "sort"

// PrecedenceGraph is an adjacency list tx -> set of transactions it must
// precede, derived from an executed schedule's read/write accesses
// (§9: INSERT now counts as a write access, correcting the original's
// read/write-set extraction which only looked at READ/UPDATE/DELETE).
type PrecedenceGraph struct {
	edges map[string]map[string]struct{}
}

func newPrecedenceGraph(txIDs []string) *PrecedenceGraph {
	g := &PrecedenceGraph{edges: make(map[string]map[string]struct{}, len(txIDs))}
	for _, tx := range txIDs {
		g.edges[tx] = make(map[string]struct{})
	}
	return g
}

func (g *PrecedenceGraph) addEdge(from, to string) {
	if from == to {
		return
	}
	g.edges[from][to] = struct{}{}
}

// Transactions returns the graph's node names in sorted order.
func (g *PrecedenceGraph) Transactions() []string {
	names := make([]string, 0, len(g.edges))
	for tx := range g.edges {
		names = append(names, tx)
	}
	sort.Strings(names)
	return names
}

// Successors returns tx's out-neighbors in sorted order.
func (g *PrecedenceGraph) Successors(tx string) []string {
	out := make([]string, 0, len(g.edges[tx]))
	for n := range g.edges[tx] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type access struct {
	tx      string
	isWrite bool
}

// BuildPrecedenceGraph derives a precedence graph from an execution
// trace: for every (table,row-id) key, each pair of accesses by distinct
// transactions of which at least one is a write adds an edge from the
// earlier transaction to the later one (in trace order). Two reads never
// add an edge. An INSERT counts as a write of the row id it allocated.
func BuildPrecedenceGraph(trace []ExecutedStatement, stmts []Statement) *PrecedenceGraph {
	txSet := make(map[string]struct{})
	perKey := make(map[LockKey][]access)

	for _, e := range trace {
		txSet[e.TxID] = struct{}{}
		if e.Index < 0 || e.Index >= len(stmts) {
			continue
		}
		stmt := stmts[e.Index]
		key, isWrite, relevant := stmt.ReadWriteKey()
		if !relevant {
			continue
		}
		if stmt.Kind == StmtInsert {
			key.RowID = e.ResolvedRowID
		}
		perKey[key] = append(perKey[key], access{tx: e.TxID, isWrite: isWrite})
	}

	txIDs := make([]string, 0, len(txSet))
	for tx := range txSet {
		txIDs = append(txIDs, tx)
	}
	g := newPrecedenceGraph(txIDs)

	for _, accesses := range perKey {
		for i := 0; i < len(accesses); i++ {
			for j := i + 1; j < len(accesses); j++ {
				a, b := accesses[i], accesses[j]
				if !a.isWrite && !b.isWrite {
					continue
				}
				g.addEdge(a.tx, b.tx)
			}
		}
	}
	return g
}
