package tm

import "github.com/emicklei/dot"

// RenderPrecedenceGraphDOT emits g as Graphviz DOT, mirroring
// ra.RenderDOT's approach for operator trees (§6; encoding not
// normative).
func RenderPrecedenceGraphDOT(g *PrecedenceGraph) string {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("label", "Precedence Graph")
	nodes := make(map[string]dot.Node)
	for _, tx := range g.Transactions() {
		nodes[tx] = graph.Node(tx).Label(tx)
	}
	for _, tx := range g.Transactions() {
		for _, succ := range g.Successors(tx) {
			graph.Edge(nodes[tx], nodes[succ])
		}
	}
	return graph.String()
}
