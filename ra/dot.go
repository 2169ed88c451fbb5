package ra

import (
	"fmt"

	"github.com/emicklei/dot"
)

// RenderDOT walks an operator tree (logical or physical) and emits a
// Graphviz DOT rendering of it. The encoding is diagnostic only, per §6.
func RenderDOT(root Operator) string {
	g := dot.NewGraph(dot.Directed)
	visited := make(map[Operator]dot.Node)
	var walk func(op Operator) dot.Node
	walk = func(op Operator) dot.Node {
		if n, ok := visited[op]; ok {
			return n
		}
		label := nodeLabel(op)
		n := g.Node(fmt.Sprintf("n%p", op)).Label(label)
		visited[op] = n
		for i := 0; i < op.Arity(); i++ {
			child := op.Child(i)
			if child == nil {
				continue
			}
			cn := walk(child)
			g.Edge(n, cn)
		}
		return n
	}
	walk(root)
	return g.String()
}

func nodeLabel(op Operator) string {
	switch o := op.(type) {
	case *leaf:
		return "Leaf(" + o.Rel.Name + ")"
	default:
		return fmt.Sprintf("%s\n%s", op.Kind(), op)
	}
}
