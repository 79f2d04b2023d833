// Package cfg builds and queries control-flow graphs over tree-sitter syntax
// trees. Nodes and edges live in a flat arena keyed by string ids with
// adjacency lists on the side, so loop back-edges never create ownership
// cycles between node objects.
package cfg

// NodeKind classifies a CFG node by the construct it models.
type NodeKind string

const (
	KindEntry        NodeKind = "entry"
	KindExit         NodeKind = "exit"
	KindStatement    NodeKind = "statement"
	KindCondition    NodeKind = "condition"
	KindLoop         NodeKind = "loop"
	KindBranch       NodeKind = "branch"
	KindFunctionCall NodeKind = "function_call"
	KindReturn       NodeKind = "return"
	KindTry          NodeKind = "try"
	KindCatch        NodeKind = "catch"
	KindFinally      NodeKind = "finally"
	KindBreak        NodeKind = "break"
	KindContinue     NodeKind = "continue"
)

// EdgeKind classifies a control transfer.
type EdgeKind string

const (
	EdgeNormal         EdgeKind = "normal"
	EdgeConditionTrue  EdgeKind = "condition_true"
	EdgeConditionFalse EdgeKind = "condition_false"
	EdgeLoopBody       EdgeKind = "loop_body"
	EdgeLoopExit       EdgeKind = "loop_exit"
	EdgeException      EdgeKind = "exception"
	EdgeReturn         EdgeKind = "return"
	EdgeBreak          EdgeKind = "break"
	EdgeContinue       EdgeKind = "continue"
)

// Node is one program point. Ids are unique within a single Graph.
type Node struct {
	ID         string   `json:"id"`
	Kind       NodeKind `json:"kind"`
	Statements []string `json:"statements,omitempty"`
	StartLine  int      `json:"start_line"`
	EndLine    int      `json:"end_line"`
	Scope      string   `json:"scope"`
	IsEntry    bool     `json:"is_entry,omitempty"`
	IsExit     bool     `json:"is_exit,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// Edge is one control transfer between two node ids.
type Edge struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Kind        EdgeKind `json:"kind"`
	Condition   string   `json:"condition,omitempty"`
	Probability float64  `json:"probability,omitempty"`
}

// Graph owns its node arena and edge list and answers structural queries.
// One Graph is built per file; each function additionally gets its own
// sub-graph under Functions.
type Graph struct {
	File    string
	EntryID string
	ExitIDs []string

	// Nodes preserves creation order for deterministic iteration; index
	// provides O(1) lookup by id.
	Nodes []*Node
	Edges []*Edge

	Functions map[string]*Graph

	// Truncated is set when the depth guard cut construction short. The
	// graph is still usable, just incomplete below the cut.
	Truncated bool

	index map[string]*Node
	succ  map[string][]string
	pred  map[string][]string
}

func newGraph(file string) *Graph {
	return &Graph{
		File:      file,
		Functions: make(map[string]*Graph),
		index:     make(map[string]*Node),
		succ:      make(map[string][]string),
		pred:      make(map[string][]string),
	}
}

// NodeByID returns the node with the given id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	return g.index[id]
}

func (g *Graph) addNode(n *Node) *Node {
	g.Nodes = append(g.Nodes, n)
	g.index[n.ID] = n
	return n
}

func (g *Graph) addEdge(e *Edge) {
	g.Edges = append(g.Edges, e)
	g.succ[e.From] = append(g.succ[e.From], e.To)
	g.pred[e.To] = append(g.pred[e.To], e.From)
}

// Successors returns the nodes directly reachable from id.
func (g *Graph) Successors(id string) []*Node {
	return g.resolve(g.succ[id])
}

// Predecessors returns the nodes with an edge into id.
func (g *Graph) Predecessors(id string) []*Node {
	return g.resolve(g.pred[id])
}

func (g *Graph) resolve(ids []string) []*Node {
	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		if n := g.index[id]; n != nil {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// IsReachable reports whether to is reachable from from via zero or more
// edges. A bounded depth-first search with a visited set guards cycles.
func (g *Graph) IsReachable(from, to string) bool {
	if from == to {
		return g.index[from] != nil
	}
	visited := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, next := range g.succ[cur] {
			if next == to {
				return true
			}
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Dominators returns the set of nodes present on every entry-to-id path,
// computed with the standard iterative fixed-point algorithm: dom(n) =
// {n} ∪ ⋂ dom(p) over predecessors p, iterated until stable. Unreachable
// nodes get an empty set.
func (g *Graph) Dominators(id string) map[string]bool {
	target := g.index[id]
	if target == nil {
		return nil
	}
	reachable := g.reachableSet(g.EntryID)
	if !reachable[id] {
		return map[string]bool{}
	}

	all := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		all[n.ID] = true
	}

	dom := make(map[string]map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == g.EntryID {
			dom[n.ID] = map[string]bool{n.ID: true}
			continue
		}
		// Initialize to the full set; intersections only shrink it.
		init := make(map[string]bool, len(all))
		for k := range all {
			init[k] = true
		}
		dom[n.ID] = init
	}

	changed := true
	for changed {
		changed = false
		for _, n := range g.Nodes {
			if n.ID == g.EntryID {
				continue
			}
			next := intersectPreds(g, dom, n.ID, reachable)
			next[n.ID] = true
			if !sameSet(next, dom[n.ID]) {
				dom[n.ID] = next
				changed = true
			}
		}
	}
	return dom[id]
}

func intersectPreds(g *Graph, dom map[string]map[string]bool, id string, reachable map[string]bool) map[string]bool {
	preds := g.pred[id]
	// Only predecessors reachable from entry participate; an unreachable
	// predecessor's full initial set would poison the intersection.
	var live []string
	for _, p := range preds {
		if reachable[p] {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return map[string]bool{}
	}
	out := make(map[string]bool, len(dom[live[0]]))
	for k := range dom[live[0]] {
		out[k] = true
	}
	for _, p := range live[1:] {
		for k := range out {
			if !dom[p][k] {
				delete(out, k)
			}
		}
	}
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// reachableSet returns every node id reachable from start, including start
// itself when it exists in the graph.
func (g *Graph) reachableSet(start string) map[string]bool {
	visited := make(map[string]bool)
	if g.index[start] == nil {
		return visited
	}
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, next := range g.succ[cur] {
			if !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return visited
}

// Unreachable lists non-entry nodes that cannot be reached from the entry.
// These are analysis results (dead code), never wiring omissions.
func (g *Graph) Unreachable() []*Node {
	reachable := g.reachableSet(g.EntryID)
	var out []*Node
	for _, n := range g.Nodes {
		if n.ID == g.EntryID {
			continue
		}
		if !reachable[n.ID] {
			out = append(out, n)
		}
	}
	return out
}
