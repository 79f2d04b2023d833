package cfg

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/analysis/lang"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

const maxStatementText = 160

// GlobalScope names the file-level scope in built graphs.
const GlobalScope = "global"

// Builder constructs one control-flow graph per file, with per-function
// sub-graphs, from a parsed syntax tree.
type Builder struct {
	logger   *zap.Logger
	maxDepth int
}

// NewBuilder returns a Builder bounded to maxDepth nested constructs.
// Structure deeper than the bound is truncated, never an error.
func NewBuilder(logger *zap.Logger, maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = syntax.DefaultMaxDepth
	}
	return &Builder{
		logger:   logger.Named("cfg_builder"),
		maxDepth: maxDepth,
	}
}

// Build produces the file's ControlFlowGraph. Every created node is wired
// into the surrounding flow; unreachable code is something the finished graph
// reports, never something construction leaves dangling.
func (b *Builder) Build(res *syntax.ParseResult) *Graph {
	st := &builderState{
		b:     b,
		g:     newGraph(res.File),
		src:   res.Source,
		scope: GlobalScope,
	}
	st.buildRoot(res.Root())
	if st.truncated {
		st.g.Truncated = true
		b.logger.Warn("CFG construction hit the depth guard; deeper structure truncated",
			zap.String("file", res.File), zap.Int("max_depth", b.maxDepth))
	}
	b.logger.Debug("Built CFG",
		zap.String("file", res.File),
		zap.Int("nodes", len(st.g.Nodes)),
		zap.Int("edges", len(st.g.Edges)),
		zap.Int("functions", len(st.g.Functions)))
	return st.g
}

// exitPoint is a dangling outgoing edge: a node whose control continues at
// whatever statement follows, tagged with the edge kind to use when wiring.
type exitPoint struct {
	id   string
	kind EdgeKind
	cond string
}

type loopFrame struct {
	loopID string
	breaks []exitPoint
}

type builderState struct {
	b         *Builder
	g         *Graph
	src       []byte
	scope     string
	funcExit  string
	nextID    int
	loops     []*loopFrame
	truncated bool
}

func (st *builderState) buildRoot(root *sitter.Node) {
	entry := st.newNode(KindEntry, root)
	entry.IsEntry = true
	entry.Statements = nil
	exit := st.newNode(KindExit, root)
	exit.IsExit = true
	exit.Statements = nil
	exit.StartLine = syntax.LastLine(root)

	st.g.EntryID = entry.ID
	st.g.ExitIDs = []string{exit.ID}
	st.funcExit = exit.ID

	first, exits := st.buildStatements(namedChildren(root), 1)
	if first == "" {
		st.edge(entry.ID, exit.ID, EdgeNormal, "")
		return
	}
	st.edge(entry.ID, first, EdgeNormal, "")
	st.wire(exits, exit.ID)
}

// buildStatements chains a statement list, returning the first node's id and
// the exit points left dangling after the last reachable statement.
func (st *builderState) buildStatements(stmts []*sitter.Node, depth int) (string, []exitPoint) {
	var entry string
	var pending []exitPoint
	started := false

	for _, stmt := range stmts {
		e, exits := st.buildStatement(stmt, depth)
		if e == "" {
			continue
		}
		if !started {
			entry = e
			started = true
		} else {
			st.wire(pending, e)
		}
		pending = exits
	}
	return entry, pending
}

//nolint:gocyclo // one arm per control construct keeps the wiring rules auditable.
func (st *builderState) buildStatement(n *sitter.Node, depth int) (string, []exitPoint) {
	if n == nil || !n.IsNamed() || n.Type() == "comment" {
		return "", nil
	}
	if depth > st.b.maxDepth {
		st.truncated = true
		return "", nil
	}

	switch lang.Classify(n.Type()) {
	case lang.ConstructIf:
		return st.buildIf(n, depth)
	case lang.ConstructLoop:
		return st.buildLoop(n, depth)
	case lang.ConstructSwitch:
		return st.buildSwitch(n, depth)
	case lang.ConstructTry:
		return st.buildTry(n, depth)

	case lang.ConstructReturn:
		node := st.newNode(KindReturn, n)
		st.edge(node.ID, st.funcExit, EdgeReturn, "")
		return node.ID, nil

	case lang.ConstructBreak:
		node := st.newNode(KindBreak, n)
		if frame := st.currentLoop(); frame != nil {
			frame.breaks = append(frame.breaks, exitPoint{id: node.ID, kind: EdgeBreak})
			return node.ID, nil
		}
		// break outside a loop (e.g. inside switch): falls through.
		return node.ID, []exitPoint{{id: node.ID, kind: EdgeNormal}}

	case lang.ConstructContinue:
		node := st.newNode(KindContinue, n)
		if frame := st.currentLoop(); frame != nil {
			st.edge(node.ID, frame.loopID, EdgeContinue, "")
			return node.ID, nil
		}
		return node.ID, []exitPoint{{id: node.ID, kind: EdgeNormal}}

	case lang.ConstructFunction:
		st.buildFunction(n)
		node := st.newNode(KindStatement, n)
		return node.ID, []exitPoint{{id: node.ID, kind: EdgeNormal}}

	case lang.ConstructClass:
		st.buildClassMethods(n)
		node := st.newNode(KindStatement, n)
		return node.ID, []exitPoint{{id: node.ID, kind: EdgeNormal}}

	case lang.ConstructBlock:
		return st.buildStatements(namedChildren(n), depth+1)

	default:
		kind := KindStatement
		if containsCall(n) {
			kind = KindFunctionCall
		}
		node := st.newNode(kind, n)
		return node.ID, []exitPoint{{id: node.ID, kind: EdgeNormal}}
	}
}

func (st *builderState) buildIf(n *sitter.Node, depth int) (string, []exitPoint) {
	// Python attaches every elif/else clause to the outer if_statement as a
	// repeated "alternative" field; JavaScript has at most one else_clause.
	return st.buildIfChain(n, fieldChildren(n, "alternative"), depth)
}

// buildIfChain builds the condition node for n (an if_statement or
// elif_clause) and wires its false edge into the next alternative in alts.
func (st *builderState) buildIfChain(n *sitter.Node, alts []*sitter.Node, depth int) (string, []exitPoint) {
	cond := st.newNode(KindCondition, n)
	condText := st.text(n.ChildByFieldName("condition"))
	if condText != "" {
		cond.Conditions = []string{condText}
	}

	var exits []exitPoint

	consEntry, consExits := st.buildBranch(n.ChildByFieldName("consequence"), depth+1)
	if consEntry != "" {
		st.edge(cond.ID, consEntry, EdgeConditionTrue, condText)
		exits = append(exits, consExits...)
	} else {
		exits = append(exits, exitPoint{id: cond.ID, kind: EdgeConditionTrue, cond: condText})
	}

	if len(alts) == 0 {
		exits = append(exits, exitPoint{id: cond.ID, kind: EdgeConditionFalse, cond: condText})
		return cond.ID, exits
	}

	var altEntry string
	var altExits []exitPoint
	if alts[0].Type() == "elif_clause" {
		altEntry, altExits = st.buildIfChain(alts[0], alts[1:], depth+1)
	} else {
		altEntry, altExits = st.buildBranch(alts[0], depth+1)
	}
	if altEntry != "" {
		st.edge(cond.ID, altEntry, EdgeConditionFalse, condText)
		exits = append(exits, altExits...)
	} else {
		exits = append(exits, exitPoint{id: cond.ID, kind: EdgeConditionFalse, cond: condText})
	}
	return cond.ID, exits
}

// buildBranch unwraps else/elif wrappers and builds the branch body.
func (st *builderState) buildBranch(n *sitter.Node, depth int) (string, []exitPoint) {
	if n == nil {
		return "", nil
	}
	switch n.Type() {
	case "else_clause":
		// The clause wraps either a block or a chained if statement.
		for _, child := range namedChildren(n) {
			if e, exits := st.buildStatement(child, depth); e != "" {
				return e, exits
			}
		}
		return "", nil
	case "elif_clause":
		return st.buildIf(n, depth)
	case "statement_block", "block":
		return st.buildStatements(namedChildren(n), depth)
	default:
		return st.buildStatement(n, depth)
	}
}

func (st *builderState) buildLoop(n *sitter.Node, depth int) (string, []exitPoint) {
	loop := st.newNode(KindLoop, n)
	condText := st.text(n.ChildByFieldName("condition"))
	if condText == "" {
		// for loops carry the iteration clause instead of a boolean condition.
		condText = st.text(n.ChildByFieldName("right"))
	}
	if condText != "" {
		loop.Conditions = []string{condText}
	}

	frame := &loopFrame{loopID: loop.ID}
	st.loops = append(st.loops, frame)
	bodyEntry, bodyExits := st.buildBranch(n.ChildByFieldName("body"), depth+1)
	st.loops = st.loops[:len(st.loops)-1]

	if bodyEntry != "" {
		st.edge(loop.ID, bodyEntry, EdgeLoopBody, condText)
		// Back-edge: the body's fall-through returns to the loop head.
		st.wire(bodyExits, loop.ID)
	}

	exits := []exitPoint{{id: loop.ID, kind: EdgeLoopExit, cond: condText}}
	exits = append(exits, frame.breaks...)
	return loop.ID, exits
}

func (st *builderState) buildSwitch(n *sitter.Node, depth int) (string, []exitPoint) {
	branch := st.newNode(KindBranch, n)
	condText := st.text(n.ChildByFieldName("value"))
	if condText == "" {
		condText = st.text(n.ChildByFieldName("condition"))
	}
	if condText != "" {
		branch.Conditions = []string{condText}
	}

	exits := []exitPoint{}
	sawDefault := false
	for _, caseNode := range switchCases(n) {
		if t := caseNode.Type(); t == "switch_default" || isDefaultCase(caseNode, st.src) {
			sawDefault = true
		}
		caseEntry, caseExits := st.buildStatements(caseBody(caseNode), depth+1)
		if caseEntry == "" {
			continue
		}
		st.edge(branch.ID, caseEntry, EdgeNormal, st.text(caseValue(caseNode)))
		exits = append(exits, caseExits...)
	}
	if !sawDefault {
		// Without a default arm the subject may match nothing and fall through.
		exits = append(exits, exitPoint{id: branch.ID, kind: EdgeNormal, cond: condText})
	}
	if len(exits) == 0 {
		exits = append(exits, exitPoint{id: branch.ID, kind: EdgeNormal, cond: condText})
	}
	return branch.ID, exits
}

func (st *builderState) buildTry(n *sitter.Node, depth int) (string, []exitPoint) {
	tryNode := st.newNode(KindTry, n)

	bodyStart := len(st.g.Nodes)
	bodyEntry, bodyExits := st.buildBranch(n.ChildByFieldName("body"), depth+1)
	bodyNodes := st.g.Nodes[bodyStart:]

	if bodyEntry != "" {
		st.edge(tryNode.ID, bodyEntry, EdgeNormal, "")
	} else {
		bodyExits = []exitPoint{{id: tryNode.ID, kind: EdgeNormal}}
	}

	var exits []exitPoint
	exits = append(exits, bodyExits...)

	for _, handler := range catchClauses(n) {
		catchNode := st.newNode(KindCatch, handler)
		// Any point inside the try body may raise into this handler.
		st.edge(tryNode.ID, catchNode.ID, EdgeException, "")
		for _, bn := range bodyNodes {
			st.edge(bn.ID, catchNode.ID, EdgeException, "")
		}
		catchEntry, catchExits := st.buildBranch(clauseBody(handler), depth+1)
		if catchEntry != "" {
			st.edge(catchNode.ID, catchEntry, EdgeNormal, "")
			exits = append(exits, catchExits...)
		} else {
			exits = append(exits, exitPoint{id: catchNode.ID, kind: EdgeNormal})
		}
	}

	if finalizer := finallyClause(n); finalizer != nil {
		finallyNode := st.newNode(KindFinally, finalizer)
		st.wire(exits, finallyNode.ID)
		finEntry, finExits := st.buildBranch(clauseBody(finalizer), depth+1)
		if finEntry != "" {
			st.edge(finallyNode.ID, finEntry, EdgeNormal, "")
			return tryNode.ID, finExits
		}
		return tryNode.ID, []exitPoint{{id: finallyNode.ID, kind: EdgeNormal}}
	}

	return tryNode.ID, exits
}

// buildFunction constructs the function's own sub-graph and registers it in
// the file graph's function map.
func (st *builderState) buildFunction(n *sitter.Node) {
	name := st.text(n.ChildByFieldName("name"))
	if name == "" {
		name = fmt.Sprintf("anonymous@%d", syntax.FirstLine(n))
	}
	if st.scope != GlobalScope {
		name = st.scope + "." + name
	}

	sub := &builderState{
		b:     st.b,
		g:     newGraph(st.g.File),
		src:   st.src,
		scope: name,
	}
	entry := sub.newNode(KindEntry, n)
	entry.IsEntry = true
	exit := sub.newNode(KindExit, n)
	exit.IsExit = true
	exit.StartLine = syntax.LastLine(n)
	sub.g.EntryID = entry.ID
	sub.g.ExitIDs = []string{exit.ID}
	sub.funcExit = exit.ID

	body := n.ChildByFieldName("body")
	first, exits := sub.buildBranch(body, 1)
	if first == "" {
		sub.edge(entry.ID, exit.ID, EdgeNormal, "")
	} else {
		sub.edge(entry.ID, first, EdgeNormal, "")
		sub.wire(exits, exit.ID)
	}
	if sub.truncated {
		sub.g.Truncated = true
		st.truncated = true
	}

	st.g.Functions[name] = sub.g
	for fname, fg := range sub.g.Functions {
		st.g.Functions[fname] = fg
	}
}

// buildClassMethods builds a sub-graph per method, qualified by class name.
func (st *builderState) buildClassMethods(n *sitter.Node) {
	className := st.text(n.ChildByFieldName("name"))
	if className == "" {
		className = fmt.Sprintf("class@%d", syntax.FirstLine(n))
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	prevScope := st.scope
	st.scope = className
	for _, member := range namedChildren(body) {
		if lang.Classify(member.Type()) == lang.ConstructFunction {
			st.buildFunction(member)
		}
	}
	st.scope = prevScope
}

// -- node/edge helpers --

func (st *builderState) newNode(kind NodeKind, src *sitter.Node) *Node {
	id := fmt.Sprintf("n%d", st.nextID)
	st.nextID++
	n := &Node{
		ID:        id,
		Kind:      kind,
		Scope:     st.scope,
		StartLine: syntax.FirstLine(src),
		EndLine:   syntax.LastLine(src),
	}
	if text := statementText(syntax.NodeContent(src, st.src)); text != "" {
		n.Statements = []string{text}
	}
	return st.g.addNode(n)
}

func (st *builderState) edge(from, to string, kind EdgeKind, cond string) {
	e := &Edge{From: from, To: to, Kind: kind, Condition: cond}
	if kind == EdgeConditionTrue || kind == EdgeConditionFalse {
		e.Probability = 0.5
	}
	st.g.addEdge(e)
}

func (st *builderState) wire(exits []exitPoint, to string) {
	for _, x := range exits {
		st.edge(x.id, to, x.kind, x.cond)
	}
}

func (st *builderState) currentLoop() *loopFrame {
	if len(st.loops) == 0 {
		return nil
	}
	return st.loops[len(st.loops)-1]
}

func (st *builderState) text(n *sitter.Node) string {
	return strings.TrimSpace(syntax.NodeContent(n, st.src))
}

// -- syntax shape helpers --

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func statementText(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > maxStatementText {
		s = s[:maxStatementText]
	}
	return s
}

// containsCall reports whether the statement's subtree contains a call,
// looking only a few levels deep so statement classification stays cheap.
func containsCall(n *sitter.Node) bool {
	found := false
	syntax.Walk(n, 6, func(node *sitter.Node, _ int) bool {
		if found {
			return false
		}
		if lang.Classify(node.Type()) == lang.ConstructCall {
			found = true
			return false
		}
		return true
	})
	return found
}

func switchCases(n *sitter.Node) []*sitter.Node {
	body := n.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var cases []*sitter.Node
	for _, child := range namedChildren(body) {
		switch child.Type() {
		case "switch_case", "switch_default", "case_clause":
			cases = append(cases, child)
		}
	}
	return cases
}

func isDefaultCase(caseNode *sitter.Node, src []byte) bool {
	if caseNode.Type() == "switch_default" {
		return true
	}
	// Python match: a case with the wildcard pattern acts as the default arm.
	return strings.HasPrefix(strings.TrimSpace(syntax.NodeContent(caseNode, src)), "case _")
}

func caseValue(caseNode *sitter.Node) *sitter.Node {
	if v := caseNode.ChildByFieldName("value"); v != nil {
		return v
	}
	return nil
}

// caseBody returns the statements of a case arm, skipping its value/pattern.
func caseBody(caseNode *sitter.Node) []*sitter.Node {
	if body := caseNode.ChildByFieldName("consequence"); body != nil {
		return namedChildren(body)
	}
	value := caseValue(caseNode)
	var stmts []*sitter.Node
	for _, child := range namedChildren(caseNode) {
		if value != nil && child.Equal(value) {
			continue
		}
		if strings.HasSuffix(child.Type(), "pattern") {
			continue
		}
		stmts = append(stmts, child)
	}
	return stmts
}

// fieldChildren collects every child attached under the given field name.
// ChildByFieldName only returns the first, which loses Python elif chains.
func fieldChildren(n *sitter.Node, field string) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.FieldNameForChild(i) == field {
			out = append(out, n.Child(i))
		}
	}
	return out
}

// clauseBody resolves a catch/except/finally clause to its statement block.
// JavaScript exposes it as a "body" field; Python nests a plain block child.
func clauseBody(clause *sitter.Node) *sitter.Node {
	if clause == nil {
		return nil
	}
	if body := clause.ChildByFieldName("body"); body != nil {
		return body
	}
	for _, child := range namedChildren(clause) {
		if lang.Classify(child.Type()) == lang.ConstructBlock {
			return child
		}
	}
	return nil
}

func catchClauses(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	if handler := n.ChildByFieldName("handler"); handler != nil {
		out = append(out, handler)
	}
	for _, child := range namedChildren(n) {
		if child.Type() == "except_clause" || (child.Type() == "catch_clause" && len(out) == 0) {
			out = append(out, child)
		}
	}
	return out
}

func finallyClause(n *sitter.Node) *sitter.Node {
	if f := n.ChildByFieldName("finalizer"); f != nil {
		return f
	}
	for _, child := range namedChildren(n) {
		if child.Type() == "finally_clause" {
			return child
		}
	}
	return nil
}
