package cfg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/cache"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

func buildGraph(t *testing.T, file, src string) *Graph {
	t.Helper()
	provider := syntax.NewProvider(zap.NewNop(), cache.New(config.CacheConfig{ASTCapacity: 4, QueryCapacity: 4}))
	res, err := provider.Parse(context.Background(), file, src)
	require.NoError(t, err)
	return NewBuilder(zap.NewNop(), 0).Build(res)
}

func nodesOfKind(g *Graph, kind NodeKind) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func edgesOfKind(g *Graph, kind EdgeKind) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestBuildLinearStatements(t *testing.T) {
	g := buildGraph(t, "linear.js", "const a = 1;\nconst b = a + 1;\nconsole.log(b);\n")

	require.NotEmpty(t, g.EntryID)
	require.Len(t, g.ExitIDs, 1)

	// Every node lies on the entry-to-exit chain.
	assert.Empty(t, g.Unreachable())
	assert.True(t, g.IsReachable(g.EntryID, g.ExitIDs[0]))

	// Each node on a straight line is dominated by the entry.
	for _, n := range g.Nodes {
		if n.ID == g.EntryID {
			continue
		}
		assert.True(t, g.Dominators(n.ID)[g.EntryID], "entry must dominate %s", n.ID)
	}
}

func TestBuildEmptyFile(t *testing.T) {
	g := buildGraph(t, "empty.js", "")

	require.NotEmpty(t, g.EntryID)
	require.Len(t, g.ExitIDs, 1)
	assert.True(t, g.IsReachable(g.EntryID, g.ExitIDs[0]))
}

func TestBuildIfElse(t *testing.T) {
	src := `if (x > 0) { a(); } else { b(); }
c();
`
	g := buildGraph(t, "branch.js", src)

	conds := nodesOfKind(g, KindCondition)
	require.Len(t, conds, 1)
	assert.NotEmpty(t, conds[0].Conditions)

	trueEdges := edgesOfKind(g, EdgeConditionTrue)
	falseEdges := edgesOfKind(g, EdgeConditionFalse)
	require.Len(t, trueEdges, 1)
	require.Len(t, falseEdges, 1)
	assert.Equal(t, 0.5, trueEdges[0].Probability)
	assert.Equal(t, 0.5, falseEdges[0].Probability)

	// Both arms rejoin: exit is reachable through either branch target.
	assert.True(t, g.IsReachable(trueEdges[0].To, g.ExitIDs[0]))
	assert.True(t, g.IsReachable(falseEdges[0].To, g.ExitIDs[0]))
	assert.Empty(t, g.Unreachable())
}

func TestBuildIfWithoutElse(t *testing.T) {
	g := buildGraph(t, "branch.js", "if (x) { a(); }\nb();\n")

	// The false edge must skip directly past the consequence.
	falseEdges := edgesOfKind(g, EdgeConditionFalse)
	require.Len(t, falseEdges, 1)
	assert.Empty(t, g.Unreachable())
}

func TestBuildPythonElifChain(t *testing.T) {
	src := `if a:
    x = 1
elif b:
    x = 2
elif c:
    x = 3
else:
    x = 4
print(x)
`
	g := buildGraph(t, "chain.py", src)

	// One condition node per if/elif arm.
	conds := nodesOfKind(g, KindCondition)
	assert.Len(t, conds, 3)
	assert.Empty(t, g.Unreachable())
}

func TestBuildWhileLoop(t *testing.T) {
	g := buildGraph(t, "loop.js", "while (i < 10) { i++; }\ndone();\n")

	loops := nodesOfKind(g, KindLoop)
	require.Len(t, loops, 1)

	bodyEdges := edgesOfKind(g, EdgeLoopBody)
	require.Len(t, bodyEdges, 1)

	// The body falls back to the loop head.
	assert.True(t, g.IsReachable(bodyEdges[0].To, loops[0].ID))

	// The loop exit continues to the following statement.
	exitEdges := edgesOfKind(g, EdgeLoopExit)
	require.Len(t, exitEdges, 1)
	assert.True(t, g.IsReachable(exitEdges[0].To, g.ExitIDs[0]))
}

func TestBuildLoopWithBreak(t *testing.T) {
	src := `while (true) {
  if (done) { break; }
  work();
}
after();
`
	g := buildGraph(t, "break.js", src)

	breaks := nodesOfKind(g, KindBreak)
	require.Len(t, breaks, 1)

	// The break jumps past the loop, not back to its head.
	breakEdges := edgesOfKind(g, EdgeBreak)
	require.Len(t, breakEdges, 1)
	assert.Equal(t, breaks[0].ID, breakEdges[0].From)
	assert.True(t, g.IsReachable(breakEdges[0].To, g.ExitIDs[0]))
}

func TestBuildContinue(t *testing.T) {
	src := `for (const x of xs) {
  if (skip(x)) { continue; }
  use(x);
}
`
	g := buildGraph(t, "continue.js", src)

	contEdges := edgesOfKind(g, EdgeContinue)
	require.Len(t, contEdges, 1)

	loops := nodesOfKind(g, KindLoop)
	require.Len(t, loops, 1)
	assert.Equal(t, loops[0].ID, contEdges[0].To, "continue must return to the loop head")
}

func TestBuildReturnMakesFollowingCodeUnreachable(t *testing.T) {
	src := `function f() {
  return 1;
  dead();
}
`
	g := buildGraph(t, "dead.js", src)

	sub, ok := g.Functions["f"]
	require.True(t, ok)

	returns := nodesOfKind(sub, KindReturn)
	require.Len(t, returns, 1)

	// The return wires to the function exit, stranding the trailing call.
	dead := sub.Unreachable()
	require.NotEmpty(t, dead, "statement after return must be unreachable")
}

func TestBuildTryCatch(t *testing.T) {
	src := `try {
  risky();
} catch (e) {
  recover(e);
}
after();
`
	g := buildGraph(t, "try.js", src)

	tries := nodesOfKind(g, KindTry)
	require.Len(t, tries, 1)
	catches := nodesOfKind(g, KindCatch)
	require.Len(t, catches, 1)

	// Exception edges run from the try region into the handler.
	excEdges := edgesOfKind(g, EdgeException)
	require.NotEmpty(t, excEdges)
	for _, e := range excEdges {
		assert.Equal(t, catches[0].ID, e.To)
	}

	// Both the normal and the exceptional path reach the code after the try.
	assert.True(t, g.IsReachable(catches[0].ID, g.ExitIDs[0]))
	assert.Empty(t, g.Unreachable())
}

func TestBuildTryFinally(t *testing.T) {
	src := `try:
    risky()
except ValueError:
    recover()
finally:
    cleanup()
done()
`
	g := buildGraph(t, "try.py", src)

	finals := nodesOfKind(g, KindFinally)
	require.Len(t, finals, 1)

	// Every path funnels through the finalizer before continuing.
	assert.True(t, g.IsReachable(finals[0].ID, g.ExitIDs[0]))
	assert.Empty(t, g.Unreachable())
}

func TestBuildSwitch(t *testing.T) {
	src := `switch (op) {
  case "add":
    add();
    break;
  case "sub":
    sub();
    break;
  default:
    noop();
}
after();
`
	g := buildGraph(t, "switch.js", src)

	branches := nodesOfKind(g, KindBranch)
	require.Len(t, branches, 1)

	// One outgoing normal edge per case arm.
	var caseEdges int
	for _, e := range g.Edges {
		if e.From == branches[0].ID && e.Kind == EdgeNormal {
			caseEdges++
		}
	}
	assert.Equal(t, 3, caseEdges)
	assert.Empty(t, g.Unreachable())
}

func TestBuildFunctionSubGraphs(t *testing.T) {
	src := `function outer() {
  function inner() { return 2; }
  return inner();
}
outer();
`
	g := buildGraph(t, "funcs.js", src)

	require.Contains(t, g.Functions, "outer")
	require.Contains(t, g.Functions, "outer.inner", "nested functions are hoisted with a qualified name")

	sub := g.Functions["outer"]
	assert.NotEmpty(t, sub.EntryID)
	require.Len(t, sub.ExitIDs, 1)
	assert.True(t, sub.IsReachable(sub.EntryID, sub.ExitIDs[0]))
	assert.Equal(t, "outer", sub.Nodes[0].Scope)
}

func TestBuildClassMethods(t *testing.T) {
	src := `class Account:
    def deposit(self, amount):
        self.balance += amount

    def withdraw(self, amount):
        self.balance -= amount
`
	g := buildGraph(t, "account.py", src)

	assert.Contains(t, g.Functions, "Account.deposit")
	assert.Contains(t, g.Functions, "Account.withdraw")
}

func TestBuildDepthGuardTruncates(t *testing.T) {
	src := `if (a) { if (b) { if (c) { if (d) { deep(); } } } }
`
	provider := syntax.NewProvider(zap.NewNop(), cache.New(config.CacheConfig{ASTCapacity: 4, QueryCapacity: 4}))
	res, err := provider.Parse(context.Background(), "deep.js", src)
	require.NoError(t, err)

	g := NewBuilder(zap.NewNop(), 2).Build(res)
	assert.True(t, g.Truncated, "exceeding the depth bound must set the truncation flag, not fail")
	require.NotEmpty(t, g.EntryID)
}

func TestBuildNodeMetadata(t *testing.T) {
	g := buildGraph(t, "meta.js", "const a = 1;\nquery(a);\n")

	// Calls are classified distinctly from plain statements.
	calls := nodesOfKind(g, KindFunctionCall)
	require.NotEmpty(t, calls)
	assert.Equal(t, GlobalScope, calls[0].Scope)
	assert.Positive(t, calls[0].StartLine)
	assert.NotEmpty(t, calls[0].Statements)
}
