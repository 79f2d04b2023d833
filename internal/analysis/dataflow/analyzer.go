package dataflow

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/analysis/cfg"
	"github.com/xkilldash9x/lancet/internal/analysis/symbols"
	"github.com/xkilldash9x/lancet/internal/config"
)

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// reserved words never treated as variable occurrences in statement text.
var reservedWords = map[string]bool{
	"if": true, "else": true, "elif": true, "for": true, "while": true,
	"return": true, "break": true, "continue": true, "function": true,
	"def": true, "class": true, "var": true, "let": true, "const": true,
	"new": true, "try": true, "catch": true, "except": true, "finally": true,
	"true": true, "false": true, "null": true, "none": true, "import": true,
	"from": true, "in": true, "of": true, "not": true, "and": true, "or": true,
	"print": true, "this": true, "self": true, "switch": true, "case": true,
}

// Analyzer turns a CFG plus symbol table into a data-flow graph.
type Analyzer struct {
	logger  *zap.Logger
	pattern SourcePattern
}

// NewAnalyzer builds an Analyzer from the configured taint keyword tables.
func NewAnalyzer(logger *zap.Logger, taintCfg config.TaintConfig) *Analyzer {
	return &Analyzer{
		logger: logger.Named("dataflow"),
		pattern: SourcePattern{
			Name:              "configured",
			SourceKeywords:    taintCfg.SourceKeywords,
			SinkKeywords:      taintCfg.SinkKeywords,
			SanitizerKeywords: taintCfg.SanitizerKeywords,
		},
	}
}

// nodeFlow is the per-node def/use classification gathered in the first pass.
type nodeFlow struct {
	ref  string
	node *cfg.Node
	// scope names the owning graph ("" for the file graph).
	scope string
	defs  []string
	uses  []string
	stmt  string
}

// Analyze runs the full def/use/taint computation over the file graph and
// every function sub-graph. The result is deterministic for a fixed input:
// taint propagation iterates to a fixed point, so traversal order cannot
// change the final taint set.
func (a *Analyzer) Analyze(g *cfg.Graph, table *symbols.Table) *Graph {
	out := &Graph{
		File:        g.File,
		Variables:   make(map[string]*symbols.Symbol),
		SourceNodes: make(map[string][]string),
		SinkNodes:   make(map[string][]string),
		Patterns:    []SourcePattern{a.pattern},
		Taint:       make(map[string]bool),
	}

	// Step 1: seed the variable map from the symbol table.
	for _, sym := range table.All() {
		if _, exists := out.Variables[sym.Name]; !exists {
			out.Variables[sym.Name] = sym
		}
	}

	flowsByGraph := make(map[*cfg.Graph][]nodeFlow)
	a.collectFlows(out, g, "", table, flowsByGraph)

	scopes := make([]string, 0, len(g.Functions))
	for name := range g.Functions {
		scopes = append(scopes, name)
	}
	sort.Strings(scopes)
	for _, name := range scopes {
		a.collectFlows(out, g.Functions[name], name, table, flowsByGraph)
	}

	// Step 3: connect each definition to every use it can reach. The
	// reachability gate is mandatory; a use upstream of the definition
	// cannot observe it.
	for owner, flows := range flowsByGraph {
		a.connectDefsToUses(out, owner, flows)
	}

	a.propagateTaint(out)

	a.logger.Debug("Built data-flow graph",
		zap.String("file", g.File),
		zap.Int("edges", len(out.Edges)),
		zap.Int("tainted_variables", len(out.TaintedVariables())))
	return out
}

// collectFlows performs step 2 for one graph: classify each node's statement
// text into definitions and uses and emit the corresponding edges.
func (a *Analyzer) collectFlows(out *Graph, g *cfg.Graph, scope string, table *symbols.Table, acc map[*cfg.Graph][]nodeFlow) {
	if g == nil {
		return
	}
	for _, node := range g.Nodes {
		flow := nodeFlow{
			ref:   nodeRef(scope, node.ID),
			node:  node,
			scope: scope,
			stmt:  statementOf(node),
		}

		switch node.Kind {
		case cfg.KindEntry:
			// Parameters are defined at their function's entry.
			if scope != "" {
				for _, sym := range table.All() {
					if sym.Kind == symbols.KindParameter && sym.ScopeName == scope {
						flow.defs = append(flow.defs, sym.Name)
						out.Edges = append(out.Edges, &Edge{
							From: flow.ref, To: flow.ref,
							Variable: sym.Name, Kind: EdgeParameter,
							Statement: flow.stmt, Line: node.StartLine,
						})
					}
				}
			}
		case cfg.KindExit:
			// No statement of its own.
		case cfg.KindCondition, cfg.KindLoop, cfg.KindBranch:
			for _, cond := range node.Conditions {
				flow.uses = append(flow.uses, variablesIn(out, cond)...)
			}
		case cfg.KindReturn:
			flow.uses = variablesIn(out, flow.stmt)
			for _, v := range flow.uses {
				out.Edges = append(out.Edges, &Edge{
					From: flow.ref, To: flow.ref,
					Variable: v, Kind: EdgeReturn,
					Statement: flow.stmt, Line: node.StartLine,
				})
			}
		default:
			defs, uses := splitAssignment(out, flow.stmt)
			flow.defs = append(flow.defs, defs...)
			flow.uses = append(flow.uses, uses...)
		}

		for _, v := range flow.defs {
			out.Edges = append(out.Edges, &Edge{
				From: flow.ref, To: flow.ref,
				Variable: v, Kind: EdgeDefinition,
				Statement: flow.stmt, Line: node.StartLine,
			})
		}
		useKind := EdgeUse
		if node.Kind == cfg.KindFunctionCall {
			useKind = EdgeCall
		}
		for _, v := range flow.uses {
			kind := useKind
			// A module-level variable read inside a function crosses the
			// scope boundary through a global edge.
			if scope != "" {
				if sym := out.Variables[v]; sym != nil && sym.Scope == symbols.ScopeGlobal {
					kind = EdgeGlobal
				}
			}
			out.Edges = append(out.Edges, &Edge{
				From: flow.ref, To: flow.ref,
				Variable: v, Kind: kind,
				Statement: flow.stmt, Line: node.StartLine,
			})
		}

		if labels := out.MatchSource(flow.stmt); len(labels) > 0 {
			out.SourceNodes[flow.ref] = labels
		}
		if categories := out.MatchSinks(flow.stmt); len(categories) > 0 {
			out.SinkNodes[flow.ref] = categories
		}

		acc[g] = append(acc[g], flow)
	}
}

func (a *Analyzer) connectDefsToUses(out *Graph, g *cfg.Graph, flows []nodeFlow) {
	for _, def := range flows {
		for _, v := range def.defs {
			for _, use := range flows {
				if !contains(use.uses, v) {
					continue
				}
				if !g.IsReachable(def.node.ID, use.node.ID) {
					continue
				}
				out.Edges = append(out.Edges, &Edge{
					From: def.ref, To: use.ref,
					Variable: v, Kind: EdgeAssignment,
					Statement: use.stmt, Line: use.node.StartLine,
				})
			}
		}
	}
}

// propagateTaint seeds taint from source-matching definitions and iterates
// assignment transfer to a fixed point, then marks every flow edge of each
// tainted variable.
func (a *Analyzer) propagateTaint(out *Graph) {
	sources := make(map[string][]string) // variable -> source labels

	// Seed: a definition or parameter whose statement text matches a source
	// pattern taints its variable.
	for _, e := range out.Edges {
		if e.Kind != EdgeDefinition && e.Kind != EdgeParameter {
			continue
		}
		if labels := out.MatchSource(e.Statement); len(labels) > 0 {
			sources[e.Variable] = mergeLabels(sources[e.Variable], labels)
		}
	}

	// Transfer: an assignment whose statement mentions a tainted variable
	// taints the assigned variable, unless a sanitizer intervenes. Iterating
	// to a fixed point makes the result independent of edge order.
	changed := true
	for changed {
		changed = false
		for _, e := range out.Edges {
			if e.Kind != EdgeDefinition {
				continue
			}
			if out.IsSanitized(e.Statement) {
				continue
			}
			for _, mentioned := range variablesIn(out, e.Statement) {
				if mentioned == e.Variable {
					continue
				}
				labels, tainted := sources[mentioned]
				if !tainted {
					continue
				}
				merged := mergeLabels(sources[e.Variable], labels)
				if len(merged) != len(sources[e.Variable]) {
					sources[e.Variable] = merged
					changed = true
				}
			}
		}
	}

	for v := range sources {
		out.Taint[v] = true
	}
	for _, e := range out.Edges {
		if labels, tainted := sources[e.Variable]; tainted {
			e.Tainted = true
			e.TaintSources = labels
		}
	}
}

// -- helpers --

func nodeRef(scope, id string) string {
	if scope == "" {
		return id
	}
	return scope + "/" + id
}

func statementOf(n *cfg.Node) string {
	if len(n.Statements) > 0 {
		return n.Statements[0]
	}
	if len(n.Conditions) > 0 {
		return n.Conditions[0]
	}
	return ""
}

// variablesIn extracts identifiers from statement text that name known
// variables.
func variablesIn(g *Graph, stmt string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, ident := range identifierRe.FindAllString(stmt, -1) {
		if reservedWords[strings.ToLower(ident)] || seen[ident] {
			continue
		}
		if _, known := g.Variables[ident]; known {
			seen[ident] = true
			out = append(out, ident)
		}
	}
	return out
}

var assignRe = regexp.MustCompile(`^\s*(?:var\s+|let\s+|const\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*(?:\[[^\]]*\])?\s*[-+*/%]?=\s*[^=]`)

// splitAssignment classifies one statement's text into the variable it
// defines (assignment target, if any) and the variables it uses.
func splitAssignment(g *Graph, stmt string) (defs, uses []string) {
	if m := assignRe.FindStringSubmatch(stmt); m != nil {
		target := m[1]
		if _, known := g.Variables[target]; known {
			defs = append(defs, target)
		}
		rhs := stmt[strings.Index(stmt, "=")+1:]
		for _, v := range variablesIn(g, rhs) {
			if v != target {
				uses = append(uses, v)
			}
		}
		return defs, uses
	}
	return nil, variablesIn(g, stmt)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func mergeLabels(existing, incoming []string) []string {
	merged := append([]string{}, existing...)
	for _, label := range incoming {
		if !contains(merged, label) {
			merged = append(merged, label)
		}
	}
	sort.Strings(merged)
	return merged
}
