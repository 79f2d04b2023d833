// Package dataflow derives definition/use flow graphs from a control-flow
// graph and symbol table, seeds taint from configured source patterns, and
// propagates it to a fixed point.
package dataflow

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/lancet/internal/analysis/symbols"
)

// EdgeKind classifies a data-flow edge.
type EdgeKind string

const (
	EdgeDefinition EdgeKind = "definition"
	EdgeUse        EdgeKind = "use"
	EdgeAssignment EdgeKind = "assignment"
	EdgeParameter  EdgeKind = "parameter"
	EdgeReturn     EdgeKind = "return"
	EdgeCall       EdgeKind = "call"
	EdgeGlobal     EdgeKind = "global"
)

// Edge is one data-flow fact: variable flows between two CFG node refs.
// Node refs are "<scope>/<node id>" so edges from function sub-graphs never
// collide with file-level ids.
type Edge struct {
	From     string   `json:"from"`
	To       string   `json:"to"`
	Variable string   `json:"variable"`
	Kind     EdgeKind `json:"kind"`
	// Statement is the text at the edge's target, used for sink matching.
	Statement string `json:"statement"`
	Line      int    `json:"line"`

	Tainted      bool     `json:"tainted"`
	TaintSources []string `json:"taint_sources,omitempty"`
}

// SourcePattern is one configured taint-source family: the keywords that
// introduce taint, the sinks it endangers, and the sanitizers that clear it.
// These are configuration data, not constants, to stay language-neutral.
type SourcePattern struct {
	Name              string
	SourceKeywords    []string
	SinkKeywords      map[string][]string
	SanitizerKeywords []string
}

// Graph is the data-flow result for one file.
type Graph struct {
	File string

	// Variables seeds from every symbol in the file's table, keyed by bare
	// name.
	Variables map[string]*symbols.Symbol

	Edges []*Edge

	// SourceNodes indexes node refs whose statement matched a taint source;
	// SinkNodes maps node refs to the sink categories their statement matched.
	SourceNodes map[string][]string
	SinkNodes   map[string][]string

	Patterns []SourcePattern

	// Taint maps variable name to whether any flow tainted it. A tainted
	// flow edge implies its variable is tainted here, never the reverse at
	// seed time.
	Taint map[string]bool
}

// TaintedVariables returns the names marked tainted, unordered.
func (g *Graph) TaintedVariables() []string {
	var out []string
	for name, tainted := range g.Taint {
		if tainted {
			out = append(out, name)
		}
	}
	return out
}

// MatchSource reports whether the statement text matches any configured
// taint-source keyword, returning the matching labels.
func (g *Graph) MatchSource(stmt string) []string {
	lower := strings.ToLower(stmt)
	var labels []string
	for _, p := range g.Patterns {
		for _, kw := range p.SourceKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				labels = append(labels, kw)
			}
		}
	}
	return labels
}

// MatchSinks returns the sink categories whose keyword lists match the
// statement text, in sorted category order so report output is stable across
// runs.
func (g *Graph) MatchSinks(stmt string) []string {
	lower := strings.ToLower(stmt)
	seen := make(map[string]bool)
	var categories []string
	for _, p := range g.Patterns {
		names := make([]string, 0, len(p.SinkKeywords))
		for category := range p.SinkKeywords {
			names = append(names, category)
		}
		sort.Strings(names)
		for _, category := range names {
			if seen[category] {
				continue
			}
			for _, kw := range p.SinkKeywords[category] {
				if strings.Contains(lower, strings.ToLower(kw)) {
					seen[category] = true
					categories = append(categories, category)
					break
				}
			}
		}
	}
	return categories
}

// IsSanitized reports whether the statement text contains a configured
// sanitizer keyword.
func (g *Graph) IsSanitized(stmt string) bool {
	lower := strings.ToLower(stmt)
	for _, p := range g.Patterns {
		for _, kw := range p.SanitizerKeywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
