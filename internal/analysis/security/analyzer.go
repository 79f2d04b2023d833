// Package security emits vulnerability findings for one file by combining
// four independent detectors: line-pattern signatures, tainted-flow sink
// matching, unvalidated-condition checks, and hardcoded-secret scanning.
// Detector results are concatenated, never deduplicated: a line flagged by
// two detectors carries two independent evidentiary signals.
package security

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/analysis/cfg"
	"github.com/xkilldash9x/lancet/internal/analysis/dataflow"
	"github.com/xkilldash9x/lancet/internal/analysis/symbols"
	"github.com/xkilldash9x/lancet/internal/config"
)

// Result bundles a file's issues with their aggregation.
type Result struct {
	Issues          []schemas.SecurityIssue
	Summary         schemas.SecuritySummary
	Recommendations []string
}

// Analyzer runs the detector set over one file's analysis artifacts.
type Analyzer struct {
	logger             *zap.Logger
	validationKeywords []string
}

// NewAnalyzer builds an Analyzer; the validation keyword list comes from
// configuration so deployments can tune the missing-check detector.
func NewAnalyzer(logger *zap.Logger, taintCfg config.TaintConfig) *Analyzer {
	return &Analyzer{
		logger:             logger.Named("security"),
		validationKeywords: taintCfg.ValidationKeywords,
	}
}

// Analyze runs all four detectors and aggregates their findings.
func (a *Analyzer) Analyze(source, filePath string, table *symbols.Table, graph *cfg.Graph, flows *dataflow.Graph) Result {
	lines := strings.Split(source, "\n")

	var issues []schemas.SecurityIssue
	issues = append(issues, a.patternIssues(lines, filePath)...)
	issues = append(issues, a.flowIssues(filePath, flows)...)
	issues = append(issues, a.controlFlowIssues(filePath, graph)...)
	issues = append(issues, a.secretIssues(lines, filePath)...)

	result := Result{
		Issues:          issues,
		Summary:         schemas.Summarize(issues),
		Recommendations: recommendations(issues),
	}
	a.logger.Debug("Security analysis complete",
		zap.String("file", filePath),
		zap.Int("issues", len(issues)))
	return result
}

// patternIssues matches every source line against the fixed signature table.
func (a *Analyzer) patternIssues(lines []string, filePath string) []schemas.SecurityIssue {
	var issues []schemas.SecurityIssue
	for i, line := range lines {
		for _, rule := range patternRules {
			loc := rule.re.FindStringIndex(line)
			if loc == nil {
				continue
			}
			location := schemas.Location{
				File:        filePath,
				StartLine:   i + 1,
				StartColumn: loc[0] + 1,
				EndLine:     i + 1,
				EndColumn:   loc[1] + 1,
			}
			issues = append(issues, schemas.SecurityIssue{
				ID:          schemas.NewIssueID("pattern", rule.category, location, rule.message, nil),
				Category:    rule.category,
				Severity:    rule.severity,
				Message:     rule.message,
				Location:    location,
				Remediation: rule.remediation,
				Snippet:     strings.TrimSpace(line),
				Detector:    "pattern",
				CWE:         rule.cwe,
			})
		}
	}
	return issues
}

// flowIssues reports every tainted flow edge whose target statement matches a
// sink keyword table.
func (a *Analyzer) flowIssues(filePath string, flows *dataflow.Graph) []schemas.SecurityIssue {
	if flows == nil {
		return nil
	}
	var issues []schemas.SecurityIssue
	for _, edge := range flows.Edges {
		if !edge.Tainted {
			continue
		}
		for _, sink := range flows.MatchSinks(edge.Statement) {
			category, ok := flowCategory[sink]
			if !ok {
				continue
			}
			severity := flowSeverity[sink]
			if severity == "" {
				severity = schemas.SeverityHigh
			}
			location := schemas.Location{
				File:      filePath,
				StartLine: edge.Line,
				EndLine:   edge.Line,
			}
			message := fmt.Sprintf("Tainted variable %q reaches %s sink", edge.Variable, sink)
			issues = append(issues, schemas.SecurityIssue{
				ID:          schemas.NewIssueID("flow", category, location, message, []string{edge.Variable}),
				Category:    category,
				Severity:    severity,
				Message:     message,
				Location:    location,
				Variables:   []string{edge.Variable},
				TaintPath:   taintPath(flows, edge.Variable),
				Remediation: flowRemediation[sink],
				Snippet:     edge.Statement,
				Detector:    "flow",
				CWE:         flowCWE[sink],
			})
		}
	}
	return issues
}

// controlFlowIssues flags condition nodes whose recorded condition text lacks
// any validation/sanitization keyword.
func (a *Analyzer) controlFlowIssues(filePath string, graph *cfg.Graph) []schemas.SecurityIssue {
	if graph == nil {
		return nil
	}
	var issues []schemas.SecurityIssue
	a.scanConditions(filePath, graph, &issues)

	names := make([]string, 0, len(graph.Functions))
	for name := range graph.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		a.scanConditions(filePath, graph.Functions[name], &issues)
	}
	return issues
}

func (a *Analyzer) scanConditions(filePath string, graph *cfg.Graph, issues *[]schemas.SecurityIssue) {
	for _, node := range graph.Nodes {
		if node.Kind != cfg.KindCondition {
			continue
		}
		if len(node.Conditions) == 0 {
			continue
		}
		cond := strings.ToLower(strings.Join(node.Conditions, " "))
		validated := false
		for _, kw := range a.validationKeywords {
			if strings.Contains(cond, strings.ToLower(kw)) {
				validated = true
				break
			}
		}
		if validated {
			continue
		}
		location := schemas.Location{
			File:      filePath,
			StartLine: node.StartLine,
			EndLine:   node.StartLine,
		}
		message := "Condition performs no input validation before branching"
		*issues = append(*issues, schemas.SecurityIssue{
			ID:          schemas.NewIssueID("control_flow", schemas.CategoryConfiguration, location, message, nil),
			Category:    schemas.CategoryConfiguration,
			Severity:    schemas.SeverityMedium,
			Message:     message,
			Location:    location,
			Remediation: "Validate or sanitize inputs inside branch conditions guarding sensitive operations.",
			Snippet:     node.Conditions[0],
			Detector:    "control_flow",
			CWE:         []string{"CWE-20"},
		})
	}
}

// secretIssues scans raw lines for hardcoded credential material.
func (a *Analyzer) secretIssues(lines []string, filePath string) []schemas.SecurityIssue {
	var issues []schemas.SecurityIssue
	for i, line := range lines {
		loc := secretRe.FindStringIndex(line)
		if loc == nil {
			continue
		}
		location := schemas.Location{
			File:        filePath,
			StartLine:   i + 1,
			StartColumn: loc[0] + 1,
			EndLine:     i + 1,
			EndColumn:   loc[1] + 1,
		}
		message := "Hardcoded credential in source"
		issues = append(issues, schemas.SecurityIssue{
			ID:          schemas.NewIssueID("symbol", schemas.CategoryAuthentication, location, message, nil),
			Category:    schemas.CategoryAuthentication,
			Severity:    schemas.SeverityMedium,
			Message:     message,
			Location:    location,
			Remediation: "Move secrets to environment variables or a secret manager.",
			Snippet:     strings.TrimSpace(line),
			Detector:    "symbol",
			CWE:         []string{"CWE-798"},
		})
	}
	return issues
}

// taintPath assembles the ordered flow summary for a variable, sorted by line
// so the path reads source to sink.
func taintPath(flows *dataflow.Graph, variable string) []schemas.TaintStep {
	var steps []schemas.TaintStep
	for _, e := range flows.Edges {
		if e.Variable != variable || !e.Tainted {
			continue
		}
		steps = append(steps, schemas.TaintStep{
			Variable:  e.Variable,
			Kind:      string(e.Kind),
			Statement: e.Statement,
			Line:      e.Line,
			Sources:   e.TaintSources,
		})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Line < steps[j].Line })
	return steps
}

// recommendations collects the unique remediation strings across all issues,
// plus the general reminders whenever anything was found.
func recommendations(issues []schemas.SecurityIssue) []string {
	if len(issues) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, issue := range issues {
		if issue.Remediation == "" || seen[issue.Remediation] {
			continue
		}
		seen[issue.Remediation] = true
		out = append(out, issue.Remediation)
	}
	out = append(out, generalRecommendations...)
	return out
}
