package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/analysis/cfg"
	"github.com/xkilldash9x/lancet/internal/analysis/dataflow"
	"github.com/xkilldash9x/lancet/internal/analysis/symbols"
	"github.com/xkilldash9x/lancet/internal/cache"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

func analyzeSource(t *testing.T, file, src string) Result {
	t.Helper()
	conf := config.Default()
	provider := syntax.NewProvider(zap.NewNop(), cache.New(conf.Cache))
	res, err := provider.Parse(context.Background(), file, src)
	require.NoError(t, err)

	table := symbols.NewBuilder(zap.NewNop(), 0).Build(res)
	graph := cfg.NewBuilder(zap.NewNop(), 0).Build(res)
	flows := dataflow.NewAnalyzer(zap.NewNop(), conf.Taint).Analyze(graph, table)
	return NewAnalyzer(zap.NewNop(), conf.Taint).Analyze(src, file, table, graph, flows)
}

func issuesBy(result Result, detector string) []schemas.SecurityIssue {
	var out []schemas.SecurityIssue
	for _, issue := range result.Issues {
		if issue.Detector == detector {
			out = append(out, issue)
		}
	}
	return out
}

func TestSQLInjectionFlowAndPattern(t *testing.T) {
	src := `const userId = req.query.id;
db.query("SELECT * FROM users WHERE id=" + userId);
`
	result := analyzeSource(t, "inject.js", src)

	flow := issuesBy(result, "flow")
	require.NotEmpty(t, flow, "the tainted variable reaching db.query must produce a flow issue")

	var sqlIssue *schemas.SecurityIssue
	for i := range flow {
		if flow[i].Category == schemas.CategorySQLInjection {
			sqlIssue = &flow[i]
		}
	}
	require.NotNil(t, sqlIssue)
	assert.Equal(t, schemas.SeverityHigh, sqlIssue.Severity)
	assert.Contains(t, sqlIssue.Variables, "userId")
	assert.NotEmpty(t, sqlIssue.TaintPath, "flow issues carry the source-to-sink path")
	assert.Equal(t, []string{"CWE-89"}, sqlIssue.CWE)

	// The syntactic detector independently flags the concatenated SELECT.
	// Overlap is expected; results are concatenated, not deduplicated.
	var patternSQL bool
	for _, issue := range issuesBy(result, "pattern") {
		if issue.Category == schemas.CategorySQLInjection {
			patternSQL = true
			assert.Equal(t, 2, issue.Location.StartLine)
		}
	}
	assert.True(t, patternSQL)
}

func TestUntaintedSinkProducesNoFlowIssue(t *testing.T) {
	src := `const msg = "static greeting";
element.innerHTML = msg;
`
	result := analyzeSource(t, "static.js", src)

	assert.Empty(t, issuesBy(result, "flow"),
		"a sink fed only by an untainted literal must not raise a flow issue")

	// The syntactic innerHTML rule still fires on the assignment shape.
	var patternXSS bool
	for _, issue := range issuesBy(result, "pattern") {
		if issue.Category == schemas.CategoryXSS {
			patternXSS = true
		}
	}
	assert.True(t, patternXSS)
}

func TestCommandInjectionPattern(t *testing.T) {
	src := `import os
cmd = input()
os.system("ping " + cmd)
`
	result := analyzeSource(t, "ping.py", src)

	var found bool
	for _, issue := range issuesBy(result, "pattern") {
		if issue.Category == schemas.CategoryCommandInjection {
			found = true
			assert.Equal(t, schemas.SeverityHigh, issue.Severity)
			assert.Equal(t, []string{"CWE-78"}, issue.CWE)
		}
	}
	assert.True(t, found)

	// input() taints cmd, and os.system is a command sink: the flow detector
	// reports the same line from the data-flow side.
	var flowCommand bool
	for _, issue := range issuesBy(result, "flow") {
		if issue.Category == schemas.CategoryCommandInjection {
			flowCommand = true
		}
	}
	assert.True(t, flowCommand)
}

func TestInsecureDeserializationPattern(t *testing.T) {
	src := `import pickle
data = pickle.loads(blob)
`
	result := analyzeSource(t, "deser.py", src)

	var found bool
	for _, issue := range issuesBy(result, "pattern") {
		if issue.Category == schemas.CategoryInsecureDeserialization {
			found = true
			assert.Equal(t, []string{"CWE-502"}, issue.CWE)
		}
	}
	assert.True(t, found)
}

func TestPathTraversalAndWeakHashPatterns(t *testing.T) {
	src := `const p = base + "../../etc/passwd";
const digest = md5(p);
`
	result := analyzeSource(t, "mixed.js", src)

	categories := make(map[schemas.Category]bool)
	for _, issue := range issuesBy(result, "pattern") {
		categories[issue.Category] = true
	}
	assert.True(t, categories[schemas.CategoryPathTraversal])
	assert.True(t, categories[schemas.CategoryCryptography])
}

func TestHardcodedSecretDetector(t *testing.T) {
	src := `const apiKey = "sk-live-abcdef123456";
const password = "hunter22";
const empty = "";
`
	result := analyzeSource(t, "secrets.js", src)

	secrets := issuesBy(result, "symbol")
	require.Len(t, secrets, 2)
	for _, issue := range secrets {
		assert.Equal(t, schemas.CategoryAuthentication, issue.Category)
		assert.Equal(t, schemas.SeverityMedium, issue.Severity)
		assert.Equal(t, []string{"CWE-798"}, issue.CWE)
	}
}

func TestUnvalidatedConditionDetector(t *testing.T) {
	src := `if (count > limit) { trim(); }
if (isValid(name)) { accept(name); }
`
	result := analyzeSource(t, "cond.js", src)

	conds := issuesBy(result, "control_flow")
	require.Len(t, conds, 1, "only the condition without a validation keyword is flagged")
	assert.Equal(t, schemas.CategoryConfiguration, conds[0].Category)
	assert.Equal(t, schemas.SeverityMedium, conds[0].Severity)
	assert.Equal(t, 1, conds[0].Location.StartLine)
}

func TestIssueIDsStableAcrossRuns(t *testing.T) {
	src := `const userId = req.query.id;
db.query("SELECT * FROM t WHERE id=" + userId);
`
	first := analyzeSource(t, "stable.js", src)
	second := analyzeSource(t, "stable.js", src)

	require.Equal(t, len(first.Issues), len(second.Issues))
	ids := make(map[string]bool, len(first.Issues))
	for _, issue := range first.Issues {
		ids[issue.ID] = true
	}
	for _, issue := range second.Issues {
		assert.True(t, ids[issue.ID], "issue %q must keep its fingerprint between runs", issue.Message)
	}
}

func TestSummaryAndRecommendations(t *testing.T) {
	src := `const userId = req.query.id;
db.query("SELECT * FROM t WHERE id=" + userId);
`
	result := analyzeSource(t, "summary.js", src)

	require.NotEmpty(t, result.Issues)
	assert.Equal(t, len(result.Issues), result.Summary.Total)
	assert.Positive(t, result.Summary.BySeverity[schemas.SeverityHigh])

	// Remediations are unique and the general reminders are appended.
	seen := make(map[string]bool)
	for _, r := range result.Recommendations {
		assert.False(t, seen[r], "recommendation %q duplicated", r)
		seen[r] = true
	}
	assert.True(t, seen["Validate and sanitize all external input at trust boundaries."])
}

func TestCleanSourceProducesNothing(t *testing.T) {
	src := `const greeting = "hello";
console.log(greeting);
`
	result := analyzeSource(t, "clean.js", src)

	assert.Empty(t, result.Issues)
	assert.Zero(t, result.Summary.Total)
	assert.Nil(t, result.Recommendations)
}
