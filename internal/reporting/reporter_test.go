package reporting

import (
	"bytes"
	stdjson "encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

func testResult() *schemas.ScanResult {
	issues := []schemas.SecurityIssue{
		{
			ID:       "aaaa",
			Category: schemas.CategorySQLInjection,
			Severity: schemas.SeverityHigh,
			Message:  "Tainted data reaches SQL sink",
			Location: schemas.Location{File: "app.js", StartLine: 2, StartColumn: 1, EndLine: 2, EndColumn: 40},
			Detector: "flow",
		},
		{
			ID:       "bbbb",
			Category: schemas.CategorySQLInjection,
			Severity: schemas.SeverityHigh,
			Message:  "String concatenation in SQL query",
			Location: schemas.Location{File: "app.js", StartLine: 2, StartColumn: 1, EndLine: 2, EndColumn: 40},
			Detector: "pattern",
		},
		{
			ID:       "cccc",
			Category: schemas.CategoryConfiguration,
			Severity: schemas.SeverityMedium,
			Message:  "Condition uses unvalidated input",
			Location: schemas.Location{File: "app.js", StartLine: 5, StartColumn: 1, EndLine: 5, EndColumn: 20},
			Detector: "control_flow",
		},
	}
	return &schemas.ScanResult{
		ScanID:    "scan-1",
		StartedAt: time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC),
		Reports: []schemas.FileReport{{
			File:     "app.js",
			Language: "javascript",
			Issues:   issues,
			Summary:  schemas.Summarize(issues),
		}},
		Metrics: schemas.ProjectMetrics{FilesAnalyzed: 1, IssueCount: len(issues)},
		Summary: schemas.Summarize(issues),
	}
}

func TestNewReporterSelectsByFormat(t *testing.T) {
	logger := zap.NewNop()
	var buf bytes.Buffer

	r, err := NewReporter("json", &buf, logger)
	require.NoError(t, err)
	assert.IsType(t, &JSONReporter{}, r)

	r, err = NewReporter("", &buf, logger)
	require.NoError(t, err)
	assert.IsType(t, &JSONReporter{}, r)

	r, err = NewReporter("sarif", &buf, logger)
	require.NoError(t, err)
	assert.IsType(t, &SARIFReporter{}, r)

	_, err = NewReporter("xml", &buf, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown report format "xml"`)
}

func TestJSONReporterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSONReporter(&buf, zap.NewNop())

	require.NoError(t, r.Write(testResult()))

	var decoded schemas.ScanResult
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "scan-1", decoded.ScanID)
	require.Len(t, decoded.Reports, 1)
	assert.Len(t, decoded.Reports[0].Issues, 3)
	assert.Equal(t, 3, decoded.Summary.Total)
}

func TestSARIFReporterStructure(t *testing.T) {
	var buf bytes.Buffer
	r := NewSARIFReporter(&buf, zap.NewNop())

	require.NoError(t, r.Write(testResult()))

	var log map[string]any
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &log))
	assert.Equal(t, SARIFVersion, log["version"])
	assert.Equal(t, SARIFSchema, log["$schema"])

	runs := log["runs"].([]any)
	require.Len(t, runs, 1)
	run := runs[0].(map[string]any)

	driver := run["tool"].(map[string]any)["driver"].(map[string]any)
	assert.Equal(t, ToolName, driver["name"])
	assert.Equal(t, ToolInfoURI, driver["informationUri"])

	// Three issues but only three distinct (detector, category) pairs would
	// collapse further if detectors repeated; here each pair is unique.
	rules := driver["rules"].([]any)
	require.Len(t, rules, 3)
	ruleIDs := make([]string, 0, len(rules))
	for _, raw := range rules {
		ruleIDs = append(ruleIDs, raw.(map[string]any)["id"].(string))
	}
	assert.Equal(t, []string{
		"lancet.control_flow.configuration",
		"lancet.flow.sql_injection",
		"lancet.pattern.sql_injection",
	}, ruleIDs)

	results := run["results"].([]any)
	require.Len(t, results, 3)
	first := results[0].(map[string]any)
	assert.Equal(t, "lancet.flow.sql_injection", first["ruleId"])
	assert.Equal(t, "error", first["level"])

	loc := first["locations"].([]any)[0].(map[string]any)["physicalLocation"].(map[string]any)
	assert.Equal(t, "app.js", loc["artifactLocation"].(map[string]any)["uri"])
	region := loc["region"].(map[string]any)
	assert.Equal(t, float64(2), region["startLine"])
	assert.Equal(t, float64(40), region["endColumn"])
}

func TestSARIFReporterDeduplicatesRules(t *testing.T) {
	result := testResult()
	// Duplicate the flow issue at another location; the rule table must not
	// grow, while results keep one entry per issue.
	dup := result.Reports[0].Issues[0]
	dup.ID = "dddd"
	dup.Location.StartLine = 9
	result.Reports[0].Issues = append(result.Reports[0].Issues, dup)

	var buf bytes.Buffer
	require.NoError(t, NewSARIFReporter(&buf, zap.NewNop()).Write(result))

	var log map[string]any
	require.NoError(t, stdjson.Unmarshal(buf.Bytes(), &log))
	run := log["runs"].([]any)[0].(map[string]any)
	driver := run["tool"].(map[string]any)["driver"].(map[string]any)
	assert.Len(t, driver["rules"].([]any), 3)
	assert.Len(t, run["results"].([]any), 4)
}

func TestSeverityLevelMapping(t *testing.T) {
	assert.Equal(t, "error", string(severityLevel(schemas.SeverityCritical)))
	assert.Equal(t, "error", string(severityLevel(schemas.SeverityHigh)))
	assert.Equal(t, "warning", string(severityLevel(schemas.SeverityMedium)))
	assert.Equal(t, "note", string(severityLevel(schemas.SeverityLow)))
}
