package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// -- Finding Schemas --

// Severity represents the severity level of a security issue. The values are
// lowercase to align with database ENUMs and report formats.
type Severity string

// Constants defining the standard severity levels for issues.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Category classifies a security issue by vulnerability class.
type Category string

// Constants for the supported vulnerability categories.
const (
	CategorySQLInjection            Category = "sql_injection"
	CategoryXSS                     Category = "xss"
	CategoryCommandInjection        Category = "command_injection"
	CategoryPathTraversal           Category = "path_traversal"
	CategoryInsecureDeserialization Category = "insecure_deserialization"
	CategoryXXE                     Category = "xxe"
	CategoryLDAPInjection           Category = "ldap_injection"
	CategorySSRF                    Category = "ssrf"
	CategoryBufferOverflow          Category = "buffer_overflow"
	CategoryAuthentication          Category = "authentication"
	CategoryAuthorization           Category = "authorization"
	CategoryCryptography            Category = "cryptography"
	CategoryDeserialization         Category = "deserialization"
	CategoryLogging                 Category = "logging"
	CategoryConfiguration           Category = "configuration"
)

// Location pinpoints a finding within a source file.
type Location struct {
	File        string `json:"file"`
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
	EndLine     int    `json:"end_line"`
	EndColumn   int    `json:"end_column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.StartLine, l.StartColumn)
}

// TaintStep is one hop in the taint path attached to a flow-based issue,
// summarizing a single data-flow edge from source to sink.
type TaintStep struct {
	Variable  string   `json:"variable"`
	Kind      string   `json:"kind"`      // The data-flow edge kind (definition, use, assignment, ...).
	Statement string   `json:"statement"` // The statement text at the target of the hop.
	Line      int      `json:"line"`
	Sources   []string `json:"sources,omitempty"` // Taint-source labels carried by the hop.
}

// SecurityIssue encapsulates a single vulnerability identified by static
// analysis. Issues are immutable once created; incremental diffing compares
// issue IDs across runs, so the ID is a deterministic content fingerprint
// rather than a random identifier.
type SecurityIssue struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`

	Message  string   `json:"message"`
	Location Location `json:"location"`

	// Variables lists the identifiers implicated in the issue (e.g. the
	// tainted variable reaching a sink).
	Variables []string `json:"variables,omitempty"`

	// TaintPath is the ordered source-to-sink flow summary. Empty for
	// pattern-, control-flow- and symbol-based findings.
	TaintPath []TaintStep `json:"taint_path,omitempty"`

	Remediation string `json:"remediation"`
	Snippet     string `json:"snippet,omitempty"`

	// Detector names the detector that produced the issue. The same line may
	// legitimately be reported by several detectors under different IDs.
	Detector string   `json:"detector"`
	CWE      []string `json:"cwe,omitempty"`
}

// NewIssueID derives the deterministic fingerprint used as a SecurityIssue ID.
// Two runs over identical source must produce identical IDs so that the
// incremental diff reports neither new nor resolved issues.
func NewIssueID(detector string, category Category, loc Location, message string, variables []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d|%s|%s",
		detector, category, loc.File, loc.StartLine, loc.StartColumn, message, strings.Join(variables, ","))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// SecuritySummary aggregates issue counts for one file or a whole project.
type SecuritySummary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	ByCategory map[Category]int `json:"by_category"`
}

// Summarize builds a SecuritySummary from a list of issues.
func Summarize(issues []SecurityIssue) SecuritySummary {
	s := SecuritySummary{
		Total:      len(issues),
		BySeverity: make(map[Severity]int),
		ByCategory: make(map[Category]int),
	}
	for _, issue := range issues {
		s.BySeverity[issue.Severity]++
		s.ByCategory[issue.Category]++
	}
	return s
}
