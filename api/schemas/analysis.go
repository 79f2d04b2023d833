package schemas

import "time"

// -- Incremental Analysis Schemas --

// ChangeKind classifies an edit delivered to the incremental analyzer.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// LineRange is an inclusive line span within a file.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether two inclusive ranges share at least one line.
func (r LineRange) Overlaps(other LineRange) bool {
	return r.Start <= other.End && r.End >= other.Start
}

// FileChange describes one edit in an incremental analysis request.
type FileChange struct {
	Path       string     `json:"path"`
	Kind       ChangeKind `json:"kind"`
	OldContent string     `json:"old_content,omitempty"`
	NewContent string     `json:"new_content,omitempty"`
	// Range optionally narrows a modification to the edited lines, letting
	// the analyzer restrict the affected-symbol set.
	Range *LineRange `json:"range,omitempty"`
}

// AnalysisScope is the computed blast radius of a change set: the files to
// re-analyze plus the functions and classes whose recorded spans overlap the
// edits.
type AnalysisScope struct {
	Files     []string `json:"files"`
	Functions []string `json:"functions"`
	Classes   []string `json:"classes"`
	// Dependencies maps each scoped file to the files it depends on, as
	// reported by the injected dependency resolver.
	Dependencies map[string][]string `json:"dependencies,omitempty"`
}

// FileError records a per-file pipeline failure. Batch operations continue
// past individual failures and report them alongside successful results.
type FileError struct {
	File    string `json:"file"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// DeltaResult is the outcome of one incremental analysis pass.
type DeltaResult struct {
	ScanID string `json:"scan_id"`

	AffectedFiles     []string `json:"affected_files"`
	AffectedFunctions []string `json:"affected_functions"`
	AffectedClasses   []string `json:"affected_classes"`
	AffectedVariables []string `json:"affected_variables"`

	// NewSecurityIssues are present now but absent from the previous cached
	// run; ResolvedSecurityIssues the reverse. Comparison is by issue ID.
	NewSecurityIssues      []SecurityIssue `json:"new_security_issues"`
	ResolvedSecurityIssues []SecurityIssue `json:"resolved_security_issues"`

	Errors []FileError `json:"errors,omitempty"`

	AnalysisTime time.Duration `json:"analysis_time"`
	// MemoryEstimateBytes approximates cache residency, proportional to the
	// number of live cache entries.
	MemoryEstimateBytes int64 `json:"memory_estimate_bytes"`
}

// -- Project Scan Schemas --

// FileReport is the per-file output of the security analyzer.
type FileReport struct {
	File            string          `json:"file"`
	Language        string          `json:"language"`
	Issues          []SecurityIssue `json:"issues"`
	Summary         SecuritySummary `json:"summary"`
	Recommendations []string        `json:"recommendations"`
}

// ProjectMetrics aggregates structural counts across an analyzed project.
type ProjectMetrics struct {
	FilesAnalyzed int           `json:"files_analyzed"`
	FilesFailed   int           `json:"files_failed"`
	TotalLines    int           `json:"total_lines"`
	FunctionCount int           `json:"function_count"`
	ClassCount    int           `json:"class_count"`
	IssueCount    int           `json:"issue_count"`
	Duration      time.Duration `json:"duration"`
}

// CrossFileAnalysis captures the import adjacency discovered during a project
// scan. Cross-file taint is not solved globally; this adjacency is what the
// incremental analyzer consumes to widen its re-analysis scope.
type CrossFileAnalysis struct {
	// Imports maps a file to the modules/files it imports.
	Imports map[string][]string `json:"imports"`
	// Dependents is the reverse adjacency: file -> files importing it.
	Dependents map[string][]string `json:"dependents"`
}

// ScanResult is the envelope produced by a full project scan.
type ScanResult struct {
	ScanID    string            `json:"scan_id"`
	StartedAt time.Time         `json:"started_at"`
	Reports   []FileReport      `json:"reports"`
	Metrics   ProjectMetrics    `json:"metrics"`
	Summary   SecuritySummary   `json:"summary"`
	CrossFile CrossFileAnalysis `json:"cross_file"`
	Errors    []FileError       `json:"errors,omitempty"`
}
