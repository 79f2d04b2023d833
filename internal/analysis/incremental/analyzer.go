// Package incremental re-analyzes only the files, functions and classes
// affected by a set of edits, against a per-file cache of prior pipeline
// results. Cache entries move unanalyzed -> cached -> invalidated -> cached;
// invalidation is wholesale per file, never partial.
package incremental

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/analysis"
	"github.com/xkilldash9x/lancet/internal/analysis/symbols"
)

// entryOverheadBytes approximates the fixed cost of one cache entry when
// estimating memory in DeltaResult.
const entryOverheadBytes = 4096

// DependencyResolver reports which files directly depend on a given file.
// The import graph itself is owned by an external collaborator; the analyzer
// only consumes the adjacency.
type DependencyResolver interface {
	DependentsOf(path string) []string
}

// StaticResolver is a fixed dependents adjacency, useful for tests and for
// feeding a precomputed project import graph.
type StaticResolver map[string][]string

// DependentsOf returns the configured dependents of path.
func (r StaticResolver) DependentsOf(path string) []string {
	return r[path]
}

// cacheEntry is the cached pipeline output for one file.
type cacheEntry struct {
	analyzedAt time.Time
	content    string
	analysis   *analysis.FileAnalysis

	// functionRanges/classRanges index symbol line spans for the overlap
	// test against changed-line hints.
	functionRanges map[string]schemas.LineRange
	classRanges    map[string]schemas.LineRange

	issues []schemas.SecurityIssue
}

// Analyzer orchestrates incremental re-analysis. AnalyzeChanges is the sole
// mutating entry point; everything else reads cached state.
type Analyzer struct {
	mu sync.Mutex

	logger    *zap.Logger
	pipeline  *analysis.Pipeline
	resolver  DependencyResolver
	batchSize int

	entries map[string]*cacheEntry
}

// NewAnalyzer builds an incremental Analyzer around a pipeline. resolver may
// be nil when no dependency information is available.
func NewAnalyzer(logger *zap.Logger, pipeline *analysis.Pipeline, resolver DependencyResolver, batchSize int) *Analyzer {
	if batchSize <= 0 {
		batchSize = 256
	}
	return &Analyzer{
		logger:    logger.Named("incremental"),
		pipeline:  pipeline,
		resolver:  resolver,
		batchSize: batchSize,
		entries:   make(map[string]*cacheEntry),
	}
}

// CachedFiles returns the paths with live cache entries, sorted.
func (a *Analyzer) CachedFiles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for path := range a.entries {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// CachedIssues returns the last recorded issues for a file.
func (a *Analyzer) CachedIssues(path string) []schemas.SecurityIssue {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[path]; ok {
		return e.issues
	}
	return nil
}

// ClearCache drops every cache entry.
func (a *Analyzer) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]*cacheEntry)
}

// AnalyzeChanges computes the affected scope for the change set, invalidates
// and re-analyzes it, and diffs the new issue set against the cached one.
// Individual file failures are reported in the result, never fatal to the
// batch.
func (a *Analyzer) AnalyzeChanges(ctx context.Context, changes []schemas.FileChange) (*schemas.DeltaResult, error) {
	started := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()

	result := &schemas.DeltaResult{
		ScanID:                 uuid.NewString(),
		NewSecurityIssues:      []schemas.SecurityIssue{},
		ResolvedSecurityIssues: []schemas.SecurityIssue{},
	}

	scope := a.computeScope(changes)
	result.AffectedFiles = scope.Files

	// Affected functions/classes start from the pre-analysis scope and grow
	// as newly cached files reveal what they declare.
	functions := make(map[string]bool)
	classes := make(map[string]bool)
	for _, name := range scope.Functions {
		functions[name] = true
	}
	for _, name := range scope.Classes {
		classes[name] = true
	}

	// Collect the content to analyze per scoped file before invalidating.
	contents := make(map[string]string)
	deleted := make(map[string]bool)
	for _, change := range changes {
		switch change.Kind {
		case schemas.ChangeDeleted:
			deleted[change.Path] = true
		default:
			contents[change.Path] = change.NewContent
		}
	}
	for _, path := range scope.Files {
		if _, known := contents[path]; known || deleted[path] {
			continue
		}
		if e, ok := a.entries[path]; ok {
			// Dependents re-analyze with their last known content.
			contents[path] = e.content
		}
	}

	previous := make(map[string][]schemas.SecurityIssue)
	for _, path := range scope.Files {
		if e, ok := a.entries[path]; ok {
			previous[path] = e.issues
		}
		// Invalidation is wholesale: the entry is gone until re-analysis
		// repopulates it.
		delete(a.entries, path)
	}

	processed := 0
	variables := make(map[string]bool)
	for _, path := range scope.Files {
		if deleted[path] {
			result.ResolvedSecurityIssues = append(result.ResolvedSecurityIssues, previous[path]...)
			continue
		}
		content, ok := contents[path]
		if !ok {
			continue
		}
		if processed >= a.batchSize {
			a.logger.Warn("Batch size reached; remaining files skipped",
				zap.Int("batch_size", a.batchSize))
			break
		}
		processed++

		fa, err := a.pipeline.AnalyzeFile(ctx, path, content)
		if err != nil {
			result.Errors = append(result.Errors, schemas.FileError{
				File:    path,
				Stage:   "parse",
				Message: err.Error(),
			})
			continue
		}
		a.entries[path] = newEntry(content, fa)

		if _, hadEntry := previous[path]; !hadEntry {
			// A file with no prior cache entry (added, or never analyzed)
			// affects everything it declares.
			for name := range fa.Table.Functions {
				functions[name] = true
			}
			for name := range fa.Table.Classes {
				classes[name] = true
			}
		}

		for _, sym := range fa.Table.All() {
			if sym.Kind == symbols.KindVariable || sym.Kind == symbols.KindConstant {
				variables[sym.Name] = true
			}
		}

		newIssues, resolved := diffIssues(previous[path], fa.Report.Issues)
		result.NewSecurityIssues = append(result.NewSecurityIssues, newIssues...)
		result.ResolvedSecurityIssues = append(result.ResolvedSecurityIssues, resolved...)
	}

	result.AffectedFunctions = sortedKeys(functions)
	result.AffectedClasses = sortedKeys(classes)
	for v := range variables {
		result.AffectedVariables = append(result.AffectedVariables, v)
	}
	sort.Strings(result.AffectedVariables)

	result.AnalysisTime = time.Since(started)
	result.MemoryEstimateBytes = a.memoryEstimate()

	a.logger.Info("Incremental analysis complete",
		zap.Int("changes", len(changes)),
		zap.Int("scope_files", len(scope.Files)),
		zap.Int("new_issues", len(result.NewSecurityIssues)),
		zap.Int("resolved_issues", len(result.ResolvedSecurityIssues)),
		zap.Duration("elapsed", result.AnalysisTime))
	return result, nil
}

// computeScope resolves the change set to affected files, functions and
// classes. Range hints narrow modified files to symbols whose recorded span
// overlaps the edit; added files affect everything they declare.
func (a *Analyzer) computeScope(changes []schemas.FileChange) schemas.AnalysisScope {
	files := make(map[string]bool)
	functions := make(map[string]bool)
	classes := make(map[string]bool)
	deps := make(map[string][]string)

	for _, change := range changes {
		files[change.Path] = true

		if a.resolver != nil {
			dependents := a.resolver.DependentsOf(change.Path)
			for _, dep := range dependents {
				files[dep] = true
			}
			if len(dependents) > 0 {
				deps[change.Path] = dependents
			}
		}

		entry := a.entries[change.Path]
		switch change.Kind {
		case schemas.ChangeModified:
			if entry == nil {
				continue
			}
			if change.Range != nil {
				for name, span := range entry.functionRanges {
					if span.Overlaps(*change.Range) {
						functions[name] = true
					}
				}
				for name, span := range entry.classRanges {
					if span.Overlaps(*change.Range) {
						classes[name] = true
					}
				}
			} else {
				for name := range entry.functionRanges {
					functions[name] = true
				}
				for name := range entry.classRanges {
					classes[name] = true
				}
			}
		case schemas.ChangeAdded:
			// Everything the new content declares is affected; the names are
			// only known after analysis, so AnalyzeChanges back-fills them
			// once the pipeline has run.
		case schemas.ChangeDeleted:
			if entry != nil {
				for name := range entry.functionRanges {
					functions[name] = true
				}
				for name := range entry.classRanges {
					classes[name] = true
				}
			}
		}
	}

	return schemas.AnalysisScope{
		Files:        sortedKeys(files),
		Functions:    sortedKeys(functions),
		Classes:      sortedKeys(classes),
		Dependencies: deps,
	}
}

func (a *Analyzer) memoryEstimate() int64 {
	var total int64
	for _, e := range a.entries {
		total += entryOverheadBytes + int64(len(e.content))
	}
	return total
}

func newEntry(content string, fa *analysis.FileAnalysis) *cacheEntry {
	e := &cacheEntry{
		analyzedAt:     time.Now(),
		content:        content,
		analysis:       fa,
		functionRanges: make(map[string]schemas.LineRange),
		classRanges:    make(map[string]schemas.LineRange),
		issues:         fa.Report.Issues,
	}
	for name, sym := range fa.Table.Functions {
		e.functionRanges[name] = schemas.LineRange{Start: sym.Location.StartLine, End: sym.Location.EndLine}
	}
	for name, sym := range fa.Table.Classes {
		e.classRanges[name] = schemas.LineRange{Start: sym.Location.StartLine, End: sym.Location.EndLine}
	}
	return e
}

// diffIssues compares issue sets by ID.
func diffIssues(before, after []schemas.SecurityIssue) (added, resolved []schemas.SecurityIssue) {
	beforeIDs := make(map[string]bool, len(before))
	for _, issue := range before {
		beforeIDs[issue.ID] = true
	}
	afterIDs := make(map[string]bool, len(after))
	for _, issue := range after {
		afterIDs[issue.ID] = true
		if !beforeIDs[issue.ID] {
			added = append(added, issue)
		}
	}
	for _, issue := range before {
		if !afterIDs[issue.ID] {
			resolved = append(resolved, issue)
		}
	}
	return added, resolved
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
