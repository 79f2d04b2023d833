// Package engine orchestrates analysis across many files. Per-file analysis
// shares no mutable state, so files fan out across a bounded errgroup; the
// injected cache is the only shared resource and handles its own locking.
package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/analysis"
	"github.com/xkilldash9x/lancet/internal/analysis/incremental"
	"github.com/xkilldash9x/lancet/internal/cache"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

// Engine runs project-wide scans and hands out incremental analyzers bound
// to the same pipeline and cache.
type Engine struct {
	logger   *zap.Logger
	conf     *config.Config
	cache    *cache.AnalysisCache
	pipeline *analysis.Pipeline
}

// New assembles an Engine with its own cache and pipeline.
func New(logger *zap.Logger, conf *config.Config) *Engine {
	c := cache.New(conf.Cache)
	return &Engine{
		logger:   logger.Named("engine"),
		conf:     conf,
		cache:    c,
		pipeline: analysis.NewPipeline(logger, conf, c),
	}
}

// Pipeline returns the engine's per-file pipeline.
func (e *Engine) Pipeline() *analysis.Pipeline {
	return e.pipeline
}

// CacheStats exposes cache counters for operational visibility.
func (e *Engine) CacheStats() cache.StatsSnapshot {
	return e.cache.Stats()
}

// ClearCache drops all cached parse and query results.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// ScanProject analyzes every supported file in the set concurrently, bounded
// by the configured worker concurrency. A single file's failure is recorded
// and the scan continues; cancellation skips files not yet started.
func (e *Engine) ScanProject(ctx context.Context, files map[string]string) (*schemas.ScanResult, error) {
	started := time.Now()
	result := &schemas.ScanResult{
		ScanID:    uuid.NewString(),
		StartedAt: started,
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		if syntax.DetectLanguage(path) != syntax.LangUnknown {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	var mu sync.Mutex
	analyses := make(map[string]*analysis.FileAnalysis, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	limit := e.conf.Engine.WorkerConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				// Cancellation unit: skip files not yet started.
				return err
			}
			fa, err := e.pipeline.AnalyzeFile(gctx, path, files[path])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, schemas.FileError{
					File:    path,
					Stage:   "parse",
					Message: err.Error(),
				})
				return nil
			}
			analyses[path] = fa
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}

	var allIssues []schemas.SecurityIssue
	for _, path := range paths {
		fa, ok := analyses[path]
		if !ok {
			continue
		}
		result.Reports = append(result.Reports, schemas.FileReport{
			File:            fa.File,
			Language:        string(fa.Language),
			Issues:          fa.Report.Issues,
			Summary:         fa.Report.Summary,
			Recommendations: fa.Report.Recommendations,
		})
		allIssues = append(allIssues, fa.Report.Issues...)

		result.Metrics.FilesAnalyzed++
		result.Metrics.TotalLines += fa.Lines
		result.Metrics.FunctionCount += len(fa.Table.Functions)
		result.Metrics.ClassCount += len(fa.Table.Classes)
	}
	result.Metrics.FilesFailed = len(result.Errors)
	result.Metrics.IssueCount = len(allIssues)
	result.Metrics.Duration = time.Since(started)
	result.Summary = schemas.Summarize(allIssues)
	result.CrossFile = crossFile(analyses)

	e.logger.Info("Project scan complete",
		zap.Int("files", result.Metrics.FilesAnalyzed),
		zap.Int("failed", result.Metrics.FilesFailed),
		zap.Int("issues", result.Metrics.IssueCount),
		zap.Duration("elapsed", result.Metrics.Duration))
	return result, nil
}

// NewIncremental returns an incremental analyzer sharing this engine's
// pipeline, seeded with the dependency adjacency from a prior scan result.
func (e *Engine) NewIncremental(cross schemas.CrossFileAnalysis) *incremental.Analyzer {
	resolver := make(incremental.StaticResolver, len(cross.Dependents))
	for file, dependents := range cross.Dependents {
		resolver[file] = dependents
	}
	return incremental.NewAnalyzer(e.logger, e.pipeline, resolver, e.conf.Engine.BatchSize)
}

// crossFile resolves import names against the scanned file set to build the
// forward and reverse adjacency. Imports that match no scanned file are kept
// in Imports but contribute no Dependents edge.
func crossFile(analyses map[string]*analysis.FileAnalysis) schemas.CrossFileAnalysis {
	cross := schemas.CrossFileAnalysis{
		Imports:    make(map[string][]string),
		Dependents: make(map[string][]string),
	}

	byBase := make(map[string]string, len(analyses))
	for path := range analyses {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		byBase[base] = path
	}

	paths := make([]string, 0, len(analyses))
	for path := range analyses {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		fa := analyses[path]
		if len(fa.Table.Imports) == 0 {
			continue
		}
		cross.Imports[path] = fa.Table.Imports
		for _, module := range fa.Table.Imports {
			target, ok := byBase[moduleBase(module)]
			if !ok || target == path {
				continue
			}
			cross.Dependents[target] = append(cross.Dependents[target], path)
		}
	}
	return cross
}

// moduleBase reduces an import specifier to a comparable file base name:
// "./utils/db" and "pkg.db" both resolve to "db".
func moduleBase(module string) string {
	module = strings.Trim(module, `"'`)
	if i := strings.LastIndexAny(module, "/."); i >= 0 {
		module = module[i+1:]
	}
	return module
}
