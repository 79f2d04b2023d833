// Package analysis wires the per-file pipeline: parse, symbol table, CFG,
// data flow, security detectors. Each stage fully consumes its predecessor's
// output; analysis of a single file is synchronous and touches no shared
// state beyond the injected cache, so callers may run files in parallel.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/analysis/cfg"
	"github.com/xkilldash9x/lancet/internal/analysis/dataflow"
	"github.com/xkilldash9x/lancet/internal/analysis/security"
	"github.com/xkilldash9x/lancet/internal/analysis/symbols"
	"github.com/xkilldash9x/lancet/internal/cache"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

// FileAnalysis is everything the pipeline derives from one file.
type FileAnalysis struct {
	File     string
	Language syntax.Language
	Source   string
	Lines    int

	Table  *symbols.Table
	CFG    *cfg.Graph
	Flows  *dataflow.Graph
	Report security.Result
}

// Pipeline runs the full analysis stack for one file at a time.
type Pipeline struct {
	logger   *zap.Logger
	provider *syntax.Provider
	symbols  *symbols.Builder
	cfg      *cfg.Builder
	dataflow *dataflow.Analyzer
	security *security.Analyzer
}

// NewPipeline assembles the stages from configuration. The cache is an
// explicit dependency so independent sessions never share state.
func NewPipeline(logger *zap.Logger, conf *config.Config, c *cache.AnalysisCache) *Pipeline {
	depth := conf.Engine.MaxRecursionDepth
	return &Pipeline{
		logger:   logger.Named("pipeline"),
		provider: syntax.NewProvider(logger, c),
		symbols:  symbols.NewBuilder(logger, depth),
		cfg:      cfg.NewBuilder(logger, depth),
		dataflow: dataflow.NewAnalyzer(logger, conf.Taint),
		security: security.NewAnalyzer(logger, conf.Taint),
	}
}

// Provider exposes the syntax provider, mainly for cache introspection.
func (p *Pipeline) Provider() *syntax.Provider {
	return p.provider
}

// AnalyzeFile runs every stage for one file. Only a total parse failure
// aborts the file; stage-local oddities degrade to partial results inside
// the stages themselves.
func (p *Pipeline) AnalyzeFile(ctx context.Context, filePath, content string) (*FileAnalysis, error) {
	parsed, err := p.provider.Parse(ctx, filePath, content)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", filePath, err)
	}

	table := p.symbols.Build(parsed)
	graph := p.cfg.Build(parsed)
	flows := p.dataflow.Analyze(graph, table)
	report := p.security.Analyze(content, filePath, table, graph, flows)

	return &FileAnalysis{
		File:     filePath,
		Language: parsed.Language,
		Source:   content,
		Lines:    strings.Count(content, "\n") + 1,
		Table:    table,
		CFG:      graph,
		Flows:    flows,
		Report:   report,
	}, nil
}
