// Package syntax wraps the tree-sitter parser behind the interface the
// analysis pipeline consumes: parse a file's text into an immutable tree,
// detect the language from the file extension, and answer node-type queries
// through the shared analysis cache.
package syntax

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/cache"
)

// ErrParseUnavailable is returned when no usable tree could be produced for a
// file. The caller skips that file and reports the error; the batch continues.
var ErrParseUnavailable = errors.New("syntax: parse unavailable")

// Language is the detected source language tag.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangUnknown    Language = "unknown"
)

// ParseResult carries one file's parsed tree and everything downstream stages
// need to interpret it. The tree is immutable for the duration of a pass.
type ParseResult struct {
	File     string
	Language Language
	Source   []byte
	Tree     *sitter.Tree
	// ContentHash keys this parse in the AST cache and namespaces node-query
	// cache entries.
	ContentHash string
}

// Root returns the root syntax node.
func (r *ParseResult) Root() *sitter.Node {
	return r.Tree.RootNode()
}

// Provider parses source text into syntax trees, consulting the shared AST
// cache before doing any work.
type Provider struct {
	logger *zap.Logger
	cache  *cache.AnalysisCache
}

// NewProvider builds a Provider around the given cache.
func NewProvider(logger *zap.Logger, c *cache.AnalysisCache) *Provider {
	return &Provider{
		logger: logger.Named("syntax"),
		cache:  c,
	}
}

// DetectLanguage maps a file extension to a supported language tag.
func DetectLanguage(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return LangJavaScript
	case ".py", ".pyw":
		return LangPython
	default:
		return LangUnknown
	}
}

func grammarFor(lang Language) *sitter.Language {
	switch lang {
	case LangJavaScript:
		return javascript.GetLanguage()
	case LangPython:
		return python.GetLanguage()
	default:
		return nil
	}
}

// Parse produces a ParseResult for the file, reusing a cached tree when the
// same (language, content) pair has been parsed before.
func (p *Provider) Parse(ctx context.Context, filePath, content string) (*ParseResult, error) {
	lang := DetectLanguage(filePath)
	grammar := grammarFor(lang)
	if grammar == nil {
		return nil, fmt.Errorf("%w: unsupported language for %s", ErrParseUnavailable, filePath)
	}

	key := cache.ASTKey(string(lang), content)
	if cached, ok := p.cache.GetAST(key); ok {
		if res, ok := cached.(*ParseResult); ok {
			// Re-bind the cached tree to the requesting path; identical
			// content in two files parses identically.
			rebound := *res
			rebound.File = filePath
			return &rebound, nil
		}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	source := []byte(content)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseUnavailable, filePath, err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, fmt.Errorf("%w: %s: empty tree", ErrParseUnavailable, filePath)
	}

	res := &ParseResult{
		File:        filePath,
		Language:    lang,
		Source:      source,
		Tree:        tree,
		ContentHash: key,
	}
	p.cache.SetAST(key, res)
	p.logger.Debug("Parsed file",
		zap.String("file", filePath),
		zap.String("language", string(lang)),
		zap.Uint32("root_children", res.Root().ChildCount()))
	return res, nil
}

// NodesOfType collects every node in the tree whose type is in the requested
// set, answering from the query cache when possible. Results are returned in
// document order.
func (p *Provider) NodesOfType(res *ParseResult, types ...string) []*sitter.Node {
	key := cache.QueryKey(res.ContentHash, types)
	if cached, ok := p.cache.GetQuery(key); ok {
		if nodes, ok := cached.([]*sitter.Node); ok {
			return nodes
		}
	}

	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var nodes []*sitter.Node
	Walk(res.Root(), DefaultMaxDepth, func(n *sitter.Node, _ int) bool {
		if want[n.Type()] {
			nodes = append(nodes, n)
		}
		return true
	})

	p.cache.SetQuery(key, nodes)
	return nodes
}

// CacheStats exposes the underlying cache counters.
func (p *Provider) CacheStats() cache.StatsSnapshot {
	return p.cache.Stats()
}
