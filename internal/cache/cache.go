// Package cache provides the bounded LRU caches shared by the analysis
// pipeline: one for parsed syntax trees keyed by (language, content hash) and
// one for node-type query results keyed by (node hash, requested type set).
//
// The cache is an injected, lifetime-scoped component rather than a package
// singleton, so independent analysis sessions never share state.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/xkilldash9x/lancet/internal/config"
)

// AnalysisCache bundles the AST and query caches behind one handle. All
// methods are safe for concurrent use by parallel file workers.
type AnalysisCache struct {
	asts    *lruCache
	queries *lruCache
}

// StatsSnapshot exposes both caches' counters for operational visibility.
type StatsSnapshot struct {
	AST   Stats `json:"ast"`
	Query Stats `json:"query"`
}

// New builds an AnalysisCache with the configured capacities.
func New(cfg config.CacheConfig) *AnalysisCache {
	return &AnalysisCache{
		asts:    newLRU(cfg.ASTCapacity),
		queries: newLRU(cfg.QueryCapacity),
	}
}

// ASTKey derives the cache key for a parsed tree from the language tag and
// the full source content.
func ASTKey(language, content string) string {
	sum := sha256.Sum256([]byte(language + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// QueryKey derives the cache key for a node-type query from a node identity
// hash and the requested type set. The type set is sorted so the key is
// independent of caller ordering.
func QueryKey(nodeHash string, types []string) string {
	sorted := make([]string, len(types))
	copy(sorted, types)
	sort.Strings(sorted)
	return nodeHash + "|" + strings.Join(sorted, ",")
}

// GetAST returns a cached parse result.
func (c *AnalysisCache) GetAST(key string) (any, bool) {
	return c.asts.get(key)
}

// SetAST stores a parse result.
func (c *AnalysisCache) SetAST(key string, tree any) {
	c.asts.set(key, tree)
}

// GetQuery returns a cached node-type query result.
func (c *AnalysisCache) GetQuery(key string) (any, bool) {
	return c.queries.get(key)
}

// SetQuery stores a node-type query result.
func (c *AnalysisCache) SetQuery(key string, result any) {
	c.queries.set(key, result)
}

// Stats returns both caches' counters.
func (c *AnalysisCache) Stats() StatsSnapshot {
	return StatsSnapshot{AST: c.asts.stats(), Query: c.queries.stats()}
}

// Clear drops every entry from both caches. Counters are preserved.
func (c *AnalysisCache) Clear() {
	c.asts.clear()
	c.queries.clear()
}
