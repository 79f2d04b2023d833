// Package symbols builds scoped symbol tables from syntax trees: every
// declaration a file makes (variables, functions, classes, parameters,
// imports, exports) keyed by its scope-qualified name.
package symbols

import (
	"github.com/xkilldash9x/lancet/api/schemas"
)

// Kind classifies a declared symbol.
type Kind string

const (
	KindVariable  Kind = "variable"
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindMethod    Kind = "method"
	KindParameter Kind = "parameter"
	KindConstant  Kind = "constant"
	KindImport    Kind = "import"
	KindExport    Kind = "export"
)

// ScopeKind classifies the lexical region a symbol was declared in.
type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeModule   ScopeKind = "module"
	ScopeClass    ScopeKind = "class"
	ScopeFunction ScopeKind = "function"
	ScopeBlock    ScopeKind = "block"
)

// GlobalScope is the name of the outermost scope.
const GlobalScope = "global"

// Symbol is one declaration. Symbols are owned by their file's Table and
// rebuilt whenever the file is re-analyzed.
type Symbol struct {
	Name      string    `json:"name"`
	Qualified string    `json:"qualified"`
	Kind      Kind      `json:"kind"`
	Scope     ScopeKind `json:"scope"`
	// ScopeName is the name of the declaring scope (function/class name, or
	// "global").
	ScopeName string `json:"scope_name"`

	Location schemas.Location `json:"location"`
	NodeType string           `json:"node_type"`

	Mutable bool `json:"mutable"`
	// Value holds the declared/initial value text when one was present.
	Value string `json:"value,omitempty"`

	References []schemas.Location `json:"references,omitempty"`
}

// Table maps scope-qualified names to symbols for one file, with fast lookup
// maps for functions and classes by bare name.
type Table struct {
	File    string
	Symbols map[string]*Symbol
	// Order preserves insertion order for deterministic iteration.
	Order []string

	Functions map[string]*Symbol
	Classes   map[string]*Symbol

	// Imports lists the modules/files this file imports, feeding the
	// cross-file dependency adjacency.
	Imports []string
}

// NewTable returns an empty table for the file.
func NewTable(file string) *Table {
	return &Table{
		File:      file,
		Symbols:   make(map[string]*Symbol),
		Functions: make(map[string]*Symbol),
		Classes:   make(map[string]*Symbol),
	}
}

// QualifiedName joins a scope name and a symbol name. Qualification keeps
// same-named symbols in sibling scopes from colliding.
func QualifiedName(scopeName, name string) string {
	return scopeName + "." + name
}

// Insert registers a symbol under its qualified name. A redeclaration in the
// same scope replaces the earlier entry but keeps its position.
func (t *Table) Insert(sym *Symbol) {
	sym.Qualified = QualifiedName(sym.ScopeName, sym.Name)
	if _, exists := t.Symbols[sym.Qualified]; !exists {
		t.Order = append(t.Order, sym.Qualified)
	}
	t.Symbols[sym.Qualified] = sym

	switch sym.Kind {
	case KindFunction, KindMethod:
		t.Functions[sym.Name] = sym
	case KindClass:
		t.Classes[sym.Name] = sym
	}
}

// Lookup resolves a name from the given scope: a symbol inserted under scope
// S is visible to lookups in S and in the global scope.
func (t *Table) Lookup(scopeName, name string) *Symbol {
	if sym, ok := t.Symbols[QualifiedName(scopeName, name)]; ok {
		return sym
	}
	if sym, ok := t.Symbols[QualifiedName(GlobalScope, name)]; ok {
		return sym
	}
	return nil
}

// All returns the symbols in insertion order.
func (t *Table) All() []*Symbol {
	out := make([]*Symbol, 0, len(t.Order))
	for _, q := range t.Order {
		out = append(out, t.Symbols[q])
	}
	return out
}
