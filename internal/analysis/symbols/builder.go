package symbols

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/analysis/lang"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

// Builder walks a syntax tree and produces the file's symbol table. It keeps
// a scope stack whose pushes and pops mirror construct nesting exactly; an
// imbalance is an implementation defect the tests pin down, not a runtime
// condition to recover from.
type Builder struct {
	logger   *zap.Logger
	maxDepth int
}

// NewBuilder returns a Builder with the given traversal depth bound.
func NewBuilder(logger *zap.Logger, maxDepth int) *Builder {
	if maxDepth <= 0 {
		maxDepth = syntax.DefaultMaxDepth
	}
	return &Builder{
		logger:   logger.Named("symbol_builder"),
		maxDepth: maxDepth,
	}
}

type scopeFrame struct {
	kind ScopeKind
	name string
	// node marks the construct that opened the scope so the exit hook pops
	// exactly once per push.
	node *sitter.Node
}

type buildState struct {
	table  *Table
	src    []byte
	scopes []scopeFrame
}

func (s *buildState) currentScope() scopeFrame {
	return s.scopes[len(s.scopes)-1]
}

// Build walks the AST and returns the populated table. Unknown node kinds are
// traversed generically; a missing expected child (e.g. an unnamed function)
// degrades to a placeholder name rather than failing the file.
func (b *Builder) Build(res *syntax.ParseResult) *Table {
	st := &buildState{
		table:  NewTable(res.File),
		src:    res.Source,
		scopes: []scopeFrame{{kind: ScopeGlobal, name: GlobalScope}},
	}

	syntax.WalkEnterExit(res.Root(), b.maxDepth,
		func(n *sitter.Node, _ int) bool {
			return b.enter(st, n)
		},
		func(n *sitter.Node) {
			b.exit(st, n)
		},
	)

	if len(st.scopes) != 1 {
		// Scope stack imbalance means a push/pop pairing bug; tests assert
		// it never happens on well-formed trees.
		b.logger.Error("Scope stack imbalance after traversal",
			zap.String("file", res.File), zap.Int("depth", len(st.scopes)))
	}
	b.logger.Debug("Built symbol table",
		zap.String("file", res.File),
		zap.Int("symbols", len(st.table.Symbols)),
		zap.Int("functions", len(st.table.Functions)),
		zap.Int("classes", len(st.table.Classes)))
	return st.table
}

func (b *Builder) enter(st *buildState, n *sitter.Node) bool {
	if !n.IsNamed() {
		return false
	}

	switch lang.Classify(n.Type()) {
	case lang.ConstructFunction:
		name := b.declareFunction(st, n)
		st.scopes = append(st.scopes, scopeFrame{kind: ScopeFunction, name: name, node: n})

	case lang.ConstructClass:
		name := b.declareClass(st, n)
		st.scopes = append(st.scopes, scopeFrame{kind: ScopeClass, name: name, node: n})

	case lang.ConstructVarDecl:
		b.declareVariables(st, n)

	case lang.ConstructAssignment:
		b.declareAssignment(st, n)

	case lang.ConstructImport:
		b.declareImport(st, n)

	case lang.ConstructExport:
		b.declareExport(st, n)

	default:
		switch n.Type() {
		case "formal_parameters", "parameters":
			b.declareParameters(st, n)
			return false
		case "identifier":
			b.recordReference(st, n)
			return false
		}
	}
	return true
}

func (b *Builder) exit(st *buildState, n *sitter.Node) {
	if len(st.scopes) > 1 && st.currentScope().node == n {
		st.scopes = st.scopes[:len(st.scopes)-1]
	}
}

func (b *Builder) declareFunction(st *buildState, n *sitter.Node) string {
	name := st.text(n.ChildByFieldName("name"))
	if name == "" {
		name = fmt.Sprintf("anonymous@%d", syntax.FirstLine(n))
	}
	kind := KindFunction
	scope := st.currentScope()
	if scope.kind == ScopeClass {
		kind = KindMethod
	}
	qualifiedScopeName := scope.name
	st.table.Insert(&Symbol{
		Name:      name,
		Kind:      kind,
		Scope:     scope.kind,
		ScopeName: qualifiedScopeName,
		Location:  st.location(n),
		NodeType:  n.Type(),
	})
	if scope.name != GlobalScope {
		return scope.name + "." + name
	}
	return name
}

func (b *Builder) declareClass(st *buildState, n *sitter.Node) string {
	name := st.text(n.ChildByFieldName("name"))
	if name == "" {
		name = fmt.Sprintf("class@%d", syntax.FirstLine(n))
	}
	scope := st.currentScope()
	st.table.Insert(&Symbol{
		Name:      name,
		Kind:      KindClass,
		Scope:     scope.kind,
		ScopeName: scope.name,
		Location:  st.location(n),
		NodeType:  n.Type(),
	})
	return name
}

// declareVariables handles lexical_declaration / variable_declaration, whose
// named children are variable_declarator nodes.
func (b *Builder) declareVariables(st *buildState, n *sitter.Node) {
	mutable := !strings.HasPrefix(st.text(n), "const")
	kind := KindVariable
	if !mutable {
		kind = KindConstant
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		decl := n.NamedChild(i)
		if decl.Type() != "variable_declarator" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		name := st.text(nameNode)
		if name == "" {
			continue
		}
		scope := st.currentScope()
		// Anchor the symbol at its name so the reference recorder can tell
		// the declaring identifier apart from later uses.
		st.table.Insert(&Symbol{
			Name:      name,
			Kind:      kind,
			Scope:     scope.kind,
			ScopeName: scope.name,
			Location:  st.location(nameNode),
			NodeType:  decl.Type(),
			Mutable:   mutable,
			Value:     st.text(decl.ChildByFieldName("value")),
		})
	}
}

// declareAssignment treats the first assignment to a bare identifier in a
// scope as its declaration, which is how Python introduces variables.
func (b *Builder) declareAssignment(st *buildState, n *sitter.Node) {
	left := n.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := st.text(left)
	scope := st.currentScope()
	if existing := st.table.Lookup(scope.name, name); existing != nil {
		existing.References = append(existing.References, st.location(left))
		return
	}
	st.table.Insert(&Symbol{
		Name:      name,
		Kind:      KindVariable,
		Scope:     scope.kind,
		ScopeName: scope.name,
		Location:  st.location(left),
		NodeType:  n.Type(),
		Mutable:   true,
		Value:     st.text(n.ChildByFieldName("right")),
	})
}

func (b *Builder) declareParameters(st *buildState, n *sitter.Node) {
	scope := st.currentScope()
	for i := 0; i < int(n.NamedChildCount()); i++ {
		param := n.NamedChild(i)
		var nameNode *sitter.Node
		switch param.Type() {
		case "identifier":
			nameNode = param
		case "default_parameter", "typed_parameter", "typed_default_parameter", "assignment_pattern":
			nameNode = param.ChildByFieldName("name")
			if nameNode == nil {
				nameNode = param.NamedChild(0)
			}
		default:
			continue
		}
		name := st.text(nameNode)
		if name == "" || name == "self" || name == "this" {
			continue
		}
		st.table.Insert(&Symbol{
			Name:      name,
			Kind:      KindParameter,
			Scope:     scope.kind,
			ScopeName: scope.name,
			Location:  st.location(param),
			NodeType:  param.Type(),
			Mutable:   true,
		})
	}
}

func (b *Builder) declareImport(st *buildState, n *sitter.Node) {
	scope := st.currentScope()
	module := ""
	switch n.Type() {
	case "import_statement", "import_declaration":
		if src := n.ChildByFieldName("source"); src != nil {
			module = strings.Trim(st.text(src), `"'`)
		} else if name := n.ChildByFieldName("name"); name != nil {
			module = st.text(name)
		} else if first := n.NamedChild(0); first != nil {
			module = st.text(first)
		}
	case "import_from_statement":
		if name := n.ChildByFieldName("module_name"); name != nil {
			module = st.text(name)
		}
	}
	if module == "" {
		return
	}
	st.table.Imports = append(st.table.Imports, module)
	st.table.Insert(&Symbol{
		Name:      module,
		Kind:      KindImport,
		Scope:     scope.kind,
		ScopeName: scope.name,
		Location:  st.location(n),
		NodeType:  n.Type(),
	})
}

func (b *Builder) declareExport(st *buildState, n *sitter.Node) {
	scope := st.currentScope()
	decl := n.ChildByFieldName("declaration")
	name := ""
	if decl != nil {
		name = st.text(decl.ChildByFieldName("name"))
	}
	if name == "" {
		name = fmt.Sprintf("export@%d", syntax.FirstLine(n))
	}
	st.table.Insert(&Symbol{
		Name:      name,
		Kind:      KindExport,
		Scope:     scope.kind,
		ScopeName: scope.name,
		Location:  st.location(n),
		NodeType:  n.Type(),
	})
}

// recordReference appends a use location to an already-declared symbol
// visible from the current scope.
func (b *Builder) recordReference(st *buildState, n *sitter.Node) {
	name := st.text(n)
	if name == "" {
		return
	}
	sym := st.table.Lookup(st.currentScope().name, name)
	if sym == nil {
		return
	}
	loc := st.location(n)
	if loc == sym.Location {
		return
	}
	sym.References = append(sym.References, loc)
}

func (st *buildState) text(n *sitter.Node) string {
	return strings.TrimSpace(syntax.NodeContent(n, st.src))
}

func (st *buildState) location(n *sitter.Node) schemas.Location {
	return schemas.Location{
		File:        st.table.File,
		StartLine:   syntax.FirstLine(n),
		StartColumn: syntax.StartColumn(n),
		EndLine:     syntax.LastLine(n),
		EndColumn:   int(n.EndPoint().Column) + 1,
	}
}
