package symbols

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/cache"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/syntax"
)

func buildTable(t *testing.T, file, src string) *Table {
	t.Helper()
	provider := syntax.NewProvider(zap.NewNop(), cache.New(config.CacheConfig{ASTCapacity: 4, QueryCapacity: 4}))
	res, err := provider.Parse(context.Background(), file, src)
	require.NoError(t, err)
	return NewBuilder(zap.NewNop(), 0).Build(res)
}

func TestJavaScriptDeclarations(t *testing.T) {
	src := `const MAX = 10;
let counter = 0;

function tally(amount) {
  counter = counter + amount;
  return counter;
}

class Ledger {
  record(entry) {
    this.entries = entry;
  }
}
`
	table := buildTable(t, "ledger.js", src)

	max := table.Lookup(GlobalScope, "MAX")
	require.NotNil(t, max)
	assert.Equal(t, KindConstant, max.Kind)
	assert.False(t, max.Mutable)
	assert.Equal(t, "10", max.Value)

	counter := table.Lookup(GlobalScope, "counter")
	require.NotNil(t, counter)
	assert.Equal(t, KindVariable, counter.Kind)
	assert.True(t, counter.Mutable)

	require.Contains(t, table.Functions, "tally")
	assert.Equal(t, KindFunction, table.Functions["tally"].Kind)

	require.Contains(t, table.Classes, "Ledger")
	require.Contains(t, table.Functions, "record")
	assert.Equal(t, KindMethod, table.Functions["record"].Kind, "class member functions are methods")
}

func TestParameterDeclarations(t *testing.T) {
	src := `function greet(name, greeting) { return greeting + name; }`
	table := buildTable(t, "greet.js", src)

	name := table.Lookup("greet", "name")
	require.NotNil(t, name)
	assert.Equal(t, KindParameter, name.Kind)
	assert.Equal(t, "greet", name.ScopeName)

	greeting := table.Lookup("greet", "greeting")
	require.NotNil(t, greeting)
	assert.Equal(t, KindParameter, greeting.Kind)
}

func TestPythonFirstAssignmentDeclares(t *testing.T) {
	src := `total = 0
total = total + 1

def accumulate(value=1):
    subtotal = value
    return subtotal
`
	table := buildTable(t, "acc.py", src)

	total := table.Lookup(GlobalScope, "total")
	require.NotNil(t, total)
	assert.Equal(t, KindVariable, total.Kind)
	// The second assignment is recorded as a reference, not a redeclaration.
	assert.NotEmpty(t, total.References)

	// A default-valued parameter still declares under the function scope.
	value := table.Lookup("accumulate", "value")
	require.NotNil(t, value)
	assert.Equal(t, KindParameter, value.Kind)

	subtotal := table.Lookup("accumulate", "subtotal")
	require.NotNil(t, subtotal)
	assert.Equal(t, "accumulate", subtotal.ScopeName)
}

func TestPythonSelfParameterSkipped(t *testing.T) {
	src := `class Account:
    def deposit(self, amount):
        self.balance = amount
`
	table := buildTable(t, "account.py", src)

	require.Contains(t, table.Classes, "Account")
	require.Contains(t, table.Functions, "deposit")
	assert.Equal(t, KindMethod, table.Functions["deposit"].Kind)

	assert.Nil(t, table.Lookup("Account.deposit", "self"), "self is never a symbol")
	assert.NotNil(t, table.Lookup("Account.deposit", "amount"))
}

func TestScopeShadowing(t *testing.T) {
	src := `const x = "outer";
function f() {
  const x = "inner";
  return x;
}
`
	table := buildTable(t, "shadow.js", src)

	outer := table.Symbols[QualifiedName(GlobalScope, "x")]
	inner := table.Symbols[QualifiedName("f", "x")]
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	assert.NotEqual(t, outer.Value, inner.Value)

	// Lookup from the function scope resolves the inner binding first.
	assert.Same(t, inner, table.Lookup("f", "x"))
	assert.Same(t, outer, table.Lookup(GlobalScope, "x"))
}

func TestImports(t *testing.T) {
	jsTable := buildTable(t, "app.js", `import db from "./lib/db";`+"\n")
	assert.Contains(t, jsTable.Imports, "./lib/db")

	pyTable := buildTable(t, "app.py", "import os\nfrom db import query\n")
	assert.Contains(t, pyTable.Imports, "os")
	assert.Contains(t, pyTable.Imports, "db")
}

func TestExports(t *testing.T) {
	table := buildTable(t, "mod.js", "export function handler() {}\n")

	var found bool
	for _, sym := range table.All() {
		if sym.Kind == KindExport {
			found = true
		}
	}
	assert.True(t, found, "export statements must be recorded")
	assert.Contains(t, table.Functions, "handler")
}

func TestReferencesRecorded(t *testing.T) {
	src := `const conn = open();
use(conn);
close(conn);
`
	table := buildTable(t, "refs.js", src)

	conn := table.Lookup(GlobalScope, "conn")
	require.NotNil(t, conn)
	assert.Len(t, conn.References, 2)
}

func TestAnonymousFallbackNames(t *testing.T) {
	src := `const handler = function (req) { return req; };`
	table := buildTable(t, "anon.js", src)

	// The unnamed function expression gets a positional placeholder.
	var anon *Symbol
	for _, sym := range table.All() {
		if sym.Kind == KindFunction {
			anon = sym
		}
	}
	require.NotNil(t, anon)
	assert.Contains(t, anon.Name, "anonymous@")
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	src := "const a = 1;\nconst b = 2;\nconst c = 3;\n"
	table := buildTable(t, "order.js", src)

	var names []string
	for _, sym := range table.All() {
		names = append(names, sym.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
