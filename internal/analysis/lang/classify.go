// Package lang maps raw tree-sitter node type strings onto a closed set of
// language-agnostic constructs. Builders switch on the Construct variant, and
// anything unrecognized falls through to ConstructOther so unsupported syntax
// degrades to generic traversal instead of aborting a file.
package lang

// Construct is the closed variant set the analysis stages dispatch on.
type Construct int

const (
	ConstructOther Construct = iota
	ConstructIf
	ConstructLoop
	ConstructSwitch
	ConstructTry
	ConstructReturn
	ConstructBreak
	ConstructContinue
	ConstructFunction
	ConstructClass
	ConstructImport
	ConstructExport
	ConstructVarDecl
	ConstructAssignment
	ConstructCall
	ConstructExpression
	ConstructBlock
)

// Classify maps a tree-sitter node type to its construct category. The table
// covers the JavaScript and Python grammars; other grammars hit the fallback.
func Classify(nodeType string) Construct {
	switch nodeType {
	case "if_statement":
		return ConstructIf
	case "while_statement", "do_statement", "for_statement", "for_in_statement", "for_of_statement":
		return ConstructLoop
	case "switch_statement", "match_statement":
		return ConstructSwitch
	case "try_statement":
		return ConstructTry
	case "return_statement":
		return ConstructReturn
	case "break_statement":
		return ConstructBreak
	case "continue_statement":
		return ConstructContinue
	case "function_declaration", "generator_function_declaration", "function_definition",
		"method_definition", "arrow_function", "function_expression", "function":
		return ConstructFunction
	case "class_declaration", "class_definition":
		return ConstructClass
	case "import_statement", "import_from_statement", "import_declaration":
		return ConstructImport
	case "export_statement":
		return ConstructExport
	case "lexical_declaration", "variable_declaration":
		return ConstructVarDecl
	case "assignment", "assignment_expression", "augmented_assignment", "augmented_assignment_expression":
		return ConstructAssignment
	case "call", "call_expression", "new_expression":
		return ConstructCall
	case "expression_statement":
		return ConstructExpression
	case "statement_block", "block", "program", "module":
		return ConstructBlock
	default:
		return ConstructOther
	}
}
