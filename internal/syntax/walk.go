package syntax

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// DefaultMaxDepth bounds tree traversals against pathological nesting.
// Exceeding it truncates deeper structure rather than failing the file.
const DefaultMaxDepth = 200

// Walk visits nodes depth-first using an explicit stack, so deeply nested
// input can never overflow the goroutine stack. visit returns false to prune
// the subtree. Children deeper than maxDepth are silently skipped.
func Walk(root *sitter.Node, maxDepth int, visit func(n *sitter.Node, depth int) bool) {
	if root == nil {
		return
	}
	type frame struct {
		node  *sitter.Node
		depth int
	}
	stack := []frame{{root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !visit(f.node, f.depth) {
			continue
		}
		if f.depth >= maxDepth {
			continue
		}
		// Push children in reverse so they pop in document order.
		for i := int(f.node.ChildCount()) - 1; i >= 0; i-- {
			child := f.node.Child(i)
			if child != nil {
				stack = append(stack, frame{child, f.depth + 1})
			}
		}
	}
}

// WalkEnterExit is Walk with a post-order exit hook, used where the visitor
// maintains a scope stack that must be popped exactly when a construct ends.
func WalkEnterExit(root *sitter.Node, maxDepth int, enter func(n *sitter.Node, depth int) bool, exit func(n *sitter.Node)) {
	if root == nil {
		return
	}
	type frame struct {
		node    *sitter.Node
		depth   int
		entered bool
	}
	stack := []frame{{root, 0, false}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.entered {
			exit(top.node)
			stack = stack[:len(stack)-1]
			continue
		}
		top.entered = true

		if !enter(top.node, top.depth) || top.depth >= maxDepth {
			// No descent; the exit hook still fires on the next pop.
			continue
		}
		node, depth := top.node, top.depth
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			child := node.Child(i)
			if child != nil {
				stack = append(stack, frame{child, depth + 1, false})
			}
		}
	}
}

// NodeContent extracts the string content of a node from the source bytes.
func NodeContent(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(source)
}

// FirstLine returns the 1-based line of the node's start point.
func FirstLine(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}

// LastLine returns the 1-based line of the node's end point.
func LastLine(node *sitter.Node) int {
	return int(node.EndPoint().Row) + 1
}

// StartColumn returns the 1-based column of the node's start point.
func StartColumn(node *sitter.Node) int {
	return int(node.StartPoint().Column) + 1
}
