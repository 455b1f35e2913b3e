package transformations

import "github.com/expr-lang/expr/ast"

// methodFunctions maps JavaScript string/number methods to registered function names.
// The receiver becomes the first argument.
var methodFunctions = map[string]string{
	"toUpperCase": "str_toUpperCase",
	"toLowerCase": "str_toLowerCase",
	"trim":        "str_trim",
	"trimStart":   "str_trimStart",
	"trimEnd":     "str_trimEnd",
	"replace":     "str_replace",
	"replaceAll":  "str_replaceAll",
	"substring":   "str_substring",
	"slice":       "str_slice",
	"padStart":    "str_padStart",
	"padEnd":      "str_padEnd",
	"startsWith":  "str_startsWith",
	"endsWith":    "str_endsWith",
	"includes":    "str_includes",
	"split":       "str_split",
	"charAt":      "str_charAt",
	"indexOf":     "str_indexOf",
	"toString":    "String",
	"toFixed":     "num_toFixed",
}

var mathFunctions = map[string]string{
	"round": "math_round",
	"floor": "math_floor",
	"ceil":  "math_ceil",
	"abs":   "math_abs",
	"min":   "math_min",
	"max":   "math_max",
}

// methodRewriter turns receiver.method(args) into method(receiver, args) and Math.fn(x) into
// math_fn(x). ast.Walk visits children first, so chained calls are rewritten inside out.
type methodRewriter struct{}

func (methodRewriter) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.CallNode:
		member, ok := n.Callee.(*ast.MemberNode)
		if !ok {
			return
		}
		property, ok := member.Property.(*ast.StringNode)
		if !ok {
			return
		}
		if ident, ok := member.Node.(*ast.IdentifierNode); ok && ident.Value == "Math" {
			if name, known := mathFunctions[property.Value]; known {
				ast.Patch(node, &ast.CallNode{
					Callee:    &ast.IdentifierNode{Value: name},
					Arguments: n.Arguments,
				})
			}
			return
		}
		name, known := methodFunctions[property.Value]
		if !known {
			return
		}
		args := make([]ast.Node, 0, len(n.Arguments)+1)
		args = append(args, member.Node)
		args = append(args, n.Arguments...)
		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: name},
			Arguments: args,
		})
	case *ast.MemberNode:
		property, ok := n.Property.(*ast.StringNode)
		if !ok || property.Value != "length" {
			return
		}
		if ident, ok := n.Node.(*ast.IdentifierNode); ok && ident.Value == "row" {
			// row.length addresses a column named "length".
			return
		}
		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: "str_length"},
			Arguments: []ast.Node{n.Node},
		})
	}
}
