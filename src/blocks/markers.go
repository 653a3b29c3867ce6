package blocks

import (
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/taut-run/taut/src/core"
)

// recognizedMarkers is the closed set of decorator names the runner understands;
// anything else is silently ignored, matching the unknown-decorator-ignored
// behavior the marker extraction was modelled on.
var recognizedMarkers = map[string]bool{"skip": true, "mark": true, "parallel": true}

// extractMarkers reads the decorators attached to a decorated_definition node and
// returns the recognized ones, in source order.
func extractMarkers(node *tree_sitter.Node, source []byte) []core.Marker {
	if node == nil || node.Kind() != "decorated_definition" {
		return nil
	}
	var markers []core.Marker
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child.Kind() != "decorator" {
			continue
		}
		if m, ok := parseDecorator(child, source); ok {
			markers = append(markers, m)
		}
	}
	return markers
}

// parseDecorator parses a single `decorator` node: @name, @name(...), or
// @module.name(...). Calls that don't name a recognized marker are dropped.
func parseDecorator(decorator *tree_sitter.Node, source []byte) (core.Marker, bool) {
	if decorator.NamedChildCount() == 0 {
		return core.Marker{}, false
	}
	expr := decorator.NamedChild(0)
	switch expr.Kind() {
	case "identifier":
		name := textOf(source, expr)
		if !recognizedMarkers[name] {
			return core.Marker{}, false
		}
		return core.Marker{Name: name, Args: core.MarkerArgs{Kwargs: map[string]core.MarkerValue{}}}, true
	case "attribute":
		name := textOf(source, expr.ChildByFieldName("attribute"))
		if !recognizedMarkers[name] {
			return core.Marker{}, false
		}
		return core.Marker{Name: name, Args: core.MarkerArgs{Kwargs: map[string]core.MarkerValue{}}}, true
	case "call":
		return parseCallDecorator(expr, source)
	default:
		return core.Marker{}, false
	}
}

func parseCallDecorator(call *tree_sitter.Node, source []byte) (core.Marker, bool) {
	fn := call.ChildByFieldName("function")
	var name string
	switch {
	case fn == nil:
		return core.Marker{}, false
	case fn.Kind() == "identifier":
		name = textOf(source, fn)
	case fn.Kind() == "attribute":
		name = textOf(source, fn.ChildByFieldName("attribute"))
	default:
		return core.Marker{}, false
	}
	if !recognizedMarkers[name] {
		return core.Marker{}, false
	}

	args := core.MarkerArgs{Kwargs: map[string]core.MarkerValue{}}
	argList := call.ChildByFieldName("arguments")
	if argList != nil {
		for i := uint(0); i < argList.NamedChildCount(); i++ {
			arg := argList.NamedChild(i)
			if arg.Kind() == "keyword_argument" {
				key := textOf(source, arg.ChildByFieldName("name"))
				value, ok := parseValue(arg.ChildByFieldName("value"), source)
				if !ok {
					continue
				}
				if key == "reason" && value.Kind == core.MarkerString {
					reason := value.Str
					args.Reason = &reason
				} else {
					args.Kwargs[key] = value
				}
				continue
			}
			// Positional argument: only meaningful for @skip("reason").
			if value, ok := parseValue(arg, source); ok && value.Kind == core.MarkerString && args.Reason == nil {
				reason := value.Str
				args.Reason = &reason
			}
		}
	}
	return core.Marker{Name: name, Args: args}, true
}

func parseValue(node *tree_sitter.Node, source []byte) (core.MarkerValue, bool) {
	if node == nil {
		return core.MarkerValue{}, false
	}
	switch node.Kind() {
	case "string":
		return core.MarkerValue{Kind: core.MarkerString, Str: stringLiteralContents(source, node)}, true
	case "true":
		return core.MarkerValue{Kind: core.MarkerBool, Bool: true}, true
	case "false":
		return core.MarkerValue{Kind: core.MarkerBool, Bool: false}, true
	case "integer":
		n, err := strconv.ParseInt(textOf(source, node), 0, 64)
		if err != nil {
			return core.MarkerValue{}, false
		}
		return core.MarkerValue{Kind: core.MarkerInt, Int: n}, true
	case "float":
		f, err := strconv.ParseFloat(textOf(source, node), 64)
		if err != nil {
			return core.MarkerValue{}, false
		}
		return core.MarkerValue{Kind: core.MarkerFloat, Float: f}, true
	case "list":
		var items []string
		for i := uint(0); i < node.NamedChildCount(); i++ {
			if v, ok := parseValue(node.NamedChild(i), source); ok && v.Kind == core.MarkerString {
				items = append(items, v.Str)
			}
		}
		if len(items) == 0 {
			return core.MarkerValue{}, false
		}
		return core.MarkerValue{Kind: core.MarkerList, List: items}, true
	default:
		return core.MarkerValue{}, false
	}
}

// stringLiteralContents strips the surrounding quote characters from a Python
// string node's raw text. Good enough for the plain single/double-quoted
// literals markers are written with; it does not handle f-strings or escapes.
func stringLiteralContents(source []byte, node *tree_sitter.Node) string {
	raw := textOf(source, node)
	raw = strings.Trim(raw, "\"'")
	return raw
}
