package blocks

import (
	"fmt"
	"os"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/taut-run/taut/src/core"
)

// DiscoverTests parses path and returns every test function it finds: bare
// module-level functions named test_*, and methods named test_* on classes named
// Test*. Decorators recognized by extractMarkers are attached to the returned
// TestItem.
func (e *Extractor) DiscoverTests(path string) ([]core.TestItem, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	tree := e.parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse error in %s", path)
	}
	defer tree.Close()

	var items []core.TestItem
	root := tree.RootNode()
	for i := uint(0); i < root.NamedChildCount(); i++ {
		node := root.NamedChild(i)
		kind, defNode, _, wrapperNode := classify(node)
		switch kind {
		case "function":
			name := textOf(source, defNode.ChildByFieldName("name"))
			if strings.HasPrefix(name, "test_") {
				items = append(items, core.TestItem{
					ID:      core.TestId{SourcePath: path, Function: name},
					Line:    lineOf(source, defNode.StartByte()),
					Markers: markersFor(wrapperNode, source),
				})
			}
		case "class":
			className := textOf(source, defNode.ChildByFieldName("name"))
			if !strings.HasPrefix(className, "Test") {
				continue
			}
			// The class's own decorator list (e.g. a class-level @parallel) is
			// not part of any block's line range, but it still applies to every
			// test method the class contains.
			classMarkers := markersFor(wrapperNode, source)
			body := defNode.ChildByFieldName("body")
			if body == nil {
				continue
			}
			for j := uint(0); j < body.NamedChildCount(); j++ {
				methodNode := body.NamedChild(j)
				mKind, mDef, _, mWrapper := classify(methodNode)
				if mKind != "function" {
					continue
				}
				methodName := textOf(source, mDef.ChildByFieldName("name"))
				if !strings.HasPrefix(methodName, "test_") {
					continue
				}
				items = append(items, core.TestItem{
					ID:      core.TestId{SourcePath: path, Function: methodName, Class: className},
					Line:    lineOf(source, mDef.StartByte()),
					Markers: mergeMarkers(classMarkers, markersFor(mWrapper, source)),
				})
			}
		}
	}
	return items, nil
}

// mergeMarkers combines class-level and method-level markers into one list,
// method markers first so a method's own decorator takes precedence over the
// class's when a caller looks up the first matching marker by name (e.g.
// SkipReason).
func mergeMarkers(classMarkers, methodMarkers []core.Marker) []core.Marker {
	if len(classMarkers) == 0 {
		return methodMarkers
	}
	if len(methodMarkers) == 0 {
		return classMarkers
	}
	merged := make([]core.Marker, 0, len(classMarkers)+len(methodMarkers))
	merged = append(merged, methodMarkers...)
	merged = append(merged, classMarkers...)
	return merged
}

// markersFor extracts decorators off node if it is a decorated_definition, or
// returns nil otherwise (an undecorated test has no markers).
func markersFor(node *tree_sitter.Node, source []byte) []core.Marker {
	if node.Kind() != "decorated_definition" {
		return nil
	}
	return extractMarkers(node, source)
}
