package core

import "fmt"

// TestId identifies a test independent of its current line number, so cosmetic
// edits elsewhere in the file don't change which dependency row it maps to.
type TestId struct {
	SourcePath string
	Function   string
	// Class is empty when the test is a bare module-level function.
	Class string
}

// Key returns a stable string encoding used as a map key in the dependency database.
func (id TestId) Key() string {
	return fmt.Sprintf("%s\x00%s\x00%s", id.SourcePath, id.Class, id.Function)
}

func (id TestId) String() string {
	if id.Class == "" {
		return fmt.Sprintf("%s::%s", id.SourcePath, id.Function)
	}
	return fmt.Sprintf("%s::%s::%s", id.SourcePath, id.Class, id.Function)
}

// TestItem is one discovered test: its identity, the line it currently starts on
// (informational only, never part of identity), and any markers attached to it.
type TestItem struct {
	ID      TestId
	Line    int
	Markers []Marker
}

// ClassPtr returns a pointer to Class, or nil if the test has none. Convenience
// for callers that want to mirror the optional-class shape described by the spec.
func (t TestItem) ClassPtr() *string {
	if t.ID.Class == "" {
		return nil
	}
	c := t.ID.Class
	return &c
}
