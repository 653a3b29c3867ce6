// Package core holds the data model shared by every other package: block and test
// identities, markers, run decisions and results. It has no dependency on how
// blocks get extracted or tests get executed, so it can be imported everywhere
// without pulling in tree-sitter, msgpack, or process management.
package core

import "fmt"

// BlockKind classifies the syntactic role a Block plays in its source file.
type BlockKind int

// The closed set of block kinds. Represented as an enum rather than an interface
// hierarchy because the set is small and fixed.
const (
	Function BlockKind = iota
	Method
	Class
	TopLevel
	Import
)

func (k BlockKind) String() string {
	switch k {
	case Function:
		return "function"
	case Method:
		return "method"
	case Class:
		return "class"
	case TopLevel:
		return "toplevel"
	case Import:
		return "import"
	default:
		return "unknown"
	}
}

// BlockId identifies a block independent of where it currently sits in the file.
// Line numbers are deliberately excluded from identity: a block that shifts down
// because of an edit elsewhere in the file must keep the same id, or the
// dependency store would see it as deleted-and-recreated and force a needless
// re-run. Line numbers are carried on Block itself as metadata instead.
type BlockId struct {
	SourcePath string
	Kind       BlockKind
	Name       string
}

// Key returns a stable string encoding of the id, used as a map key both in memory
// and in the persisted dependency database.
func (id BlockId) Key() string {
	return fmt.Sprintf("%s\x00%d\x00%s", id.SourcePath, id.Kind, id.Name)
}

// Block is one extracted region of source with its content checksum.
type Block struct {
	ID         BlockId
	StartLine  int
	EndLine    int
	Checksum   string
}

// FileBlocks is the result of extracting one source file: its ordered blocks plus
// a line-to-block index used to map coverage lines back to blocks.
type FileBlocks struct {
	SourcePath  string
	Blocks      []Block
	LineToBlock map[int]int
}

// BlockForLine returns the block covering the given line, if any.
func (fb *FileBlocks) BlockForLine(line int) (Block, bool) {
	idx, ok := fb.LineToBlock[line]
	if !ok {
		return Block{}, false
	}
	return fb.Blocks[idx], true
}

// BuildLineIndex populates LineToBlock from Blocks. The last block assigned to a
// line wins on overlap, which only occurs with malformed input.
func (fb *FileBlocks) BuildLineIndex() {
	fb.LineToBlock = make(map[int]int)
	for idx, b := range fb.Blocks {
		for line := b.StartLine; line <= b.EndLine; line++ {
			fb.LineToBlock[line] = idx
		}
	}
}
