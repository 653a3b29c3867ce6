package cachedir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProjectHashIsStableAndSixteenChars(t *testing.T) {
	a := projectHash("/home/alice/proj")
	b := projectHash("/home/alice/proj")
	c := projectHash("/home/alice/other")
	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestInfoOnMissingDirReportsNotExists(t *testing.T) {
	stats := Info()
	if !stats.Exists {
		assert.Equal(t, uint64(0), stats.SizeBytes)
		assert.Equal(t, 0, stats.FileCount)
	}
}
