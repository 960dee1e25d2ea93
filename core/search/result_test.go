package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	short := "Vehicles shall not exceed the posted limit."
	assert.Equal(t, short, snippet(short))

	// Three-byte runes that straddle the cut point must not be split.
	long := strings.Repeat("속", 100)
	got := snippet(long)
	assert.LessOrEqual(t, len(got), maxSnippetLen)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 0, len(got)%3)
}
