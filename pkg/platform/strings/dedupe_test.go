package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	t.Run("trims, drops empties and keeps first occurrence order", func(t *testing.T) {
		got := DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
		assert.Equal(t, []string{"foo", "bar"}, got)
	})

	t.Run("empty input is returned as-is", func(t *testing.T) {
		assert.Empty(t, DedupeAndTrim(nil))
	})
}

func TestDedupePaths(t *testing.T) {
	t.Run("expands home and cleans", func(t *testing.T) {
		got := DedupePaths([]string{"~/Pictures/", "/home/u/Pictures", " /tmp/shots/../shots ", ""}, "/home/u")
		assert.Equal(t, []string{"/home/u/Pictures", "/tmp/shots"}, got)
	})

	t.Run("tilde left alone without home", func(t *testing.T) {
		got := DedupePaths([]string{"~/Desktop"}, "")
		assert.Equal(t, []string{"~/Desktop"}, got)
	})
}
