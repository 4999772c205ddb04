package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	t.Run("removes duplicates and blanks, preserves order", func(t *testing.T) {
		got := DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
		assert.Equal(t, []string{"foo", "bar"}, got)
	})

	t.Run("empty input returned as is", func(t *testing.T) {
		assert.Empty(t, DedupeAndTrim(nil))
	})
}

func TestDedupeAndTrimLower(t *testing.T) {
	got := DedupeAndTrimLower([]string{"Plot_Number", "plot_number", " LAND_EXTENT "})
	assert.Equal(t, []string{"plot_number", "land_extent"}, got)
}
