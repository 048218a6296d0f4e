package normalizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDateFormat(t *testing.T) {
	t.Run("iso samples pick iso", func(t *testing.T) {
		format := ResolveDateFormat([]string{"2024-01-15", "2024-01-16", "2024-01-17"})
		assert.Equal(t, "2006-01-02", format)
	})

	t.Run("two samples lower the threshold", func(t *testing.T) {
		format := ResolveDateFormat([]string{"01/15/2024", "01/16/2024"})
		assert.Equal(t, "01/02/2006", format)
	})

	t.Run("list order breaks format ambiguity", func(t *testing.T) {
		// 01/02 values parse as both US and European slash formats;
		// the US variant is listed first and wins
		format := ResolveDateFormat([]string{"01/02/2024", "03/04/2024", "05/06/2024"})
		assert.Equal(t, "01/02/2006", format)
	})

	t.Run("unambiguous european dates", func(t *testing.T) {
		format := ResolveDateFormat([]string{"15/01/2024", "16/01/2024", "17/01/2024"})
		assert.Equal(t, "02/01/2006", format)
	})

	t.Run("no winner returns empty", func(t *testing.T) {
		assert.Equal(t, "", ResolveDateFormat([]string{"yesterday", "last week", "soon"}))
	})

	t.Run("empty samples return empty", func(t *testing.T) {
		assert.Equal(t, "", ResolveDateFormat(nil))
	})
}

func TestParseDate(t *testing.T) {
	t.Run("resolved format tried first", func(t *testing.T) {
		got, err := ParseDate("03/04/2024", "02/01/2006")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.April, 3, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("falls back to candidate list", func(t *testing.T) {
		got, err := ParseDate("2024-01-15", "02/01/2006")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("malformed date", func(t *testing.T) {
		_, err := ParseDate("not a date", "")
		var malformed *MalformedDateError
		assert.ErrorAs(t, err, &malformed)
	})

	t.Run("empty string", func(t *testing.T) {
		_, err := ParseDate("  ", "2006-01-02")
		assert.Error(t, err)
	})
}
