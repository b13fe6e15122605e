package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	assert.Equal(t, "edge-ai-launch", Slugify("  Edge AI: Launch!! "))
	assert.Equal(t, "", Slugify("Привет"))
	assert.Equal(t, "a-b", Slugify("--a__b--"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc…", Truncate("abcdef", 3))
	assert.Equal(t, "при…", Truncate("привет", 3))
}

func TestUniqueStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, UniqueStrings([]string{"a", "", "b", "a"}))
}

func TestNameCursorRoundTrip(t *testing.T) {
	c := EncodeNameCursor("images/hero.png")
	got, err := DecodeNameCursor(c)
	require.NoError(t, err)
	assert.Equal(t, "images/hero.png", got)

	got, err = DecodeNameCursor("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = DecodeNameCursor("%%%")
	assert.Error(t, err)
}

func TestToMap(t *testing.T) {
	m, err := ToMap(struct {
		ID string `json:"id"`
	}{ID: "global"})
	require.NoError(t, err)
	assert.Equal(t, "global", m["id"])

	m, err = ToMap(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}
