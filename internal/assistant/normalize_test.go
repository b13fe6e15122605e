package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeActions(t *testing.T) {
	items := []any{
		"not an object",
		nil,
		[]any{"nested"},
		map[string]any{"value": "{}"},
		map[string]any{"type": "   ", "value": "{}"},
		map[string]any{"type": "news.delete", "id": "  "},
		map[string]any{"type": "news.delete", "id": 42},
		map[string]any{"type": " topic.delete ", "id": " ai "},
		map[string]any{"type": "platform.upsert", "value": map[string]any{"id": "p", "name": "P"}},
		map[string]any{"type": "config.merge", "value": `"{\"siteName\":\"Foundry\"}"`},
		map[string]any{"type": "config.merge", "value": "null"},
		map[string]any{"type": "news.upsert", "value": "not json"},
		map[string]any{"type": "news.upsert", "value": ""},
		map[string]any{"type": "news.upsert"},
		map[string]any{"type": "news.upsert", "value": 5},
		map[string]any{"type": "media.generate", "value": []any{1, 2}},
	}

	got := NormalizeActions(items)

	assert.Equal(t, []Action{
		ContentDelete{Kind: KindTopic, ID: "ai"},
		ContentUpsert{Kind: KindPlatform, Value: map[string]any{"id": "p", "name": "P"}},
		ConfigMerge{Patch: map[string]any{"siteName": "Foundry"}},
		ConfigMerge{Patch: nil},
		ContentUpsert{Kind: KindNews, Value: "not json"},
		MediaGenerate{Value: []any{1, 2}},
	}, got)
}

func TestNormalizeActions_EmptyInput(t *testing.T) {
	got := NormalizeActions(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseActionValue(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"object", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"array", `[1,"x"]`, []any{float64(1), "x"}},
		{"number", `12`, float64(12)},
		{"double encoded object", `"{\"a\":1}"`, map[string]any{"a": float64(1)}},
		{"double encoded array", `" [true] "`, []any{true}},
		{"plain json string", `"hello"`, "hello"},
		{"double encoded but broken", `"{not json}"`, "{not json}"},
		{"string that only starts like an object", `"{bad"`, "{bad"},
		{"not json at all", `hello world`, "hello world"},
		{"null", `null`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseActionValue(tt.in))
		})
	}
}

func TestAction_Type(t *testing.T) {
	assert.Equal(t, TypeConfigMerge, ConfigMerge{}.Type())
	assert.Equal(t, TypePlatformUpsert, ContentUpsert{Kind: KindPlatform}.Type())
	assert.Equal(t, TypeTopicDelete, ContentDelete{Kind: KindTopic}.Type())
	assert.Equal(t, TypeMediaGenerate, MediaGenerate{}.Type())
	assert.Equal(t, "page.publish", Unsupported{RawType: "page.publish"}.Type())
}
