package database

import (
	"testing"

	"foundry/shared/interfaces"

	"github.com/stretchr/testify/assert"
)

func TestBuildListQuery_Plain(t *testing.T) {
	sql, args := buildListQuery("topics", interfaces.DocumentQuery{})
	assert.Equal(t, "SELECT body FROM documents WHERE container = $1 ORDER BY id", sql)
	assert.Equal(t, []any{"topics"}, args)
}

func TestBuildListQuery_AllFilters(t *testing.T) {
	sql, args := buildListQuery("news", interfaces.DocumentQuery{
		ArrayContains: []interfaces.FieldValue{{Field: "platformIds", Value: "edge"}, {Field: "topics", Value: "ai"}},
		NotEqual:      []interfaces.FieldValue{{Field: "status", Value: "unsubscribed"}},
		OrderBy:       "createdAt",
		Descending:    true,
		Limit:         50,
	})

	assert.Equal(t, "SELECT body FROM documents WHERE container = $1"+
		" AND body @> jsonb_build_object($2::text, jsonb_build_array($3::text))"+
		" AND body @> jsonb_build_object($4::text, jsonb_build_array($5::text))"+
		" AND coalesce(body->>$6::text, '') <> $7::text"+
		" ORDER BY body->>$8::text DESC, id"+
		" LIMIT $9", sql)
	assert.Equal(t, []any{"news", "platformIds", "edge", "topics", "ai", "status", "unsubscribed", "createdAt", 50}, args)
}

func TestBuildListQuery_UserInputNeverInlined(t *testing.T) {
	sql, _ := buildListQuery("news", interfaces.DocumentQuery{
		ArrayContains: []interfaces.FieldValue{{Field: "platformIds", Value: "x'; DROP TABLE documents; --"}},
	})
	assert.NotContains(t, sql, "DROP")
}
