package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileFilter_AlwaysOrdered(t *testing.T) {
	filters := []Filter{
		{},
		{OrganizationID: "org"},
		{ActiveOnly: true, Search: "x", Limit: 5},
	}
	for _, f := range filters {
		query, _ := compileFilter(f)
		assert.Contains(t, query, "ORDER BY organization_id ASC, seq ASC, id ASC COLLATE BINARY")
	}
}

func TestCompileFilter_Parameterized(t *testing.T) {
	query, params := compileFilter(Filter{
		OrganizationID: "org'; DROP TABLE organization_configs; --",
		Search:         "Edital",
		Limit:          10,
	})

	assert.NotContains(t, query, "DROP TABLE")
	assert.Equal(t, 3, strings.Count(query, "?"))
	assert.Equal(t, []any{"org'; DROP TABLE organization_configs; --", "%edital%", 10}, params)
}

func TestCompileFilter_NoWhereWhenEmpty(t *testing.T) {
	query, params := compileFilter(Filter{})
	assert.NotContains(t, query, "WHERE")
	assert.Empty(t, params)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%`, escapeLike("50%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\dir`, escapeLike(`c:\dir`))
}
