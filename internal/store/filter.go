package store

import (
	"strings"
)

// Filter selects configs in ListConfigs. Zero fields do not filter.
type Filter struct {
	OrganizationID string
	ActiveOnly     bool
	// Search is a case-insensitive substring of the config name.
	Search string
	Limit  int
}

// compileFilter converts a Filter to parameterized SQL.
//
// Every query includes ORDER BY with a deterministic tiebreaker, and all
// values are parameterized, never interpolated.
func compileFilter(f Filter) (string, []any) {
	var (
		where  []string
		params []any
	)

	if f.OrganizationID != "" {
		where = append(where, "organization_id = ?")
		params = append(params, f.OrganizationID)
	}
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if f.Search != "" {
		where = append(where, `LOWER(name) LIKE ? ESCAPE '\'`)
		params = append(params, "%"+escapeLike(strings.ToLower(f.Search))+"%")
	}

	var b strings.Builder
	b.WriteString("SELECT body FROM organization_configs")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY organization_id ASC, seq ASC, id ASC COLLATE BINARY")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, f.Limit)
	}

	return b.String(), params
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
