package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/conformity/internal/ir"
)

// createTestStore creates a new on-disk store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestConfig creates a config with minimal required fields.
func createTestConfig(id, orgID, name string, active bool) ir.OrganizationConfig {
	return ir.OrganizationConfig{
		ID:             id,
		OrganizationID: orgID,
		Name:           name,
		Description:    "test configuration",
		Parameters: []ir.Parameter{
			{ID: "legal", Name: "Legal", Category: ir.CategoryLegal, ValueType: ir.ValueNumber, Weight: 50, Enabled: true},
			{ID: "formal", Name: "Formal", Category: ir.CategoryFormal, ValueType: ir.ValueNumber, Weight: 50, Enabled: true},
		},
		Rules: []ir.Rule{
			{
				ID:       "objeto",
				Name:     "Objeto",
				Category: ir.CategoryLegal,
				Check:    ir.AnyKeyword{Keywords: []string{"objeto"}},
				Severity: ir.SeverityHigh,
				Enabled:  true,
			},
		},
		IsActive: active,
		Version:  1,
	}
}
