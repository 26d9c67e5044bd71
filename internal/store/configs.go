package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/conformity/internal/ir"
)

// ErrNotFound is returned when a config does not exist.
var ErrNotFound = errors.New("config not found")

// PutConfig inserts or replaces a config and records its version in
// config_versions. Writing an active config deactivates every other config
// of the same organization in the same transaction.
//
// The insertion seq of an existing config is preserved on replace.
func (s *Store) PutConfig(ctx context.Context, cfg ir.OrganizationConfig) error {
	body, err := marshalConfig(cfg)
	if err != nil {
		return fmt.Errorf("put config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put config: begin: %w", err)
	}
	defer tx.Rollback()

	if cfg.IsActive {
		if err := deactivateOthers(ctx, tx, cfg.OrganizationID, cfg.ID); err != nil {
			return fmt.Errorf("put config: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_configs
		(id, organization_id, name, is_active, is_default, version, body, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM organization_configs))
		ON CONFLICT(id) DO UPDATE SET
			organization_id = excluded.organization_id,
			name = excluded.name,
			is_active = excluded.is_active,
			is_default = excluded.is_default,
			version = excluded.version,
			body = excluded.body
	`,
		cfg.ID,
		cfg.OrganizationID,
		cfg.Name,
		cfg.IsActive,
		cfg.IsDefault,
		cfg.Version,
		body,
	)
	if err != nil {
		return fmt.Errorf("put config %q: %w", cfg.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO config_versions (config_id, version, body)
		VALUES (?, ?, ?)
		ON CONFLICT(config_id, version) DO UPDATE SET body = excluded.body
	`, cfg.ID, cfg.Version, body)
	if err != nil {
		return fmt.Errorf("put config %q: record version: %w", cfg.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put config %q: commit: %w", cfg.ID, err)
	}
	return nil
}

// deactivateOthers clears is_active on the organization's other configs,
// rewriting their stored bodies to match.
func deactivateOthers(ctx context.Context, tx *sql.Tx, orgID, keepID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT body FROM organization_configs
		WHERE organization_id = ? AND is_active = 1 AND id != ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, orgID, keepID)
	if err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}

	var others []ir.OrganizationConfig
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			rows.Close()
			return fmt.Errorf("deactivate: scan: %w", err)
		}
		cfg, err := unmarshalConfig(body)
		if err != nil {
			rows.Close()
			return fmt.Errorf("deactivate: %w", err)
		}
		others = append(others, cfg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("deactivate: %w", err)
	}
	rows.Close()

	for _, cfg := range others {
		cfg.IsActive = false
		body, err := marshalConfig(cfg)
		if err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE organization_configs SET is_active = 0, body = ? WHERE id = ?
		`, body, cfg.ID); err != nil {
			return fmt.Errorf("deactivate %q: %w", cfg.ID, err)
		}
	}
	return nil
}

// GetConfig returns the config with the given id, or ErrNotFound.
func (s *Store) GetConfig(ctx context.Context, id string) (ir.OrganizationConfig, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM organization_configs WHERE id = ?
	`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.OrganizationConfig{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("get config %q: %w", id, err)
	}
	return unmarshalConfig(body)
}

// ActiveConfig returns the organization's active config, or ErrNotFound.
func (s *Store) ActiveConfig(ctx context.Context, orgID string) (ir.OrganizationConfig, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM organization_configs
		WHERE organization_id = ? AND is_active = 1
	`, orgID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.OrganizationConfig{}, fmt.Errorf("%w: no active config for organization %s", ErrNotFound, orgID)
	}
	if err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("active config %q: %w", orgID, err)
	}
	return unmarshalConfig(body)
}

// DeleteConfig removes a config. Its version history is kept.
func (s *Store) DeleteConfig(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM organization_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete config %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete config %q: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ListConfigs returns the configs matching f in deterministic order.
func (s *Store) ListConfigs(ctx context.Context, f Filter) ([]ir.OrganizationConfig, error) {
	query, params := compileFilter(f)
	return s.queryConfigs(ctx, query, params...)
}

// ConfigHistory returns every recorded version of a config, oldest first.
func (s *Store) ConfigHistory(ctx context.Context, id string) ([]ir.OrganizationConfig, error) {
	return s.queryConfigs(ctx, `
		SELECT body FROM config_versions
		WHERE config_id = ?
		ORDER BY version ASC
	`, id)
}

func (s *Store) queryConfigs(ctx context.Context, query string, args ...any) ([]ir.OrganizationConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query configs: %w", err)
	}
	defer rows.Close()

	var out []ir.OrganizationConfig
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("query configs: scan: %w", err)
		}
		cfg, err := unmarshalConfig(body)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query configs: %w", err)
	}
	return out, nil
}
