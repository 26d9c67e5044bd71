package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/conformity/internal/ir"
)

// marshalConfig serializes a config body as canonical JSON.
func marshalConfig(cfg ir.OrganizationConfig) (string, error) {
	data, err := ir.MarshalCanonical(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config %q: %w", cfg.ID, err)
	}
	return string(data), nil
}

// unmarshalConfig deserializes a stored config body.
func unmarshalConfig(body string) (ir.OrganizationConfig, error) {
	var cfg ir.OrganizationConfig
	if err := json.Unmarshal([]byte(body), &cfg); err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
