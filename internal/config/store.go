package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/conformity/internal/ir"
	"github.com/roach88/conformity/internal/store"
)

var (
	// ErrConfigNotFound is returned when a config id does not exist.
	ErrConfigNotFound = errors.New("config not found")

	// ErrVersionConflict is returned by Update when the caller's version is
	// stale.
	ErrVersionConflict = errors.New("config version conflict")

	// ErrUnknownPreset is returned for a preset name not in PresetNames.
	ErrUnknownPreset = errors.New("unknown preset")

	// ErrUnknownTemplate is returned for a template id not in Templates.
	ErrUnknownTemplate = errors.New("unknown template")

	// ErrDefaultConfig is returned when writing to a built-in default id.
	ErrDefaultConfig = errors.New("built-in default config is read-only")
)

// Repository persists configs. *store.Store implements it.
type Repository interface {
	PutConfig(ctx context.Context, cfg ir.OrganizationConfig) error
	GetConfig(ctx context.Context, id string) (ir.OrganizationConfig, error)
	DeleteConfig(ctx context.Context, id string) error
	ListConfigs(ctx context.Context, f store.Filter) ([]ir.OrganizationConfig, error)
	ActiveConfig(ctx context.Context, orgID string) (ir.OrganizationConfig, error)
}

// Ref selects the config for an analysis. An empty ConfigID means the
// organization's active config, or its built-in default.
type Ref struct {
	OrganizationID string `json:"organizationId"`
	ConfigID       string `json:"configId,omitempty"`
}

// Store implements the config CRUD contract on top of a Repository.
// Every write re-validates the whole config.
type Store struct {
	repo   Repository
	hooks  HookRegistry
	newID  func() string
	now    func() time.Time
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHooks makes writes warn about custom rules naming unknown hooks.
func WithHooks(h HookRegistry) StoreOption {
	return func(s *Store) { s.hooks = h }
}

// WithIDGenerator overrides the UUIDv7 config id generator.
func WithIDGenerator(f func() string) StoreOption {
	return func(s *Store) { s.newID = f }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store backed by repo.
func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{
		repo: repo,
		newID: func() string {
			return uuid.Must(uuid.NewV7()).String()
		},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and persists a new config with version 1. An empty id is
// assigned. An active config deactivates the organization's others.
func (s *Store) Create(ctx context.Context, cfg ir.OrganizationConfig) (ir.OrganizationConfig, error) {
	cfg = cfg.Clone()
	if cfg.ID == "" {
		cfg.ID = s.newID()
	}
	if strings.HasPrefix(cfg.ID, DefaultIDPrefix) {
		return ir.OrganizationConfig{}, fmt.Errorf("create config %q: %w", cfg.ID, ErrDefaultConfig)
	}

	now := s.now().UTC()
	cfg.Version = 1
	cfg.IsDefault = false
	cfg.CreatedAt = &now
	cfg.UpdatedAt = &now

	if err := s.put(ctx, cfg); err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("create config %q: %w", cfg.ID, err)
	}
	s.logger.Info("config created", "config_id", cfg.ID, "organization_id", cfg.OrganizationID)
	return cfg.Clone(), nil
}

// Update replaces an existing config and bumps its version. A non-zero
// cfg.Version must equal the stored version (ErrVersionConflict otherwise).
func (s *Store) Update(ctx context.Context, cfg ir.OrganizationConfig) (ir.OrganizationConfig, error) {
	existing, err := s.get(ctx, cfg.ID)
	if err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("update config: %w", err)
	}
	if cfg.Version != 0 && cfg.Version != existing.Version {
		return ir.OrganizationConfig{}, fmt.Errorf("update config %q: have version %d, stored %d: %w",
			cfg.ID, cfg.Version, existing.Version, ErrVersionConflict)
	}

	cfg = cfg.Clone()
	now := s.now().UTC()
	cfg.Version = existing.Version + 1
	cfg.CreatedAt = existing.CreatedAt
	cfg.UpdatedAt = &now
	cfg.IsDefault = existing.IsDefault

	if err := s.put(ctx, cfg); err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("update config %q: %w", cfg.ID, err)
	}
	s.logger.Info("config updated", "config_id", cfg.ID, "version", cfg.Version)
	return cfg.Clone(), nil
}

// Delete removes a config.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteConfig(ctx, id); err != nil {
		return fmt.Errorf("delete config: %w", mapNotFound(err))
	}
	s.logger.Info("config deleted", "config_id", id)
	return nil
}

// Duplicate copies a config under a new id. The copy is inactive, not
// default and at version 1. An empty newName appends " (copy)".
func (s *Store) Duplicate(ctx context.Context, id, newName string) (ir.OrganizationConfig, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("duplicate config: %w", err)
	}

	dup := src.Clone()
	dup.ID = ""
	dup.IsActive = false
	dup.Name = newName
	if dup.Name == "" {
		dup.Name = src.Name + " (copy)"
	}
	return s.Create(ctx, dup)
}

// ApplyTemplate creates an inactive config for orgID from a built-in
// template. An empty name uses the template's.
func (s *Store) ApplyTemplate(ctx context.Context, orgID, templateID, name string) (ir.OrganizationConfig, error) {
	t, ok := LookupTemplate(templateID)
	if !ok {
		return ir.OrganizationConfig{}, fmt.Errorf("apply template %q: %w", templateID, ErrUnknownTemplate)
	}
	if name == "" {
		name = t.Name
	}
	return s.Create(ctx, ir.OrganizationConfig{
		OrganizationID: orgID,
		Name:           name,
		Description:    t.Description,
		Parameters:     t.Parameters,
		Rules:          t.Rules,
		Preset:         t.Preset,
	})
}

// ApplyPreset overwrites a stored config's weights with a built-in preset.
func (s *Store) ApplyPreset(ctx context.Context, id, presetName string) (ir.OrganizationConfig, error) {
	weights, ok := Preset(presetName)
	if !ok {
		return ir.OrganizationConfig{}, fmt.Errorf("apply preset %q: %w", presetName, ErrUnknownPreset)
	}
	cfg, err := s.get(ctx, id)
	if err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("apply preset %q: %w", presetName, err)
	}

	cfg = ApplyPreset(cfg, weights)
	cfg.Preset = strings.ToUpper(presetName)
	return s.Update(ctx, cfg)
}

// Activate makes id the organization's active config. The config must pass
// validation as an active config.
func (s *Store) Activate(ctx context.Context, id string) (ir.OrganizationConfig, error) {
	cfg, err := s.get(ctx, id)
	if err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("activate config: %w", err)
	}
	cfg.IsActive = true
	return s.Update(ctx, cfg)
}

// Get returns the config with the given id. Built-in default ids
// ("default:<org>") resolve without touching the repository.
func (s *Store) Get(ctx context.Context, id string) (ir.OrganizationConfig, error) {
	if orgID, ok := strings.CutPrefix(id, DefaultIDPrefix); ok {
		return DefaultConfig(orgID), nil
	}
	return s.get(ctx, id)
}

// List returns stored configs matching f.
func (s *Store) List(ctx context.Context, f store.Filter) ([]ir.OrganizationConfig, error) {
	cfgs, err := s.repo.ListConfigs(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	return cfgs, nil
}

// Resolve selects the config for an analysis: the explicit id, else the
// organization's active config, else the built-in default.
func (s *Store) Resolve(ctx context.Context, ref Ref) (ir.OrganizationConfig, error) {
	if ref.ConfigID != "" {
		cfg, err := s.Get(ctx, ref.ConfigID)
		if err != nil {
			return ir.OrganizationConfig{}, fmt.Errorf("resolve config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := s.repo.ActiveConfig(ctx, ref.OrganizationID)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultConfig(ref.OrganizationID), nil
	}
	if err != nil {
		return ir.OrganizationConfig{}, fmt.Errorf("resolve config: %w", err)
	}
	return cfg, nil
}

// Validate runs validation with the store's hook registry.
func (s *Store) Validate(cfg ir.OrganizationConfig) Report {
	return validate(cfg, s.hooks)
}

func (s *Store) get(ctx context.Context, id string) (ir.OrganizationConfig, error) {
	if strings.HasPrefix(id, DefaultIDPrefix) {
		return ir.OrganizationConfig{}, fmt.Errorf("config %q: %w", id, ErrDefaultConfig)
	}
	cfg, err := s.repo.GetConfig(ctx, id)
	if err != nil {
		return ir.OrganizationConfig{}, mapNotFound(err)
	}
	return cfg, nil
}

func (s *Store) put(ctx context.Context, cfg ir.OrganizationConfig) error {
	report := validate(cfg, s.hooks)
	for _, w := range report.Warnings {
		s.logger.Warn("config validation warning",
			"config_id", cfg.ID,
			"code", w.Code,
			"field", w.Field,
			"message", w.Message,
		)
	}
	if !report.Valid {
		return &ValidationFailedError{Errors: report.Errors}
	}
	return s.repo.PutConfig(ctx, cfg)
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrConfigNotFound, err)
	}
	return err
}
