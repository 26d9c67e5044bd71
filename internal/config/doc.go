// Package config implements the configuration store: validation,
// normalization, presets, templates, the built-in default config and the
// CRUD operations organizations use to manage their scoring configs.
//
// Validate, Normalize and ApplyPreset are pure functions over
// ir.OrganizationConfig values. Store layers persistence on a Repository
// (internal/store) and re-validates the whole config on every write.
//
// Config resolution for an analysis follows a fixed order:
//
//  1. an explicit config id
//  2. the organization's active config
//  3. the built-in default ("default:<organization>")
package config
