// Package store provides SQLite-backed storage for organization configs.
//
// The store keeps:
//   - organization_configs: the current version of every config
//   - config_versions: every version ever written, for audit
//
// # Invariants
//
// At most one config per organization is active. A partial UNIQUE index
// enforces it; PutConfig deactivates the organization's other configs in
// the same transaction when it writes an active config.
//
// Listing order is deterministic: organization_id, then insertion seq,
// then id. Config bodies are stored as canonical JSON (ir.MarshalCanonical)
// so identical configs produce identical bytes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
//   - foreign_keys=ON
package store
