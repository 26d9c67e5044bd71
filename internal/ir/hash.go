package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainText     = "conformity/text/v1"
	DomainConfig   = "conformity/config/v1"
	DomainCacheKey = "conformity/cache-key/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TextFingerprint identifies document text by content.
// Texts that differ only in Unicode normalization form share a fingerprint.
func TextFingerprint(text string) string {
	return hashWithDomain(DomainText, []byte(norm.NFC.String(text)))
}

// ConfigFingerprint identifies the scoring-relevant content of a config:
// its identity, version, parameters and rules. Timestamps and activation
// flags are excluded.
func ConfigFingerprint(cfg OrganizationConfig) (string, error) {
	obj := map[string]any{
		"id":         cfg.ID,
		"version":    cfg.Version,
		"parameters": cfg.Parameters,
		"rules":      cfg.Rules,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ConfigFingerprint: %w", err)
	}
	return hashWithDomain(DomainConfig, canonical), nil
}

// CacheKey computes the content cache key of an analysis: identical text,
// effective config and classification map to the same key.
func CacheKey(textFingerprint, configFingerprint string, cls Classification) (string, error) {
	obj := map[string]any{
		"text":           textFingerprint,
		"config":         configFingerprint,
		"classification": cls,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CacheKey: %w", err)
	}
	return hashWithDomain(DomainCacheKey, canonical), nil
}
