package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainEntity = "polystore/entity/v1"
	DomainQuery  = "polystore/query/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a content hash of the entity name and its native
// tree. Two entities with the same name and field set hash equally
// regardless of element order.
func (c *Codec) Fingerprint(e *Entity) (string, error) {
	native, err := c.ToNative(e)
	if err != nil {
		return "", err
	}
	canonical, err := MarshalCanonical(map[string]any{
		"entity": e.name,
		"fields": native,
	})
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", e.name, err)
	}
	return hashWithDomain(DomainEntity, canonical), nil
}

// HashCanonical hashes an arbitrary native tree under the given domain.
func HashCanonical(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}
