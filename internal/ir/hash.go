package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainTraversal prefixes traversal fingerprints.
const DomainTraversal = "tinkergo/traversal/v1"

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null byte prevents boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a stable content hash of v under the given domain.
func Fingerprint(domain string, v IRValue) string {
	return hashWithDomain(domain, appendCanonical(nil, v))
}
