// Package identity computes content fingerprints for dedup and
// write-verification decisions.
package identity

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is a pair of independent digests over one payload. Two
// algorithms are computed so a collision or truncation bug in one cannot
// silently corrupt a dedup decision; parity of both is required for two
// payloads to be treated as byte-identical.
type Fingerprint struct {
	Primary   string // sha256
	Secondary string // sha1
}

// Identify hashes the payload. Pure and deterministic.
func Identify(data []byte) Fingerprint {
	primary := sha256.Sum256(data)
	secondary := sha1.Sum(data)
	return Fingerprint{
		Primary:   hex.EncodeToString(primary[:]),
		Secondary: hex.EncodeToString(secondary[:]),
	}
}

// Matches reports full parity between two fingerprints.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.Primary == other.Primary && f.Secondary == other.Secondary
}

// Zero reports whether the fingerprint is unset.
func (f Fingerprint) Zero() bool {
	return f.Primary == "" && f.Secondary == ""
}
