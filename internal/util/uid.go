package util

import (
	"crypto/sha256"
	"math/big"
)

// uidRoot is the prefix of every generated UID.
const uidRoot = "1.2.826.0.1.3680043.8.498."

// GenerateDeterministicUID derives a DICOM UID from seed. The same seed always
// yields the same UID, which keeps regenerated series stackable together.
func GenerateDeterministicUID(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	n := new(big.Int).SetBytes(sum[:])

	// A UID is at most 64 characters; keep the suffix within the remainder.
	suffix := n.String()
	if limit := 64 - len(uidRoot); len(suffix) > limit {
		suffix = suffix[:limit]
	}
	// Components must not start with a zero.
	if suffix[0] == '0' {
		suffix = "1" + suffix[1:]
	}
	return uidRoot + suffix
}
