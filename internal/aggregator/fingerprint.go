package aggregator

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

// Fingerprint derives a stable identity hash for a raw voter record from
// its identifying fields. Two extractions of the same printed row produce
// the same fingerprint even when incidental fields (gender casing, stray
// whitespace) differ between model responses.
func Fingerprint(rec types.RawVoterRecord) string {
	identifier := strings.TrimSpace(rec.PhotoID)
	if identifier == "" {
		identifier = strings.TrimSpace(rec.SerialNumber)
	}
	parts := []string{
		store.NormalizeName(rec.Name),
		store.NormalizeName(rec.RelativeName),
		strings.ToLower(identifier),
		strings.TrimSpace(rec.Age),
		store.NormalizeName(rec.HouseNumber),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
