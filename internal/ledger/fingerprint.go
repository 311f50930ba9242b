package ledger

import (
	"fmt"
	"hash/fnv"
)

// diffSampleLimit bounds how many positions DiffMagnitude inspects. Above
// this size the comparison walks the strings at a fixed stride derived from
// the shorter length, so a given pair of lengths always samples the same
// positions.
const diffSampleLimit = 4096

// Fingerprint returns a cheap, deterministic token for change detection.
// It is not a cryptographic hash and does not need to be collision free;
// equal tokens mean "no change worth saving". The empty string is valid
// input and yields a stable token.
func Fingerprint(content string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return fmt.Sprintf("fp1-%016x-%x", h.Sum64(), len(content))
}

// DiffMagnitude approximates how much changed between two strings. It is 0
// iff the strings agree at every sampled position and have equal length.
// Small inputs are compared in full; large inputs are sampled, with each
// sampled mismatch counted at stride weight.
func DiffMagnitude(oldContent, newContent string) int {
	if oldContent == newContent {
		return 0
	}
	n := len(oldContent)
	if len(newContent) < n {
		n = len(newContent)
	}
	magnitude := len(oldContent) + len(newContent) - 2*n
	stride := 1
	if n > diffSampleLimit {
		stride = (n + diffSampleLimit - 1) / diffSampleLimit
	}
	for i := 0; i < n; i += stride {
		if oldContent[i] != newContent[i] {
			magnitude += stride
		}
	}
	return magnitude
}
