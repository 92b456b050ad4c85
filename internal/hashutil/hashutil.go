// Package hashutil provides the content and code digests used across
// MFP: manifest invalidation, cache keys, and deterministic-output
// tests.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SourceHash returns the SHA256 digest of raw swagger document bytes.
func SourceHash(raw []byte) [32]byte {
	return sha256.Sum256(raw)
}

// HexString renders a digest as lowercase hex, the form stored in
// Manifest.SwaggerHash and ServerSpec.SourceHashHex.
func HexString(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}

// NormalizeCode canonicalizes a code snippet into the form used as a
// cache key: trailing whitespace stripped per line, blank lines
// dropped, leading/trailing blank lines stripped, line endings
// normalized to "\n". Comment and semantic stripping are deliberately
// not performed.
func NormalizeCode(code string) string {
	code = strings.ReplaceAll(code, "\r\n", "\n")
	code = strings.ReplaceAll(code, "\r", "\n")
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// CodeID returns the cache identifier for a snippet: the hex SHA256 of
// its normalized form. Two snippets differing only in whitespace or
// blank lines share an id.
func CodeID(code string) string {
	sum := sha256.Sum256([]byte(NormalizeCode(code)))
	return hex.EncodeToString(sum[:])
}
