package models

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TokensPerChar is the rough chars-to-tokens ratio used for every budget in the system
const TokensPerChar = 0.25

// HashContent returns the hex sha256 digest of content
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// EstimateTokens approximates the token count of text as length * 0.25, rounded up
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len(text)) * TokensPerChar))
}

// TruncateUTF8 returns the longest prefix of s that fits in maxBytes and ends
// on a rune boundary
func TruncateUTF8(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	if maxBytes < 0 {
		maxBytes = 0
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// CanonicalPair orders two ids so {a,b} and {b,a} produce the same key
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID, string) {
	if a.String() > b.String() {
		a, b = b, a
	}
	return a, b, a.String() + ":" + b.String()
}
