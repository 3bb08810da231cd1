package core

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/go-crypt/x/blake2b"
)

// NormalizeHeadline reduces a headline to its dedupe key: lower-cased,
// punctuation stripped, whitespace collapsed. Two headlines with the same
// normalized form are considered the same occurrence.
func NormalizeHeadline(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// CanonicalHash produces a stable hex digest of the canonical JSON encoding
// of v. Struct field order fixes the encoding, so equal values always hash
// equal. Used for analysis cache keys and task dedupe keys.
func CanonicalHash(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		// Only reachable for values that cannot be encoded as JSON, which the
		// key structs never are.
		return ""
	}
	h, _ := blake2b.New(32, nil)
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil))
}
