// Package slug derives filesystem- and URL-safe project identifiers from free text.
package slug

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the default budget for a slug including its hash suffix.
const MaxLength = 40

const (
	fallback  = "project"
	hashChars = 6
)

// Make returns a readable slug for value with a short content hash appended.
// A non-empty extra (for example attached file names) is mixed into the hash so
// identical prompts with different attachments get different slugs.
func Make(value, extra string) string {
	return MakeN(value, extra, MaxLength)
}

// MakeN is Make with an explicit length budget.
func MakeN(value, extra string, maxLen int) string {
	base := Slugify(value)
	if base == "" {
		base = fallback
	}

	basis := value
	if extra != "" {
		basis = value + "|" + extra
	}
	sum := sha1.Sum([]byte(basis))
	suffix := "-" + hex.EncodeToString(sum[:])[:hashChars]

	maxBase := maxLen - len(suffix)
	if maxBase < 1 {
		maxBase = 1
	}
	if r := []rune(base); len(r) > maxBase {
		base = strings.TrimRight(string(r[:maxBase]), "-")
		if base == "" {
			base = fallback
		}
	}
	return base + suffix
}

// Slugify lowercases and strips diacritics, keeps letters (including CJK),
// digits, '_' and '-', and collapses whitespace and dash runs into one dash.
func Slugify(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(value))
	if err != nil {
		folded = value
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingDash = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_")
}
