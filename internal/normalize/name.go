package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/spotmatch/internal/debug"
)

// Mode selects how aggressively a spot name is canonicalized.
type Mode int

const (
	// ModeIdentity drops the stop words and is used for identity comparison.
	ModeIdentity Mode = iota
	// ModeFallback keeps every token and is used for substring and alias matching.
	ModeFallback
)

func (m Mode) String() string {
	if m == ModeFallback {
		return "fallback"
	}
	return "identity"
}

// stopWords are generic Spanish/English beach words that carry no identity.
// Directional words such as "north" or "south" must never be added here.
var stopWords = map[string]bool{
	"playa": true,
	"de":    true,
	"la":    true,
	"el":    true,
	"del":   true,
	"los":   true,
	"las":   true,
	"beach": true,
}

// IsStopWord reports whether token is removed in identity mode.
func IsStopWord(token string) bool {
	return stopWords[token]
}

// Name canonicalizes a free-text spot label for comparison.
// Blank input normalizes to the empty string.
func Name(raw string, mode Mode) string {
	return NameDebug(false, raw, mode)
}

// NameDebug canonicalizes a spot label with optional debug output
func NameDebug(localDebug bool, raw string, mode Mode) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := strings.ToLower(Fold(raw))
	s = stripPunctuation(s)
	debug.DebugOutput(localDebug, "After punctuation removal: %q", s)

	tokens := strings.Fields(s)
	if mode == ModeIdentity {
		kept := tokens[:0]
		for _, token := range tokens {
			if !stopWords[token] {
				kept = append(kept, token)
			}
		}
		tokens = kept
	}

	result := strings.Join(tokens, " ")
	debug.DebugOutput(localDebug, "Normalized (%s): %q -> %q", mode, raw, result)
	return result
}

// Tokens returns the normalized name split on spaces.
func Tokens(raw string, mode Mode) []string {
	return strings.Fields(Name(raw, mode))
}

// Fold removes diacritics so that "Águila" and "Aguila" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// stripPunctuation keeps letters, digits and hyphens between two alphanumerics.
// Apostrophes and dots are dropped in place; any other symbol becomes a separator.
func stripPunctuation(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '-':
			if i > 0 && i < len(rs)-1 && isAlnum(rs[i-1]) && isAlnum(rs[i+1]) {
				b.WriteRune(r)
			} else {
				b.WriteRune(' ')
			}
		case r == '\'' || r == '’' || r == '.':
			// dropped without a separator: "Rocky's" -> "rockys"
		default:
			b.WriteRune(' ')
		}
	}

	return b.String()
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ContainsEither reports whether a contains b or b contains a.
// Empty strings never match.
func ContainsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
