package phonetics

import (
	"strings"

	"github.com/spotmatch/internal/normalize"
)

// SoundKey encodes spot names so that Spanish spellings which are
// pronounced alike share a key: "Cotillo" and "Cotiyo", "Valle" and "Baye".
type SoundKey struct{}

// NewSoundKey creates a sound-key encoder
func NewSoundKey() *SoundKey {
	return &SoundKey{}
}

// Key returns one code per identity token of name, space separated.
// Blank names and names made only of stop words encode to "".
func (sk *SoundKey) Key(name string) string {
	tokens := normalize.Tokens(name, normalize.ModeIdentity)
	codes := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if code := encodeWord(strings.ToUpper(token)); code != "" {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, " ")
}

// Match reports whether two names encode to the same non-empty key
func (sk *SoundKey) Match(a, b string) bool {
	ka := sk.Key(a)
	return ka != "" && ka == sk.Key(b)
}

func isVowel(r rune) bool {
	switch r {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

func isFront(r rune) bool {
	return r == 'E' || r == 'I'
}

// encodeWord keeps a leading vowel, drops the rest, silences H and
// collapses repeated codes.
func encodeWord(word string) string {
	rs := []rune(word)
	at := func(i int) rune {
		if i < len(rs) {
			return rs[i]
		}
		return 0
	}

	var out []rune
	emit := func(codes ...rune) {
		for _, c := range codes {
			if n := len(out); n > 0 && out[n-1] == c {
				continue
			}
			out = append(out, c)
		}
	}

	for i := 0; i < len(rs); i++ {
		r, next := rs[i], at(i+1)
		switch {
		case isVowel(r):
			if len(out) == 0 {
				emit(r)
			}
		case r == 'C':
			switch {
			case next == 'H':
				emit('X')
				i++
			case isFront(next):
				emit('S')
			default:
				emit('K')
			}
		case r == 'Q':
			emit('K')
			if next == 'U' {
				i++
			}
		case r == 'G':
			switch {
			case isFront(next):
				emit('J')
			case next == 'U' && isFront(at(i+2)):
				emit('G')
				i++
			default:
				emit('G')
			}
		case r == 'L' && next == 'L':
			emit('Y')
			i++
		case r == 'Y':
			if isVowel(next) {
				emit('Y')
			} else if len(out) == 0 {
				emit('I')
			}
		case r == 'H':
		case r == 'Z':
			emit('S')
		case r == 'V', r == 'W':
			emit('B')
		case r == 'X':
			emit('K', 'S')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			emit(r)
		}
	}
	return string(out)
}
