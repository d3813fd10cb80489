package cache

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"github.com/gobwas/glob/match"
)

// maxPatternAlphabet bounds the distinct literal characters of a pattern:
// one printable or control ASCII byte each, 0x01 through 0x7E.
const maxPatternAlphabet = 126

// otherChar stands for every key character the pattern does not name.
const otherChar byte = 0x7F

// Pattern is a compiled key pattern. '*' matches any run of characters,
// including none, and '?' matches exactly one character. Every other
// character matches itself, and the whole key must match.
//
// A character is a UTF-8 encoded rune, or a single byte where the input is
// not valid UTF-8. Before matching, pattern and key are rewritten so that
// every character is exactly one ASCII byte: each literal of the pattern
// gets its own byte and all other key characters share otherChar.
type Pattern struct {
	source   string
	alphabet map[rune]byte
	g        glob.Glob
	// minLen is the number of characters any matching key must have: one
	// per literal or '?'.
	minLen int
}

// CompilePattern compiles a key pattern.
func CompilePattern(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, invalidf("pattern is required")
	}
	p := &Pattern{source: pattern, alphabet: make(map[rune]byte)}
	var b strings.Builder
	for i := 0; i < len(pattern); {
		c, size := nextChar(pattern, i)
		i += size
		switch c {
		case '*':
			b.WriteByte('*')
			continue
		case '?':
			b.WriteByte('?')
		default:
			code, ok := p.alphabet[c]
			if !ok {
				if len(p.alphabet) == maxPatternAlphabet {
					return nil, invalidf("pattern %q uses more than %d distinct characters", pattern, maxPatternAlphabet)
				}
				code = byte(len(p.alphabet) + 1)
				p.alphabet[c] = code
			}
			b.WriteString(glob.QuoteMeta(string([]byte{code})))
		}
		p.minLen++
	}

	g, err := glob.Compile(b.String())
	if err != nil {
		return nil, invalidf("pattern %q: %v", pattern, err)
	}
	if m, ok := g.(match.Matcher); ok {
		g = fitPrefixSuffix(m)
	}
	p.g = g
	return p, nil
}

// nextChar decodes the character starting at s[i]. A byte outside a valid
// UTF-8 sequence is a character of its own, reported as a negative code so
// it never equals a real rune.
func nextChar(s string, i int) (rune, int) {
	r, size := utf8.DecodeRuneInString(s[i:])
	if r == utf8.RuneError && size == 1 {
		return -1 - rune(s[i]), 1
	}
	return r, size
}

// translate rewrites key into the pattern's one-byte-per-character form.
func (p *Pattern) translate(key string) []byte {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); {
		c, size := nextChar(key, i)
		i += size
		code, ok := p.alphabet[c]
		if !ok {
			code = otherChar
		}
		out = append(out, code)
	}
	return out
}

// fitPrefixSuffix swaps glob's prefix/suffix matchers, which accept inputs
// where the two ends overlap, for ones that require both ends to fit. It
// walks nested trees since those matchers also appear as subtrees.
func fitPrefixSuffix(m match.Matcher) match.Matcher {
	switch t := m.(type) {
	case match.PrefixSuffix:
		return prefixSuffix{t}
	case match.BTree:
		t.Value = fitPrefixSuffix(t.Value)
		t.Left = fitPrefixSuffix(t.Left)
		t.Right = fitPrefixSuffix(t.Right)
		return t
	}
	return m
}

type prefixSuffix struct {
	match.PrefixSuffix
}

func (m prefixSuffix) Match(s string) bool {
	return len(s) >= len(m.Prefix)+len(m.Suffix) && m.PrefixSuffix.Match(s)
}

// HasWildcard reports whether s contains pattern wildcards.
func HasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

func (p *Pattern) String() string { return p.source }

// Match reports whether key matches the pattern.
func (p *Pattern) Match(key string) bool {
	if len(key) < p.minLen {
		return false
	}
	k := p.translate(key)
	if len(k) < p.minLen {
		return false
	}
	return p.g.Match(string(k))
}

// Filter returns the keys that match, sorted.
func (p *Pattern) Filter(keys []string) []string {
	out := make([]string, 0)
	for _, k := range keys {
		if p.Match(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
