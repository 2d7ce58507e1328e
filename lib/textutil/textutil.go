package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeContent lowercases, trims and collapses all runs of whitespace
// into a single space. Two renderings of the same review body normalize to
// the same string.
func NormalizeContent(s string) string {
	s = strings.ToLower(s)
	s = strings.Trim(s, " \n\t")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	return s
}

// NormalizeName is like NormalizeContent but removes whitespace entirely,
// which makes it suitable for identity keys.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// StripControl removes control characters, keeping everything printable
// plus regular spaces.
func StripControl(s string) string {
	out := strings.Builder{}
	for _, c := range s {
		if unicode.IsControl(c) {
			continue
		}
		out.WriteRune(c)
	}
	return out.String()
}

// Truncate cuts a string down to at most max bytes without splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for i := max; i > 0; i-- {
		if (s[i] & 0xc0) != 0x80 {
			return s[:i]
		}
	}
	return ""
}
