package patterns

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds text into the form every family matches against: NFC
// composed and lower-cased.
func Normalize(text string) string {
	return strings.ToLower(norm.NFC.String(text))
}

// KeywordFamily is an ordered list of literal keywords. By default a keyword
// matches a substring of the normalized text whose neighbours are not
// letters, so "hi" does not fire inside "thi" while "25.000đ" still carries
// "đ". Substring families drop the boundary check entirely.
type KeywordFamily struct {
	name      string
	keywords  []string
	substring bool
}

// NewSubstringFamily builds a family that matches keywords anywhere in the
// text, so inflected forms such as "overdosed" or "strokes" still fire.
func NewSubstringFamily(name string, keywords []string) *KeywordFamily {
	f := NewKeywordFamily(name, keywords)
	f.substring = true
	return f
}

func NewKeywordFamily(name string, keywords []string) *KeywordFamily {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = Normalize(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return &KeywordFamily{name: name, keywords: out}
}

func (f *KeywordFamily) Name() string {
	return f.name
}

func (f *KeywordFamily) Keywords() []string {
	return append([]string(nil), f.keywords...)
}

// Match reports whether any keyword occurs in text. text must already be
// normalized.
func (f *KeywordFamily) Match(text string) bool {
	_, ok := f.Find(text)
	return ok
}

// Find returns the first keyword, in family order, found in text.
func (f *KeywordFamily) Find(text string) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, kw := range f.keywords {
		if f.substring && strings.Contains(text, kw) {
			return kw, true
		}
		if !f.substring && containsKeyword(text, kw) {
			return kw, true
		}
	}
	return "", false
}

func containsKeyword(text, kw string) bool {
	first, _ := utf8.DecodeRuneInString(kw)
	last, _ := utf8.DecodeLastRuneInString(kw)
	checkLeft := unicode.IsLetter(first)
	checkRight := unicode.IsLetter(last)
	offset := 0
	for {
		idx := strings.Index(text[offset:], kw)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(kw)
		ok := true
		if checkLeft && start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			if unicode.IsLetter(prev) || unicode.Is(unicode.Mn, prev) {
				ok = false
			}
		}
		if ok && checkRight && end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			if unicode.IsLetter(next) || unicode.Is(unicode.Mn, next) {
				ok = false
			}
		}
		if ok {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

// RegexFamily is an ordered list of case-insensitive regular expressions.
type RegexFamily struct {
	name     string
	patterns []*regexp.Regexp
}

func NewRegexFamily(name string, patterns []string) (*RegexFamily, error) {
	family := &RegexFamily{name: name}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", name, p, err)
		}
		family.patterns = append(family.patterns, re)
	}
	return family, nil
}

func (f *RegexFamily) Name() string {
	return f.name
}

func (f *RegexFamily) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}

func (f *RegexFamily) Regexps() []*regexp.Regexp {
	if f == nil {
		return nil
	}
	return f.patterns
}

func (f *RegexFamily) Match(text string) bool {
	if f == nil {
		return false
	}
	for _, re := range f.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// FirstSubmatch returns the first capture group of the first pattern that
// matches, trying patterns in order.
func (f *RegexFamily) FirstSubmatch(text string) (string, bool) {
	if f == nil {
		return "", false
	}
	for _, re := range f.patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}
	return "", false
}

// AllSubmatches collects the first capture group of every match of every
// pattern, in pattern order.
func (f *RegexFamily) AllSubmatches(text string) []string {
	if f == nil {
		return nil
	}
	var out []string
	for _, re := range f.patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 {
				out = append(out, m[1])
			}
		}
	}
	return out
}
