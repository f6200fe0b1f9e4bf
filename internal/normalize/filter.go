package normalize

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

// Matcher performs the locale-aware, case-insensitive title test.
type Matcher struct {
	mu      sync.Mutex
	caser   cases.Caser
	keyword string
}

// NewMatcher builds a Matcher for keyword using the case rules of locale
// (a BCP 47 tag such as "tr"). An empty locale means language.Und.
func NewMatcher(keyword, locale string) (*Matcher, error) {
	tag := language.Und
	if locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale %q: %w", locale, err)
		}
		tag = parsed
	}
	m := &Matcher{caser: cases.Lower(tag)}
	m.keyword = m.fold(keyword)
	return m, nil
}

// Keyword returns the folded keyword.
func (m *Matcher) Keyword() string {
	return m.keyword
}

// Matches reports whether rec's title contains the keyword.
func (m *Matcher) Matches(rec disclosure.Record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Contains(m.fold(rec.Title), m.keyword)
}

func (m *Matcher) fold(s string) string {
	return m.caser.String(norm.NFC.String(strings.TrimSpace(s)))
}
