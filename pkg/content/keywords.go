// Package content decides whether names and file contents match a keyword set.
//
// Matching is case-insensitive. In whole-word mode an occurrence only counts
// when it is not glued to a letter, digit or underscore on either side, so the
// keyword "log" does not match "login" but does match "app.log".
package content

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrNoKeywords is returned when every supplied keyword is blank.
var ErrNoKeywords = errors.New("keyword list is empty")

// Keywords is an immutable, lower-cased keyword set.
type Keywords struct {
	terms     []string
	wholeWord bool
	longest   int
}

// NewKeywords trims, lower-cases and de-duplicates list.
func NewKeywords(list []string, wholeWord bool) (*Keywords, error) {
	seen := make(map[string]bool, len(list))
	k := &Keywords{wholeWord: wholeWord}

	for _, raw := range list {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		k.terms = append(k.terms, term)
		if len(term) > k.longest {
			k.longest = len(term)
		}
	}

	if len(k.terms) == 0 {
		return nil, ErrNoKeywords
	}
	return k, nil
}

// Terms returns the normalized keywords in input order.
func (k *Keywords) Terms() []string {
	out := make([]string, len(k.terms))
	copy(out, k.terms)
	return out
}

func (k *Keywords) Len() int { return len(k.terms) }

func (k *Keywords) WholeWord() bool { return k.wholeWord }

// Longest is the byte length of the longest keyword.
func (k *Keywords) Longest() int { return k.longest }

// MatchName reports whether any keyword occurs in a file or folder name.
func (k *Keywords) MatchName(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range k.terms {
		if k.contains(lower, term) {
			return true
		}
	}
	return false
}

func (k *Keywords) contains(lower, term string) bool {
	return k.containsIn(lower, term, Edges{})
}

// Edges marks the sides of a text window that cut through the underlying
// stream. In whole-word mode an occurrence touching an open side cannot be
// told apart from part of a longer word, so it is not counted there.
type Edges struct {
	LeftOpen  bool
	RightOpen bool
}

func (k *Keywords) containsIn(lower, term string, e Edges) bool {
	if !k.wholeWord {
		return strings.Contains(lower, term)
	}

	offset := 0
	for {
		idx := strings.Index(lower[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)
		inside := !(e.LeftOpen && start == 0) && !(e.RightOpen && end == len(lower))
		if inside && boundaryBefore(lower, start) && boundaryAfter(lower, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(lower[start:])
		offset = start + size
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Match is the outcome of a content scan.
type Match struct {
	// Found lists the keywords seen, in keyword order.
	Found []string
	// Complete is set when every keyword was found.
	Complete bool
}

// Matched reports whether at least one keyword was found.
func (m Match) Matched() bool { return len(m.Found) > 0 }

// Tracker accumulates keyword hits across several pieces of text.
type Tracker struct {
	kw    *Keywords
	found []bool
	count int
}

// NewTracker starts an empty tracker for kw.
func NewTracker(kw *Keywords) *Tracker {
	return &Tracker{kw: kw, found: make([]bool, len(kw.terms))}
}

// Feed scans text and reports whether every keyword has now been found.
func (t *Tracker) Feed(text string) bool {
	return t.FeedWindow(text, Edges{})
}

// FeedWindow is Feed for a window cut out of a longer stream.
func (t *Tracker) FeedWindow(text string, e Edges) bool {
	if t.count == len(t.found) {
		return true
	}
	lower := strings.ToLower(text)
	for i, term := range t.kw.terms {
		if t.found[i] {
			continue
		}
		if t.kw.containsIn(lower, term, e) {
			t.found[i] = true
			t.count++
		}
	}
	return t.count == len(t.found)
}

// Result snapshots the tracker state.
func (t *Tracker) Result() Match {
	m := Match{Complete: t.count == len(t.found)}
	for i, ok := range t.found {
		if ok {
			m.Found = append(m.Found, t.kw.terms[i])
		}
	}
	return m
}

// MatchText scans a complete text in one pass.
func (k *Keywords) MatchText(text string) Match {
	t := NewTracker(k)
	t.Feed(text)
	return t.Result()
}
