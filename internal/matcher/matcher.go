// Package matcher decides which users are interested in a message.
//
// Filters sharing the same pattern text are compiled once and evaluated
// once per message, regardless of how many users own them. Patterns are
// case-insensitive RE2 expressions searched anywhere in the body.
package matcher

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/samber/lo"
)

// Filter is one user's interest pattern.
type Filter struct {
	UserID  int64
	Pattern string
}

// PatternError reports a pattern that does not compile. The users owning it
// are listed so callers can tell them apart in logs.
type PatternError struct {
	Pattern string
	Users   []int64
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("compile pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

type group struct {
	pattern string
	re      *regexp.Regexp
	users   []int64
}

// Set is a compiled filter set. It is immutable and safe for concurrent use.
type Set struct {
	groups  []group
	invalid []*PatternError
}

// Compile groups filters by pattern text and compiles each distinct pattern.
// Patterns that fail to compile are left out of the set and reported by
// Invalid.
func Compile(filters []Filter) *Set {
	owners := lo.GroupBy(filters, func(f Filter) string { return f.Pattern })
	patterns := lo.Uniq(lo.Map(filters, func(f Filter, _ int) string { return f.Pattern }))

	s := &Set{groups: make([]group, 0, len(patterns))}
	for _, p := range patterns {
		users := lo.Uniq(lo.Map(owners[p], func(f Filter, _ int) int64 { return f.UserID }))
		re, err := compile(p)
		if err != nil {
			s.invalid = append(s.invalid, &PatternError{Pattern: p, Users: users, Err: err})
			continue
		}
		s.groups = append(s.groups, group{pattern: p, re: re, users: users})
	}
	return s
}

// Match returns the sorted ids of users owning at least one pattern found in
// body. Each user appears once.
func (s *Set) Match(body string) []int64 {
	matched := make(map[int64]struct{})
	for _, g := range s.groups {
		if lo.EveryBy(g.users, func(u int64) bool { _, ok := matched[u]; return ok }) {
			continue
		}
		if !g.re.MatchString(body) {
			continue
		}
		for _, u := range g.users {
			matched[u] = struct{}{}
		}
	}
	users := lo.Keys(matched)
	slices.Sort(users)
	return users
}

// Patterns returns the number of distinct compiled patterns.
func (s *Set) Patterns() int { return len(s.groups) }

// Invalid returns the patterns excluded from the set.
func (s *Set) Invalid() []*PatternError { return s.invalid }

// Match compiles filters and matches body in one call.
func Match(body string, filters []Filter) ([]int64, []*PatternError) {
	s := Compile(filters)
	return s.Match(body), s.Invalid()
}

// Validate reports whether pattern can be used as a filter.
func Validate(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	_, err := compile(pattern)
	return err
}

func compile(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
