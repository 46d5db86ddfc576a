package search

import "regexp"

// Matcher tests lines against the search pattern. The pattern may match
// anywhere in the line.
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher returns a Matcher for re. A nil re matches every line.
func NewMatcher(re *regexp.Regexp) *Matcher {
	return &Matcher{re: re}
}

// Match reports whether line contains a match.
func (m *Matcher) Match(line string) bool {
	if m.re == nil {
		return true
	}
	return m.re.MatchString(line)
}
