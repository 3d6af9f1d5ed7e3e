package router

import (
	"regexp"

	"github.com/tidwall/match"
)

// Match scores.
const (
	ScoreExact     = 100
	ScoreRegex     = 75
	ScorePredicate = 60
	ScoreWildcard  = 50
)

// PatternKind tags a Pattern.
type PatternKind int

const (
	// PatternNone is the zero Pattern; it never matches.
	PatternNone PatternKind = iota
	PatternGlob
	PatternRegex
	PatternPredicate
)

// String returns the kind name.
func (k PatternKind) String() string {
	switch k {
	case PatternGlob:
		return "glob"
	case PatternRegex:
		return "regex"
	case PatternPredicate:
		return "predicate"
	default:
		return "none"
	}
}

// PredicateFunc decides whether an event matches.
type PredicateFunc func(name string, data any) bool

// Pattern selects the events a route receives.
type Pattern struct {
	kind PatternKind
	glob string
	re   *regexp.Regexp
	pred PredicateFunc
}

// Glob matches names against a glob. '*' matches any run of characters
// including ':', '?' matches one character. A glob without wildcards only
// matches the identical name.
func Glob(s string) Pattern {
	return Pattern{kind: PatternGlob, glob: s}
}

// Regex compiles expr into a Pattern.
func Regex(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, err
	}
	return RegexOf(re), nil
}

// MustRegex is like Regex but panics on a malformed expression.
func MustRegex(expr string) Pattern {
	return RegexOf(regexp.MustCompile(expr))
}

// RegexOf wraps a compiled expression.
func RegexOf(re *regexp.Regexp) Pattern {
	if re == nil {
		return Pattern{}
	}
	return Pattern{kind: PatternRegex, re: re}
}

// Predicate matches names for which fn returns true.
func Predicate(fn PredicateFunc) Pattern {
	if fn == nil {
		return Pattern{}
	}
	return Pattern{kind: PatternPredicate, pred: fn}
}

// Kind returns the pattern tag.
func (p Pattern) Kind() PatternKind {
	return p.kind
}

// String returns the glob or expression source.
func (p Pattern) String() string {
	switch p.kind {
	case PatternGlob:
		return p.glob
	case PatternRegex:
		return p.re.String()
	case PatternPredicate:
		return "<predicate>"
	default:
		return ""
	}
}

func (p Pattern) valid() bool {
	switch p.kind {
	case PatternGlob:
		return p.glob != ""
	case PatternRegex:
		return p.re != nil
	case PatternPredicate:
		return p.pred != nil
	default:
		return false
	}
}

// Score reports whether the event matches and with what score.
func (p Pattern) Score(name string, data any) (int, bool) {
	switch p.kind {
	case PatternGlob:
		if p.glob == name {
			return ScoreExact, true
		}
		if match.IsPattern(p.glob) && match.Match(name, p.glob) {
			return ScoreWildcard, true
		}
	case PatternRegex:
		if p.re.MatchString(name) {
			return ScoreRegex, true
		}
	case PatternPredicate:
		if p.pred(name, data) {
			return ScorePredicate, true
		}
	}
	return 0, false
}
