package topic

import "strings"

// Name is a colon-separated event name.
// Examples: "window:open", "user:login", "app:calculator:message".
type Name string

// Separator is the character used to separate name segments.
const Separator = ":"

// String returns the name as a string.
func (n Name) String() string {
	return string(n)
}

// Segments returns the name split by the separator.
func (n Name) Segments() []string {
	if n == "" {
		return nil
	}
	return strings.Split(string(n), Separator)
}

// SegmentCount returns the number of segments in the name.
func (n Name) SegmentCount() int {
	if n == "" {
		return 0
	}
	return strings.Count(string(n), Separator) + 1
}

// Parent returns the name without its last segment.
// Returns an empty name if there is no parent.
//
// Example: "app:calculator:ready" -> "app:calculator"
func (n Name) Parent() Name {
	s := string(n)
	idx := strings.LastIndex(s, Separator)
	if idx < 0 {
		return ""
	}
	return Name(s[:idx])
}

// Child returns a name with one segment appended.
//
// Example: "app".Child("calculator") -> "app:calculator"
func (n Name) Child(segment string) Name {
	if n == "" {
		return Name(segment)
	}
	return Name(string(n) + Separator + segment)
}

// Qualify prefixes name with n used as a namespace.
// An empty namespace returns name unchanged.
func (n Name) Qualify(name Name) Name {
	if n == "" {
		return name
	}
	if name == "" {
		return n
	}
	return Name(string(n) + Separator + string(name))
}

// Unqualify strips namespace ns from n.
// The second return value is false if n is not inside ns.
func (n Name) Unqualify(ns Name) (Name, bool) {
	if ns == "" {
		return n, true
	}
	if !n.HasPrefix(ns) || len(n) == len(ns) {
		return "", false
	}
	return n[len(ns)+len(Separator):], true
}

// Base returns the last segment of the name.
//
// Example: "window:open" -> "open"
func (n Name) Base() string {
	s := string(n)
	idx := strings.LastIndex(s, Separator)
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}

// HasPrefix returns true if the name starts with prefix on a segment boundary.
func (n Name) HasPrefix(prefix Name) bool {
	if prefix == "" {
		return true
	}
	s := string(n)
	p := string(prefix)
	if !strings.HasPrefix(s, p) {
		return false
	}
	if len(s) == len(p) {
		return true
	}
	return strings.HasPrefix(s[len(p):], Separator)
}

// IsValid reports whether the name is usable as an event name.
// A valid name is not empty, has no empty segments and contains no whitespace.
func (n Name) IsValid() bool {
	s := string(n)
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	for _, seg := range n.Segments() {
		if seg == "" {
			return false
		}
	}
	return true
}

// Join joins segments into a name.
func Join(segments ...string) Name {
	return Name(strings.Join(segments, Separator))
}
