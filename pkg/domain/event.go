package domain

import "strings"

// Wildcard is the trailing segment that turns an event descriptor into a prefix match.
const Wildcard = "*"

// MatchEvent reports whether event is accepted by pattern.
//
// A pattern matches when it equals the event, when it is the bare wildcard,
// or when it ends in ".*" and the event, with trailing dot-segments stripped
// one at a time, reaches the pattern's prefix. "Foo.Bar.*" accepts
// "Foo.Bar.X" and "Foo.Bar.X.Y" but not "Foo.Bar".
func MatchEvent(event, pattern string) bool {
	if pattern == "" || event == "" {
		return false
	}
	if pattern == Wildcard || pattern == event {
		return true
	}
	if !strings.HasSuffix(pattern, "."+Wildcard) {
		return false
	}
	for _, candidate := range WildcardCandidates(event) {
		if candidate == pattern {
			return true
		}
	}
	return false
}

// WildcardCandidates lists the wildcard patterns that would accept event,
// most specific first: "A.B.C" -> ["A.B.*", "A.*"].
func WildcardCandidates(event string) []string {
	var out []string
	stem := event
	for {
		i := strings.LastIndex(stem, ".")
		if i < 0 {
			return out
		}
		stem = stem[:i]
		out = append(out, stem+"."+Wildcard)
	}
}
