// Package ircfold implements RFC 1459 case folding and name
// arbitration: turning a proposed remote-service name into an
// IRC-legal, collision-free name.
package ircfold

import (
	"strconv"
	"strings"
)

// ReservedNick is the gateway pseudo-user's nick. Arbitration never
// hands this name to a real user.
const ReservedNick = "x"

// foldPairs holds the extra equivalences RFC 1459 adds on top of
// plain ASCII lowercasing: [\]^ fold with {|}~ respectively.
var foldPairs = [...][2]byte{
	{'[', '{'},
	{']', '}'},
	{'\\', '|'},
	{'^', '~'},
}

// Fold lowercases s the RFC 1459 way: ASCII lowercasing plus the
// bracket/brace, backslash/pipe, caret/tilde equivalences.
func Fold(s string) string {
	b := []byte(strings.ToLower(s))
	for i, c := range b {
		for _, pair := range foldPairs {
			if c == pair[0] {
				b[i] = pair[1]
				break
			}
		}
	}
	return string(b)
}

// Equal reports whether a and b fold to the same name.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}

// sanitizeSet is the set of bytes §4.1 requires replacing with '_'.
var sanitizeSet = [256]bool{
	'#': true, ' ': true, ',': true, '<': true, '>': true, '!': true,
	0: true, '\r': true, '\n': true, ':': true,
}

// Sanitize replaces every disallowed byte in name with '_', and
// substitutes the fallback base "_" for an empty name.
func Sanitize(name string) string {
	b := []byte(name)
	for i, c := range b {
		if sanitizeSet[c] {
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "_"
	}
	return string(b)
}

// NameMap is the minimal interface the arbiter needs of a name→entity
// map: a lookup under the folded key. Both world.User and
// world.Channel secondary indices satisfy this by exposing their
// lookup as a func.
type NameMap interface {
	// Has reports whether a folded name is already taken.
	Has(folded string) bool
}

// MapFunc adapts a plain lookup function to NameMap.
type MapFunc func(folded string) bool

// Has implements NameMap.
func (f MapFunc) Has(folded string) bool { return f(folded) }

// Arbitrate returns a name derived from proposed that is IRC-legal,
// not equal under folding to the reserved gateway nick, and absent
// from m. If the sanitised proposal itself is free, it wins
// unmodified; otherwise decimal suffixes 1, 2, 3, … are appended
// until a free name is found. The result is a deterministic function
// of proposed and the contents of m.
func Arbitrate(proposed string, m NameMap) string {
	base := Sanitize(proposed)
	if candidate := base; !m.Has(Fold(candidate)) && !Equal(candidate, ReservedNick) {
		return candidate
	}
	for suffix := 1; ; suffix++ {
		candidate := base + strconv.Itoa(suffix)
		if !m.Has(Fold(candidate)) && !Equal(candidate, ReservedNick) {
			return candidate
		}
	}
}
