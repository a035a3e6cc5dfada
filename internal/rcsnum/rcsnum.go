// Package rcsnum implements RCS revision number algebra: the dotted,
// variable-depth identifiers ("1.3", "1.7.1.2", ...) MKSSI uses to name
// file and project revisions.
package rcsnum

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxComponents is the deepest revision number this package will parse.
// MKSSI repositories do not nest branches this deep in practice; the limit
// exists to keep parsing defensive against corrupt input.
const MaxComponents = 22

// MaxDigits bounds a single component so that a corrupt file cannot wedge
// an absurdly large number into memory.
const MaxDigits = 10

// Number is an immutable RCS revision number: 1..MaxComponents non-negative
// integer components. The zero value (no components) represents "no
// revision" and is returned by Decrement when nothing precedes rev. 1.1.
type Number struct {
	n []int
}

// New builds a Number from its components.
func New(components ...int) Number {
	cp := make([]int, len(components))
	copy(cp, components)
	return Number{n: cp}
}

// Empty reports whether this is the zero-length "no revision" value.
func (r Number) Empty() bool { return len(r.n) == 0 }

// Len returns the number of components.
func (r Number) Len() int { return len(r.n) }

// Component returns the i'th component (0-indexed).
func (r Number) Component(i int) int { return r.n[i] }

// Parse converts a dotted decimal string ("1.7.1.2") into a Number.
// It rejects components with more than MaxDigits digits and numbers with
// more than MaxComponents components, mirroring the RCS lexer's defenses
// against corrupt revision strings.
func Parse(s string) (Number, error) {
	if s == "" {
		return Number{}, fmt.Errorf("rcsnum: empty revision string")
	}
	parts := strings.Split(s, ".")
	if len(parts) > MaxComponents {
		return Number{}, fmt.Errorf("rcsnum: revision %q has too many components", s)
	}
	n := make([]int, len(parts))
	for i, p := range parts {
		if len(p) > MaxDigits {
			return Number{}, fmt.Errorf("rcsnum: revision %q component too long", s)
		}
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return Number{}, fmt.Errorf("rcsnum: invalid revision %q: %w", s, err)
		}
		n[i] = v
	}
	return Number{n: n}, nil
}

// MustParse is Parse but panics on error; for use with compile-time-known
// literals in tests and fixtures.
func MustParse(s string) Number {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// String renders the number in dotted form, e.g. "1.7.1.2". The zero value
// renders as "none".
func (r Number) String() string {
	if r.Empty() {
		return "none"
	}
	parts := make([]string, len(r.n))
	for i, c := range r.n {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ".")
}

// Equal reports whether two numbers have identical length and components.
func Equal(a, b Number) bool {
	if len(a.n) != len(b.n) {
		return false
	}
	for i := range a.n {
		if a.n[i] != b.n[i] {
			return false
		}
	}
	return true
}

// PartialMatch reports whether num starts with spec, component-for-component,
// through the end of spec. A revision always partial-matches its own branch
// root.
func PartialMatch(num, spec Number) bool {
	if len(num.n) < len(spec.n) {
		return false
	}
	for i := range spec.n {
		if num.n[i] != spec.n[i] {
			return false
		}
	}
	return true
}

// Compare gives a total order where a branch root always sorts before any
// revision on that branch, and within a branch earlier revisions sort
// before later ones.
func Compare(a, b Number) int {
	n := len(a.n)
	if len(b.n) < n {
		n = len(b.n)
	}
	for i := 0; i < n; i++ {
		if a.n[i] < b.n[i] {
			return -1
		}
		if a.n[i] > b.n[i] {
			return 1
		}
	}
	switch {
	case len(a.n) < len(b.n):
		return -1
	case len(a.n) > len(b.n):
		return 1
	default:
		return 0
	}
}

// IsTrunk reports whether the number describes a trunk revision (exactly
// two components, e.g. "1.7").
func (r Number) IsTrunk() bool { return len(r.n) == 2 }

// Increment returns the next number on the same branch (last component + 1).
func Increment(r Number) Number {
	out := New(r.n...)
	out.n[len(out.n)-1]++
	return out
}

// Decrement returns the previous number on the same branch. If the last
// component would become zero, a branch root (length >= 4) collapses by
// dropping its last two components (e.g. "1.7.1.1" -> "1.7"); a trunk
// revision (length 2) that would become "1.0" has no predecessor, signalled
// by returning ok=false.
func Decrement(r Number) (Number, bool) {
	out := New(r.n...)
	last := len(out.n) - 1
	out.n[last]--
	if out.n[last] != 0 {
		return out, true
	}
	if len(out.n) >= 4 {
		out.n = out.n[:len(out.n)-2]
		return out, true
	}
	return Number{}, false
}

// SameBranch reports whether a and b lie on the same branch. Either operand
// is first normalized to even length by appending a zero component (the
// "N.M.0.P" branch-numbering form used by branch roots); everything on a
// two-component number is trunk, and thus always the same branch.
func SameBranch(a, b Number) bool {
	if len(a.n)%2 != 0 {
		return sameBranchNormalized(appendZero(a), b)
	}
	if len(b.n)%2 != 0 {
		return sameBranchNormalized(a, appendZero(b))
	}
	return sameBranchNormalized(a, b)
}

func appendZero(r Number) Number {
	out := make([]int, len(r.n)+1)
	copy(out, r.n)
	return Number{n: out}
}

func sameBranchNormalized(a, b Number) bool {
	if len(a.n) != len(b.n) {
		return false
	}
	if len(a.n) == 2 {
		return true
	}
	n := len(a.n)
	for i := 0; i < n-1; i++ {
		an, bn := a.n[i], b.n[i]
		if i == n-2 {
			if an == 0 {
				an = a.n[i+1]
			}
			if bn == 0 {
				bn = b.n[i+1]
			}
		}
		if an != bn {
			return false
		}
	}
	return true
}
