// Package branchname turns an MKSSI branch name (as stored in
// project.pj's _mks_variant_projects block, with non-identifier
// characters %HH-escaped) into a Git-legal ref name.
package branchname

import (
	"fmt"
	"strings"
)

// Sanitize implements the decode-then-filter rules of spec 4.8. It
// returns an error if the result would be empty, mirroring the original
// tool treating that case as fatal.
func Sanitize(name string) (string, error) {
	decoded := decodePercent(name)

	var b strings.Builder
	for _, r := range decoded {
		switch {
		case isSpace(r):
			b.WriteByte('_')
		case strings.ContainsRune(`\*?,:[`, r):
			continue
		case r < 0x21 || r > 0x7e:
			continue
		default:
			b.WriteRune(r)
		}
	}

	out := b.String()
	if strings.HasSuffix(out, ".") {
		out = out[:len(out)-1] + "_"
	}
	if out == "" {
		return "", fmt.Errorf("branchname: %q sanitizes to an empty name", name)
	}
	return out, nil
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// decodePercent decodes "%HH" escapes whose two hex digits yield a value
// in 0..0x7F; any other "%" (bad hex, or value >= 0x80) is left literal.
func decodePercent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, okHi := hexDigit(s[i+1])
			lo, okLo := hexDigit(s[i+2])
			if okHi && okLo {
				v := hi<<4 | lo
				if v <= 0x7f {
					b.WriteByte(byte(v))
					i += 2
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
