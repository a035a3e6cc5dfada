// Package patch implements the two RCS delta codecs: text patches, which
// edit a line buffer with "aN C"/"dN C" scripts, and binary patches, which
// edit a byte buffer with offset/length insert/delete commands.
package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datalight/mkssi-fast-export/internal/lines"
)

// ApplyText applies an RCS text patch (a sequence of "aN C" / "dN C"
// commands, each followed by C literal lines for inserts) to buf, which is
// mutated in place. The buffer is swept and renumbered once the whole
// patch has been applied. Blank command lines are ignored; any other
// unrecognised leading character is a fatal error, matching spec 4.2's
// failure cases (out-of-range reference, inconsistent numbering, missing
// inserted lines).
func ApplyText(buf *lines.Buffer, patchText string) error {
	patchLines := splitPatchLines(patchText)

	i := 0
	for i < len(patchLines) {
		cmdLine := patchLines[i]
		if cmdLine == "" {
			i++
			continue
		}
		cmd := cmdLine[0]
		if cmd != 'a' && cmd != 'd' {
			return fmt.Errorf("patch: unrecognized command %q", cmdLine)
		}
		lineno, count, err := parseLineAndCount(cmdLine[1:])
		if err != nil {
			return fmt.Errorf("patch: %w (line %q)", err, cmdLine)
		}
		i++

		switch cmd {
		case 'a':
			if i+count > len(patchLines) {
				return fmt.Errorf("patch: a%d %d: missing insert lines", lineno, count)
			}
			insert := patchLines[i : i+count]
			if !buf.Insert(lineno, insert) {
				return fmt.Errorf("patch: a%d %d: line %d missing", lineno, count, lineno)
			}
			i += count
		case 'd':
			if !buf.Delete(lineno, count) {
				return fmt.Errorf("patch: d%d %d: line %d missing", lineno, count, lineno)
			}
		}
	}

	buf.Reset()
	return nil
}

// splitPatchLines breaks patch text into raw lines without dropping empty
// trailing lines the way strings.Split on "\n" would keep a spurious final
// empty element only when the text ends exactly on a newline; that matches
// the "a N C" followed by exactly C inserted lines shape of RCS patches.
func splitPatchLines(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func parseLineAndCount(s string) (int, int, error) {
	fields := strings.SplitN(s, " ", 2)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("cannot parse line number and count")
	}
	lineno, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, fmt.Errorf("cannot parse line number and count")
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, fmt.Errorf("cannot parse line number and count")
	}
	return lineno, count, nil
}

// UnescapeAts collapses every "@@" pair in s into a single "@", the RCS
// at-sign escaping convention applied to all `@`-delimited text bodies
// before anything else (patch application, keyword scanning) sees them.
func UnescapeAts(s string) string {
	return strings.ReplaceAll(s, "@@", "@")
}
