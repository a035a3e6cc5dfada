// Package lines implements the line-addressable editable sequence that
// underlies RCS text-patch application: a list of lines each carrying a
// stable "original line number" that survives mid-patch insert/delete, so
// that later commands in the same patch can still address earlier
// coordinates correctly.
package lines

import "strings"

// Line is one line of text. Lineno is the RCS line number this line held
// before the patch currently being applied started; zero means "inserted
// by the current patch, unnumbered". A tombstoned line (deleted but not
// yet swept) has Buf == nil but keeps its Lineno so that subsequent delete
// commands in the same patch still see consistent coordinates.
type Line struct {
	Buf       string
	Lineno    int
	NoNewline bool // true only on the final line when it lacked a terminator
	deleted   bool
}

// Buffer is an ordered, mutable sequence of Lines.
type Buffer struct {
	lines []*Line
}

// FromString splits s into a Buffer, recognising "\n", "\r\n", and
// end-of-buffer as line terminators. An empty string still yields a single
// empty line, matching RCS's convention that a data buffer is never "no
// lines at all".
func FromString(s string) *Buffer {
	b := &Buffer{}
	if s == "" {
		b.lines = append(b.lines, &Line{Buf: "", Lineno: 1, NoNewline: true})
		return b
	}
	lineno := 1
	pos := 0
	for pos < len(s) {
		nl := strings.IndexByte(s[pos:], '\n')
		if nl == -1 {
			b.lines = append(b.lines, &Line{Buf: s[pos:], Lineno: lineno, NoNewline: true})
			return b
		}
		end := pos + nl
		text := s[pos:end]
		if strings.HasSuffix(text, "\r") {
			text = text[:len(text)-1]
		}
		b.lines = append(b.lines, &Line{Buf: text, Lineno: lineno})
		lineno++
		pos = end + 1
	}
	return b
}

// String renders the buffer back to text, terminating every line with
// "\n" except a final line flagged NoNewline.
func (b *Buffer) String() string {
	var sb strings.Builder
	for _, l := range b.lines {
		if l.deleted {
			continue
		}
		sb.WriteString(l.Buf)
		if !l.NoNewline {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Copy performs a deep copy, required whenever the revision walker fans
// out into a branch: the branch's edits must not mutate the trunk chain's
// buffer.
func (b *Buffer) Copy() *Buffer {
	out := &Buffer{lines: make([]*Line, len(b.lines))}
	for i, l := range b.lines {
		cp := *l
		out.lines[i] = &cp
	}
	return out
}

// Len returns the number of live (non-tombstoned) lines.
func (b *Buffer) Len() int {
	n := 0
	for _, l := range b.lines {
		if !l.deleted {
			n++
		}
	}
	return n
}

// Lines returns the live lines in order, for inspection/testing.
func (b *Buffer) Lines() []*Line {
	out := make([]*Line, 0, len(b.lines))
	for _, l := range b.lines {
		if !l.deleted {
			out = append(out, l)
		}
	}
	return out
}

// FindString reports whether substr occurs within the single line numbered
// lineno (1-based original numbering, pre-sweep). Used to locate keyword
// tokens without letting the search run across line boundaries.
func (b *Buffer) FindString(lineno int, substr string) bool {
	for _, l := range b.lines {
		if l.Lineno == lineno && !l.deleted {
			return strings.Contains(l.Buf, substr)
		}
	}
	return false
}

// Insert inserts the lines of insert, in order, after the original line
// numbered lineno (lineno == 0 means "at the very beginning"). It fails if
// that anchor line cannot be found.
func (b *Buffer) Insert(lineno int, insert []string) bool {
	idx := len(b.lines)
	if lineno != 0 {
		found := -1
		for i, l := range b.lines {
			if l.Lineno >= lineno {
				found = i
				break
			}
		}
		if found == -1 || b.lines[found].Lineno != lineno {
			return false
		}
		idx = found + 1
	} else {
		idx = 0
	}

	newLines := make([]*Line, len(insert))
	for i, s := range insert {
		newLines[i] = &Line{Buf: s, Lineno: 0}
	}

	b.lines = append(b.lines[:idx], append(newLines, b.lines[idx:]...)...)
	return true
}

// Delete tombstones count original lines starting at lineno. It fails if
// the expected original line numbers are not found in sequence, which
// indicates a corrupt or misapplied patch.
func (b *Buffer) Delete(lineno, count int) bool {
	start := -1
	for i, l := range b.lines {
		if l.Lineno >= lineno {
			start = i
			break
		}
	}
	if start == -1 {
		return false
	}
	idx := start
	for i := 0; i < count; i++ {
		if idx >= len(b.lines) {
			return false
		}
		l := b.lines[idx]
		if l.Lineno != lineno+i {
			return false
		}
		l.deleted = true
		l.Buf = ""
		idx++
	}
	return true
}

// Reset sweeps tombstoned lines and renumbers the survivors consecutively
// from 1, as required after a patch has been fully applied.
func (b *Buffer) Reset() {
	survivors := b.lines[:0]
	n := 0
	for _, l := range b.lines {
		if l.deleted {
			continue
		}
		n++
		l.Lineno = n
		survivors = append(survivors, l)
	}
	b.lines = survivors
}
