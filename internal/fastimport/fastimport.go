// Package fastimport writes the git fast-import command stream: blob,
// commit, file-change, tag, reset, and progress commands, in the exact
// wire format `git fast-import` expects on stdin.
package fastimport

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// timezone is fixed, matching the source's own fixed "-0800" committer
// offset; every committer and tagger line uses it, and no per-author
// timezone is applied.
const timezone = "-0800"

// Writer emits one fast-import command stream to an underlying io.Writer.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter wraps w for fast-import command emission.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Flush flushes buffered output and returns the first error encountered by
// any prior Writer method, if any.
func (fw *Writer) Flush() error {
	if fw.err != nil {
		return fw.err
	}
	return fw.w.Flush()
}

func (fw *Writer) printf(format string, args ...interface{}) {
	if fw.err != nil {
		return
	}
	_, fw.err = fmt.Fprintf(fw.w, format, args...)
}

func (fw *Writer) writeBytes(b []byte) {
	if fw.err != nil {
		return
	}
	_, fw.err = fw.w.Write(b)
}

// FeatureDone emits "feature done", required once at the top of the
// stream so a malformed stream fails fast under `git fast-import` rather
// than silently truncating.
func (fw *Writer) FeatureDone() {
	fw.printf("feature done\n")
}

// Progress emits a progress message, echoed verbatim by `git fast-import`
// so it can double as a percent-complete indicator on long imports.
func (fw *Writer) Progress(message string) {
	fw.printf("progress %s\n", message)
}

// Blob emits one blob command with the given mark and content.
func (fw *Writer) Blob(mark int, data []byte) {
	fw.printf("blob\nmark :%d\ndata %d\n", mark, len(data))
	fw.writeBytes(data)
	fw.printf("\n")
}

// CommitInfo carries everything Commit needs to emit one commit command;
// the caller has already resolved file changes into Modify/Rename/Delete
// calls made between Commit and End.
type CommitInfo struct {
	Ref       string
	Mark      int
	Author    string
	Email     string
	EpochSecs int64
	Message   string
	From      string // parent commit ref/mark, "" for the first commit on a branch
}

// Commit begins a commit command. Callers follow with FileModify/
// FileRename/FileDelete calls, then End.
func (fw *Writer) Commit(ci CommitInfo) {
	fw.printf("commit %s\n", ci.Ref)
	fw.printf("mark :%d\n", ci.Mark)
	fw.printf("committer %s <%s> %d %s\n", ci.Author, ci.Email, ci.EpochSecs, timezone)
	fw.printf("data %d\n%s\n", len(ci.Message), ci.Message)
	if ci.From != "" {
		fw.printf("from %s\n", ci.From)
	}
}

// End terminates the current commit (git fast-import commits end simply by
// the next command beginning; End exists only so call sites read clearly).
func (fw *Writer) End() {}

// FileModify emits "M <mode> :<mark> <path>". Per spec 6, M/D paths are
// never quoted, even when they contain spaces (unlike R's rename paths).
func (fw *Writer) FileModify(mode string, mark int, path string) {
	fw.printf("M %s :%d %s\n", mode, mark, path)
}

// FileRename emits "R \"<old>\" \"<new>\"". Per spec 6, rename paths are
// always double-quoted, unlike M/D paths which never are.
func (fw *Writer) FileRename(oldPath, newPath string) {
	fw.printf("R %s %s\n", forceQuotePath(oldPath), forceQuotePath(newPath))
}

// FileDelete emits "D <path>", unquoted (see FileModify).
func (fw *Writer) FileDelete(path string) {
	fw.printf("D %s\n", path)
}

// Tag emits an annotated tag command (tag, from, tagger, data), as used
// for the demarcating per-branch tags.
func (fw *Writer) Tag(name, fromRef, tagger, email string, epochSecs int64, message string) {
	fw.printf("tag %s\n", name)
	fw.printf("from %s\n", fromRef)
	fw.printf("tagger %s <%s> %d %s\n", tagger, email, epochSecs, timezone)
	fw.printf("data %d\n%s\n", len(message), message)
}

// Done emits the literal "done" command that must terminate the stream
// whenever "feature done" was declared up front (spec 6's final line).
func (fw *Writer) Done() {
	fw.printf("done\n")
}

// Reset emits a reset command, used to create or repoint a branch ref
// without an accompanying commit (branch points that copy an existing tip
// verbatim).
func (fw *Writer) Reset(ref, fromRef string) {
	fw.printf("reset %s\n", ref)
	if fromRef != "" {
		fw.printf("from %s\n", fromRef)
	}
}

// forceQuotePath double-quotes path unconditionally, escaping embedded
// quotes/backslashes, for R command paths (spec 6: always quoted).
func forceQuotePath(path string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range path {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
