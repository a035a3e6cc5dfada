// Package keyword implements RCS keyword expansion: in-place rewriting of
// "$Keyword$" / "$Keyword: ... $" tokens inside reconstructed file text,
// plus $Log$ history insertion.
package keyword

import (
	"fmt"
	"strings"
)

// Context carries everything the expander needs to know about the
// revision currently being rendered. It is the explicit substitute for the
// source's hidden version-flag side effects (see DESIGN.md): Expand
// returns a Flags value rather than mutating shared state.
type Context struct {
	SourceDir    string // -S/--source-dir prefix, for $Source$/$Header$
	PnameDir     string // -P/--pname-dir prefix, for $ProjectName$
	ProjectFile  string // project.pj name, for $ProjectName$

	FileBaseName string // basename, for $Id$/$RCSfile$
	FilePath     string // relative path, for $Header$/$Source$

	Revision    string
	Date        string // MKSSI-formatted timestamp, verbatim
	Author      string
	State       string
	Locker      string // "" if unlocked
	ProjectRev  string // current manifest revision, for $ProjectRevision$

	// LogHistory supplies the header/body for one $Log$ entry, including
	// the recursive duplicate-revision chain (spec 4.5). Entries are
	// emitted in the order given: index 0 is this revision, any further
	// entries are the preceding duplicate-revision chain.
	LogHistory []LogEntry
}

// LogEntry is one "Revision N date author" header plus its check-in
// comment, as inserted by the $Log$ keyword.
type LogEntry struct {
	Revision string
	Date     string
	Author   string
	Comment  string // may be multi-line; no trailing newline required
}

// Flags records which keyword side effects fired while expanding one
// revision's text, mirroring the source's kw_name/kw_path/kw_projrev
// version flags but surfaced as an explicit return value instead of a
// hidden mutation (spec 9, "cross-revision keyword side-effects").
type Flags struct {
	KWName     bool // $Id$ or $RCSfile$ present
	KWPath     bool // $Header$ or $Source$ present
	KWProjRev  bool // $ProjectRevision$ present
}

// Expand rewrites every recognised keyword occurrence in text and reports
// which flags fired. The "@@" -> "@" unescape pass runs first, matching
// the source's rcs_data_keyword_expansion ordering.
func Expand(text string, ctx Context) (string, Flags) {
	text = strings.ReplaceAll(text, "@@", "@")

	var flags Flags
	lineExpanders := []func(string) (string, bool){
		func(l string) (string, bool) { return expandSimple(l, "Author", fmt.Sprintf("$Author: %s $", ctx.Author)) },
		func(l string) (string, bool) { return expandSimple(l, "Date", fmt.Sprintf("$Date: %s $", ctx.Date)) },
		func(l string) (string, bool) {
			out, hit := expandSimple(l, "Header", fmt.Sprintf("$Header: %s/%s %s %s %s %s $",
				ctx.SourceDir, ctx.FilePath, ctx.Revision, ctx.Date, ctx.Author, ctx.State))
			if hit {
				flags.KWPath = true
			}
			return out, hit
		},
		func(l string) (string, bool) {
			id := fmt.Sprintf("$Id: %s %s %s %s %s%s $", ctx.FileBaseName, ctx.Revision, ctx.Date,
				ctx.Author, ctx.State, lockerSuffix(ctx.Locker))
			out, hit := expandSimple(l, "Id", id)
			if hit {
				flags.KWName = true
			}
			return out, hit
		},
		func(l string) (string, bool) {
			locker := "$Locker: $"
			if ctx.Locker != "" {
				locker = fmt.Sprintf("$Locker: %s $", ctx.Locker)
			}
			return expandSimple(l, "Locker", locker)
		},
		func(l string) (string, bool) {
			return expandSimple(l, "ProjectName", fmt.Sprintf("$ProjectName: %s/%s $", ctx.PnameDir, ctx.ProjectFile))
		},
		func(l string) (string, bool) {
			out, hit := expandSimple(l, "ProjectRevision", fmt.Sprintf("$ProjectRevision: %s $", ctx.ProjectRev))
			if hit {
				flags.KWProjRev = true
			}
			return out, hit
		},
		func(l string) (string, bool) {
			out, hit := expandSimple(l, "RCSfile", fmt.Sprintf("$RCSfile: %s $", ctx.FileBaseName))
			if hit {
				flags.KWName = true
			}
			return out, hit
		},
		func(l string) (string, bool) {
			return expandSimple(l, "Revision", fmt.Sprintf("$Revision: %s $", ctx.Revision))
		},
		func(l string) (string, bool) {
			out, hit := expandSimple(l, "Source", fmt.Sprintf("$Source: %s/%s $", ctx.SourceDir, ctx.FilePath))
			if hit {
				flags.KWPath = true
			}
			return out, hit
		},
		func(l string) (string, bool) { return expandSimple(l, "State", fmt.Sprintf("$State: %s $", ctx.State)) },
	}

	lns := splitKeepEnds(text)
	for i, ln := range lns {
		for _, expand := range lineExpanders {
			out, hit := expand(ln)
			if hit {
				ln = out
			}
		}
		lns[i] = ln
	}
	text = strings.Join(lns, "")

	// $Log$ is expanded last: unlike the other keywords it inserts new
	// lines rather than rewriting its own line in place.
	text = expandLog(text, ctx.FileBaseName, ctx.LogHistory)

	return text, flags
}

func lockerSuffix(locker string) string {
	if locker == "" {
		return ""
	}
	return " " + locker
}

// expandSimple replaces a bare "$Name$" or pre-expanded "$Name: ... $"
// token on a single line with replacement. Scanning never crosses a "\n".
func expandSimple(line, name, replacement string) (string, bool) {
	token := "$" + name
	idx := indexCI(line, token)
	if idx == -1 {
		return line, false
	}
	rest := line[idx+len(token):]
	end := strings.IndexByte(rest, '$')
	if end == -1 {
		return line, false
	}
	return line[:idx] + replacement + rest[end+1:], true
}

func indexCI(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

// splitKeepEnds splits text into lines, keeping the trailing "\n" (if any)
// attached to each line, so rejoining is a plain concatenation.
func splitKeepEnds(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// expandLog finds a "$Log$" or "$Log: ... $" token and splices in the
// revision-history block described by spec 4.5: a header line per
// LogEntry, each check-in comment line, all prefixed by whatever
// whitespace/comment-delimiter preceded "$Log$" on its line and suffixed
// by whatever followed it. A literal "@" in the inserted comment text is
// re-escaped to "@@", reproducing the observed MKSSI bug.
func expandLog(text, baseName string, history []LogEntry) string {
	if len(history) == 0 {
		return text
	}
	lns := splitKeepEnds(text)
	for i, ln := range lns {
		idx := indexCI(ln, "$Log")
		if idx == -1 {
			continue
		}
		rest := ln[idx+len("$Log"):]
		end := strings.IndexByte(rest, '$')
		if end == -1 {
			continue
		}
		prefix := ln[:idx]
		suffix := strings.TrimSuffix(rest[end+1:], "\n")
		newLine := prefix + fmt.Sprintf("$Log: %s $", baseName) + suffix + "\n"

		var block strings.Builder
		block.WriteString(newLine)
		for _, entry := range history {
			block.WriteString(fmt.Sprintf("%sRevision %s  %s  %s%s\n",
				prefix, entry.Revision, entry.Date, entry.Author, suffix))
			comment := strings.ReplaceAll(entry.Comment, "@", "@@")
			for _, cl := range strings.Split(strings.TrimRight(comment, "\n"), "\n") {
				block.WriteString(prefix + cl + suffix + "\n")
			}
		}

		lns[i] = block.String()
		return strings.Join(lns, "")
	}
	return text
}

// IsDuplicateRevisionLog reports whether a check-in comment is exactly the
// MKSSI-generated placeholder left behind on an automatic branch-creation
// revision, used both by $Log$'s recursive chain and by the changeset
// builder (spec 4.7) to skip such revisions.
func IsDuplicateRevisionLog(log string) bool {
	return log == "Duplicate revision\n"
}
