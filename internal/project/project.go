// Package project parses MKSSI project manifests (project.pj / vpNNNN.pj):
// the per-revision file list and the `_mks_variant_projects` branches block.
package project

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/datalight/mkssi-fast-export/internal/branchname"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

// MemberType is the single-character file-list member type.
type MemberType byte

const (
	MemberArchive  MemberType = 'a' // tracked under RCS, revision given
	MemberOther    MemberType = 'f' // not tracked under RCS
	MemberIncluded MemberType = 'i' // included sub-project: unsupported
	MemberSub      MemberType = 's' // subscribed sub-project: unsupported
)

// FileEntry is one line of the manifest's file list.
type FileEntry struct {
	Path       string
	Type       MemberType
	Revision   rcsnum.Number // valid only when Type == MemberArchive
	VariantMks string        // raw "_mks_variant=..." suffix, if present
}

// BranchEntry is one line of the `_mks_variant_projects` block.
type BranchEntry struct {
	Revision     rcsnum.Number
	ManifestFile string
	BranchName   string
}

// GitRef sanitizes BranchName per the %HH-escape decoding and
// character-filtering rules MKSSI branch names require before they can
// serve as a Git ref name.
func (be BranchEntry) GitRef() (string, error) {
	return branchname.Sanitize(be.BranchName)
}

// Manifest is one parsed project.pj/vpNNNN.pj document.
type Manifest struct {
	Variant  bool // "--MKS Variant Project--" rather than "--MKS Project--"
	Revision rcsnum.Number
	Files    []FileEntry
	Branches []BranchEntry
}

// Parse reads one manifest document. expectedRevision is the revision this
// manifest is believed to be (from the RCS walker); a parsed `$Revision$`
// marker that disagrees is fatal, except that revision 1.1 is allowed to
// carry an unexpanded `$Revision$` token (the manifest was never checked
// out through keyword expansion at that point).
func Parse(text string, expectedRevision rcsnum.Number) (*Manifest, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, fmt.Errorf("project manifest: empty file")
	}

	m := &Manifest{Revision: expectedRevision}
	switch strings.TrimRight(lines[0], "\r") {
	case "--MKS Project--":
		m.Variant = false
	case "--MKS Variant Project--":
		m.Variant = true
	default:
		return nil, fmt.Errorf("project manifest: unrecognized header %q", lines[0])
	}

	if err := checkRevisionMarker(lines, expectedRevision); err != nil {
		return nil, err
	}

	i := findLine(lines, "EndOptions")
	if i == -1 {
		return nil, fmt.Errorf("project manifest: missing EndOptions marker")
	}
	i++
	for i < len(lines) {
		line := strings.TrimRight(lines[i], "\r")
		if line == "" {
			break
		}
		entry, err := parseFileLine(line)
		if err != nil {
			return nil, fmt.Errorf("project manifest: %w: %q", err, line)
		}
		m.Files = append(m.Files, entry)
		i++
	}

	for i < len(lines) {
		line := strings.TrimRight(lines[i], "\r")
		if strings.TrimSpace(line) == "block _mks_variant_projects" {
			i++
			for i < len(lines) && strings.TrimSpace(strings.TrimRight(lines[i], "\r")) != "end" {
				be, err := parseBranchLine(strings.TrimRight(lines[i], "\r"))
				if err != nil {
					return nil, fmt.Errorf("project manifest: %w: %q", err, lines[i])
				}
				m.Branches = append(m.Branches, be)
				i++
			}
			if i >= len(lines) {
				return nil, fmt.Errorf("project manifest: unterminated _mks_variant_projects block")
			}
			i++ // consume "end"
			continue
		}
		i++
	}

	return m, nil
}

func checkRevisionMarker(lines []string, expected rcsnum.Number) error {
	for _, l := range lines {
		idx := strings.Index(l, "$Revision:")
		if idx == -1 {
			continue
		}
		rest := l[idx+len("$Revision:"):]
		end := strings.IndexByte(rest, '$')
		if end == -1 {
			continue
		}
		rev := strings.TrimSpace(rest[:end])
		parsed, err := rcsnum.Parse(rev)
		if err != nil {
			return fmt.Errorf("project manifest: unparsable $Revision$ marker %q", rev)
		}
		if !rcsnum.Equal(parsed, expected) {
			return fmt.Errorf("project manifest: $Revision$ marker %s does not match expected revision %s", parsed, expected)
		}
		return nil
	}
	is11 := expected.Len() == 2 && expected.Component(1) == 1
	if is11 {
		return nil
	}
	return fmt.Errorf("project manifest: missing $Revision$ marker")
}

// parseFileLine parses one file-list line:
//
//	["] $(projectdir)/ <path> ["] <type> [<rev>] [_mks_variant=...]
func parseFileLine(line string) (FileEntry, error) {
	s := strings.TrimSpace(line)
	s = strings.TrimPrefix(s, `"`)
	const marker = "$(projectdir)/"
	idx := strings.Index(s, marker)
	if idx == -1 {
		return FileEntry{}, fmt.Errorf("expected $(projectdir)/ prefix")
	}
	s = s[idx+len(marker):]

	path, rest, err := readPathComponent(s)
	if err != nil {
		return FileEntry{}, err
	}

	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return FileEntry{}, fmt.Errorf("missing member type")
	}
	typeField := fields[0]
	if len(typeField) != 1 {
		return FileEntry{}, fmt.Errorf("malformed member type %q", typeField)
	}

	entry := FileEntry{Path: path, Type: MemberType(typeField[0])}
	switch entry.Type {
	case MemberArchive:
		if len(fields) < 2 {
			return FileEntry{}, fmt.Errorf("archive member missing revision")
		}
		rev, err := rcsnum.Parse(fields[1])
		if err != nil {
			return FileEntry{}, fmt.Errorf("bad revision %q", fields[1])
		}
		entry.Revision = rev
		if len(fields) > 2 {
			entry.VariantMks = strings.Join(fields[2:], " ")
		}
	case MemberOther:
		if len(fields) > 1 {
			entry.VariantMks = strings.Join(fields[1:], " ")
		}
	case MemberIncluded:
		return FileEntry{}, fmt.Errorf("included sub-projects are not supported")
	case MemberSub:
		return FileEntry{}, fmt.Errorf("subscribed sub-projects are not supported")
	default:
		return FileEntry{}, fmt.Errorf("unrecognized member type %q", typeField)
	}
	return entry, nil
}

// readPathComponent consumes a (possibly double-quoted, possibly
// multi-component) path off the front of s and returns it plus whatever
// follows.
func readPathComponent(s string) (string, string, error) {
	if strings.HasPrefix(s, `"`) {
		end := strings.IndexByte(s[1:], '"')
		if end == -1 {
			return "", "", fmt.Errorf("unterminated quoted path")
		}
		return s[1 : 1+end], strings.TrimSpace(s[1+end+1:]), nil
	}
	sp := strings.IndexByte(s, ' ')
	if sp == -1 {
		return "", "", fmt.Errorf("missing member type after path")
	}
	return s[:sp], strings.TrimSpace(s[sp+1:]), nil
}

// parseBranchLine parses "<rev>=<vpNNNN.pj>, \"<branch-name>\"".
func parseBranchLine(line string) (BranchEntry, error) {
	s := strings.TrimSpace(line)
	eq := strings.IndexByte(s, '=')
	if eq == -1 {
		return BranchEntry{}, fmt.Errorf("expected '<rev>=<file>, \"<name>\"'")
	}
	rev, err := rcsnum.Parse(strings.TrimSpace(s[:eq]))
	if err != nil {
		return BranchEntry{}, fmt.Errorf("bad branch revision: %w", err)
	}
	rest := s[eq+1:]
	comma := strings.IndexByte(rest, ',')
	if comma == -1 {
		return BranchEntry{}, fmt.Errorf("expected ',' after manifest filename")
	}
	manifestFile := strings.TrimSpace(rest[:comma])
	nameField := strings.TrimSpace(rest[comma+1:])
	nameField = strings.TrimPrefix(nameField, `"`)
	nameField = strings.TrimSuffix(nameField, `"`)
	return BranchEntry{Revision: rev, ManifestFile: manifestFile, BranchName: nameField}, nil
}

func splitLines(text string) []string {
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	return out
}

func findLine(lines []string, target string) int {
	for i, l := range lines {
		if strings.TrimRight(l, "\r") == target {
			return i
		}
	}
	return -1
}
