package rcs

import (
	"bytes"
	"fmt"

	"github.com/datalight/mkssi-fast-export/internal/lines"
	"github.com/datalight/mkssi-fast-export/internal/patch"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

// HeadContent returns the head revision's content exactly as stored: the
// RCS master keeps the head revision as full text (or full bytes, for a
// binary file) rather than a diff, so no patch application is involved,
// only the at-sign unescape for text files.
func HeadContent(f *File, masterBody []byte) ([]byte, error) {
	p := f.PatchByNumber(f.Head)
	if p == nil {
		return nil, fmt.Errorf("rcs: %s: no stored text for head revision %s", f.Name, f.Head)
	}
	if p.Missing {
		return nil, nil
	}
	raw := masterBody[p.Offset : p.Offset+p.Length]
	if f.Binary {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}
	return []byte(patch.UnescapeAts(string(raw))), nil
}

// VisitFunc is invoked once per reconstructed revision body. memberTypeOther
// is true for the extra "unexpanded / from-project-dir" emission the walker
// produces alongside a normal head or 1.1 revision when the file is flagged
// HasMemberTypeOther.
type VisitFunc func(file *File, rev rcsnum.Number, content []byte, memberTypeOther bool) error

// Walk reconstructs every revision of f and invokes visit for each one. It
// starts at head (whose content is headText verbatim) and walks backward
// along each Version's Parent link, applying that revision's stored patch
// to go from the content at revision N to the content at revision N's
// parent. At every node it also recurses into each of that revision's
// Branches, handing the recursion an independent deep copy of the content
// reached at the fork so that sibling branches never share mutable state.
//
// masterBody is the raw RCS master file; each patch's script is sliced out
// of it via the stored Offset/Length.
func Walk(f *File, headText []byte, masterBody []byte, visit VisitFunc) error {
	if f.Head.Empty() {
		return nil
	}
	byNumber := make(map[string]*Version, len(f.Versions))
	for _, v := range f.Versions {
		byNumber[v.Number.String()] = v
	}
	head, ok := byNumber[f.Head.String()]
	if !ok {
		return fmt.Errorf("rcs: head revision %s has no version record", f.Head)
	}
	return walkChain(f, head, headText, masterBody, byNumber, visit, false)
}

// walkChain walks one spine (trunk, or one branch) starting at ver whose
// reconstructed content is already content. missing reports that a patch
// on the way to ver was flagged Missing; once set, every revision walked
// from there on (and every branch forked from it) gets nil content.
func walkChain(f *File, ver *Version, content []byte, masterBody []byte, byNumber map[string]*Version, visit VisitFunc, missing bool) error {
	for ver != nil {
		p := f.PatchByNumber(ver.Number)
		missing = missing || (p != nil && p.Missing)
		if missing {
			content = nil
		}

		if err := emit(f, ver, content, false, visit); err != nil {
			return err
		}
		// The extra unexpanded/from-project-dir emission is restricted to
		// text files and fires once per revision even when head and 1.1 are
		// the same revision.
		is11 := ver.Number.Len() == 2 && ver.Number.Component(1) == 1
		if f.HasMemberTypeOther && !f.Binary && (is11 || rcsnum.Equal(ver.Number, f.Head)) {
			if err := emit(f, ver, content, true, visit); err != nil {
				return err
			}
		}

		for _, branchStart := range ver.Branches {
			branchVer, ok := byNumber[branchStart.String()]
			if !ok {
				continue
			}
			branchContent := append([]byte(nil), content...)
			next, err := applyChild(f, branchVer, branchContent, masterBody, missing)
			if err != nil {
				return err
			}
			if err := walkChain(f, branchVer, next, masterBody, byNumber, visit, missing); err != nil {
				return err
			}
		}

		if ver.Parent.Empty() {
			return nil
		}
		parent, ok := byNumber[ver.Parent.String()]
		if !ok {
			return nil
		}
		next, err := applyChild(f, parent, content, masterBody, missing)
		if err != nil {
			return err
		}
		content = next
		ver = parent
	}
	return nil
}

// applyChild reconstructs the content at child by applying child's own
// stored patch to parentContent, the content at the revision child links
// to (its Parent, or the revision it branches from).
func applyChild(f *File, child *Version, parentContent []byte, masterBody []byte, parentMissing bool) ([]byte, error) {
	childPatch := f.PatchByNumber(child.Number)
	if parentMissing || childPatch == nil || childPatch.Missing {
		return nil, nil
	}
	script := masterBody[childPatch.Offset : childPatch.Offset+childPatch.Length]

	if f.Binary {
		out, err := patch.ApplyBinary(parentContent, script)
		if err != nil {
			return nil, fmt.Errorf("rcs: %s rev %s: %w", f.Name, child.Number, err)
		}
		return out, nil
	}

	unescaped := patch.UnescapeAts(string(script))
	buf := lines.FromString(string(parentContent))
	if err := patch.ApplyText(buf, unescaped); err != nil {
		return nil, fmt.Errorf("rcs: %s rev %s: %w", f.Name, child.Number, err)
	}
	return []byte(buf.String()), nil
}

func emit(f *File, ver *Version, content []byte, memberTypeOther bool, visit VisitFunc) error {
	ver.Executable = isExecutable(content, f.Name)
	return visit(f, ver.Number, content, memberTypeOther)
}

var scriptExtensions = []string{".sh", ".bash", ".csh", ".pl", ".py", ".rb"}

// isExecutable applies the three recognised heuristics: a shebang line, a
// recognised script extension, or an ELF magic number. Nothing else counts.
func isExecutable(content []byte, name string) bool {
	if bytes.HasPrefix(content, []byte("#!")) {
		return true
	}
	if bytes.HasPrefix(content, []byte{0x7F, 'E', 'L', 'F'}) {
		return true
	}
	for _, ext := range scriptExtensions {
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			return true
		}
	}
	return false
}
