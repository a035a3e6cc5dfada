// Package rcs holds the in-memory data model shared by every later stage
// of the conversion: one RcsFile per master, its versions and patches, and
// the manifest-derived FileChange/GitCommit shapes that the changeset
// builder and commit merger operate on.
package rcs

import (
	"time"

	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

// Timestamp pairs the parsed instant with its verbatim MKSSI textual
// rendering, since keyword expansion must reproduce the original string
// byte for byte rather than reformat the parsed time.
type Timestamp struct {
	When time.Time
	Text string // "YYYY/MM/DD HH:MM:SSZ"
}

// Lock records one locked revision.
type Lock struct {
	Locker   string
	Revision rcsnum.Number
}

// Version is the metadata of one revision of one RCS file.
type Version struct {
	Number   rcsnum.Number
	Time     Timestamp
	Author   string
	State    string
	Parent   rcsnum.Number // next link in the ,v chain; empty if none
	Branches []rcsnum.Number

	Checkpointed bool // referenced by at least one project manifest
	Executable   bool // derived from reconstructed content
	JIT          bool // must be re-exported per referencing project revision
	KWName       bool
	KWPath       bool
	KWProjRev    bool

	BlobMark int // 0 until assigned at emission
}

// Patch is the per-revision check-in comment plus a reference to the
// revision's `@`-delimited text body inside the RCS master.
type Patch struct {
	Number rcsnum.Number
	Log    string
	Offset int64 // byte offset of the body within the master file
	Length int64
	Missing bool // this patch or an antecedent is unrecoverable
}

// File is one RCS master.
type File struct {
	Name         string // relative path; mutated as canonical capitalization is learned
	MasterPath   string // absolute path to the ,v file
	Head         rcsnum.Number
	DefaultBranch rcsnum.Number // empty if none

	Symbols  map[string]rcsnum.Number
	Versions []*Version
	Patches  []*Patch
	Locks    []Lock

	Binary             bool
	Corrupt            bool
	Dummy              bool // in the project tree but no RCS master
	HasMemberTypeOther bool

	PathChanges int
	NameChanges int

	OtherBlobMark int // mark of the separately emitted unexpanded blob
}

// VersionByNumber returns the Version matching num, or nil.
func (f *File) VersionByNumber(num rcsnum.Number) *Version {
	for _, v := range f.Versions {
		if rcsnum.Equal(v.Number, num) {
			return v
		}
	}
	return nil
}

// PatchByNumber returns the Patch matching num, or nil.
func (f *File) PatchByNumber(num rcsnum.Number) *Patch {
	for _, p := range f.Patches {
		if rcsnum.Equal(p.Number, num) {
			return p
		}
	}
	return nil
}

// FileRevision is one element of a resolved manifest: the owning File and
// the specific revision it references at this point in project history,
// with a canonical path that may differ from File.Name in capitalization
// within this one manifest.
type FileRevision struct {
	File            *File
	Revision        rcsnum.Number
	Version         *Version
	CanonicalPath   string
	MemberTypeOther bool
}

// Branch is one MKSSI branch discovered from a project manifest's
// `_mks_variant_projects` block: a sanitized git ref name, the vpNNNN.pj
// manifest file it names, and the trunk revision it forks from.
type Branch struct {
	Name          string // sanitized, Git-legal
	ManifestFile  string // vpNNNN.pj source
	StartRevision rcsnum.Number
	CommitCount   int
}

// ChangeKind identifies what a FileChange represents.
type ChangeKind int

const (
	ChangeRename ChangeKind = iota
	ChangeAdd
	ChangeUpdate
	ChangeDelete
)

// FileChange is one element of a commit's change set.
type FileChange struct {
	Kind ChangeKind

	File *File // nil for a directory rename

	NewPath string
	OldPath string // renames only

	OldRevision rcsnum.Number
	NewRevision rcsnum.Number

	MemberTypeOther bool
	ProjrevUpdate   bool // synthetic update triggered only by $ProjectRevision$ bumping

	// PriorManifest snapshots the file-revision list as it stood before a
	// rename, so keyword re-expansion of moved files can be re-queued.
	PriorManifest []*FileRevision
}

// Commit is one emitted git commit: a set of changes sharing an author and
// message, scoped to one branch.
type Commit struct {
	Branch    string
	Author    string
	Email     string
	Time      Timestamp
	Message   string

	Renames []*FileChange
	Adds    []*FileChange
	Updates []*FileChange
	Deletes []*FileChange
}

// IsEmpty reports whether a Commit has no changes of any kind.
func (c *Commit) IsEmpty() bool {
	return len(c.Renames) == 0 && len(c.Adds) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0
}
