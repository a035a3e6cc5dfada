// Package commitmerge groups one project revision's changeset.Changes into
// the git commits that will actually be emitted, batching consecutive
// changes that share an author and a synthesized commit message.
package commitmerge

import (
	"fmt"
	"strings"
	"time"

	"github.com/datalight/mkssi-fast-export/internal/author"
	"github.com/datalight/mkssi-fast-export/internal/changeset"
	"github.com/datalight/mkssi-fast-export/internal/rcs"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

const msgPrefix = "#mkssi: "
const msgMissing = "Unrecoverable: one or more revisions could not be reconstructed from the RCS master.\n"

// unknownAuthor is used for merge commits the tool itself synthesizes
// rather than attributes to any single MKSSI check-in: deletes, and
// updates caused by a revert where no single author's commit covers the
// whole batch.
const unknownAuthor = "Unknown"

// toolAuthorName/toolAuthorEmail identify the tool itself as the committer
// of synthesized rename commits (spec 4.9: "each authored by the synthetic
// tool identity"), distinct from both any MKSSI check-in author and the
// Unknown fallback used for deletes/reverts.
const toolAuthorName = "mkssi-fast-export"
const toolAuthorEmail = "mkssi-fast-export@localhost"

// msgDirRename and msgFileRename are the fixed explanatory messages for the
// two rename commits spec 4.9 describes, reproducing MKSSI's own reasoning
// for why an implicit rename is needed at all (directories/files can only
// change capitalization in MKSSI's case-preserving-insensitive storage;
// Git is case-sensitive and needs an explicit rename to represent that).
const msgDirRename = `Implicit rename to change directory name capitalization

This commit has been automatically generated to represent an implicit change to
the capitalization of a directory name within the MKSSI project.  Git (unlike
MKSSI) is case sensitive; changing directory name capitalization requires
renaming the files within that directory.
`

const msgFileRename = `Implicit rename to change file name capitalization

This commit has been automatically generated to represent an implicit change to
the capitalization of a file name within the MKSSI project.  Git (unlike MKSSI)
is case-sensitive; changing file name capitalization requires renaming the file.
`

// Merge turns one project revision's Changes into zero or more commits on
// branch, in the fixed order renames, adds, updates, deletes (spec 4.9).
// when is the referencing manifest revision's own timestamp (t_new), used
// directly for renames/deletes and as the fallback for adds/updates whose
// member revisions carry no resolvable date of their own (dummy files).
func Merge(c *changeset.Changes, branch string, authors *author.Map, revLabel string, when time.Time) []*rcs.Commit {
	var commits []*rcs.Commit
	commits = append(commits, mergeRenames(c.Renames, branch, when)...)
	commits = append(commits, mergeAdds(c.Adds, branch, authors, revLabel, when)...)
	commits = append(commits, mergeUpdates(c.Updates, branch, authors, revLabel, when)...)
	commits = append(commits, mergeDeletes(c.Deletes, branch, revLabel, when)...)
	return commits
}

// mergeRenames splits one project revision's renames into at most two
// commits, directory renames first (spec 4.9/8's property 8): a directory
// rename commit, then a file rename commit, both authored by the tool's own
// synthetic identity rather than any MKSSI check-in author. A directory
// rename is a FileChange with no File pointer (rcs.FileChange.File's
// "nil for a directory rename" convention); anything else is a file rename.
//
// After each commit's rename list is fixed, appendDirectoryRenameJIT /
// appendFileRenameJIT re-export any
// file whose current version carries name/path keywords under its new
// path, so the keyword expansion the blob already carries is re-queued for
// the path it was actually checked out under (spec 4.9/4.11).
func mergeRenames(changes []*rcs.FileChange, branch string, when time.Time) []*rcs.Commit {
	if len(changes) == 0 {
		return nil
	}
	var dirRenames, fileRenames []*rcs.FileChange
	for _, fc := range changes {
		if fc.File == nil {
			dirRenames = append(dirRenames, fc)
		} else {
			fileRenames = append(fileRenames, fc)
		}
	}

	var commits []*rcs.Commit
	if len(dirRenames) > 0 {
		c := &rcs.Commit{
			Branch: branch, Author: toolAuthorName, Email: toolAuthorEmail,
			Time: rcs.Timestamp{When: when}, Message: msgDirRename,
			Renames: dirRenames,
		}
		appendDirectoryRenameJIT(c, dirRenames)
		commits = append(commits, c)
	}
	if len(fileRenames) > 0 {
		c := &rcs.Commit{
			Branch: branch, Author: toolAuthorName, Email: toolAuthorEmail,
			Time: rcs.Timestamp{When: when}, Message: msgFileRename,
			Renames: fileRenames,
		}
		appendFileRenameJIT(c, fileRenames)
		commits = append(commits, c)
	}
	return commits
}

// appendFileRenameJIT implements the file-rename half of spec 4.9's JIT
// re-export: for every renamed file whose current version has KWName or
// KWPath set, append an update that re-exports that same revision under
// its new path.
func appendFileRenameJIT(c *rcs.Commit, renames []*rcs.FileChange) {
	for _, r := range renames {
		ver := r.File.VersionByNumber(r.NewRevision)
		if ver == nil || (!ver.KWName && !ver.KWPath) {
			continue
		}
		c.Updates = append(c.Updates, &rcs.FileChange{
			Kind: rcs.ChangeUpdate, File: r.File, NewPath: r.NewPath,
			OldRevision: r.NewRevision, NewRevision: r.NewRevision,
		})
	}
}

// appendDirectoryRenameJIT implements the directory-rename half: for every
// file that lived inside a renamed directory (per its PriorManifest
// snapshot) and whose current version has KWPath set, append a re-export
// update under the new directory. When a file's directory matches more
// than one renamed prefix (nested renames), the longest matching prefix
// wins, matching spec 4.9's "pick the longest matching rename".
func appendDirectoryRenameJIT(c *rcs.Commit, dirRenames []*rcs.FileChange) {
	seen := make(map[*rcs.File]bool)
	for _, dr := range dirRenames {
		for _, fr := range dr.PriorManifest {
			if seen[fr.File] || fr.Version == nil || !fr.Version.KWPath {
				continue
			}
			dir, base := dirAndBase(fr.CanonicalPath)
			best := matchingDirRename(dirRenames, dir)
			if best == nil {
				continue
			}
			seen[fr.File] = true
			newDir := best.NewPath + dir[len(best.OldPath):]
			newPath := newDir
			if base != "" {
				newPath = newDir + "/" + base
			}
			c.Updates = append(c.Updates, &rcs.FileChange{
				Kind: rcs.ChangeUpdate, File: fr.File, NewPath: newPath,
				OldRevision: fr.Revision, NewRevision: fr.Revision,
			})
		}
	}
}

// matchingDirRename returns the directory rename among dirRenames whose
// OldPath is the longest case-insensitive prefix match of dir, or nil.
func matchingDirRename(dirRenames []*rcs.FileChange, dir string) *rcs.FileChange {
	var best *rcs.FileChange
	lowerDir := strings.ToLower(dir)
	for _, dr := range dirRenames {
		lowerOld := strings.ToLower(dr.OldPath)
		if lowerDir != lowerOld && !strings.HasPrefix(lowerDir, lowerOld+"/") {
			continue
		}
		if best == nil || len(dr.OldPath) > len(best.OldPath) {
			best = dr
		}
	}
	return best
}

// dirAndBase splits a canonical path into its parent directory (empty for a
// top-level path) and final component.
func dirAndBase(p string) (dir, base string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

func mergeAdds(changes []*rcs.FileChange, branch string, authors *author.Map, revLabel string, when time.Time) []*rcs.Commit {
	if len(changes) == 0 {
		return nil
	}
	var commits []*rcs.Commit
	i := 0
	for i < len(changes) {
		fc := changes[i]
		ver := fc.File.VersionByNumber(fc.NewRevision)
		patch := fc.File.PatchByNumber(fc.NewRevision)
		if ver == nil || patch == nil || patch.Missing {
			// Unrecoverable adds stand alone, one commit each, attributed
			// to Unknown (merge_adds stops batching at a missing patch).
			commits = append(commits, &rcs.Commit{
				Branch: branch, Author: unknownAuthor,
				Time:    rcs.Timestamp{When: when},
				Message: msgPrefix + msgMissing,
				Adds:    []*rcs.FileChange{fc},
			})
			i++
			continue
		}
		a := ver.Author
		batch := []*rcs.FileChange{fc}
		j := i + 1
		for j < len(changes) {
			nfc := changes[j]
			nver := nfc.File.VersionByNumber(nfc.NewRevision)
			npatch := nfc.File.PatchByNumber(nfc.NewRevision)
			if nver == nil || npatch == nil || npatch.Missing || !strings.EqualFold(nver.Author, a) {
				break
			}
			batch = append(batch, nfc)
			j++
		}
		id := authors.Resolve(a)
		commits = append(commits, &rcs.Commit{
			Branch: branch, Author: id.Name, Email: id.Email,
			Time:    rcs.Timestamp{When: maxRevisionTime(batch, when)},
			Message: addMessage(batch, revLabel),
			Adds:    batch,
		})
		i = j
	}
	return commits
}

func mergeUpdates(changes []*rcs.FileChange, branch string, authors *author.Map, revLabel string, when time.Time) []*rcs.Commit {
	if len(changes) == 0 {
		return nil
	}
	batches := batchByAuthor(changes, func(fc *rcs.FileChange) string {
		if isRevert(fc) {
			return unknownAuthor
		}
		return revisionAuthor(fc.File, fc.NewRevision)
	})
	var commits []*rcs.Commit
	for _, b := range batches {
		if b.author == unknownAuthor {
			for _, fc := range b.changes {
				commits = append(commits, &rcs.Commit{
					Branch: branch, Author: unknownAuthor,
					Time:    rcs.Timestamp{When: maxRevisionTime([]*rcs.FileChange{fc}, when)},
					Message: updateMessage([]*rcs.FileChange{fc}, revLabel),
					Updates: []*rcs.FileChange{fc},
				})
			}
			continue
		}
		id := authors.Resolve(b.author)
		commits = append(commits, &rcs.Commit{
			Branch: branch, Author: id.Name, Email: id.Email,
			Time:    rcs.Timestamp{When: maxRevisionTime(b.changes, when)},
			Message: updateMessage(b.changes, revLabel),
			Updates: b.changes,
		})
	}
	return commits
}

func mergeDeletes(changes []*rcs.FileChange, branch string, revLabel string, when time.Time) []*rcs.Commit {
	if len(changes) == 0 {
		return nil
	}
	return []*rcs.Commit{{
		Branch: branch, Author: unknownAuthor,
		Time:    rcs.Timestamp{When: when},
		Message: deleteMessage(changes, revLabel),
		Deletes: changes,
	}}
}

// maxRevisionTime returns the latest check-in date among changes' resolved
// new-revision versions, falling back to fallback when no member resolves
// (dummy files have no RCS version to date).
func maxRevisionTime(changes []*rcs.FileChange, fallback time.Time) time.Time {
	max := time.Time{}
	for _, fc := range changes {
		if fc.File == nil {
			continue
		}
		if v := fc.File.VersionByNumber(fc.NewRevision); v != nil && v.Time.When.After(max) {
			max = v.Time.When
		}
	}
	if max.IsZero() {
		return fallback
	}
	return max
}

// isRevert reports whether an update moves a file backward in revision
// number, a reconstruction of a prior manifest state that merge.c
// attributes to Unknown rather than whichever author happened to own the
// target revision.
func isRevert(fc *rcs.FileChange) bool {
	return rcsnum.Compare(fc.NewRevision, fc.OldRevision) < 0
}

func revisionAuthor(f *rcs.File, rev rcsnum.Number) string {
	for _, v := range f.Versions {
		if rcsnum.Equal(v.Number, rev) {
			return v.Author
		}
	}
	return unknownAuthor
}

type authorBatch struct {
	author  string
	changes []*rcs.FileChange
}

func batchByAuthor(changes []*rcs.FileChange, authorOf func(*rcs.FileChange) string) []authorBatch {
	var batches []authorBatch
	for _, fc := range changes {
		a := authorOf(fc)
		if len(batches) > 0 && strings.EqualFold(batches[len(batches)-1].author, a) {
			last := &batches[len(batches)-1]
			last.changes = append(last.changes, fc)
			continue
		}
		batches = append(batches, authorBatch{author: a, changes: []*rcs.FileChange{fc}})
	}
	return batches
}

func fileLabel(fc *rcs.FileChange, rev rcsnum.Number) string {
	return fmt.Sprintf("%s rev. %s", fc.NewPath, rev.String())
}

func addMessage(changes []*rcs.FileChange, revLabel string) string {
	var b strings.Builder
	b.WriteString(msgPrefix + "add, project revision " + revLabel + "\n\n")
	for _, fc := range changes {
		b.WriteString(fileLabel(fc, fc.NewRevision) + "\n")
	}
	return b.String()
}

func updateMessage(changes []*rcs.FileChange, revLabel string) string {
	var b strings.Builder
	b.WriteString(msgPrefix + "update, project revision " + revLabel + "\n\n")
	for _, fc := range changes {
		b.WriteString(fileLabel(fc, fc.NewRevision) + "\n")
	}
	return b.String()
}

func deleteMessage(changes []*rcs.FileChange, revLabel string) string {
	var b strings.Builder
	b.WriteString(msgPrefix + "delete, project revision " + revLabel + "\n\n")
	for _, fc := range changes {
		b.WriteString(fc.OldPath + "\n")
	}
	return b.String()
}
