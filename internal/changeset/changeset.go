// Package changeset compares two resolved manifests (the file-revision
// list before and after one project revision) and produces the set of
// renames, adds, updates, and deletes between them.
package changeset

import (
	"sort"
	"strings"
	"time"

	"github.com/datalight/mkssi-fast-export/internal/keyword"
	"github.com/datalight/mkssi-fast-export/internal/rcs"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

// Changes is one project revision's worth of file changes, already split
// into the four kinds a GitCommit carries.
type Changes struct {
	Renames []*rcs.FileChange
	Adds    []*rcs.FileChange
	Updates []*rcs.FileChange
	Deletes []*rcs.FileChange
}

// Build compares old (the manifest before this project revision) against
// next (the manifest after), returning the changes between them. exportingTip
// gates the synthetic $ProjectRevision$ update: such updates are generated
// for every manifest except a tip (exportingTip true inhibits them).
// tOld/tNew are the two manifests' own
// timestamps (spec 4.7's t_old/t_new), used by the adjust-adds/adjust-deletes
// backward/forward walks below; a zero time.Time means "no manifest on that
// side" (the very first or very last project revision) and disables the
// corresponding date bound rather than rejecting every candidate.
func Build(old, next []*rcs.FileRevision, exportingTip bool, projRev string, tOld, tNew time.Time) *Changes {
	c := &Changes{}

	oldByFile := indexByFile(old)
	newByFile := indexByFile(next)

	// Directory renames are detected first, over the whole manifest pair,
	// so the per-file pass below can tell a bare directory-capitalization
	// change (covered entirely by the directory rename's R line) apart
	// from an actual file-name capitalization change.
	dirRenames, dirResolved := directoryRenames(old, next)
	c.Renames = append(c.Renames, dirRenames...)

	var adds, deletes []*rcs.FileChange

	for _, nfr := range next {
		ofr, existed := oldByFile[nfr.File]
		switch {
		case !existed:
			adds = append(adds, &rcs.FileChange{
				Kind: rcs.ChangeAdd, File: nfr.File, NewPath: nfr.CanonicalPath,
				NewRevision: nfr.Revision, MemberTypeOther: nfr.MemberTypeOther,
			})
		case !rcsnum.Equal(ofr.Revision, nfr.Revision):
			c.Updates = append(c.Updates, &rcs.FileChange{
				Kind: rcs.ChangeUpdate, File: nfr.File, NewPath: nfr.CanonicalPath,
				OldRevision: ofr.Revision, NewRevision: nfr.Revision, MemberTypeOther: nfr.MemberTypeOther,
			})
		case ofr.CanonicalPath != nfr.CanonicalPath:
			if oldDir, oldBase := dirAndBase(ofr.CanonicalPath); true {
				newDir, newBase := dirAndBase(nfr.CanonicalPath)
				effectiveOldDir := oldDir
				if rp, ok := dirResolved[strings.ToLower(oldDir)]; ok {
					effectiveOldDir = rp
				}
				if effectiveOldDir == newDir && oldBase != newBase {
					c.Renames = append(c.Renames, &rcs.FileChange{
						Kind: rcs.ChangeRename, File: nfr.File,
						NewPath: nfr.CanonicalPath, OldPath: ofr.CanonicalPath,
						NewRevision: nfr.Revision, PriorManifest: old,
					})
				}
				// Otherwise the move is fully explained by a directory
				// rename already recorded above; no separate FileChange
				// is needed (the directory's R line covers it).
			}
		case !exportingTip && nfr.Version != nil && nfr.Version.KWProjRev:
			c.Updates = append(c.Updates, &rcs.FileChange{
				Kind: rcs.ChangeUpdate, File: nfr.File, NewPath: nfr.CanonicalPath,
				OldRevision: ofr.Revision, NewRevision: nfr.Revision,
				MemberTypeOther: nfr.MemberTypeOther, ProjrevUpdate: true,
			})
		}
	}

	for _, ofr := range old {
		if _, stillPresent := newByFile[ofr.File]; !stillPresent {
			deletes = append(deletes, &rcs.FileChange{
				Kind: rcs.ChangeDelete, File: ofr.File, OldPath: ofr.CanonicalPath, OldRevision: ofr.Revision,
			})
		}
	}

	adds, deletes = adjustDeletesForRenames(adds, deletes, c)

	// adjustAdds/adjustDeletes return their intermediate updates mixed in
	// with the adds/deletes; route each change to the list of its kind.
	for _, fc := range append(adjustAdds(adds, tOld), adjustDeletes(deletes, tNew)...) {
		switch fc.Kind {
		case rcs.ChangeAdd:
			c.Adds = append(c.Adds, fc)
		case rcs.ChangeDelete:
			c.Deletes = append(c.Deletes, fc)
		default:
			c.Updates = append(c.Updates, fc)
		}
	}
	c.Updates = adjustUpdates(c.Updates)

	sortByName(c.Renames, func(f *rcs.FileChange) string { return f.NewPath })
	sortByDate(c.Adds, false)
	sortByDate(c.Updates, true)
	sortByName(c.Deletes, func(f *rcs.FileChange) string { return f.OldPath })

	return c
}

// maxTimestamp is the sentinel "infinitely late" date used to sort a dummy
// file's add/update last, per spec 4.7's final sort-order paragraph.
var maxTimestamp = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// changeDate is the date a FileChange sorts by: the date of the revision it
// introduces (NewRevision), or maxTimestamp for a dummy file or an
// unresolvable version (spec 4.7's "Dummy files sort last").
func changeDate(fc *rcs.FileChange) time.Time {
	if fc.File == nil || fc.File.Dummy {
		return maxTimestamp
	}
	v := fc.File.VersionByNumber(fc.NewRevision)
	if v == nil {
		return maxTimestamp
	}
	return v.Time.When
}

// sortByDate orders changes the way changeset.c's compare_by_date (and,
// for updates, the subsequent compare_by_rev pass) does: primarily by the
// introduced revision's date, ascending. Ties are broken by path, and
// (updates only) by NewRevision ascending within one path, so sibling
// updates of the same file that share a date keep revision order (spec
// 4.7's sort-order paragraph).
func sortByDate(changes []*rcs.FileChange, byRevision bool) {
	sort.SliceStable(changes, func(i, j int) bool {
		a, b := changes[i], changes[j]
		da, db := changeDate(a), changeDate(b)
		if !da.Equal(db) {
			return da.Before(db)
		}
		if a.NewPath != b.NewPath {
			return a.NewPath < b.NewPath
		}
		if byRevision {
			return rcsnum.Compare(a.NewRevision, b.NewRevision) < 0
		}
		return false
	})
}

// adjustDeletesForRenames detects the case where adjust_deletes_for_renames
// in the original handles explicitly: a file that disappeared from one
// path in the old manifest and reappeared at a new path, at the same
// revision, with no RCS update involved at all. Such add/delete pairs are
// folded into a single rename rather than emitted as a delete-then-add.
func adjustDeletesForRenames(adds, deletes []*rcs.FileChange, c *Changes) ([]*rcs.FileChange, []*rcs.FileChange) {
	var remainingAdds, remainingDeletes []*rcs.FileChange
	usedDeletes := make(map[int]bool)

	for _, a := range adds {
		matched := false
		for di, d := range deletes {
			if usedDeletes[di] {
				continue
			}
			if d.File == a.File && rcsnum.Equal(d.OldRevision, a.NewRevision) {
				c.Renames = append(c.Renames, &rcs.FileChange{
					Kind: rcs.ChangeRename, File: a.File,
					NewPath: a.NewPath, OldPath: d.OldPath,
					NewRevision: a.NewRevision, MemberTypeOther: a.MemberTypeOther,
				})
				usedDeletes[di] = true
				matched = true
				break
			}
		}
		if !matched {
			remainingAdds = append(remainingAdds, a)
		}
	}
	for di, d := range deletes {
		if !usedDeletes[di] {
			remainingDeletes = append(remainingDeletes, d)
		}
	}
	return remainingAdds, remainingDeletes
}

// adjustAdds mirrors spec 4.7's "adjust adds" pass: MKSSI sometimes
// "adds" a file at a later revision than 1.1 because it was created,
// edited, and only then first checkpointed. Walk backward from the add's
// revision as long as the predecessor exists, was never checkpointed, and
// postdates tOld (no lower bound at all when tOld is zero, i.e. this is the
// very first project revision); reassign the add to the earliest such
// predecessor and emit one update per skipped intermediate revision.
func adjustAdds(adds []*rcs.FileChange, tOld time.Time) []*rcs.FileChange {
	out := make([]*rcs.FileChange, 0, len(adds))
	for _, a := range adds {
		if a.File == nil || a.NewRevision.Empty() {
			out = append(out, a)
			continue
		}
		chain := []rcsnum.Number{a.NewRevision}
		cur := a.NewRevision
		for {
			pred, ok := rcsnum.Decrement(cur)
			if !ok {
				break
			}
			pv := a.File.VersionByNumber(pred)
			if pv == nil || pv.Checkpointed {
				break
			}
			if !tOld.IsZero() && !pv.Time.When.After(tOld) {
				break
			}
			chain = append(chain, pred)
			cur = pred
		}
		if len(chain) == 1 {
			out = append(out, a)
			continue
		}
		earliest := chain[len(chain)-1]
		out = append(out, &rcs.FileChange{
			Kind: rcs.ChangeAdd, File: a.File, NewPath: a.NewPath,
			NewRevision: earliest, MemberTypeOther: a.MemberTypeOther,
		})
		for i := len(chain) - 2; i >= 0; i-- {
			out = append(out, &rcs.FileChange{
				Kind: rcs.ChangeUpdate, File: a.File, NewPath: a.NewPath,
				OldRevision: chain[i+1], NewRevision: chain[i], MemberTypeOther: a.MemberTypeOther,
			})
		}
	}
	return out
}

// adjustDeletes mirrors spec 4.7's "adjust deletes" pass: walk forward from
// the delete's revision as long as the successor exists, was never
// checkpointed, and predates (or equals) tNew; emit one update per skipped
// intermediate revision and move the delete itself to the latest such
// successor.
func adjustDeletes(deletes []*rcs.FileChange, tNew time.Time) []*rcs.FileChange {
	out := make([]*rcs.FileChange, 0, len(deletes))
	for _, d0 := range deletes {
		if d0.File == nil || d0.OldRevision.Empty() {
			out = append(out, d0)
			continue
		}
		chain := []rcsnum.Number{d0.OldRevision}
		cur := d0.OldRevision
		for {
			next := rcsnum.Increment(cur)
			nv := d0.File.VersionByNumber(next)
			if nv == nil || nv.Checkpointed {
				break
			}
			if !tNew.IsZero() && nv.Time.When.After(tNew) {
				break
			}
			chain = append(chain, next)
			cur = next
		}
		if len(chain) == 1 {
			out = append(out, d0)
			continue
		}
		for i := 0; i < len(chain)-1; i++ {
			out = append(out, &rcs.FileChange{
				Kind: rcs.ChangeUpdate, File: d0.File, NewPath: d0.OldPath,
				OldRevision: chain[i], NewRevision: chain[i+1], MemberTypeOther: d0.MemberTypeOther,
			})
		}
		out = append(out, &rcs.FileChange{
			Kind: rcs.ChangeDelete, File: d0.File, OldPath: d0.OldPath,
			OldRevision: chain[len(chain)-1], MemberTypeOther: d0.MemberTypeOther,
		})
	}
	return out
}

// adjustUpdates mirrors the "adjust updates" pass of spec 4.7: for each
// update whose revision strictly advanced by more than one step, emit a
// separate update for every intermediate revision on the trunk-like path
// between oldrev and newrev, skipping any intermediate whose patch log is
// exactly the "Duplicate revision\n" branch-creation placeholder.
func adjustUpdates(updates []*rcs.FileChange) []*rcs.FileChange {
	out := make([]*rcs.FileChange, 0, len(updates))
	for _, u := range updates {
		if u.ProjrevUpdate || u.File == nil || u.OldRevision.Empty() || u.NewRevision.Empty() {
			out = append(out, u)
			continue
		}
		if rcsnum.Compare(u.NewRevision, u.OldRevision) <= 0 {
			out = append(out, u)
			continue
		}
		cur := u.OldRevision
		from := u.OldRevision // last revision an update was emitted for
		for {
			next := rcsnum.Increment(cur)
			if rcsnum.Equal(next, u.NewRevision) || rcsnum.Compare(next, u.NewRevision) >= 0 {
				out = append(out, &rcs.FileChange{
					Kind: rcs.ChangeUpdate, File: u.File, NewPath: u.NewPath,
					OldRevision: from, NewRevision: u.NewRevision, MemberTypeOther: u.MemberTypeOther,
				})
				break
			}
			if ver := u.File.VersionByNumber(next); ver != nil {
				patch := u.File.PatchByNumber(next)
				if patch == nil || !SkipDuplicateRevision(patch.Log) {
					out = append(out, &rcs.FileChange{
						Kind: rcs.ChangeUpdate, File: u.File, NewPath: u.NewPath,
						OldRevision: from, NewRevision: next, MemberTypeOther: u.MemberTypeOther,
					})
					from = next
				}
			}
			cur = next
		}
	}
	return out
}

// dirAndBase splits a canonical path into its parent directory (empty for a
// top-level path) and final component, mirroring path.Split but without the
// trailing separator.
func dirAndBase(p string) (dir, base string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// collectDirs returns every directory prefix appearing in frs (a path's
// parent, its parent's parent, and so on), keyed by the lowercased prefix,
// mapped to the first-observed case-sensitive spelling, split into its
// path components (so a nested rename can later substitute just the
// renamed ancestor's components).
func collectDirs(frs []*rcs.FileRevision) map[string][]string {
	dirs := make(map[string][]string)
	for _, fr := range frs {
		dir, _ := dirAndBase(fr.CanonicalPath)
		for dir != "" {
			key := strings.ToLower(dir)
			if _, ok := dirs[key]; !ok {
				dirs[key] = strings.Split(dir, "/")
			}
			dir, _ = dirAndBase(dir)
		}
	}
	return dirs
}

// directoryRenames implements spec 4.7's "directory renames" pass: every
// case-insensitive-equal, case-sensitive-unequal directory prefix appearing
// in both manifests gets one rename, chained so a nested directory's old
// path reflects any already-renamed ancestor. It returns the rename
// FileChanges plus a lowercased-old-path -> resolved-new-path map the
// caller uses to recognise file moves that a directory rename already
// fully explains.
func directoryRenames(old, next []*rcs.FileRevision) ([]*rcs.FileChange, map[string]string) {
	oldDirs := collectDirs(old)
	newDirs := collectDirs(next)

	var keys []string
	for k := range oldDirs {
		if _, ok := newDirs[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return len(oldDirs[keys[i]]) < len(oldDirs[keys[j]])
	})

	resolved := make(map[string]string)
	var changes []*rcs.FileChange
	for _, k := range keys {
		oldComp := append([]string(nil), oldDirs[k]...)
		newComp := newDirs[k]

		if len(oldComp) > 1 {
			parentKey := strings.ToLower(strings.Join(oldComp[:len(oldComp)-1], "/"))
			if rp, ok := resolved[parentKey]; ok {
				oldComp = append(strings.Split(rp, "/"), oldComp[len(oldComp)-1])
			}
		}
		oldPath := strings.Join(oldComp, "/")
		newPath := strings.Join(newComp, "/")

		if oldComp[len(oldComp)-1] != newComp[len(newComp)-1] {
			changes = append(changes, &rcs.FileChange{
				Kind: rcs.ChangeRename, NewPath: newPath, OldPath: oldPath,
				PriorManifest: old,
			})
			resolved[k] = newPath
		} else {
			resolved[k] = oldPath
		}
	}
	return changes, resolved
}

func indexByFile(frs []*rcs.FileRevision) map[*rcs.File]*rcs.FileRevision {
	m := make(map[*rcs.File]*rcs.FileRevision, len(frs))
	for _, fr := range frs {
		m[fr.File] = fr
	}
	return m
}

func sortByName(changes []*rcs.FileChange, key func(*rcs.FileChange) string) {
	sort.SliceStable(changes, func(i, j int) bool { return key(changes[i]) < key(changes[j]) })
}

// SkipDuplicateRevision reports whether a patch's log is the MKSSI
// branch-creation placeholder that the changeset builder (like the keyword
// expander's $Log$ chain) must not treat as a genuine content change.
func SkipDuplicateRevision(log string) bool {
	return keyword.IsDuplicateRevisionLog(log)
}
