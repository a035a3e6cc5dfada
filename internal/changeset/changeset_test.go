package changeset

import (
	"testing"
	"time"

	"github.com/datalight/mkssi-fast-export/internal/rcs"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

func rev(s string) rcsnum.Number { return rcsnum.MustParse(s) }

func versionedFile(name string, numbers ...string) *rcs.File {
	f := &rcs.File{Name: name}
	for _, n := range numbers {
		f.Versions = append(f.Versions, &rcs.Version{Number: rev(n)})
		f.Patches = append(f.Patches, &rcs.Patch{Number: rev(n)})
	}
	return f
}

func TestBuildAdd(t *testing.T) {
	f := versionedFile("foo", "1.1")
	next := []*rcs.FileRevision{{File: f, Revision: rev("1.1"), CanonicalPath: "foo"}}

	c := Build(nil, next, false, "1.1", time.Time{}, time.Time{})
	if len(c.Adds) != 1 || len(c.Updates) != 0 || len(c.Deletes) != 0 || len(c.Renames) != 0 {
		t.Fatalf("want one add only, got %+v", c)
	}
	if c.Adds[0].NewRevision.String() != "1.1" {
		t.Fatalf("want add at 1.1, got %s", c.Adds[0].NewRevision)
	}
}

func TestBuildDelete(t *testing.T) {
	f := versionedFile("foo", "1.1")
	old := []*rcs.FileRevision{{File: f, Revision: rev("1.1"), CanonicalPath: "foo"}}

	c := Build(old, nil, false, "1.2", time.Time{}, time.Time{})
	if len(c.Deletes) != 1 || c.Deletes[0].OldPath != "foo" {
		t.Fatalf("want one delete of foo, got %+v", c.Deletes)
	}
}

// TestBuildRename covers a pure file-name capitalization change: same
// directory, differing final component.
func TestBuildRename(t *testing.T) {
	f := versionedFile("foo", "1.1")
	old := []*rcs.FileRevision{{File: f, Revision: rev("1.1"), CanonicalPath: "dir/A.txt"}}
	next := []*rcs.FileRevision{{File: f, Revision: rev("1.1"), CanonicalPath: "dir/a.txt"}}

	c := Build(old, next, false, "1.2", time.Time{}, time.Time{})
	if len(c.Renames) != 1 || len(c.Adds) != 0 || len(c.Updates) != 0 || len(c.Deletes) != 0 {
		t.Fatalf("want one rename only, got %+v", c)
	}
	if c.Renames[0].File == nil {
		t.Fatalf("want a file rename (non-nil File), got directory rename: %+v", c.Renames[0])
	}
	if c.Renames[0].OldPath != "dir/A.txt" || c.Renames[0].NewPath != "dir/a.txt" {
		t.Fatalf("unexpected rename paths: %+v", c.Renames[0])
	}
}

// TestBuildDirectoryRename reproduces spec scenario S2: two files both move
// from FooBar/* to foobar/*, with only the directory's capitalization
// changing. Expect a single directory rename and no per-file rename,
// add, update, or delete.
func TestBuildDirectoryRename(t *testing.T) {
	fa := versionedFile("a.txt", "1.1")
	fb := versionedFile("b.txt", "1.1")
	old := []*rcs.FileRevision{
		{File: fa, Revision: rev("1.1"), CanonicalPath: "FooBar/a.txt"},
		{File: fb, Revision: rev("1.1"), CanonicalPath: "FooBar/b.txt"},
	}
	next := []*rcs.FileRevision{
		{File: fa, Revision: rev("1.1"), CanonicalPath: "foobar/a.txt"},
		{File: fb, Revision: rev("1.1"), CanonicalPath: "foobar/b.txt"},
	}

	c := Build(old, next, false, "1.2", time.Time{}, time.Time{})
	if len(c.Renames) != 1 || len(c.Adds) != 0 || len(c.Updates) != 0 || len(c.Deletes) != 0 {
		t.Fatalf("want one directory rename only, got %+v", c)
	}
	r := c.Renames[0]
	if r.File != nil {
		t.Fatalf("want a directory rename (nil File), got file rename: %+v", r)
	}
	if r.OldPath != "FooBar" || r.NewPath != "foobar" {
		t.Fatalf("unexpected directory rename paths: %+v", r)
	}
}

// TestBuildUpdateSkipsDuplicateRevision reproduces spec scenario S3: a
// manifest moving a file from 1.3 to 1.5 must emit an update for the
// skipped 1.4 unless 1.4's log is the literal branch-creation placeholder,
// in which case it is silently absorbed into the 1.3->1.5 update.
func TestBuildUpdateSkipsDuplicateRevision(t *testing.T) {
	f := versionedFile("README.md", "1.1", "1.2", "1.3", "1.4", "1.5")
	f.PatchByNumber(rev("1.4")).Log = "Duplicate revision\n"

	old := []*rcs.FileRevision{{File: f, Revision: rev("1.3"), CanonicalPath: "README.md"}}
	next := []*rcs.FileRevision{{File: f, Revision: rev("1.5"), CanonicalPath: "README.md"}}

	c := Build(old, next, false, "1.5", time.Time{}, time.Time{})
	if len(c.Updates) != 1 {
		t.Fatalf("want exactly one update (1.4 skipped as duplicate), got %d: %+v", len(c.Updates), c.Updates)
	}
	u := c.Updates[0]
	if u.OldRevision.String() != "1.3" || u.NewRevision.String() != "1.5" {
		t.Fatalf("want 1.3->1.5, got %s->%s", u.OldRevision, u.NewRevision)
	}
}

// TestBuildUpdateEmitsIntermediateRevisions confirms a multi-step advance
// without a Duplicate revision log emits one update per intermediate step.
func TestBuildUpdateEmitsIntermediateRevisions(t *testing.T) {
	f := versionedFile("README.md", "1.1", "1.2", "1.3", "1.4", "1.5")

	old := []*rcs.FileRevision{{File: f, Revision: rev("1.3"), CanonicalPath: "README.md"}}
	next := []*rcs.FileRevision{{File: f, Revision: rev("1.5"), CanonicalPath: "README.md"}}

	c := Build(old, next, false, "1.5", time.Time{}, time.Time{})
	if len(c.Updates) != 2 {
		t.Fatalf("want two updates (1.3->1.4, 1.4->1.5), got %d: %+v", len(c.Updates), c.Updates)
	}
	if c.Updates[0].OldRevision.String() != "1.3" || c.Updates[0].NewRevision.String() != "1.4" {
		t.Fatalf("unexpected first update: %+v", c.Updates[0])
	}
	if c.Updates[1].OldRevision.String() != "1.4" || c.Updates[1].NewRevision.String() != "1.5" {
		t.Fatalf("unexpected second update: %+v", c.Updates[1])
	}
}

// TestAdjustAddsWalksBackToUncheckpointedPredecessor reproduces spec 4.7's
// "adjust adds" pass: a file first checkpointed at 1.3, whose 1.1 and 1.2
// were never checkpointed and postdate t_old, is added at 1.1 instead of
// 1.3, with 1.1->1.2 and 1.2->1.3 emitted as updates.
func TestAdjustAddsWalksBackToUncheckpointedPredecessor(t *testing.T) {
	tOld := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := versionedFile("foo", "1.1", "1.2", "1.3")
	f.VersionByNumber(rev("1.1")).Time.When = tOld.Add(1 * time.Hour)
	f.VersionByNumber(rev("1.2")).Time.When = tOld.Add(2 * time.Hour)
	f.VersionByNumber(rev("1.3")).Time.When = tOld.Add(3 * time.Hour)

	next := []*rcs.FileRevision{{File: f, Revision: rev("1.3"), CanonicalPath: "foo"}}

	c := Build(nil, next, false, "1.3", tOld, time.Time{})
	if len(c.Adds) != 1 || c.Adds[0].NewRevision.String() != "1.1" {
		t.Fatalf("want add reassigned to 1.1, got %+v", c.Adds)
	}
	if len(c.Updates) != 2 {
		t.Fatalf("want two skipped-revision updates, got %d: %+v", len(c.Updates), c.Updates)
	}
	if c.Updates[0].OldRevision.String() != "1.1" || c.Updates[0].NewRevision.String() != "1.2" {
		t.Fatalf("unexpected first update: %+v", c.Updates[0])
	}
	if c.Updates[1].OldRevision.String() != "1.2" || c.Updates[1].NewRevision.String() != "1.3" {
		t.Fatalf("unexpected second update: %+v", c.Updates[1])
	}
}

// TestAdjustAddsStopsAtCheckpointedPredecessor confirms the backward walk
// halts as soon as it hits a revision that was already checkpointed, leaving
// the add at its original revision.
func TestAdjustAddsStopsAtCheckpointedPredecessor(t *testing.T) {
	tOld := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	f := versionedFile("foo", "1.1", "1.2", "1.3")
	f.VersionByNumber(rev("1.1")).Time.When = tOld.Add(1 * time.Hour)
	f.VersionByNumber(rev("1.2")).Time.When = tOld.Add(2 * time.Hour)
	f.VersionByNumber(rev("1.2")).Checkpointed = true
	f.VersionByNumber(rev("1.3")).Time.When = tOld.Add(3 * time.Hour)

	next := []*rcs.FileRevision{{File: f, Revision: rev("1.3"), CanonicalPath: "foo"}}

	c := Build(nil, next, false, "1.3", tOld, time.Time{})
	if len(c.Adds) != 1 || c.Adds[0].NewRevision.String() != "1.3" {
		t.Fatalf("want add to stay at 1.3, got %+v", c.Adds)
	}
	if len(c.Updates) != 0 {
		t.Fatalf("want no updates, got %+v", c.Updates)
	}
}

// TestAdjustDeletesWalksForwardToUncheckpointedSuccessor reproduces spec
// 4.7's "adjust deletes" pass: a file deleted at 1.1 whose 1.2 exists,
// postdates nothing past t_new, and was never checkpointed moves the delete
// forward to 1.2 with an intermediate update.
func TestAdjustDeletesWalksForwardToUncheckpointedSuccessor(t *testing.T) {
	tNew := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	f := versionedFile("foo", "1.1", "1.2")
	f.VersionByNumber(rev("1.2")).Time.When = tNew.Add(-1 * time.Hour)

	old := []*rcs.FileRevision{{File: f, Revision: rev("1.1"), CanonicalPath: "foo"}}

	c := Build(old, nil, false, "1.2", time.Time{}, tNew)
	if len(c.Deletes) != 1 || c.Deletes[0].OldRevision.String() != "1.2" {
		t.Fatalf("want delete moved to 1.2, got %+v", c.Deletes)
	}
	if len(c.Updates) != 1 || c.Updates[0].OldRevision.String() != "1.1" || c.Updates[0].NewRevision.String() != "1.2" {
		t.Fatalf("want one 1.1->1.2 update, got %+v", c.Updates)
	}
}

// TestBuildAddsSortByDateNotName reproduces spec 4.7's sort-order paragraph:
// adds are ordered by the introduced revision's date, ascending, which can
// disagree with alphabetical path order.
func TestBuildAddsSortByDateNotName(t *testing.T) {
	fz := versionedFile("zfile", "1.1")
	fa := versionedFile("afile", "1.1")
	fz.VersionByNumber(rev("1.1")).Time.When = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	fa.VersionByNumber(rev("1.1")).Time.When = time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)

	next := []*rcs.FileRevision{
		{File: fa, Revision: rev("1.1"), CanonicalPath: "afile"},
		{File: fz, Revision: rev("1.1"), CanonicalPath: "zfile"},
	}

	c := Build(nil, next, false, "1.1", time.Time{}, time.Time{})
	if len(c.Adds) != 2 {
		t.Fatalf("want two adds, got %+v", c.Adds)
	}
	if c.Adds[0].NewPath != "zfile" || c.Adds[1].NewPath != "afile" {
		t.Fatalf("want adds ordered by date (zfile before afile), got %+v", c.Adds)
	}
}

// TestBuildUpdatesSortByDateThenFileThenRevision reproduces spec 4.7's
// sort-order paragraph for updates: primarily by date, then by file path,
// then by NewRevision within the same file.
func TestBuildUpdatesSortByDateThenFileThenRevision(t *testing.T) {
	fb := versionedFile("bfile", "1.1", "1.2")
	old := []*rcs.FileRevision{{File: fb, Revision: rev("1.1"), CanonicalPath: "bfile"}}
	fb.VersionByNumber(rev("1.2")).Time.When = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)

	fa := versionedFile("afile", "1.1", "1.2")
	fa.VersionByNumber(rev("1.2")).Time.When = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	oldAll := append(append([]*rcs.FileRevision{}, old...),
		&rcs.FileRevision{File: fa, Revision: rev("1.1"), CanonicalPath: "afile"})
	next := []*rcs.FileRevision{
		{File: fb, Revision: rev("1.2"), CanonicalPath: "bfile"},
		{File: fa, Revision: rev("1.2"), CanonicalPath: "afile"},
	}

	c := Build(oldAll, next, false, "1.2", time.Time{}, time.Time{})
	if len(c.Updates) != 2 {
		t.Fatalf("want two updates, got %+v", c.Updates)
	}
	if c.Updates[0].NewPath != "afile" || c.Updates[1].NewPath != "bfile" {
		t.Fatalf("want updates ordered by date (afile before bfile), got %+v", c.Updates)
	}
}
