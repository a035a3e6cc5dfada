package commitmerge

import (
	"testing"
	"time"

	"github.com/datalight/mkssi-fast-export/internal/author"
	"github.com/datalight/mkssi-fast-export/internal/changeset"
	"github.com/datalight/mkssi-fast-export/internal/rcs"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

func rev(s string) rcsnum.Number { return rcsnum.MustParse(s) }

// TestMergeRenamesSplitsDirectoryAndFile confirms spec 4.9/8's ordering
// property: a changeset with both a directory rename and a file rename
// produces two commits, directory first, both attributed to the tool's
// synthetic identity rather than any MKSSI check-in author.
func TestMergeRenamesSplitsDirectoryAndFile(t *testing.T) {
	g := &rcs.File{Name: "b.txt", Versions: []*rcs.Version{{Number: rev("1.1"), Author: "bob"}}}

	c := &changeset.Changes{
		Renames: []*rcs.FileChange{
			{Kind: rcs.ChangeRename, OldPath: "FooBar", NewPath: "foobar"},
			{Kind: rcs.ChangeRename, File: g, OldPath: "dir/B.txt", NewPath: "dir/b.txt", NewRevision: rev("1.1")},
		},
	}

	commits := Merge(c, "master", author.New(), "1.2", time.Unix(1000, 0))
	if len(commits) != 2 {
		t.Fatalf("want 2 rename commits, got %d: %+v", len(commits), commits)
	}
	if len(commits[0].Renames) != 1 || commits[0].Renames[0].File != nil {
		t.Fatalf("want directory rename commit first, got %+v", commits[0])
	}
	if len(commits[1].Renames) != 1 || commits[1].Renames[0].File != g {
		t.Fatalf("want file rename commit second, got %+v", commits[1])
	}
	for i, cm := range commits {
		if cm.Author != toolAuthorName || cm.Email != toolAuthorEmail {
			t.Fatalf("commit %d: want synthetic tool identity, got %s <%s>", i, cm.Author, cm.Email)
		}
	}
}

// TestMergeRenamesFileJIT confirms a renamed file whose current version
// carries a name/path keyword gets a synthetic re-export update appended
// to its rename commit (spec 4.11).
func TestMergeRenamesFileJIT(t *testing.T) {
	f := &rcs.File{Name: "a.txt", Versions: []*rcs.Version{
		{Number: rev("1.1"), Author: "alice", KWPath: true},
	}}
	c := &changeset.Changes{
		Renames: []*rcs.FileChange{
			{Kind: rcs.ChangeRename, File: f, OldPath: "A.txt", NewPath: "a.txt", NewRevision: rev("1.1")},
		},
	}
	commits := Merge(c, "master", author.New(), "1.2", time.Unix(1000, 0))
	if len(commits) != 1 {
		t.Fatalf("want 1 commit, got %d", len(commits))
	}
	if len(commits[0].Updates) != 1 || commits[0].Updates[0].NewPath != "a.txt" {
		t.Fatalf("want one JIT re-export update to a.txt, got %+v", commits[0].Updates)
	}
}
