package project

import "testing"

func TestParseBranchLine(t *testing.T) {
	be, err := parseBranchLine(`1.4=vp0002.pj, "release/1.2"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if be.Revision.String() != "1.4" || be.ManifestFile != "vp0002.pj" || be.BranchName != "release/1.2" {
		t.Fatalf("unexpected parse: %+v", be)
	}
}

func TestBranchEntryGitRef(t *testing.T) {
	be := BranchEntry{BranchName: "release%2f1.2"}
	ref, err := be.GitRef()
	if err != nil || ref != "release/1.2" {
		t.Fatalf("got %q, %v", ref, err)
	}
}
