package rcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

func TestWalkTrunkAndBranch(t *testing.T) {
	// Master layout: head is 1.2 stored verbatim ("b\n"); 1.1 is reached
	// by applying 1.1's own patch (prepend "X"); 1.1.1.1 branches off 1.1 by
	// applying its own patch (delete the prepended line again).
	patch1 := "a0 1\nX\n"
	patch2 := "d1 1\n"
	master := []byte(patch1 + patch2)

	f := &File{
		Name: "foo.txt",
		Head: rcsnum.MustParse("1.2"),
		Versions: []*Version{
			{Number: rcsnum.MustParse("1.2"), Parent: rcsnum.MustParse("1.1")},
			{Number: rcsnum.MustParse("1.1"), Branches: []rcsnum.Number{rcsnum.MustParse("1.1.1.1")}},
			{Number: rcsnum.MustParse("1.1.1.1")},
		},
		Patches: []*Patch{
			{Number: rcsnum.MustParse("1.1"), Offset: 0, Length: int64(len(patch1))},
			{Number: rcsnum.MustParse("1.1.1.1"), Offset: int64(len(patch1)), Length: int64(len(patch2))},
		},
	}

	var seen []string
	err := Walk(f, []byte("b\n"), master, func(file *File, rev rcsnum.Number, content []byte, memberTypeOther bool) error {
		seen = append(seen, rev.String()+":"+string(content))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2:b\n", "1.1:X\nb\n", "1.1.1.1:b\n"}, seen)
}

func TestWalkMissingPatchEmitsNilContent(t *testing.T) {
	f := &File{
		Name: "foo.txt",
		Head: rcsnum.MustParse("1.2"),
		Versions: []*Version{
			{Number: rcsnum.MustParse("1.2"), Parent: rcsnum.MustParse("1.1")},
			{Number: rcsnum.MustParse("1.1")},
		},
		Patches: []*Patch{
			{Number: rcsnum.MustParse("1.1"), Missing: true},
		},
	}
	var got []string
	err := Walk(f, []byte("head\n"), nil, func(file *File, rev rcsnum.Number, content []byte, memberTypeOther bool) error {
		got = append(got, rev.String())
		if rev.String() == "1.1" {
			assert.Nil(t, content)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1.2", "1.1"}, got)
}

// TestWalkMemberTypeOtherSkipsBinary confirms the extra unexpanded emission
// never fires for a binary file, even when HasMemberTypeOther is set.
func TestWalkMemberTypeOtherSkipsBinary(t *testing.T) {
	f := &File{
		Name:               "foo.bin",
		Head:               rcsnum.MustParse("1.1"),
		Binary:             true,
		HasMemberTypeOther: true,
		Versions: []*Version{
			{Number: rcsnum.MustParse("1.1")},
		},
		Patches: []*Patch{
			{Number: rcsnum.MustParse("1.1"), Offset: 0, Length: 0},
		},
	}
	var extras int
	err := Walk(f, []byte("data"), nil, func(file *File, rev rcsnum.Number, content []byte, memberTypeOther bool) error {
		if memberTypeOther {
			extras++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, extras)
}

// TestWalkMemberTypeOtherSingleAtHeadOne confirms the extra emission fires
// exactly once, not twice, when head and 1.1 are the same revision.
func TestWalkMemberTypeOtherSingleAtHeadOne(t *testing.T) {
	f := &File{
		Name:               "foo.txt",
		Head:               rcsnum.MustParse("1.1"),
		HasMemberTypeOther: true,
		Versions: []*Version{
			{Number: rcsnum.MustParse("1.1")},
		},
		Patches: []*Patch{
			{Number: rcsnum.MustParse("1.1"), Offset: 0, Length: 0},
		},
	}
	var extras int
	err := Walk(f, []byte("text\n"), nil, func(file *File, rev rcsnum.Number, content []byte, memberTypeOther bool) error {
		if memberTypeOther {
			extras++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, extras)
}

func TestIsExecutable(t *testing.T) {
	assert.True(t, isExecutable([]byte("#!/bin/sh\n"), "run"))
	assert.True(t, isExecutable([]byte("echo hi"), "run.sh"))
	assert.True(t, isExecutable([]byte{0x7F, 'E', 'L', 'F', 0}, "a.out"))
	assert.False(t, isExecutable([]byte("plain text"), "readme.txt"))
}
