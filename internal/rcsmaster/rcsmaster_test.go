package rcsmaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalight/mkssi-fast-export/internal/rcs"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

const sampleMaster = `head	1.2;
access;
symbols
	REL-1:1.1;
locks; strict;
comment	@# @;


1.2
date	2020.03.04.10.20.30;	author joe;	state Exp;
branches;
next	1.1;

1.1
date	2020.01.02.03.04.05;	author ann;	state Exp;
branches;
next	;


desc
@@


1.2
log
@second revision
@
text
@line one
line two
@


1.1
log
@first revision
@
text
@d2 1
@
`

func TestReadAdminAndDeltatext(t *testing.T) {
	f, err := Read([]byte(sampleMaster), "foo.txt", "/rcs/foo.txt,v")
	require.NoError(t, err)

	assert.True(t, rcsnum.Equal(f.Head, rcsnum.MustParse("1.2")))
	assert.Equal(t, rcsnum.MustParse("1.1"), f.Symbols["REL-1"])
	require.Len(t, f.Locks, 0)
	require.Len(t, f.Versions, 2)

	v2 := f.VersionByNumber(rcsnum.MustParse("1.2"))
	require.NotNil(t, v2)
	assert.Equal(t, "joe", v2.Author)
	assert.Equal(t, "Exp", v2.State)
	assert.True(t, rcsnum.Equal(v2.Parent, rcsnum.MustParse("1.1")))

	v1 := f.VersionByNumber(rcsnum.MustParse("1.1"))
	require.NotNil(t, v1)
	assert.Equal(t, "ann", v1.Author)
	assert.True(t, v1.Parent.Empty())

	p2 := f.PatchByNumber(rcsnum.MustParse("1.2"))
	require.NotNil(t, p2)
	assert.Equal(t, "second revision\n", p2.Log)

	master := []byte(sampleMaster)
	head, err := rcs.HeadContent(f, master)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(head))

	p1 := f.PatchByNumber(rcsnum.MustParse("1.1"))
	require.NotNil(t, p1)
	script := master[p1.Offset : p1.Offset+p1.Length]
	assert.Equal(t, "d2 1\n", string(script))
}
