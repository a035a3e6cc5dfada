package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandRevision(t *testing.T) {
	text, flags := Expand("Hello $Revision$!\n", Context{Revision: "1.1"})
	assert.Equal(t, "Hello $Revision: 1.1 $!\n", text)
	assert.False(t, flags.KWName)
	assert.False(t, flags.KWPath)
	assert.False(t, flags.KWProjRev)
}

func TestExpandIdSetsKWName(t *testing.T) {
	text, flags := Expand("$Id$\n", Context{
		FileBaseName: "foo.c", Revision: "1.2", Date: "2020/01/02 03:04:05Z",
		Author: "alice", State: "Exp",
	})
	assert.Equal(t, "$Id: foo.c 1.2 2020/01/02 03:04:05Z alice Exp $\n", text)
	assert.True(t, flags.KWName)
}

// TestExpandLogHeaderUsesBaseName reproduces spec 4.5's $Log$ expansion: the
// inserted header line is "$Log: <basename> $", not the revision number,
// and the closing "$" is preceded by a space.
func TestExpandLogHeaderUsesBaseName(t *testing.T) {
	ctx := Context{
		FileBaseName: "foo.c",
		LogHistory: []LogEntry{
			{Revision: "1.2", Date: "2020/01/02 03:04:05Z", Author: "alice", Comment: "fix bug\n"},
		},
	}
	text, _ := Expand("// $Log$\n", ctx)
	assert.Contains(t, text, "// $Log: foo.c $\n")
	assert.Contains(t, text, "Revision 1.2  2020/01/02 03:04:05Z  alice")
	assert.Contains(t, text, "fix bug")
	assert.NotContains(t, text, "$Log: 1.2")
}

// TestExpandLogReescapesAtSigns reproduces the observed MKSSI bug (spec 4.5,
// spec 8 property 7): a literal "@" in the check-in comment is re-escaped to
// "@@" in the inserted $Log$ block.
func TestExpandLogReescapesAtSigns(t *testing.T) {
	ctx := Context{
		FileBaseName: "foo.c",
		LogHistory: []LogEntry{
			{Revision: "1.1", Date: "2020/01/01 00:00:00Z", Author: "bob", Comment: "see foo@bar\n"},
		},
	}
	text, _ := Expand("# $Log$\n", ctx)
	assert.Contains(t, text, "see foo@@bar")
}
