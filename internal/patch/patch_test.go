package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalight/mkssi-fast-export/internal/lines"
)

func TestApplyTextInsertAndDelete(t *testing.T) {
	buf := lines.FromString("a\nb\nc\n")
	err := ApplyText(buf, "d2 1\na2 1\nX\n")
	require.NoError(t, err)
	assert.Equal(t, "a\nX\nc\n", buf.String())
}

func TestApplyTextInsertAtBeginning(t *testing.T) {
	buf := lines.FromString("a\nb\n")
	err := ApplyText(buf, "a0 1\nhead\n")
	require.NoError(t, err)
	assert.Equal(t, "head\na\nb\n", buf.String())
}

func TestApplyTextInverse(t *testing.T) {
	// Inserting then deleting the same lines (with no other edits) restores
	// the original line set, modulo renumbering. The two commands are
	// separate patches: within one patch, line numbers address the
	// pre-patch buffer, so only after the insert is applied is Z line 4.
	buf := lines.FromString("a\nb\nc\n")
	require.NoError(t, ApplyText(buf, "a3 1\nZ\n"))
	err := ApplyText(buf, "d4 1\n")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", buf.String())
}

func TestApplyTextUnknownCommand(t *testing.T) {
	buf := lines.FromString("a\n")
	err := ApplyText(buf, "x1 1\n")
	assert.Error(t, err)
}

func TestApplyTextOutOfRange(t *testing.T) {
	buf := lines.FromString("a\n")
	err := ApplyText(buf, "d5 1\n")
	assert.Error(t, err)
}

func TestUnescapeAtsIdempotent(t *testing.T) {
	once := UnescapeAts("it's an @@ sign")
	twice := UnescapeAts(once)
	assert.Equal(t, "it's an @ sign", once)
	assert.Equal(t, once, twice)
}

func TestApplyBinaryInsertDelete(t *testing.T) {
	buf := []byte("ABCDEFGH")
	// delete 2 bytes at offset 3 ("CD"), then insert "XY" at what was
	// offset 6 pre-patch (now offset 4 post-delete: 6-2=4)
	p := []byte("d3 2\na6 2\nXY")
	out, err := ApplyBinary(buf, p)
	require.NoError(t, err)
	assert.Equal(t, "ABEFXYGH", string(out))
}

// TestApplyBinaryDeleteAfterDeleteUsesAdjust guards against regressing to
// a delete offset computed without the "adjust" term: a second delete
// whose offset is expressed against the pre-patch buffer must account for
// bytes already removed by an earlier delete in the same patch, matching
// rcs-binary.c's apply_patch (off - 1 + adjust).
func TestApplyBinaryDeleteAfterDeleteUsesAdjust(t *testing.T) {
	buf := []byte("ABCDEFGHIJ")
	p := []byte("d2 2\nd3 2\n")
	out, err := ApplyBinary(buf, p)
	require.NoError(t, err)
	assert.Equal(t, "ADEFIJ", string(out))
}

func TestApplyBinaryUnescapesAtSigns(t *testing.T) {
	buf := []byte("AB")
	p := []byte("a2 2\n@@X")
	out, err := ApplyBinary(buf, p)
	require.NoError(t, err)
	assert.Equal(t, "AB@X", string(out))
}
