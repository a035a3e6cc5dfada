package rcsnum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	n, err := Parse("1.7.1.2")
	require.NoError(t, err)
	assert.Equal(t, "1.7.1.2", n.String())
	assert.Equal(t, 4, n.Len())
}

func TestParseRejectsOversizedComponent(t *testing.T) {
	_, err := Parse("1." + "12345678901")
	assert.Error(t, err)
}

func TestParseRejectsTooManyComponents(t *testing.T) {
	s := "1"
	for i := 0; i < MaxComponents; i++ {
		s += ".1"
	}
	_, err := Parse(s)
	assert.Error(t, err)
}

func TestCompareTrunk(t *testing.T) {
	a := MustParse("1.3")
	b := MustParse("1.4")
	assert.Negative(t, Compare(a, b))
	assert.Positive(t, Compare(b, a))
	assert.Zero(t, Compare(a, a))
}

func TestCompareBranchRootBeforeBranch(t *testing.T) {
	root := MustParse("1.4")
	onBranch := MustParse("1.4.1.1")
	assert.True(t, PartialMatch(onBranch, root))
	assert.Negative(t, Compare(root, onBranch))
}

func TestIncrementDecrementTrunk(t *testing.T) {
	r := MustParse("1.3")
	assert.Equal(t, "1.4", Increment(r).String())
	prev, ok := Decrement(r)
	require.True(t, ok)
	assert.Equal(t, "1.2", prev.String())
}

func TestDecrementNoPredecessor(t *testing.T) {
	r := MustParse("1.1")
	_, ok := Decrement(r)
	assert.False(t, ok)
}

func TestDecrementBranchRootCollapses(t *testing.T) {
	r := MustParse("1.7.1.1")
	prev, ok := Decrement(r)
	require.True(t, ok)
	assert.Equal(t, "1.7", prev.String())
}

func TestSameBranch(t *testing.T) {
	assert.True(t, SameBranch(MustParse("1.3"), MustParse("1.9")))
	assert.True(t, SameBranch(MustParse("1.4.1.1"), MustParse("1.4.1.5")))
	assert.False(t, SameBranch(MustParse("1.4.1.1"), MustParse("1.4.2.1")))

	// N.M.0.P branch-numbering quirk: a branch root addressed with a
	// trailing zero component is on the same branch as any revision on it.
	assert.True(t, SameBranch(MustParse("1.4.1.0"), MustParse("1.4.1.5")))
}

func TestIsTrunk(t *testing.T) {
	assert.True(t, MustParse("1.9").IsTrunk())
	assert.False(t, MustParse("1.9.1.1").IsTrunk())
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(MustParse("1.3"), MustParse("1.3")))
	assert.False(t, Equal(MustParse("1.3"), MustParse("1.3.1.1")))
}
