package graphexport

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel
	return logger
}

func TestParseBuildsOneNodePerCommit(t *testing.T) {
	gitExport := `blob
mark :1
data 2
1

reset refs/heads/main
commit refs/heads/main
mark :2
author Alice <alice@example.com> 1680784555 +0100
committer Alice <alice@example.com> 1680784555 +0100
data 8
initial
M 100644 :1 src/file1.txt

commit refs/heads/main
mark :3
author Alice <alice@example.com> 1680784556 +0100
committer Alice <alice@example.com> 1680784556 +0100
data 6
second
from :2
M 100644 :1 src/file2.txt

`
	b := New(testLogger(), Options{})
	b.testInput = gitExport
	b.Parse()

	require.Len(t, b.commits, 2)
	assert.Equal(t, "main", b.commits[2].branch)
	assert.Equal(t, "main", b.commits[3].branch)
	assert.Contains(t, b.Graph.String(), "Commit: 2 main")
	assert.Contains(t, b.Graph.String(), "Commit: 3 main")
}

func TestParseSquashDropsSingleChildCommits(t *testing.T) {
	gitExport := `reset refs/heads/main
commit refs/heads/main
mark :1
author Bob <bob@example.com> 1680784555 +0100
committer Bob <bob@example.com> 1680784555 +0100
data 5
first

commit refs/heads/main
mark :2
author Bob <bob@example.com> 1680784556 +0100
committer Bob <bob@example.com> 1680784556 +0100
data 6
second
from :1

commit refs/heads/main
mark :3
author Bob <bob@example.com> 1680784557 +0100
committer Bob <bob@example.com> 1680784557 +0100
data 5
third
from :2

`
	b := New(testLogger(), Options{Squash: true})
	b.testInput = gitExport
	b.Parse()

	dot := b.Graph.String()
	// The middle commit has exactly one child and no merge, so squash
	// folds it away: only the endpoints get nodes.
	assert.True(t, strings.Contains(dot, "Commit: 1") && strings.Contains(dot, "Commit: 3"))
	assert.False(t, strings.Contains(dot, "Commit: 2 "))
}

func TestUserFromEmail(t *testing.T) {
	assert.Equal(t, "alice", userFromEmail("alice@example.com"))
	assert.Equal(t, defaultUser, userFromEmail(""))
}
