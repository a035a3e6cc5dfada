package redact

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel
	return logger
}

func runWithDump(t *testing.T, input string, opts Options) string {
	r := New(testLogger())
	r.testInput = input
	r.Run(opts)
	blob := ""
	if r.testBlobOutput != nil {
		blob = r.testBlobOutput.String()
	}
	return fmt.Sprintf("%s%s", blob, r.testOutput.String())
}

func TestRedact(t *testing.T) {
	baseData := `blob
mark :1
data %d
%s

reset refs/heads/main
commit refs/heads/main
mark :2
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 8
initial
M 100644 :1 src/file1.txt
`
	gitExport := fmt.Sprintf(baseData, 9, "contents")
	expected := fmt.Sprintf(baseData, 2, "1")

	output := runWithDump(t, gitExport, Options{})

	assert.Equal(t, strings.ReplaceAll(expected, "\n\n", "\n"), strings.ReplaceAll(output, "\n\n", "\n"))
}

func TestRedactPathFilter(t *testing.T) {
	gitExport := `blob
mark :1
data 2
1

blob
mark :2
data 2
2

blob
mark :3
data 2
3

reset refs/heads/main
commit refs/heads/main
mark :4
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 8
initial
M 100644 :1 src/file1.txt
M 100644 :2 src/file2.txt

reset refs/heads/dev
commit refs/heads/dev
mark :5
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 8
renamed
from :4
R src/file1.txt src/file3.txt

reset refs/heads/main
commit refs/heads/main
mark :6
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 6
other
from :5
R src/file2.txt src/file4.txt

reset refs/heads/dev
commit refs/heads/dev
mark :7
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 8
ren dir
from :6
R src targ

`

	output := runWithDump(t, gitExport, Options{PathFilter: "file1.txt"})
	// Only the blob and file commands on file1.txt's path (and the directory
	// rename that carries it) survive; every commit is kept because
	// FilterCommits is off.
	expected := `blob
mark :1
data 2
1

reset refs/heads/main
commit refs/heads/main
mark :4
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 8
initial
M 100644 :1 src/file1.txt

reset refs/heads/dev
commit refs/heads/dev
mark :5
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 8
renamed
from :4
R src/file1.txt src/file3.txt

reset refs/heads/main
commit refs/heads/main
mark :6
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 6
other
from :5

reset refs/heads/dev
commit refs/heads/dev
mark :7
author Robert Cowham <rcowham@perforce.com> 1680784555 +0100
committer Robert Cowham <rcowham@perforce.com> 1680784555 +0100
data 8
ren dir
from :6
R src targ

`
	assert.Equal(t, strings.ReplaceAll(expected, "\n\n", "\n"), strings.ReplaceAll(output, "\n\n", "\n"))
}
