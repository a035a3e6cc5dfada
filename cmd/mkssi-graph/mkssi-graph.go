// mkssi-graph reads a fast-import stream (typically mkssi-fast-export's
// own output) and writes a graphviz DOT file showing the commit/branch/
// merge structure, optionally squashed down to just the branch/merge
// points. Useful for sanity-checking a conversion's branch topology
// without replaying the whole import into a real git repository. All the
// parsing/graph-building logic lives in internal/graphexport; this file
// only turns flags into an internal/graphexport.Options and writes the
// resulting graph to disk.
package main

import (
	"os"
	"runtime"
	"time"

	"github.com/datalight/mkssi-fast-export/buildinfo"
	"github.com/datalight/mkssi-fast-export/internal/graphexport"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	var (
		gitexport = kingpin.Arg(
			"gitexport",
			"Git fast-export file to process.",
		).String()
		maxCommits = kingpin.Flag(
			"max.commits",
			"Max no of commits to process (default 0 means all).",
		).Default("0").Short('m').Int()
		outputGraph = kingpin.Flag(
			"output",
			"Graphviz dot file to output git commit/file structure to.",
		).Short('o').String()
		graphFirstCommit = kingpin.Flag(
			"first.commit",
			"ID of first commit to include in graph output (default 0 means all commits).",
		).Default("0").Short('f').Int()
		graphLastCommit = kingpin.Flag(
			"last.commit",
			"ID of last commit to include in graph output (default of 0 means all commits).",
		).Default("0").Short('l').Int()
		squash = kingpin.Flag(
			"squash",
			"Squash commits (leaving branches/merges only).",
		).Short('s').Bool()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(buildinfo.String()).Author("Datalight, Inc.")
	kingpin.CommandLine.Help = "Parses a git fast-export file to create a graphviz DOT file\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("%v", buildinfo.String())
	logger.Infof("Starting %s, gitexport: %v", startTime, *gitexport)
	logger.Infof("OS: %s/%s", runtime.GOOS, runtime.GOARCH)

	opts := graphexport.Options{
		ImportFile:  *gitexport,
		MaxCommits:  *maxCommits,
		FirstCommit: *graphFirstCommit,
		LastCommit:  *graphLastCommit,
		Squash:      *squash,
	}
	logger.Infof("Options: %+v", opts)

	b := graphexport.New(logger, opts)
	b.Parse()

	f, err := os.OpenFile(*outputGraph, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		logger.Error(err)
		return
	}
	defer f.Close()
	f.Write([]byte(b.Graph.String()))
}
