// mkssi-redact post-processes a fast-import stream produced by
// mkssi-fast-export (or any other git fast-import stream), stripping blob
// contents down to a one-line placeholder and optionally filtering the
// stream down to a path subtree, while leaving the commit/branch structure
// intact. Useful for diffing or archiving very large conversion runs
// without carrying the actual file contents. All the redaction logic
// lives in internal/redact; this file only turns flags into an
// internal/redact.Options and runs it.
package main

import (
	"time"

	"github.com/datalight/mkssi-fast-export/buildinfo"
	"github.com/datalight/mkssi-fast-export/internal/redact"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	var (
		gitimport = kingpin.Arg(
			"gitimport",
			"Git fast-export file to process.",
		).String()
		gitexport = kingpin.Arg(
			"gitexport",
			"Git fast-import file to write.",
		).String()
		renameRefs = kingpin.Flag(
			"rename",
			"Rename branches (remove spaces).",
		).Short('r').Bool()
		filterCommits = kingpin.Flag(
			"filter.commits",
			"Filter out empty commits (if --path.filter defined).",
		).Short('f').Bool()
		maxCommits = kingpin.Flag(
			"max.commits",
			"Max no of commits to process.",
		).Short('m').Int()
		pathFilter = kingpin.Flag(
			"path.filter",
			"Regex git path to filter output by.",
		).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Short('d').Int()
		debugCommit = kingpin.Flag(
			"debug.commit",
			"For debugging - to allow breakpoints to be set - only valid if debug > 0.",
		).Default("0").Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(buildinfo.String()).Author("Datalight, Inc.")
	kingpin.CommandLine.Help = "Parses a git fast-import file to redact blob contents and write a new one\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	startTime := time.Now()
	logger.Infof("%v", buildinfo.String())
	if *filterCommits && *pathFilter == "" {
		logger.Fatalf("Please only specify -f/--filter.commits if also specifying --path.filter value")
	}

	logger.Infof("Starting %s, gitimport: %v", startTime, *gitimport)

	opts := redact.Options{
		ImportFile:    *gitimport,
		ExportFile:    *gitexport,
		RenameRefs:    *renameRefs,
		FilterCommits: *filterCommits,
		MaxCommits:    *maxCommits,
		PathFilter:    *pathFilter,
		DebugCommit:   *debugCommit,
	}
	logger.Infof("Options: %+v", opts)

	redact.New(logger).Run(opts)
	logger.Infof("Output file: %s", opts.ExportFile)
}
