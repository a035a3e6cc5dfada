// mkssi-fast-export reads a read-only MKSSI (MKS Source Integrity v7.5a)
// RCS-derived repository and writes a git fast-import command stream to
// stdout.
//
// Design:
// The driver in internal/export walks every RCS master once to emit blobs,
// then walks the project manifest's own revision history to turn each
// manifest-to-manifest delta into commits, written in project-revision
// order so that `git fast-import` can apply the whole stream in one pass.
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/datalight/mkssi-fast-export/buildinfo"
	"github.com/datalight/mkssi-fast-export/config"
	"github.com/datalight/mkssi-fast-export/internal/export"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

func main() {
	var (
		rcsDir = kingpin.Flag(
			"rcs-dir",
			"MKSSI RCS directory (required).",
		).Short('r').Required().String()
		projectDir = kingpin.Flag(
			"proj-dir",
			"MKSSI project directory (accepted; the export does not read it).",
		).Short('p').String()
		sourceDir = kingpin.Flag(
			"source-dir",
			"Verbatim prefix for $Source$/$Header$ keyword expansions.",
		).Short('S').String()
		pnameDir = kingpin.Flag(
			"pname-dir",
			"Verbatim prefix for $ProjectName$ keyword expansions.",
		).Short('P').String()
		trunkBranch = kingpin.Flag(
			"trunk-branch",
			"Treat this trunk revision as a branch boundary.",
		).Short('b').String()
		authorMap = kingpin.Flag(
			"authormap",
			"Author map file: 'username = Display Name <email> [TZ]' per line.",
		).Short('A').String()
		authorList = kingpin.Flag(
			"authorlist",
			"Parse the repository, print unmapped authors to stdout, and exit.",
		).Short('a').Bool()
		configFile = kingpin.Flag(
			"config",
			"Optional YAML config: branch-rename and executable-bit overrides.",
		).Short('c').String()
		debug = kingpin.Flag(
			"debug",
			"Enable debug-level logging.",
		).Bool()
	)

	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).
		Version(buildinfo.String()).
		Author("Datalight, Inc.")
	kingpin.CommandLine.Help = "Converts a read-only MKSSI RCS repository into a git fast-import stream on stdout.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug {
		logger.Level = logrus.DebugLevel
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadFile(*configFile)
	} else {
		cfg, err = config.Unmarshal(nil)
	}
	if err != nil {
		logger.Fatalf("error loading config: %v", err)
	}

	if err := validateRCSDir(*rcsDir); err != nil {
		logger.Fatalf("%v", err)
	}

	opts := export.Options{
		RCSDir:        *rcsDir,
		ProjectDir:    *projectDir,
		SourceDir:     *sourceDir,
		PnameDir:      *pnameDir,
		AuthorMapFile: *authorMap,
		MasterBranch:  cfg.DefaultBranch,
		Config:        cfg,
	}
	if *trunkBranch != "" {
		rev, err := rcsnum.Parse(*trunkBranch)
		if err != nil {
			logger.Fatalf("invalid --trunk-branch revision %q: %v", *trunkBranch, err)
		}
		opts.TrunkBranch = rev
	}

	out := os.Stdout
	if *authorList {
		// -a/--authorlist runs the same parse but discards the fast-import
		// stream, reporting only which usernames had no author-map entry.
		devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			logger.Fatalf("error opening %s: %v", os.DevNull, err)
		}
		defer devnull.Close()
		out = devnull
	}

	driver, err := export.New(opts, out, logger)
	if err != nil {
		logger.Fatalf("error initializing export: %v", err)
	}
	if err := driver.Run(); err != nil {
		logger.Fatalf("export failed: %v", err)
	}
	if *authorList {
		unmapped := driver.UnmappedAuthors()
		sort.Strings(unmapped)
		for _, u := range unmapped {
			fmt.Println(u)
		}
		os.Exit(0)
	}
}

// validateRCSDir applies the same sniff test main.c uses before trusting a
// directory: the project manifest's master must exist and begin with the
// four bytes "head", the RCS master file's universal first keyword.
func validateRCSDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "stat", Path: dir, Err: os.ErrInvalid}
	}
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return err
	}
	var pj string
	for _, e := range entries {
		if strings.EqualFold(e.Name(), "project.pj,v") {
			pj = filepath.Join(dir, e.Name())
			break
		}
	}
	if pj == "" {
		return fmt.Errorf("%s: no project.pj,v master found", dir)
	}
	f, err := os.Open(pj)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 4)
	if _, err := f.Read(head); err != nil {
		return fmt.Errorf("%s: %w", pj, err)
	}
	if string(head) != "head" {
		return fmt.Errorf("%s: not an RCS master (missing 'head' keyword)", pj)
	}
	return nil
}
