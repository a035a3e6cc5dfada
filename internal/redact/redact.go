// Package redact strips blob bodies out of a git fast-import stream,
// replacing each with a placeholder derived from its mark, while
// optionally narrowing the stream down to commits that touch a path
// subtree. It operates on the same wire format mkssi-fast-export itself
// emits (spec 4.10's fast-import stream), so the parser is the same
// github.com/rcowham/go-libgitfastimport frontend/backend pair this
// project's own exporter never needs directly.
package redact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/datalight/mkssi-fast-export/internal/dirtree"
	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/sirupsen/logrus"
)

// Humanize formats a byte count the way Redactor's debug logging reports
// blob sizes before they're discarded.
func Humanize(b int) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(b)/float64(div), "kMGTPE"[exp])
}

func hasDirPrefix(s, prefix string) bool {
	return len(s) > len(prefix) && s[0:len(prefix)] == prefix
}

// appendFile appends the contents of src onto dst, used to splice the
// placeholder-blob listing ahead of the (separately written) filtered
// commit stream once both are on disk.
func appendFile(src, dst string) error {
	const bufferSize = 1024 * 1024
	sourceFileStat, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !sourceFileStat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.OpenFile(dst, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer destination.Close()

	buf := make([]byte, bufferSize)
	for {
		n, err := source.Read(buf)
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 {
			break
		}
		if _, err := destination.Write(buf[:n]); err != nil {
			return err
		}
	}
	return nil
}

// Options configures one redaction run.
type Options struct {
	ImportFile    string // fast-import stream to read
	ExportFile    string // redacted fast-import stream to write
	RenameRefs    bool   // replace spaces in ref/branch names with "_"
	FilterCommits bool   // drop commits that never touch PathFilter
	PathFilter    string // regex restricting output to a path subtree
	MaxCommits    int    // 0 means unbounded
	DebugCommit   int    // mark to log a breakpoint message for
}

// Redactor strips blob contents from one fast-import stream, optionally
// narrowing it to a path subtree, while preserving commit/branch/merge
// structure.
type Redactor struct {
	logger         *logrus.Logger
	opts           Options
	filesOnBranch  map[string]*dirtree.Node // current tree per branch, for directory-level rename/delete matching
	blobsFound     map[int]int              // marks of blobs actually referenced by the filtered output
	filteredFiles  map[string]int           // paths kept by the path filter (no leading depot/branch component)
	testInput      string                   // set in tests instead of opening ImportFile
	testOutput     *bytes.Buffer
	testBlobOutput *bytes.Buffer
}

// New returns a Redactor bound to logger; configure it with Run.
func New(logger *logrus.Logger) *Redactor {
	return &Redactor{
		logger:        logger,
		filesOnBranch: make(map[string]*dirtree.Node),
		blobsFound:    make(map[int]int),
		filteredFiles: make(map[string]int),
	}
}

type writeCloser struct {
	f *os.File
	*bufio.Writer
}

func (wc *writeCloser) Close() error {
	if err := wc.Flush(); err != nil {
		return err
	}
	if wc.f != nil {
		return wc.f.Close()
	}
	return nil
}

func getOID(dataref string) (int, error) {
	if !strings.HasPrefix(dataref, ":") {
		return 0, errors.New("invalid dataref")
	}
	return strconv.Atoi(dataref[1:])
}

// trackedCommit is one commit's branch/merge ancestry, as resolved during
// the first pass over the stream, used only when path-filtering.
type trackedCommit struct {
	commit       *libfastimport.CmdCommit
	fileCount    int
	mergeCount   int
	branch       string
	parentBranch string
	mergeBranch  []string
	filtered     bool
}

type markToCommit map[int]*trackedCommit

func (r *Redactor) filteredFileMatchesDir(path string) string {
	for f := range r.filteredFiles {
		if hasDirPrefix(f, path) {
			return f
		}
	}
	return ""
}

// markCommitsToFilter makes the first pass over the stream when path
// filtering is active: it resolves every commit's branch ancestry and
// records which paths survive the filter, without writing any output.
func (r *Redactor) markCommitsToFilter(rePathFilter *regexp.Regexp) *markToCommit {
	var inbuf io.Reader
	var infile *os.File
	var err error
	commitMap := make(markToCommit)

	if r.testInput != "" {
		inbuf = strings.NewReader(r.testInput)
	} else {
		infile, err = os.Open(r.opts.ImportFile)
		if err != nil {
			fmt.Printf("ERROR: Failed to open file '%s': %v\n", r.opts.ImportFile, err)
			os.Exit(1)
		}
		inbuf = bufio.NewReader(infile)
		defer infile.Close()
	}

	frontend := libfastimport.NewFrontend(inbuf, nil, nil)
	commitCount := 0
	currFileCount := 0
	var currCommit *trackedCommit
CmdLoop:
	for {
		cmd, err := frontend.ReadCmd()
		if err != nil {
			if err != io.EOF {
				r.logger.Errorf("ERROR: Failed to read cmd: %v", err)
			}
			break
		}
		switch cmd.(type) {

		case libfastimport.CmdCommit:
			commit := cmd.(libfastimport.CmdCommit)
			currCommit = &trackedCommit{commit: &commit, mergeBranch: make([]string, 0)}
			if r.opts.DebugCommit != 0 && r.opts.DebugCommit == commit.Mark {
				r.logger.Debugf("Commit breakpoint: %d", commit.Mark)
			}

		case libfastimport.CmdCommitEnd:
			commitCount++
			if r.opts.MaxCommits > 0 && commitCount >= r.opts.MaxCommits {
				break CmdLoop
			}
			currCommit.fileCount = currFileCount
			commitMap[currCommit.commit.Mark] = currCommit
			if currCommit.commit.From != "" {
				currCommit.branch = strings.Replace(currCommit.commit.Ref, "refs/heads/", "", 1)
				if intVar, err := strconv.Atoi(currCommit.commit.From[1:]); err == nil {
					parent := commitMap[intVar]
					if currCommit.branch == "" {
						currCommit.branch = parent.branch
					}
					currCommit.parentBranch = parent.parentBranch
					if currCommit.parentBranch == "" {
						currCommit.parentBranch = parent.branch
					}
				}
			} else {
				currCommit.branch = "main"
			}
			if len(currCommit.commit.Merge) > 0 {
				for _, merge := range currCommit.commit.Merge {
					if intVar, err := strconv.Atoi(merge[1:]); err == nil {
						mergeCmt := commitMap[intVar]
						mergeCmt.mergeCount++
						currCommit.mergeBranch = append(currCommit.mergeBranch, mergeCmt.branch)
					}
				}
			}
			currFileCount = 0

		case libfastimport.FileModify:
			fm := cmd.(libfastimport.FileModify)
			if r.opts.PathFilter != "" {
				if rePathFilter.MatchString(string(fm.Path)) {
					currFileCount++
					r.filteredFiles[string(fm.Path)] = 1
				}
			}

		case libfastimport.FileDelete:
			fdel := cmd.(libfastimport.FileDelete)
			if r.opts.PathFilter != "" {
				if rePathFilter.MatchString(string(fdel.Path)) || r.filteredFileMatchesDir(string(fdel.Path)) != "" {
					currFileCount++
				}
			}

		case libfastimport.FileCopy:
			fc := cmd.(libfastimport.FileCopy)
			if r.opts.PathFilter != "" {
				if rePathFilter.MatchString(string(fc.Src)) || rePathFilter.MatchString(string(fc.Dst)) ||
					r.filteredFileMatchesDir(string(fc.Src)) != "" {
					currFileCount++
					r.filteredFiles[string(fc.Src)] = 1
					r.filteredFiles[string(fc.Dst)] = 1
				}
			}

		case libfastimport.FileRename:
			fr := cmd.(libfastimport.FileRename)
			if r.opts.PathFilter != "" {
				if rePathFilter.MatchString(string(fr.Src)) || rePathFilter.MatchString(string(fr.Dst)) {
					currFileCount++
					r.filteredFiles[string(fr.Src)] = 1
					r.filteredFiles[string(fr.Dst)] = 1
				} else if path := r.filteredFileMatchesDir(string(fr.Src)); path != "" {
					currFileCount++
					dest := fmt.Sprintf("%s%s", string(fr.Dst), path[len(string(fr.Src)):])
					r.filteredFiles[dest] = 1
				}
			}

		default:
		}
	}
	return &commitMap
}

// findUnfilteredParent walks commit.From links back past any filtered-out
// commit to find the nearest surviving ancestor mark.
func (r *Redactor) findUnfilteredParent(commitMap *markToCommit, from string) string {
	var mark int
	var err error

	if from == "" {
		return from
	}
	for {
		if mark, err = strconv.Atoi(from[1:]); err == nil {
			if parent, ok := (*commitMap)[mark]; ok {
				if !parent.filtered {
					return from
				}
				from = parent.commit.From
			} else {
				r.logger.Errorf("ERROR: Failed to find parent from: %s", from)
				return from
			}
		} else {
			r.logger.Errorf("ERROR: Failed to extract int from: %s", from)
			return from
		}
	}
}

type fileAction int

const (
	actionUnknown fileAction = iota
	actionModify
	actionDelete
	actionCopy
	actionRename
)

type pendingFile struct {
	name    string
	srcName string // only for actionCopy/actionRename
	action  fileAction
	mode    libfastimport.Mode
	dataRef string
}

// pendingCommit is one commit accumulated while its file actions stream
// in, flushed to the backend once CmdCommit for the next commit arrives.
type pendingCommit struct {
	commit       *libfastimport.CmdCommit
	branch       string
	parentBranch string
	mergeBranch  []string
	files        []pendingFile
}

func (c *pendingCommit) ref() string {
	result := strings.Split(c.commit.Msg, " ")
	chg := "unknown"
	if len(result) >= 2 {
		chg = result[1]
	}
	return fmt.Sprintf("%d branch:%s chg:%s merge:%v", c.commit.Mark, c.branch, chg, c.mergeBranch)
}

// validateCommit keeps filesOnBranch in sync with cmt's file actions,
// copying a new branch's starting tree from its parent, so later
// directory-level rename/delete matching has an accurate current state.
func (r *Redactor) validateCommit(cmt *pendingCommit) {
	if cmt == nil {
		return
	}
	if _, ok := r.filesOnBranch[cmt.parentBranch]; !ok {
		r.filesOnBranch[cmt.parentBranch] = dirtree.New()
	}
	if _, ok := r.filesOnBranch[cmt.branch]; !ok {
		r.filesOnBranch[cmt.branch] = dirtree.New()
		pfiles := r.filesOnBranch[cmt.parentBranch].Files()
		r.logger.Infof("Creating new branch %s with %d files from parent %s", cmt.branch, len(pfiles), cmt.parentBranch)
		for _, f := range pfiles {
			r.filesOnBranch[cmt.branch].AddFile(f)
		}
	}
	node := r.filesOnBranch[cmt.branch]
	for i := range cmt.files {
		gf := cmt.files[i]
		switch gf.action {
		case actionModify, actionCopy:
			node.AddFile(gf.name)
		case actionDelete:
			node.RemoveFile(gf.name)
		case actionRename:
			node.AddFile(gf.name)
			node.RemoveFile(gf.srcName)
		}
	}
}

func (r *Redactor) processCommit(cmt *pendingCommit, backend *libfastimport.Backend, filteringPaths bool, rePathFilter *regexp.Regexp) {
	if cmt == nil {
		return
	}
	for i := range cmt.files {
		gf := cmt.files[i]
		switch gf.action {
		case actionModify:
			if filteringPaths {
				if rePathFilter.MatchString(gf.name) {
					r.logger.Infof("FileModify: %s %+v", cmt.ref(), gf)
					cmd := libfastimport.FileModify{Path: libfastimport.Path(gf.name), Mode: gf.mode, DataRef: gf.dataRef}
					backend.Do(cmd)
					if gf.dataRef != "" {
						oid, err := getOID(gf.dataRef)
						if err == nil {
							r.blobsFound[oid] = 1
						} else {
							r.logger.Errorf("Failed to extract Dataref: %+v", gf)
						}
					}
				}
			} else {
				cmd := libfastimport.FileModify{Path: libfastimport.Path(gf.name), Mode: gf.mode, DataRef: gf.dataRef}
				backend.Do(cmd)
			}
		case actionDelete:
			if filteringPaths {
				if rePathFilter.MatchString(gf.name) {
					r.logger.Infof("FileDelete: %s %+v", cmt.ref(), gf)
					cmd := libfastimport.FileDelete{Path: libfastimport.Path(gf.name)}
					backend.Do(cmd)
				} else if r.filteredFileMatchesDir(gf.name) != "" {
					r.logger.Infof("DirDelete: %s %+v", cmt.ref(), gf)
					cmd := libfastimport.FileDelete{Path: libfastimport.Path(gf.name)}
					backend.Do(cmd)
				}
			} else {
				cmd := libfastimport.FileDelete{Path: libfastimport.Path(gf.name)}
				backend.Do(cmd)
			}
		case actionCopy:
			if filteringPaths {
				match := false
				if rePathFilter.MatchString(gf.name) || rePathFilter.MatchString(gf.srcName) {
					r.logger.Infof("FileCopy: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
					match = true
				} else if path := r.filteredFileMatchesDir(gf.srcName); path != "" {
					r.logger.Infof("DirCopy: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
					r.filteredFiles[fmt.Sprintf("%s%s", gf.name, path[len(gf.srcName):])] = 1
					match = true
				}
				if match {
					cmd := libfastimport.FileCopy{Src: libfastimport.Path(gf.srcName), Dst: libfastimport.Path(gf.name)}
					backend.Do(cmd)
				}
			} else {
				cmd := libfastimport.FileCopy{Src: libfastimport.Path(gf.srcName), Dst: libfastimport.Path(gf.name)}
				backend.Do(cmd)
			}
		case actionRename:
			if filteringPaths {
				match := false
				if rePathFilter.MatchString(gf.name) || rePathFilter.MatchString(gf.srcName) {
					match = true
					r.logger.Infof("FileRename: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
				} else if path := r.filteredFileMatchesDir(gf.srcName); path != "" {
					match = true
					dest := fmt.Sprintf("%s%s", gf.name, path[len(gf.srcName):])
					r.filteredFiles[dest] = 1
					r.logger.Infof("DirRename: %s Src:%s Dst:%s", cmt.ref(), gf.srcName, gf.name)
				}
				if match {
					cmd := libfastimport.FileRename{Src: libfastimport.Path(gf.srcName), Dst: libfastimport.Path(gf.name)}
					backend.Do(cmd)
				}
			} else {
				cmd := libfastimport.FileRename{Src: libfastimport.Path(gf.srcName), Dst: libfastimport.Path(gf.name)}
				backend.Do(cmd)
			}
		}
	}
}

// Run redacts opts.ImportFile into opts.ExportFile: blob bodies become a
// one-line mark placeholder, commit/branch/merge structure is preserved,
// and (when opts.PathFilter is set) commits untouched by the filter are
// dropped and the output restricted to the matching path subtree.
func (r *Redactor) Run(opts Options) {
	var inbuf io.Reader
	var infile *os.File
	var err error
	var commitMap *markToCommit

	if r.testInput != "" {
		inbuf = strings.NewReader(r.testInput)
	} else {
		infile, err = os.Open(opts.ImportFile)
		if err != nil {
			fmt.Printf("ERROR: Failed to open file '%s': %v\n", opts.ImportFile, err)
			os.Exit(1)
		}
		inbuf = bufio.NewReader(infile)
	}

	r.opts = opts
	var rePathFilter *regexp.Regexp
	filteringPaths := false
	if r.opts.PathFilter != "" {
		rePathFilter = regexp.MustCompile(r.opts.PathFilter)
		filteringPaths = true
	}

	if filteringPaths {
		commitMap = r.markCommitsToFilter(rePathFilter)
	}

	var out *writeCloser
	if r.testInput != "" {
		r.testOutput = new(bytes.Buffer)
		out = &writeCloser{nil, bufio.NewWriter(r.testOutput)}
	} else {
		outpath := opts.ExportFile
		if filteringPaths {
			outpath = fmt.Sprintf("%s_", outpath)
		}
		outfile, err := os.Create(outpath)
		if err != nil {
			panic(err)
		}
		out = &writeCloser{outfile, bufio.NewWriter(outfile)}
	}
	defer out.Close()
	if infile != nil {
		defer infile.Close()
	}

	var currCommit *pendingCommit

	frontend := libfastimport.NewFrontend(inbuf, nil, nil)
	backend := libfastimport.NewBackend(out, nil, nil)
	commitCount := 0
	commitFiltered := false
	var currReset libfastimport.CmdReset
CmdLoop:
	for {
		cmd, err := frontend.ReadCmd()
		if err != nil {
			if err != io.EOF {
				r.logger.Errorf("ERROR: Failed to read cmd: %v", err)
			}
			break
		}
		switch ctype := cmd.(type) {
		case libfastimport.CmdBlob:
			blob := cmd.(libfastimport.CmdBlob)
			if !filteringPaths {
				r.logger.Debugf("Blob: Mark:%d OriginalOID:%s Size:%s", blob.Mark, blob.OriginalOID, Humanize(len(blob.Data)))
				blob.Data = fmt.Sprintf("%d\n", blob.Mark)
				backend.Do(blob)
			}

		case libfastimport.CmdReset:
			currReset = cmd.(libfastimport.CmdReset)
			if opts.RenameRefs {
				currReset.RefName = strings.ReplaceAll(currReset.RefName, " ", "_")
			}

		case libfastimport.CmdCommit:
			r.validateCommit(currCommit)
			r.processCommit(currCommit, backend, filteringPaths, rePathFilter)
			commit := cmd.(libfastimport.CmdCommit)
			if commit.Msg[len(commit.Msg)-1] != '\n' {
				commit.Msg += "\n"
			}
			if opts.RenameRefs {
				commit.Ref = strings.ReplaceAll(commit.Ref, " ", "_")
			}
			currCommit = &pendingCommit{commit: &commit, files: make([]pendingFile, 0), mergeBranch: make([]string, 0)}
			commitFiltered = false
			if r.opts.DebugCommit != 0 && r.opts.DebugCommit == commit.Mark {
				r.logger.Debugf("Commit breakpoint: %d", commit.Mark)
			}
			if r.opts.FilterCommits {
				if cmt, ok := (*commitMap)[commit.Mark]; ok {
					currCommit.branch = cmt.branch
					currCommit.mergeBranch = cmt.mergeBranch
					if cmt.fileCount > 0 || cmt.mergeCount > 0 || cmt.branch != cmt.parentBranch {
						r.logger.Debugf("Reset: - %+v", currReset)
						backend.Do(currReset)
						commit.From = r.findUnfilteredParent(commitMap, commit.From)
						backend.Do(commit)
					} else {
						commitFiltered = true
						cmt.filtered = true
						r.logger.Debugf("FilteredCommit:  %+v", commit)
					}
				} else {
					r.logger.Errorf("Couldn't find Commit: %d", commit.Mark)
				}
			} else {
				r.logger.Debugf("Reset: - %+v", currReset)
				backend.Do(currReset)
				backend.Do(commit)
			}
			if !commitFiltered {
				r.logger.Debugf("Commit:  %+v", commit)
			}

		case libfastimport.CmdCommitEnd:
			commit := cmd.(libfastimport.CmdCommitEnd)
			if !commitFiltered {
				r.logger.Debugf("CommitEnd: %+v", commit)
				backend.Do(cmd)
			} else {
				r.logger.Debugf("FilteredCommitEnd: %+v", commit)
			}
			commitCount++
			if r.opts.MaxCommits > 0 && commitCount >= r.opts.MaxCommits {
				r.logger.Infof("Processed %d commits", commitCount)
				break CmdLoop
			}

		case libfastimport.FileModify:
			fm := cmd.(libfastimport.FileModify)
			currCommit.files = append(currCommit.files, pendingFile{action: actionModify, name: fm.Path.String(), mode: fm.Mode, dataRef: fm.DataRef})

		case libfastimport.FileDelete:
			fdel := cmd.(libfastimport.FileDelete)
			currCommit.files = append(currCommit.files, pendingFile{action: actionDelete, name: fdel.Path.String()})

		case libfastimport.FileCopy:
			fc := cmd.(libfastimport.FileCopy)
			currCommit.files = append(currCommit.files, pendingFile{action: actionCopy, name: fc.Dst.String(), srcName: fc.Src.String()})

		case libfastimport.FileRename:
			fr := cmd.(libfastimport.FileRename)
			currCommit.files = append(currCommit.files, pendingFile{action: actionRename, name: fr.Dst.String(), srcName: fr.Src.String()})

		case libfastimport.CmdTag:
			t := cmd.(libfastimport.CmdTag)
			r.logger.Debugf("CmdTag: %+v", t)
			if opts.RenameRefs {
				t.RefName = strings.ReplaceAll(t.RefName, " ", "_")
			}
			backend.Do(t)

		default:
			r.logger.Errorf("Not handled - found ctype %s cmd %+v", ctype, cmd)
			r.logger.Errorf("Cmd type %T", cmd)
		}
	}
	r.validateCommit(currCommit)
	r.processCommit(currCommit, backend, filteringPaths, rePathFilter)

	if filteringPaths {
		r.writeBlobPlaceholders(opts)
	}
}

// writeBlobPlaceholders writes the sorted placeholder-blob listing
// referenced by the just-written filtered stream, then splices the
// filtered stream (held in the "_"-suffixed temp file) onto it so blobs
// precede the commits that reference them.
func (r *Redactor) writeBlobPlaceholders(opts Options) {
	var out *writeCloser
	if r.testInput != "" {
		r.testBlobOutput = new(bytes.Buffer)
		out = &writeCloser{nil, bufio.NewWriter(r.testBlobOutput)}
	} else {
		outfile, err := os.Create(opts.ExportFile)
		if err != nil {
			panic(err)
		}
		out = &writeCloser{outfile, bufio.NewWriter(outfile)}
	}
	defer out.Close()

	keys := make([]int, 0, len(r.blobsFound))
	for k := range r.blobsFound {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	backend := libfastimport.NewBackend(out, nil, nil)
	var blob libfastimport.CmdBlob
	for _, k := range keys {
		blob.Mark = k
		blob.Data = fmt.Sprintf("%d\n", blob.Mark)
		backend.Do(blob)
	}

	if r.testInput == "" {
		if err := appendFile(fmt.Sprintf("%s_", opts.ExportFile), opts.ExportFile); err != nil {
			r.logger.Errorf("Failed to write %s: %v", opts.ExportFile, err)
		}
	}
}
