// Package export orchestrates one end-to-end conversion run: load every
// RCS master under the RCS directory, walk the project manifest's history
// revision by revision, turn each revision-to-revision delta into commits,
// and write the whole thing out as a git fast-import stream.
package export

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/datalight/mkssi-fast-export/config"
	"github.com/datalight/mkssi-fast-export/internal/author"
	"github.com/datalight/mkssi-fast-export/internal/changeset"
	"github.com/datalight/mkssi-fast-export/internal/commitmerge"
	"github.com/datalight/mkssi-fast-export/internal/dirtree"
	"github.com/datalight/mkssi-fast-export/internal/fastimport"
	"github.com/datalight/mkssi-fast-export/internal/keyword"
	"github.com/datalight/mkssi-fast-export/internal/project"
	"github.com/datalight/mkssi-fast-export/internal/rcs"
	"github.com/datalight/mkssi-fast-export/internal/rcsmaster"
	"github.com/datalight/mkssi-fast-export/internal/rcsnum"
)

// Options configures one export run, mirroring the CLI flags in spec 6.
type Options struct {
	RCSDir        string
	ProjectDir    string // -p value; accepted, but not read by the export
	SourceDir     string // -S value, used by $Header$/$Source$
	PnameDir      string // -P value, used by $ProjectName$
	AuthorMapFile string
	ProjectFile   string // "project.pj" by default
	MasterBranch  string // git branch name for the trunk

	// TrunkBranch is the -b/--trunk-branch revision: when set, trunk
	// revisions numerically beyond it are not exported on the master
	// branch (spec 4.10 step 5's "if a --trunk-branch was configured").
	TrunkBranch rcsnum.Number

	// Config carries the optional -c/--config overrides (branch renames,
	// executable-bit overrides). May be nil.
	Config *config.Config
}

func (o Options) applyBranchRename(name string) string {
	if o.Config == nil {
		return name
	}
	return o.Config.ApplyBranchRename(name)
}

func (o Options) executableOverride(path string) (bool, bool) {
	if o.Config == nil {
		return false, false
	}
	return o.Config.ExecutableOverrideFor(path)
}

// Driver holds the state accumulated across one export run.
type Driver struct {
	opts    Options
	files   map[string]*rcs.File // by relative path
	masters map[string][]byte    // relative path -> raw master bytes
	authors *author.Map
	out     *fastimport.Writer

	nextMark      int
	branchCommits map[string]int // branch name -> commits emitted, for end-of-run stats
	log           *logrus.Logger
}

// New constructs a Driver, loading the author map (if any) and preparing
// the fast-import writer.
func New(opts Options, out io.Writer, log *logrus.Logger) (*Driver, error) {
	if opts.ProjectFile == "" {
		opts.ProjectFile = "project.pj"
	}
	if opts.MasterBranch == "" {
		opts.MasterBranch = "main"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	d := &Driver{
		opts:          opts,
		files:         map[string]*rcs.File{},
		masters:       map[string][]byte{},
		out:           fastimport.NewWriter(out),
		branchCommits: map[string]int{},
		log:           log,
	}

	if opts.AuthorMapFile != "" {
		data, err := ioutil.ReadFile(opts.AuthorMapFile)
		if err != nil {
			return nil, fmt.Errorf("export: reading author map: %w", err)
		}
		m, err := author.Load(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("export: parsing author map: %w", err)
		}
		d.authors = m
	} else {
		d.authors = author.New()
	}
	return d, nil
}

// LoadMasters walks RCSDir and parses every ",v" master file it finds.
func (d *Driver) LoadMasters() error {
	return rcsmaster.WalkDir(d.opts.RCSDir, func(relPath, absPath string) error {
		data, err := ioutil.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("export: reading %s: %w", absPath, err)
		}
		f, err := rcsmaster.Read(data, relPath, absPath)
		if err != nil {
			d.log.Warnf("skipping corrupt master %s: %v", absPath, err)
			return nil
		}
		d.files[relPath] = f
		d.masters[relPath] = data
		return nil
	})
}

// ExportBlobs walks every loaded file's full revision history and writes a
// blob command per reconstructed body, assigning each Version a BlobMark.
func (d *Driver) ExportBlobs() error {
	names := d.sortedFileNames()
	total := len(names)
	lastPct := -1
	for i, name := range names {
		f := d.files[name]
		master := d.masters[name]
		headText, err := rcs.HeadContent(f, master)
		if err != nil {
			d.log.Warnf("%s: %v", name, err)
			continue
		}
		err = rcs.Walk(f, headText, master, func(file *rcs.File, rev rcsnum.Number, content []byte, memberTypeOther bool) error {
			mark := d.allocMark()
			ver := file.VersionByNumber(rev)
			// The member-type "other" copy is written without keyword expansion.
			if ver != nil && !memberTypeOther {
				expanded, flags := keyword.Expand(string(content), d.keywordContext(file, ver))
				content = []byte(expanded)
				if ver.BlobMark == 0 {
					ver.BlobMark = mark
				}
				ver.KWName = ver.KWName || flags.KWName
				ver.KWPath = ver.KWPath || flags.KWPath
				ver.KWProjRev = ver.KWProjRev || flags.KWProjRev
			}
			if memberTypeOther {
				file.OtherBlobMark = mark
			}
			d.out.Blob(mark, content)
			return nil
		})
		if err != nil {
			return fmt.Errorf("export: walking %s: %w", name, err)
		}
		if pct := (i + 1) * 100 / total; pct != lastPct {
			lastPct = pct
			d.out.Progress(fmt.Sprintf("blobs %d%% (%d/%d)", pct, i+1, total))
		}
	}
	return nil
}

func (d *Driver) keywordContext(f *rcs.File, v *rcs.Version) keyword.Context {
	locker := ""
	for _, l := range f.Locks {
		if rcsnum.Equal(l.Revision, v.Number) {
			locker = l.Locker
		}
	}
	return keyword.Context{
		SourceDir:    d.opts.SourceDir,
		PnameDir:     d.opts.PnameDir,
		ProjectFile:  d.opts.ProjectFile,
		FileBaseName: filepath.Base(f.Name),
		FilePath:     f.Name,
		Revision:     v.Number.String(),
		Date:         v.Time.Text,
		Author:       v.Author,
		State:        v.State,
		Locker:       locker,
		LogHistory:   logHistory(f, v.Number),
	}
}

// logHistory builds the $Log$ entry chain for revision rev: itself, plus
// (spec 4.5) the immediately-preceding revision's entry once more whenever
// the current patch's log is exactly the "Duplicate revision\n" placeholder
// and rev ends in ".1" at a nesting of 4 or more (a branch-creation
// revision whose own log carries no useful information).
func logHistory(f *rcs.File, rev rcsnum.Number) []keyword.LogEntry {
	var history []keyword.LogEntry
	cur := rev
	for {
		ver := f.VersionByNumber(cur)
		patch := f.PatchByNumber(cur)
		if ver == nil || patch == nil {
			break
		}
		history = append(history, keyword.LogEntry{
			Revision: cur.String(),
			Date:     ver.Time.Text,
			Author:   ver.Author,
			Comment:  patch.Log,
		})
		if !changeset.SkipDuplicateRevision(patch.Log) || cur.Len() < 4 || cur.Component(cur.Len()-1) != 1 {
			break
		}
		prev, ok := rcsnum.Decrement(cur)
		if !ok {
			break
		}
		cur = prev
	}
	return history
}

// branchDef pairs a discovered rcs.Branch with the bookkeeping needed to
// place it during the trunk walk. Branches are read once, from the head
// of the RCS project.pj, matching spec 4.6's "no project directory
// available" case -- this port does not wire -p/--proj-dir into branch
// discovery, so the live vpNNNN.pj disambiguation path (reading each
// branch's own tip_number) is not exercised; see DESIGN.md.
type branchDef struct {
	branch   *rcs.Branch
	consumed bool
}

// buildBranchDefs sanitizes every branch name in entries (applying any
// configured -c/--config branch-rename override to the sanitized name),
// detecting the spec 8/S6 fatal case: two branches whose resulting names
// collide but whose source revisions differ (an unresolvable git-ref
// clash).
func buildBranchDefs(entries []project.BranchEntry, rename func(string) string) ([]*branchDef, error) {
	byName := make(map[string]*branchDef)
	var defs []*branchDef
	for _, e := range entries {
		ref, err := e.GitRef()
		if err != nil {
			return nil, fmt.Errorf("export: branch %q: %w", e.BranchName, err)
		}
		ref = rename(ref)
		if existing, ok := byName[ref]; ok {
			if !rcsnum.Equal(existing.branch.StartRevision, e.Revision) || existing.branch.ManifestFile != e.ManifestFile {
				return nil, fmt.Errorf("export: duplicate branch ref %q from distinct MKSSI branches (%s, %s)",
					ref, existing.branch.ManifestFile, e.ManifestFile)
			}
			continue
		}
		bd := &branchDef{branch: &rcs.Branch{
			Name: ref, ManifestFile: e.ManifestFile, StartRevision: e.Revision,
		}}
		byName[ref] = bd
		defs = append(defs, bd)
	}
	return defs, nil
}

// pickBranchNumber returns the first of ver's child branch-start numbers
// not already claimed by another branchDef, since the head project.pj's
// branches block names branches by the trunk checkpoint they fork from but
// not by their own RCS branch number; multiple branches forking from the
// same checkpoint are paired to ver.Branches entries in encounter order
// (spec 4.10's "multi-checkpoint disambiguation" via each branch's own
// tip_number is not available without a project directory -- see
// buildBranchDefs's doc comment).
func pickBranchNumber(ver *rcs.Version, consumed map[string]bool) (rcsnum.Number, bool) {
	for _, b := range ver.Branches {
		if !consumed[b.String()] {
			return b, true
		}
	}
	return rcsnum.Number{}, false
}

// branchRevisions returns every version of pj on the same RCS branch as
// branchNum (including branchNum itself), sorted ascending.
func branchRevisions(versions []*rcs.Version, branchNum rcsnum.Number) []*rcs.Version {
	var out []*rcs.Version
	for _, v := range versions {
		if rcsnum.Equal(v.Number, branchNum) || rcsnum.SameBranch(v.Number, branchNum) {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rcsnum.Compare(out[i].Number, out[j].Number) < 0 })
	return out
}

const tagMessage = "Demarcates the end of commits for this MKSSI branch.\n"

// toolAuthorName/toolAuthorEmail mirror commitmerge's synthetic tool
// identity, used here for the demarcating tag's tagger (spec 4.10 step 7;
// MKSSI itself has no notion of a tagger for a tool-generated tag).
const toolAuthorName = "mkssi-fast-export"
const toolAuthorEmail = "mkssi-fast-export@localhost"

// ExportTrunk walks the trunk's sequence of project-manifest revisions
// (1.1, 1.2, ...), turning each transition into commits written to the
// master branch, and at every trunk checkpoint a MKSSI branch forks from,
// recurses into that branch's own revision history (spec 4.10 steps 2, 5,
// 7). Branch-of-branch recursion is not implemented: the single
// head-parsed branches list (spec 4.6's no-project-directory case) carries
// only the trunk checkpoint each branch forks from, not any deeper fork
// point a branch-of-a-branch would need (see DESIGN.md).
func (d *Driver) ExportTrunk() error {
	pj, ok := d.files[d.opts.ProjectFile]
	if !ok {
		return fmt.Errorf("export: project manifest %s not found", d.opts.ProjectFile)
	}
	master := d.masters[d.opts.ProjectFile]

	headText, err := rcs.HeadContent(pj, master)
	if err != nil {
		return err
	}
	headManifest, err := project.Parse(string(headText), pj.Head)
	var branchDefs []*branchDef
	if err != nil {
		d.log.Warnf("project manifest head: %v", err)
	} else {
		branchDefs, err = buildBranchDefs(headManifest.Branches, d.opts.applyBranchRename)
		if err != nil {
			return err
		}
	}

	var prev []*rcs.FileRevision
	var prevTime time.Time
	var lastMark int
	tree := dirtree.New()
	consumedBranch := map[string]bool{}

	revisions := sortedVersions(pj.Versions)
	trunk := make([]*rcs.Version, 0, len(revisions))
	for _, v := range revisions {
		if v.Number.IsTrunk() {
			trunk = append(trunk, v)
		}
	}
	if !d.opts.TrunkBranch.Empty() {
		cut := 0
		for cut < len(trunk) && rcsnum.Compare(trunk[cut].Number, d.opts.TrunkBranch) <= 0 {
			cut++
		}
		trunk = trunk[:cut]
	}
	for idx, ver := range trunk {
		content, err := reconstructRevision(pj, master, headText, ver.Number)
		if err != nil {
			d.log.Warnf("project revision %s: %v", ver.Number, err)
			continue
		}
		manifest, err := project.Parse(string(content), ver.Number)
		if err != nil {
			d.log.Warnf("project revision %s: %v", ver.Number, err)
			continue
		}

		next := d.resolveManifest(manifest, tree)
		exportingTip := idx == len(trunk)-1
		changes := changeset.Build(prev, next, exportingTip, ver.Number.String(), prevTime, ver.Time.When)
		commits := commitmerge.Merge(changes, d.opts.MasterBranch, d.authors, ver.Number.String(), ver.Time.When)
		for _, c := range commits {
			lastMark = d.writeCommit(c, lastMark)
		}
		prev = next
		prevTime = ver.Time.When

		for _, bd := range branchDefs {
			if bd.consumed || !rcsnum.Equal(bd.branch.StartRevision, ver.Number) {
				continue
			}
			branchNum, ok := pickBranchNumber(ver, consumedBranch)
			if !ok {
				d.log.Warnf("branch %q: no matching RCS branch number at revision %s", bd.branch.Name, ver.Number)
				continue
			}
			bd.consumed = true
			consumedBranch[branchNum.String()] = true
			if err := d.exportBranch(pj, master, headText, bd, branchNum, next, lastMark, ver.Time.When, tree); err != nil {
				return err
			}
		}
	}
	return nil
}

// exportBranch walks one MKSSI branch's own project.pj revision chain,
// starting from the trunk manifest at the fork point (baseManifest) and
// the trunk's commit mark there (baseMark, used as the new ref's "from").
// Every commit lands on bd.branch.Name; a demarcating annotated tag is
// emitted once the branch's last commit lands, per spec 4.10 step 7.
func (d *Driver) exportBranch(pj *rcs.File, master, headText []byte, bd *branchDef, branchNum rcsnum.Number, baseManifest []*rcs.FileRevision, baseMark int, baseTime time.Time, parentTree *dirtree.Node) error {
	versions := branchRevisions(pj.Versions, branchNum)
	if len(versions) == 0 {
		return nil
	}
	ref := bd.branch.Name
	tree := parentTree.Clone()
	prev := baseManifest
	prevTime := baseTime
	lastMark := baseMark
	var lastCommitTime rcs.Timestamp
	committed := false

	for _, ver := range versions {
		content, err := reconstructRevision(pj, master, headText, ver.Number)
		if err != nil {
			d.log.Warnf("branch %s revision %s: %v", ref, ver.Number, err)
			continue
		}
		manifest, err := project.Parse(string(content), ver.Number)
		if err != nil {
			d.log.Warnf("branch %s revision %s: %v", ref, ver.Number, err)
			continue
		}
		next := d.resolveManifest(manifest, tree)
		changes := changeset.Build(prev, next, false, ver.Number.String(), prevTime, ver.Time.When)
		commits := commitmerge.Merge(changes, ref, d.authors, ver.Number.String(), ver.Time.When)
		for _, c := range commits {
			if c.IsEmpty() {
				continue
			}
			lastMark = d.writeCommit(c, lastMark)
			lastCommitTime = c.Time
			committed = true
			bd.branch.CommitCount++
		}
		prev = next
		prevTime = ver.Time.When
	}

	if committed {
		d.out.Tag(ref+"_mkssi", "refs/heads/"+ref, toolAuthorName, toolAuthorEmail,
			lastCommitTime.When.Unix(), tagMessage)
	}
	return nil
}

func (d *Driver) resolveManifest(m *project.Manifest, tree *dirtree.Node) []*rcs.FileRevision {
	out := make([]*rcs.FileRevision, 0, len(m.Files))
	for _, entry := range m.Files {
		f, ok := d.files[entry.Path]
		if !ok {
			f = &rcs.File{Name: entry.Path, Dummy: true}
			d.files[entry.Path] = f
		}
		canonical := tree.AddFile(entry.Path)
		fr := &rcs.FileRevision{
			File: f, Revision: entry.Revision, CanonicalPath: canonical,
			MemberTypeOther: entry.Type == project.MemberOther,
		}
		if entry.Type == project.MemberArchive {
			fr.Version = f.VersionByNumber(entry.Revision)
		} else {
			f.HasMemberTypeOther = true
			if f.Binary {
				fr.Revision = f.Head
			} else {
				fr.Revision = rcsnum.MustParse("1.1")
			}
			fr.Version = f.VersionByNumber(fr.Revision)
		}
		out = append(out, fr)
	}
	return out
}

func (d *Driver) writeCommit(c *rcs.Commit, from int) int {
	if c.IsEmpty() {
		return from
	}
	d.branchCommits[c.Branch]++
	mark := d.allocMark()
	ref := "refs/heads/" + c.Branch
	ci := fastimport.CommitInfo{
		Ref: ref, Mark: mark, Author: c.Author, Email: commitEmail(c), EpochSecs: c.Time.When.Unix(),
		Message: c.Message,
	}
	if from != 0 {
		ci.From = fmt.Sprintf(":%d", from)
	}
	d.out.Commit(ci)
	for _, r := range c.Renames {
		d.out.FileRename(r.OldPath, r.NewPath)
	}
	for _, a := range c.Adds {
		d.out.FileModify(d.fileMode(a), blobMarkFor(a), a.NewPath)
	}
	for _, u := range c.Updates {
		d.out.FileModify(d.fileMode(u), blobMarkFor(u), u.NewPath)
	}
	for _, del := range c.Deletes {
		d.out.FileDelete(del.OldPath)
	}
	d.out.End()
	return mark
}

func commitEmail(c *rcs.Commit) string {
	if c.Email != "" {
		return c.Email
	}
	return c.Author
}

// fileMode determines a file change's git mode: any configured
// -c/--config executable-bit override for the new path takes precedence
// over the reconstructed-content heuristic (spec 4.4's shebang/extension/
// ELF-magic detection, recorded on Version.Executable).
func (d *Driver) fileMode(fc *rcs.FileChange) string {
	if executable, ok := d.opts.executableOverride(fc.NewPath); ok {
		if executable {
			return "100755"
		}
		return "100644"
	}
	if fc.File != nil {
		if v := fc.File.VersionByNumber(fc.NewRevision); v != nil && v.Executable {
			return "100755"
		}
	}
	return "100644"
}

func blobMarkFor(fc *rcs.FileChange) int {
	if fc.File == nil {
		return 0
	}
	if fc.MemberTypeOther && fc.File.OtherBlobMark != 0 {
		return fc.File.OtherBlobMark
	}
	if v := fc.File.VersionByNumber(fc.NewRevision); v != nil {
		return v.BlobMark
	}
	return 0
}

// reconstructRevision re-walks f from head down to rev, a simpler (if more
// repeated-work) substitute for caching every intermediate buffer: the
// project manifest is small relative to tracked source files, so the cost
// is acceptable.
func reconstructRevision(f *rcs.File, master, headText []byte, rev rcsnum.Number) ([]byte, error) {
	var found []byte
	var ok bool
	err := rcs.Walk(f, headText, master, func(file *rcs.File, r rcsnum.Number, content []byte, memberTypeOther bool) error {
		if !ok && rcsnum.Equal(r, rev) && !memberTypeOther {
			found = content
			ok = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("revision %s not found", rev)
	}
	return found, nil
}

func (d *Driver) allocMark() int {
	d.nextMark++
	return d.nextMark
}

func (d *Driver) sortedFileNames() []string {
	names := make([]string, 0, len(d.files))
	for n := range d.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func sortedVersions(versions []*rcs.Version) []*rcs.Version {
	out := append([]*rcs.Version(nil), versions...)
	sort.SliceStable(out, func(i, j int) bool {
		return rcsnum.Compare(out[i].Number, out[j].Number) < 0
	})
	return out
}

// Run executes the full pipeline: load masters, emit blobs, walk the
// trunk's project-manifest history, and flush the output stream.
func (d *Driver) Run() error {
	d.out.FeatureDone()
	if err := d.LoadMasters(); err != nil {
		return err
	}
	if err := d.ExportBlobs(); err != nil {
		return err
	}
	if err := d.ExportTrunk(); err != nil {
		return err
	}
	for _, u := range d.authors.Unmapped() {
		d.log.Warnf("no author mapping for %q; used a fabricated git identity", u)
	}
	for _, name := range sortedBranchNames(d.branchCommits) {
		d.log.Infof("branch %s: %d commits", name, d.branchCommits[name])
	}
	d.out.Done()
	return d.out.Flush()
}

func sortedBranchNames(m map[string]int) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UnmappedAuthors returns every username encountered during the run that
// had no entry in the author map, for -a/--authorlist.
func (d *Driver) UnmappedAuthors() []string {
	return d.authors.Unmapped()
}
