// Package graphexport reads a fast-import stream (typically
// mkssi-fast-export's own output) and builds a graphviz DOT graph of the
// commit/branch/merge structure, optionally squashed down to just the
// branch/merge points. Useful for sanity-checking a conversion's branch
// topology without replaying the whole import into a real git repository.
package graphexport

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/emicklei/dot"
	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/sirupsen/logrus"
)

// defaultUser names a commit's graph node when its author email can't be
// turned into a short handle.
var defaultUser = "mkssi-user"

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

func userFromEmail(email string) string {
	if email == "" {
		return defaultUser
	}
	parts := strings.Split(email, "@")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return defaultUser
}

// commitNode is one commit's graph-relevant state: its branch ancestry,
// how many children/merges reference it, and the dot.Node once drawn.
type commitNode struct {
	commit       *libfastimport.CmdCommit
	user         string
	branch       string
	label        string
	parentBranch string
	childCount   int
	mergeCount   int
	gNode        dot.Node
}

func newCommitNode(commit *libfastimport.CmdCommit) *commitNode {
	cn := &commitNode{commit: commit, user: userFromEmail(commit.Author.Email)}
	cn.branch = strings.Replace(commit.Ref, "refs/heads/", "", 1)
	if hasPrefix(cn.branch, "refs/tags") || hasPrefix(cn.branch, "refs/remote") {
		cn.branch = ""
	}
	cn.label = fmt.Sprintf("Commit: %d %s", cn.commit.Mark, cn.branch)
	return cn
}

// Options configures one graph-building run.
type Options struct {
	ImportFile  string // fast-import stream to read
	MaxCommits  int    // 0 means unbounded
	FirstCommit int    // 0 means from the start
	LastCommit  int    // 0 means to the end
	Squash      bool   // keep only branch points, merges, and the two endpoints
}

// Builder parses one fast-import stream into a graphviz graph of its
// commit/branch/merge structure.
type Builder struct {
	logger    *logrus.Logger
	opts      Options
	commits   map[int]*commitNode
	testInput string // set in tests instead of opening opts.ImportFile
	Graph     *dot.Graph
}

// New returns a Builder bound to logger and opts; call Parse then Graph
// holds the result.
func New(logger *logrus.Logger, opts Options) *Builder {
	return &Builder{
		logger:  logger,
		opts:    opts,
		commits: make(map[int]*commitNode),
		Graph:   dot.NewGraph(dot.Directed),
	}
}

// Parse reads opts.ImportFile (or the test input set via testInput) and
// populates Graph with one node per retained commit and one edge per
// parent/merge link, applying opts.FirstCommit/LastCommit/Squash.
func (b *Builder) Parse() {
	var buf io.Reader

	if b.testInput != "" {
		buf = strings.NewReader(b.testInput)
	} else {
		file, err := os.Open(b.opts.ImportFile)
		if err != nil {
			fmt.Printf("ERROR: Failed to open file '%s': %v\n", b.opts.ImportFile, err)
			os.Exit(1)
		}
		defer file.Close()
		buf = bufio.NewReader(file)
	}

	var cmt *commitNode
	lastBranchCommit := make(map[string]int)
	branchSkipCount := make(map[string]int)

	f := libfastimport.NewFrontend(buf, nil, nil)
CmdLoop:
	for {
		cmd, err := f.ReadCmd()
		if err != nil {
			if err != io.EOF {
				b.logger.Errorf("Failed to read cmd: %v", err)
				panic("Unrecoverable error")
			}
			break
		}
		switch cmd.(type) {
		case libfastimport.CmdCommit:
			commit := cmd.(libfastimport.CmdCommit)
			b.logger.Infof("Commit:  %+v", commit)
			cmt = newCommitNode(&commit)
			b.commits[commit.Mark] = cmt
			if cmt.commit.From != "" {
				if intVar, err := strconv.Atoi(cmt.commit.From[1:]); err == nil {
					parent := b.commits[intVar]
					parent.childCount++
					if cmt.branch == "" {
						cmt.branch = parent.branch
					}
					cmt.parentBranch = parent.branch
				}
			} else {
				cmt.branch = "main"
			}
			if len(cmt.commit.Merge) > 0 {
				for _, merge := range cmt.commit.Merge {
					if intVar, err := strconv.Atoi(merge[1:]); err == nil {
						mergeCmt := b.commits[intVar]
						mergeCmt.mergeCount++
					}
				}
			}
			if b.opts.MaxCommits != 0 && len(b.commits) > b.opts.MaxCommits {
				break CmdLoop
			}

		default:
		}
	}

	keys := make([]int, 0, len(b.commits))
	for k := range b.commits {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	for _, k := range keys {
		cmt := b.commits[k]
		if (b.opts.FirstCommit == 0 || cmt.commit.Mark >= b.opts.FirstCommit) &&
			(b.opts.LastCommit == 0 || cmt.commit.Mark <= b.opts.LastCommit) {
			if !b.opts.Squash ||
				cmt.branch != cmt.parentBranch ||
				len(cmt.commit.Merge) > 0 ||
				cmt.mergeCount != 0 ||
				cmt.childCount > 1 ||
				cmt.commit.Mark == b.opts.FirstCommit ||
				cmt.commit.Mark == b.opts.LastCommit ||
				k == keys[0] || k == keys[len(keys)-1] {
				if pid, ok := lastBranchCommit[cmt.branch]; ok {
					cmt.commit.From = fmt.Sprintf(":%d", pid)
				}
				cmt.gNode = b.Graph.Node(cmt.label)
				b.addEdges(cmt, branchSkipCount[cmt.branch])
				lastBranchCommit[cmt.branch] = cmt.commit.Mark
				branchSkipCount[cmt.branch] = 0
			} else {
				branchSkipCount[cmt.branch]++
			}
		}
	}
}

// addEdges draws cmt's parent edge (labelled "p", or "pN" when skipCount
// squashed commits were folded into it) and one "m" edge per merge parent.
func (b *Builder) addEdges(cmt *commitNode, skipCount int) {
	if cmt == nil {
		return
	}
	if cmt.commit.From != "" {
		if intVar, err := strconv.Atoi(cmt.commit.From[1:]); err == nil {
			parent := b.commits[intVar]
			if parent != nil {
				parent.gNode = b.Graph.Node(parent.label)
				label := "p"
				if skipCount > 0 {
					label = fmt.Sprintf("p%d", skipCount)
				}
				b.Graph.Edge(parent.gNode, cmt.gNode, label)
			}
		}
	}
	for _, merge := range cmt.commit.Merge {
		if intVar, err := strconv.Atoi(merge[1:]); err == nil {
			mergeFrom := b.commits[intVar]
			if mergeFrom != nil {
				mergeFrom.gNode = b.Graph.Node(mergeFrom.label)
				b.Graph.Edge(mergeFrom.gNode, cmt.gNode, "m")
			}
		}
	}
}
