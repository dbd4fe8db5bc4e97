// Package vcstest provides an in-memory git host for tests.
package vcstest

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/yokitheyo/pagesmith/internal/vcs"
)

var (
	_ vcs.Provider = (*Host)(nil)
	_ vcs.GitData  = (*Host)(nil)
)

type Commit struct {
	SHA     string
	Message string
	Tree    string
	Parents []string
}

type repoState struct {
	info    vcs.Repository
	blobs   map[string]string
	trees   map[string]map[string]string // tree sha -> path -> blob sha
	commits map[string]Commit
	refs    map[string]string
	pages   bool
}

// Host is a goroutine-safe fake provider. FailOn makes the named operation
// ("BranchHead", "CreateBlob", "CreateTree", "CreateCommit", "UpdateBranch",
// "EnablePages", "ReadFile") return an error.
type Host struct {
	Owner  string
	FailOn map[string]error

	mu    sync.Mutex
	repos map[string]*repoState
	seq   int
	calls []string
}

func NewHost(owner string) *Host {
	return &Host{
		Owner:  owner,
		FailOn: map[string]error{},
		repos:  map[string]*repoState{},
	}
}

func (h *Host) record(op string) error {
	h.calls = append(h.calls, op)
	if err, ok := h.FailOn[op]; ok {
		return err
	}
	return nil
}

func (h *Host) hash(kind string, parts ...string) string {
	h.seq++
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%s", kind, h.seq, strings.Join(parts, "\x00"))))
	return hex.EncodeToString(sum[:])
}

// Seed creates a repository whose default branch holds files.
func (h *Host) Seed(name string, files map[string]string) vcs.Repository {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seedLocked(name, files)
}

func (h *Host) seedLocked(name string, files map[string]string) vcs.Repository {
	st := &repoState{
		info: vcs.Repository{
			Owner:         h.Owner,
			Name:          name,
			HTMLURL:       fmt.Sprintf("https://github.com/%s/%s", h.Owner, name),
			DefaultBranch: vcs.DefaultBranch,
		},
		blobs:   map[string]string{},
		trees:   map[string]map[string]string{},
		commits: map[string]Commit{},
		refs:    map[string]string{},
	}
	tree := map[string]string{}
	for p, c := range files {
		sha := h.hash("blob", c)
		st.blobs[sha] = c
		tree[p] = sha
	}
	treeSHA := h.hash("tree")
	st.trees[treeSHA] = tree
	commitSHA := h.hash("commit", "Initial commit")
	st.commits[commitSHA] = Commit{SHA: commitSHA, Message: "Initial commit", Tree: treeSHA}
	st.refs[vcs.DefaultBranch] = commitSHA
	h.repos[name] = st
	return st.info
}

func (h *Host) repo(name string) (*repoState, error) {
	st, ok := h.repos[name]
	if !ok {
		return nil, errors.Wrap(vcs.ErrRepoNotFound, name)
	}
	return st, nil
}

func (h *Host) CreateRepo(_ context.Context, name string) (vcs.Repository, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("CreateRepo"); err != nil {
		return vcs.Repository{}, err
	}
	if _, ok := h.repos[name]; ok {
		return vcs.Repository{}, errors.Wrapf(vcs.ErrRepoExists, "%q", name)
	}
	return h.seedLocked(name, map[string]string{"LICENSE": "MIT"}), nil
}

func (h *Host) GetRepo(_ context.Context, name string) (vcs.Repository, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("GetRepo"); err != nil {
		return vcs.Repository{}, err
	}
	st, err := h.repo(name)
	if err != nil {
		return vcs.Repository{}, err
	}
	return st.info, nil
}

func (h *Host) ReadFile(_ context.Context, repo vcs.Repository, path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("ReadFile"); err != nil {
		return "", err
	}
	st, err := h.repo(repo.Name)
	if err != nil {
		return "", err
	}
	tree := st.trees[st.commits[st.refs[repo.Branch()]].Tree]
	sha, ok := tree[path]
	if !ok {
		return "", errors.Wrapf(vcs.ErrFileNotFound, "%s in %s", path, repo.FullName())
	}
	return st.blobs[sha], nil
}

func (h *Host) Commit(ctx context.Context, repo vcs.Repository, req vcs.CommitRequest) (string, error) {
	return vcs.CommitFiles(ctx, h, repo, req)
}

func (h *Host) EnablePages(_ context.Context, repo vcs.Repository) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("EnablePages"); err != nil {
		return err
	}
	st, err := h.repo(repo.Name)
	if err != nil {
		return err
	}
	st.pages = true
	return nil
}

func (h *Host) BranchHead(_ context.Context, repo vcs.Repository, branch string) (vcs.Head, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("BranchHead"); err != nil {
		return vcs.Head{}, err
	}
	st, err := h.repo(repo.Name)
	if err != nil {
		return vcs.Head{}, err
	}
	sha, ok := st.refs[branch]
	if !ok {
		return vcs.Head{}, errors.Errorf("branch %s not found", branch)
	}
	return vcs.Head{CommitSHA: sha, TreeSHA: st.commits[sha].Tree}, nil
}

func (h *Host) CreateBlob(_ context.Context, repo vcs.Repository, base64Content string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("CreateBlob"); err != nil {
		return "", err
	}
	st, err := h.repo(repo.Name)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(base64Content)
	if err != nil {
		return "", errors.Wrap(err, "blob is not base64")
	}
	sha := h.hash("blob", string(raw))
	st.blobs[sha] = string(raw)
	return sha, nil
}

func (h *Host) CreateTree(_ context.Context, repo vcs.Repository, baseTree string, entries []vcs.TreeEntry) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("CreateTree"); err != nil {
		return "", err
	}
	st, err := h.repo(repo.Name)
	if err != nil {
		return "", err
	}
	base, ok := st.trees[baseTree]
	if !ok {
		return "", errors.Errorf("tree %s not found", baseTree)
	}
	tree := make(map[string]string, len(base)+len(entries))
	for p, sha := range base {
		tree[p] = sha
	}
	for _, e := range entries {
		if _, ok := st.blobs[e.SHA]; !ok {
			return "", errors.Errorf("blob %s not found", e.SHA)
		}
		tree[e.Path] = e.SHA
	}
	sha := h.hash("tree")
	st.trees[sha] = tree
	return sha, nil
}

func (h *Host) CreateCommit(_ context.Context, repo vcs.Repository, message, tree string, parents []string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("CreateCommit"); err != nil {
		return "", err
	}
	st, err := h.repo(repo.Name)
	if err != nil {
		return "", err
	}
	if _, ok := st.trees[tree]; !ok {
		return "", errors.Errorf("tree %s not found", tree)
	}
	sha := h.hash("commit", message)
	st.commits[sha] = Commit{SHA: sha, Message: message, Tree: tree, Parents: append([]string(nil), parents...)}
	return sha, nil
}

func (h *Host) UpdateBranch(_ context.Context, repo vcs.Repository, branch, commitSHA string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record("UpdateBranch"); err != nil {
		return err
	}
	st, err := h.repo(repo.Name)
	if err != nil {
		return err
	}
	if _, ok := st.commits[commitSHA]; !ok {
		return errors.Errorf("commit %s not found", commitSHA)
	}
	st.refs[branch] = commitSHA
	return nil
}

// Head returns the commit the default branch points at.
func (h *Host) Head(name string) Commit {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.repos[name]
	if st == nil {
		return Commit{}
	}
	return st.commits[st.refs[vcs.DefaultBranch]]
}

// Files returns the file contents visible on the default branch.
func (h *Host) Files(name string) map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.repos[name]
	if st == nil {
		return nil
	}
	out := map[string]string{}
	for p, sha := range st.trees[st.commits[st.refs[vcs.DefaultBranch]].Tree] {
		out[p] = st.blobs[sha]
	}
	return out
}

// History walks first parents from the branch head.
func (h *Host) History(name string) []Commit {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.repos[name]
	if st == nil {
		return nil
	}
	var out []Commit
	sha := st.refs[vcs.DefaultBranch]
	for sha != "" {
		c := st.commits[sha]
		out = append(out, c)
		if len(c.Parents) == 0 {
			break
		}
		sha = c.Parents[0]
	}
	return out
}

func (h *Host) PagesEnabled(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.repos[name]
	return st != nil && st.pages
}

// Calls returns the operation names in call order.
func (h *Host) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Count returns how many times op was called.
func (h *Host) Count(op string) int {
	n := 0
	for _, c := range h.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (h *Host) RepoNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.repos))
	for n := range h.repos {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
