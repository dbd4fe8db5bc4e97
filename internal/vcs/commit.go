package vcs

import (
	"context"
	"encoding/base64"
	"sort"

	"github.com/pkg/errors"
)

const (
	fileMode = "100644"
	blobType = "blob"
)

// Head is the tip of a branch.
type Head struct {
	CommitSHA string
	TreeSHA   string
}

type TreeEntry struct {
	Path string
	Mode string
	Type string
	SHA  string
}

// GitData is the low-level object API of the hosting provider.
type GitData interface {
	BranchHead(ctx context.Context, repo Repository, branch string) (Head, error)
	CreateBlob(ctx context.Context, repo Repository, base64Content string) (string, error)
	CreateTree(ctx context.Context, repo Repository, baseTree string, entries []TreeEntry) (string, error)
	CreateCommit(ctx context.Context, repo Repository, message, tree string, parents []string) (string, error)
	UpdateBranch(ctx context.Context, repo Repository, branch, commitSHA string) error
}

// CommitFiles writes all files of req as exactly one commit on the
// repository's default branch:
//
//	head -> one blob per file -> one tree over the head tree -> one commit -> ref update
//
// Until the final ref update nothing is reachable from the branch, so a
// failure at any earlier step leaves the branch on its previous commit.
func CommitFiles(ctx context.Context, g GitData, repo Repository, req CommitRequest) (string, error) {
	if len(req.Files) == 0 {
		return "", ErrEmptyCommit
	}
	branch := repo.Branch()

	head, err := g.BranchHead(ctx, repo, branch)
	if err != nil {
		return "", errors.Wrapf(err, "read head of %s", branch)
	}

	paths := make([]string, 0, len(req.Files))
	for p := range req.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([]TreeEntry, 0, len(paths))
	for _, p := range paths {
		encoded := base64.StdEncoding.EncodeToString([]byte(req.Files[p]))
		sha, err := g.CreateBlob(ctx, repo, encoded)
		if err != nil {
			return "", errors.Wrapf(err, "create blob for %s", p)
		}
		entries = append(entries, TreeEntry{Path: p, Mode: fileMode, Type: blobType, SHA: sha})
	}

	tree, err := g.CreateTree(ctx, repo, head.TreeSHA, entries)
	if err != nil {
		return "", errors.Wrap(err, "create tree")
	}
	commit, err := g.CreateCommit(ctx, repo, req.Message, tree, []string{head.CommitSHA})
	if err != nil {
		return "", errors.Wrap(err, "create commit")
	}
	if err := g.UpdateBranch(ctx, repo, branch, commit); err != nil {
		return "", errors.Wrapf(err, "move %s to %s", branch, commit)
	}
	return commit, nil
}
