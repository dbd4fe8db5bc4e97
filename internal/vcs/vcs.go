// Package vcs builds atomic multi-file commits and manages the hosted
// repository that receives generated projects.
package vcs

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrRepoExists   = errors.New("repository already exists")
	ErrRepoNotFound = errors.New("repository not found")
	ErrFileNotFound = errors.New("file not found")
	ErrEmptyCommit  = errors.New("commit request has no files")
)

const DefaultBranch = "main"

type Repository struct {
	Owner         string
	Name          string
	HTMLURL       string
	DefaultBranch string
}

func (r Repository) Branch() string {
	if r.DefaultBranch == "" {
		return DefaultBranch
	}
	return r.DefaultBranch
}

// PagesURL is where GitHub Pages serves the repository root.
func (r Repository) PagesURL() string {
	return fmt.Sprintf("https://%s.github.io/%s/", r.Owner, r.Name)
}

func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// CommitRequest is a set of files written together as one commit.
type CommitRequest struct {
	Files   map[string]string
	Message string
}

// Provider is the repository surface the workflow depends on.
type Provider interface {
	// CreateRepo creates a public, initialised repository. It returns
	// ErrRepoExists when the name is taken.
	CreateRepo(ctx context.Context, name string) (Repository, error)
	// GetRepo returns ErrRepoNotFound when the repository is absent.
	GetRepo(ctx context.Context, name string) (Repository, error)
	ReadFile(ctx context.Context, repo Repository, path string) (string, error)
	// Commit writes every file in req as a single commit and returns its sha.
	Commit(ctx context.Context, repo Repository, req CommitRequest) (string, error)
	EnablePages(ctx context.Context, repo Repository) error
}
