package vcs

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/go-github/v66/github"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	_ Provider = (*GitHub)(nil)
	_ GitData  = (*GitHub)(nil)
)

// GitHub talks to the GitHub REST API on behalf of the token owner.
type GitHub struct {
	client *github.Client
	logger zerolog.Logger

	mu    sync.Mutex
	login string
}

type GitHubOption func(*GitHub) error

// WithBaseURL points the client at a different API root.
func WithBaseURL(raw string) GitHubOption {
	return func(g *GitHub) error {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "parse base url %q", raw)
		}
		g.client.BaseURL = u
		return nil
	}
}

func WithGitHubLogger(l zerolog.Logger) GitHubOption {
	return func(g *GitHub) error {
		g.logger = l
		return nil
	}
}

func NewGitHub(token string, httpClient *http.Client, opts ...GitHubOption) (*GitHub, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("github token is empty")
	}
	g := &GitHub{
		client: github.NewClient(httpClient).WithAuthToken(token),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *GitHub) owner(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.login != "" {
		return g.login, nil
	}
	u, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return "", errors.Wrap(err, "resolve authenticated user")
	}
	g.login = u.GetLogin()
	return g.login, nil
}

func (g *GitHub) CreateRepo(ctx context.Context, name string) (Repository, error) {
	r, _, err := g.client.Repositories.Create(ctx, "", &github.Repository{
		Name:            github.String(name),
		Private:         github.Bool(false),
		AutoInit:        github.Bool(true),
		Description:     github.String("AI-generated project."),
		LicenseTemplate: github.String("mit"),
	})
	if err != nil {
		if statusOf(err) == http.StatusUnprocessableEntity {
			return Repository{}, errors.Wrapf(ErrRepoExists, "%q", name)
		}
		return Repository{}, errors.Wrapf(err, "create repository %q", name)
	}
	repo := fromGitHub(r)
	g.logger.Info().Str("repo", repo.FullName()).Msg("created repository")
	return repo, nil
}

func (g *GitHub) GetRepo(ctx context.Context, name string) (Repository, error) {
	owner, err := g.owner(ctx)
	if err != nil {
		return Repository{}, err
	}
	r, _, err := g.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return Repository{}, errors.Wrapf(ErrRepoNotFound, "%s/%s", owner, name)
		}
		return Repository{}, errors.Wrapf(err, "get repository %s/%s", owner, name)
	}
	return fromGitHub(r), nil
}

func (g *GitHub) ReadFile(ctx context.Context, repo Repository, path string) (string, error) {
	fc, _, _, err := g.client.Repositories.GetContents(ctx, repo.Owner, repo.Name, path,
		&github.RepositoryContentGetOptions{Ref: repo.Branch()})
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return "", errors.Wrapf(ErrFileNotFound, "%s in %s", path, repo.FullName())
		}
		return "", errors.Wrapf(err, "fetch %s", path)
	}
	if fc == nil {
		return "", errors.Wrapf(ErrFileNotFound, "%s is not a file", path)
	}
	content, err := fc.GetContent()
	if err != nil {
		return "", errors.Wrapf(err, "decode %s", path)
	}
	return content, nil
}

func (g *GitHub) Commit(ctx context.Context, repo Repository, req CommitRequest) (string, error) {
	sha, err := CommitFiles(ctx, g, repo, req)
	if err != nil {
		return "", err
	}
	g.logger.Info().Str("repo", repo.FullName()).Str("sha", sha).Int("files", len(req.Files)).Msg("committed files")
	return sha, nil
}

// EnablePages publishes the default branch root. A 409 means Pages is
// already on, which is treated as success.
func (g *GitHub) EnablePages(ctx context.Context, repo Repository) error {
	_, _, err := g.client.Repositories.EnablePages(ctx, repo.Owner, repo.Name, &github.Pages{
		Source: &github.PagesSource{
			Branch: github.String(repo.Branch()),
			Path:   github.String("/"),
		},
	})
	if err != nil {
		if statusOf(err) == http.StatusConflict {
			g.logger.Info().Str("repo", repo.FullName()).Msg("pages already enabled")
			return nil
		}
		return errors.Wrap(err, "GitHub Pages enable failed")
	}
	g.logger.Info().Str("repo", repo.FullName()).Msg("pages enabled")
	return nil
}

func (g *GitHub) BranchHead(ctx context.Context, repo Repository, branch string) (Head, error) {
	ref, _, err := g.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
	if err != nil {
		return Head{}, err
	}
	commitSHA := ref.GetObject().GetSHA()
	c, _, err := g.client.Git.GetCommit(ctx, repo.Owner, repo.Name, commitSHA)
	if err != nil {
		return Head{}, err
	}
	return Head{CommitSHA: commitSHA, TreeSHA: c.GetTree().GetSHA()}, nil
}

func (g *GitHub) CreateBlob(ctx context.Context, repo Repository, base64Content string) (string, error) {
	b, _, err := g.client.Git.CreateBlob(ctx, repo.Owner, repo.Name, &github.Blob{
		Content:  github.String(base64Content),
		Encoding: github.String("base64"),
	})
	if err != nil {
		return "", err
	}
	return b.GetSHA(), nil
}

func (g *GitHub) CreateTree(ctx context.Context, repo Repository, baseTree string, entries []TreeEntry) (string, error) {
	ghEntries := make([]*github.TreeEntry, 0, len(entries))
	for _, e := range entries {
		ghEntries = append(ghEntries, &github.TreeEntry{
			Path: github.String(e.Path),
			Mode: github.String(e.Mode),
			Type: github.String(e.Type),
			SHA:  github.String(e.SHA),
		})
	}
	t, _, err := g.client.Git.CreateTree(ctx, repo.Owner, repo.Name, baseTree, ghEntries)
	if err != nil {
		return "", err
	}
	return t.GetSHA(), nil
}

func (g *GitHub) CreateCommit(ctx context.Context, repo Repository, message, tree string, parents []string) (string, error) {
	ps := make([]*github.Commit, 0, len(parents))
	for _, p := range parents {
		ps = append(ps, &github.Commit{SHA: github.String(p)})
	}
	c, _, err := g.client.Git.CreateCommit(ctx, repo.Owner, repo.Name, &github.Commit{
		Message: github.String(message),
		Tree:    &github.Tree{SHA: github.String(tree)},
		Parents: ps,
	}, nil)
	if err != nil {
		return "", err
	}
	return c.GetSHA(), nil
}

func (g *GitHub) UpdateBranch(ctx context.Context, repo Repository, branch, commitSHA string) error {
	_, _, err := g.client.Git.UpdateRef(ctx, repo.Owner, repo.Name, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: github.String(commitSHA)},
	}, false)
	return err
}

func fromGitHub(r *github.Repository) Repository {
	return Repository{
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		HTMLURL:       r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
	}
}

func statusOf(err error) int {
	var ger *github.ErrorResponse
	if errors.As(err, &ger) && ger.Response != nil {
		return ger.Response.StatusCode
	}
	return 0
}
