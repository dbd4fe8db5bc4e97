package vcs_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yokitheyo/pagesmith/internal/vcs"
)

const repoJSON = `{"name":"site","html_url":"https://github.com/octo/site","default_branch":"main","owner":{"login":"octo"}}`

type fakeAPI struct {
	mu      sync.Mutex
	blobs   []string
	tree    map[string]any
	commit  map[string]any
	refSHA  string
	pagesOn bool
	seq     int
}

func newFakeAPI(t *testing.T) (*fakeAPI, *vcs.GitHub) {
	t.Helper()
	api := &fakeAPI{}
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
	notFound := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"Not Found"}`)
	}

	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"login":"octo"}`)
	})
	mux.HandleFunc("POST /user/repos", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] == "taken" {
			writeJSON(w, http.StatusUnprocessableEntity, `{"message":"Repository creation failed.","errors":[{"resource":"Repository","code":"custom","field":"name","message":"name already exists on this account"}]}`)
			return
		}
		if body["auto_init"] != true || body["private"] != false || body["license_template"] != "mit" {
			writeJSON(w, http.StatusBadRequest, `{"message":"unexpected create options"}`)
			return
		}
		writeJSON(w, http.StatusCreated, repoJSON)
	})
	mux.HandleFunc("GET /repos/octo/site", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, repoJSON)
	})
	mux.HandleFunc("GET /repos/octo/missing", notFound)
	mux.HandleFunc("GET /repos/octo/site/contents/index.html", func(w http.ResponseWriter, r *http.Request) {
		content := base64.StdEncoding.EncodeToString([]byte("<html>old</html>"))
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"type":"file","name":"index.html","path":"index.html","encoding":"base64","content":%q}`, content))
	})
	mux.HandleFunc("GET /repos/octo/site/contents/README.md", notFound)
	mux.HandleFunc("GET /repos/octo/site/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"ref":"refs/heads/main","object":{"type":"commit","sha":"c0"}}`)
	})
	mux.HandleFunc("GET /repos/octo/site/git/commits/c0", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"sha":"c0","tree":{"sha":"t0"}}`)
	})
	mux.HandleFunc("POST /repos/octo/site/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content  string `json:"content"`
			Encoding string `json:"encoding"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw, err := base64.StdEncoding.DecodeString(body.Content)
		if err != nil || body.Encoding != "base64" {
			writeJSON(w, http.StatusBadRequest, `{"message":"bad blob"}`)
			return
		}
		api.mu.Lock()
		api.blobs = append(api.blobs, string(raw))
		api.seq++
		sha := fmt.Sprintf("b%d", api.seq)
		api.mu.Unlock()
		writeJSON(w, http.StatusCreated, fmt.Sprintf(`{"sha":%q}`, sha))
	})
	mux.HandleFunc("POST /repos/octo/site/git/trees", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&api.tree)
		api.mu.Unlock()
		writeJSON(w, http.StatusCreated, `{"sha":"t1"}`)
	})
	mux.HandleFunc("POST /repos/octo/site/git/commits", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&api.commit)
		api.mu.Unlock()
		writeJSON(w, http.StatusCreated, `{"sha":"c1"}`)
	})
	mux.HandleFunc("PATCH /repos/octo/site/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SHA string `json:"sha"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.mu.Lock()
		api.refSHA = body.SHA
		api.mu.Unlock()
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"ref":"refs/heads/main","object":{"type":"commit","sha":%q}}`, body.SHA))
	})
	mux.HandleFunc("POST /repos/octo/site/pages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Source struct {
				Branch string `json:"branch"`
				Path   string `json:"path"`
			} `json:"source"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Source.Branch != "main" || body.Source.Path != "/" {
			writeJSON(w, http.StatusBadRequest, `{"message":"bad source"}`)
			return
		}
		api.mu.Lock()
		already := api.pagesOn
		api.pagesOn = true
		api.mu.Unlock()
		if already {
			writeJSON(w, http.StatusConflict, `{"message":"GitHub Pages is already enabled."}`)
			return
		}
		writeJSON(w, http.StatusCreated, `{"url":"https://api.github.com/repos/octo/site/pages"}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	gh, err := vcs.NewGitHub("ghp_test", srv.Client(), vcs.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return api, gh
}

func TestGitHub_CreateRepo(t *testing.T) {
	_, gh := newFakeAPI(t)
	ctx := context.Background()

	repo, err := gh.CreateRepo(ctx, "site")
	require.NoError(t, err)
	assert.Equal(t, vcs.Repository{Owner: "octo", Name: "site", HTMLURL: "https://github.com/octo/site", DefaultBranch: "main"}, repo)

	_, err = gh.CreateRepo(ctx, "taken")
	assert.True(t, errors.Is(err, vcs.ErrRepoExists), "got %v", err)
}

func TestGitHub_GetRepo(t *testing.T) {
	_, gh := newFakeAPI(t)
	ctx := context.Background()

	repo, err := gh.GetRepo(ctx, "site")
	require.NoError(t, err)
	assert.Equal(t, "octo", repo.Owner)

	_, err = gh.GetRepo(ctx, "missing")
	assert.True(t, errors.Is(err, vcs.ErrRepoNotFound), "got %v", err)
}

func TestGitHub_ReadFile(t *testing.T) {
	_, gh := newFakeAPI(t)
	ctx := context.Background()
	repo := vcs.Repository{Owner: "octo", Name: "site", DefaultBranch: "main"}

	content, err := gh.ReadFile(ctx, repo, "index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>old</html>", content)

	_, err = gh.ReadFile(ctx, repo, "README.md")
	assert.True(t, errors.Is(err, vcs.ErrFileNotFound), "got %v", err)
}

func TestGitHub_CommitBuildsOneTreeAndCommit(t *testing.T) {
	api, gh := newFakeAPI(t)
	repo := vcs.Repository{Owner: "octo", Name: "site", DefaultBranch: "main"}

	sha, err := gh.Commit(context.Background(), repo, vcs.CommitRequest{
		Files:   map[string]string{"index.html": "<p>hi</p>", "README.md": "# hi"},
		Message: "Initial commit of AI-generated code and README",
	})
	require.NoError(t, err)
	assert.Equal(t, "c1", sha)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"# hi", "<p>hi</p>"}, api.blobs)
	assert.Equal(t, "t0", api.tree["base_tree"])
	entries, ok := api.tree["tree"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)
	first := entries[0].(map[string]any)
	assert.Equal(t, "README.md", first["path"])
	assert.Equal(t, "100644", first["mode"])
	assert.Equal(t, "blob", first["type"])
	assert.Equal(t, "b1", first["sha"])

	assert.Equal(t, "t1", api.commit["tree"])
	assert.Equal(t, []any{"c0"}, api.commit["parents"])
	assert.Equal(t, "c1", api.refSHA)
}

func TestGitHub_EnablePages(t *testing.T) {
	api, gh := newFakeAPI(t)
	repo := vcs.Repository{Owner: "octo", Name: "site", DefaultBranch: "main"}

	require.NoError(t, gh.EnablePages(context.Background(), repo))
	require.NoError(t, gh.EnablePages(context.Background(), repo), "409 counts as enabled")
	assert.True(t, api.pagesOn)
}

func TestNewGitHub_RequiresToken(t *testing.T) {
	_, err := vcs.NewGitHub(" ", nil)
	assert.Error(t, err)
}
