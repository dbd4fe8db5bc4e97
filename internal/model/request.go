package model

// Attachment is a named file referenced by a project request. URL is either
// a data: URI or an http(s) address.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type ProjectRequest struct {
	Secret        string       `json:"secret"`
	Email         string       `json:"email"`
	Task          string       `json:"task"`
	Round         int          `json:"round"`
	Nonce         string       `json:"nonce"`
	Brief         string       `json:"brief"`
	Attachments   []Attachment `json:"attachments"`
	Checks        []string     `json:"checks"`
	EvaluationURL string       `json:"evaluation_url"`
}

// Identity holds the request fields echoed back to the evaluation endpoint.
type Identity struct {
	Email string `json:"email"`
	Task  string `json:"task"`
	Round int    `json:"round"`
	Nonce string `json:"nonce"`
}

func (r ProjectRequest) Identity() Identity {
	return Identity{Email: r.Email, Task: r.Task, Round: r.Round, Nonce: r.Nonce}
}

// EvaluationPayload is built once per successful run and never mutated.
type EvaluationPayload struct {
	Identity
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

func NewEvaluationPayload(id Identity, repoURL, commitSHA, pagesURL string) EvaluationPayload {
	return EvaluationPayload{
		Identity:  id,
		RepoURL:   repoURL,
		CommitSHA: commitSHA,
		PagesURL:  pagesURL,
	}
}
