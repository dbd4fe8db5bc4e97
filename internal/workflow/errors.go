package workflow

import (
	"github.com/pkg/errors"
)

// Kind classifies why a workflow step failed. None of them are retried.
type Kind string

const (
	KindRepoCreation    Kind = "RepoCreationError"
	KindRepoNotFound    Kind = "RepoNotFoundError"
	KindContentFetch    Kind = "ContentFetchError"
	KindGeneration      Kind = "GenerationError"
	KindEmptyGeneration Kind = "EmptyGenerationError"
	KindCommit          Kind = "CommitError"
	KindHosting         Kind = "HostingError"
	KindPanic           Kind = "PanicError"
)

// StepError is the failure result of one step.
type StepError struct {
	Kind Kind
	Err  error
}

func (e *StepError) Error() string { return e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Kind: kind, Err: err}
}

// IsKind reports whether err carries a StepError of kind k.
func IsKind(err error, k Kind) bool {
	var se *StepError
	return errors.As(err, &se) && se.Kind == k
}
