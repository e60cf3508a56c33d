// Package errs defines the error kinds surfaced by the ingestion and
// retrieval pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable, user-actionable error classification.
type Kind string

const (
	// CloneError: the repository source is unreachable or invalid.
	CloneError Kind = "CloneError"
	// ChunkDegraded: a chunking strategy failed and a coarser one was used.
	// Logged only.
	ChunkDegraded Kind = "ChunkDegraded"
	// EmbeddingError: the embedding provider failed.
	EmbeddingError Kind = "EmbeddingError"
	// EmptyIndexError: no repository has been ingested yet.
	EmptyIndexError Kind = "EmptyIndexError"
	// IndexBuildError: a vector backend could not be initialised. Logged only.
	IndexBuildError Kind = "IndexBuildError"
	// InvalidArgument: the caller supplied a malformed request.
	InvalidArgument Kind = "InvalidArgument"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrClone         = &Error{Kind: CloneError}
	ErrChunkDegraded = &Error{Kind: ChunkDegraded}
	ErrEmbedding     = &Error{Kind: EmbeddingError}
	ErrEmptyIndex    = &Error{Kind: EmptyIndexError}
	ErrIndexBuild    = &Error{Kind: IndexBuildError}
	ErrInvalid       = &Error{Kind: InvalidArgument}
)

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error. err may be nil.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so that errors.Is(err, ErrEmbedding) works for
// any wrapped *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
