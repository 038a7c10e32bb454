// Package ragerr defines the error taxonomy shared by the RAG pipeline.
// Components fail with a typed [*Error] carrying a [Kind]; the workflow
// engine consults the kind to decide between retrying a step and failing
// the run outright, and the HTTP layer maps it onto the {error, type}
// response body.
package ragerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for retry decisions and API reporting.
// The string value is exactly what API clients see in the "type" field.
type Kind string

const (
	// KindConfiguration marks bad or missing settings. Fatal at startup,
	// never retried.
	KindConfiguration Kind = "ConfigurationError"

	// KindDocumentLoad marks an unreadable file or an unsupported document
	// format. The triggering ingestion run fails without retry.
	KindDocumentLoad Kind = "DocumentLoadError"

	// KindEmbedding marks an embedding backend failure (model load,
	// transport, decode). Retryable.
	KindEmbedding Kind = "EmbeddingError"

	// KindVectorDB marks a vector store failure (connectivity, schema,
	// query). Retryable.
	KindVectorDB Kind = "VectorDBError"

	// KindLLM marks a chat completion failure. Retryable when it escapes a
	// workflow step; mid-stream it is rendered as an in-band error chunk
	// instead of propagating.
	KindLLM Kind = "LLMError"

	// KindValidation marks bad caller input: malformed event payloads,
	// empty embed batches, mismatched upsert lengths. Never retried.
	KindValidation Kind = "ValidationError"
)

// Error is a classified pipeline error. It satisfies the standard
// errors.Is/As/Unwrap contracts so callers can both match the kind and
// inspect the wrapped cause.
type Error struct {
	kind Kind
	msg  string
	err  error
}

// New returns an *Error of the given kind with a fixed message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf returns an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err. A nil err is
// allowed and behaves like [New].
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind from anywhere in err's chain. It returns the
// empty string for nil errors and for errors that carry no *Error.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.kind
	}
	return ""
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the workflow engine should retry after err.
// Validation, configuration and document-load failures are permanent, as
// is context cancellation; infrastructure failures (embedding, vector
// store, LLM) and unclassified errors are treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case KindValidation, KindConfiguration, KindDocumentLoad:
		return false
	default:
		return true
	}
}
