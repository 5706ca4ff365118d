// Package apperr defines the error taxonomy shared by the render service.
//
// Every failure that can reach an HTTP client is an *Error carrying a Kind.
// The Kind decides the status code and the generic public message; the
// wrapped error and any diagnostics stay server-side and are only logged.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an application error
type Kind int

const (
	// KindInternal is the fallback for errors without a more specific kind
	KindInternal Kind = iota
	// KindIO is a filesystem or I/O failure
	KindIO
	// KindCanonicalizePath means a configured path could not be resolved
	KindCanonicalizePath
	// KindNotADirectory means a configured path is not a directory
	KindNotADirectory
	// KindInputSerialization means the request payload could not be decoded or encoded
	KindInputSerialization
	// KindTemplateNotFound means the requested template is not in the catalog
	KindTemplateNotFound
	// KindCompilation means the document program failed to compile or run
	KindCompilation
	// KindExport means the compiled document could not be exported
	KindExport
	// KindTaskJoin means a background render unit crashed
	KindTaskJoin
	// KindConnectionClosed means the client went away before the archive was complete
	KindConnectionClosed
	// KindArchive is a failure inside the ZIP writer
	KindArchive
	// KindPayloadTooLarge means the request body exceeded the configured limit
	KindPayloadTooLarge
	// KindRateLimited means the caller exceeded the request rate
	KindRateLimited
	// KindTimeout means a render ran past the server's deadline
	KindTimeout
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCanonicalizePath:
		return "canonicalize_path"
	case KindNotADirectory:
		return "not_a_directory"
	case KindInputSerialization:
		return "input_serialization"
	case KindTemplateNotFound:
		return "template_not_found"
	case KindCompilation:
		return "compilation"
	case KindExport:
		return "export"
	case KindTaskJoin:
		return "task_join"
	case KindConnectionClosed:
		return "connection_closed"
	case KindArchive:
		return "archive"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind
func (k Kind) Status() int {
	switch k {
	case KindTemplateNotFound:
		return http.StatusNotFound
	case KindInputSerialization, KindCompilation, KindConnectionClosed,
		KindCanonicalizePath, KindNotADirectory:
		return http.StatusBadRequest
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message that is safe to show to a client
func (k Kind) PublicMessage() string {
	switch k {
	case KindIO:
		return "I/O operation failed"
	case KindCanonicalizePath:
		return "Failed to resolve file path"
	case KindNotADirectory:
		return "Provided path is not a directory"
	case KindInputSerialization:
		return "Invalid request payload"
	case KindTemplateNotFound:
		return "Requested template not found"
	case KindCompilation:
		return "Document compilation failed"
	case KindExport:
		return "PDF export failed"
	case KindTaskJoin:
		return "Worker task failed to complete"
	case KindConnectionClosed:
		return "Client closed connection"
	case KindArchive:
		return "Failed to stream ZIP archive"
	case KindPayloadTooLarge:
		return "Request payload too large"
	case KindRateLimited:
		return "Rate limit exceeded"
	case KindTimeout:
		return "Document rendering timed out"
	default:
		return "Internal server error"
	}
}

// Error is an application error with a kind, the failing operation and an optional cause
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "catalog.resolve"
	Op string
	// Subject is the template, path or entry the error is about
	Subject string
	Err     error
	// Diagnostics carries compiler or exporter messages; logged, never sent to clients
	Diagnostics []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Subject != "" {
		fmt.Fprintf(&b, " %q", e.Subject)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Diagnostics) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Diagnostics, "; "))
		b.WriteString("]")
	}
	return b.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, op, subject string, err error) *Error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// WithDiagnostics attaches diagnostics to the error
func (e *Error) WithDiagnostics(diags ...string) *Error {
	e.Diagnostics = append(e.Diagnostics, diags...)
	return e
}

// TemplateNotFound reports a template name that is not in the catalog
func TemplateNotFound(name string) *Error {
	return New(KindTemplateNotFound, "catalog.resolve", name, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
