package tracking

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/repotrack/internal/dictionary"
)

// Sentinel errors for tracking operations.
var (
	// ErrUnexpectedStatus is matched by *UnexpectedStatusError.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrMalformedPayload is matched by *ParseError.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrMethodUnreachable is matched by *MethodUnreachableError.
	ErrMethodUnreachable = errors.New("method unreachable")

	// ErrMissingAclReaders is returned when an ACL has no readers entry.
	ErrMissingAclReaders = errors.New("missing acl readers")

	// ErrChecksumMismatch is matched by *ChecksumMismatchError.
	ErrChecksumMismatch = errors.New("model checksum mismatch")

	// ErrNoTransaction is returned when there is no transaction to report.
	ErrNoTransaction = errors.New("no transaction")

	// ErrInjectedFailure is returned by MemoryRepository while its failure switch is on.
	ErrInjectedFailure = errors.New("injected failure")

	// ErrClosed is returned by a client after Close.
	ErrClosed = errors.New("client closed")

	// ErrInvalidArgument is returned for requests that cannot be sent.
	ErrInvalidArgument = errors.New("invalid argument")
)

// UnexpectedStatusError reports a response status the operation does not accept.
type UnexpectedStatusError struct {
	Op         string
	URL        string
	StatusCode int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: %s returned status %d", e.Op, e.URL, e.StatusCode)
}

// Is matches ErrUnexpectedStatus.
func (e *UnexpectedStatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// ParseError reports a payload that could not be decoded.
type ParseError struct {
	Op  string
	URL string
	// Snippet holds the bytes around the failure when diagnostics are enabled.
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: malformed payload from %s: %v", e.Op, e.URL, e.Err)
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (data: %q)", e.Snippet)
	}
	return msg
}

// Is matches ErrMalformedPayload.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedPayload
}

func (e *ParseError) Unwrap() error { return e.Err }

// MethodUnreachableError reports that an optional repository method could not be
// used, either because the request failed or the server does not provide it.
type MethodUnreachableError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *MethodUnreachableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s unreachable: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %s unreachable: status %d", e.Op, e.URL, e.StatusCode)
}

// Is matches ErrMethodUnreachable.
func (e *MethodUnreachableError) Is(target error) bool {
	return target == ErrMethodUnreachable
}

func (e *MethodUnreachableError) Unwrap() error { return e.Err }

// ChecksumMismatchError reports a model whose checksum differs from the expected one.
type ChecksumMismatchError struct {
	Model    dictionary.QName
	Expected int64
	Actual   int64
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("model %s: checksum %d, expected %d", e.Model, e.Actual, e.Expected)
}

// Is matches ErrChecksumMismatch.
func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrChecksumMismatch
}
