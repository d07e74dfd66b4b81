package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// Blob Errors
	// ===========================================

	// ErrBlobNotFound indicates the requested blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrInvalidBlobID indicates the blob identifier is malformed.
	ErrInvalidBlobID = errors.New("invalid blob ID")

	// ErrBlobReferenced indicates the blob still has ledger entries and was not deleted.
	ErrBlobReferenced = errors.New("blob is still referenced")

	// ErrUploadFailed indicates the content or its metadata could not be written.
	ErrUploadFailed = errors.New("upload failed")

	// ErrBlobTooLarge indicates the upload exceeded the configured maximum size.
	ErrBlobTooLarge = errors.New("blob exceeds maximum upload size")

	// ErrBlobCorrupted indicates the blob content does not match its checksum.
	ErrBlobCorrupted = errors.New("blob content is corrupted")

	// ===========================================
	// Reference Errors
	// ===========================================

	// ErrInvalidReference indicates a blob-reference URL is malformed.
	ErrInvalidReference = errors.New("invalid blob reference")

	// ErrReferenceNotFound indicates the ledger entry does not exist.
	ErrReferenceNotFound = errors.New("reference not found")

	// ErrInvalidFieldKind indicates an unknown owner field kind.
	ErrInvalidFieldKind = errors.New("invalid field kind")

	// ===========================================
	// Project Errors
	// ===========================================

	// ErrProjectNotFound indicates the requested project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrProjectTitleRequired indicates the project has no title.
	ErrProjectTitleRequired = errors.New("project title is required")

	// ErrConcurrentUpdate indicates the document changed after it was read.
	ErrConcurrentUpdate = errors.New("document was modified concurrently")

	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same username/email exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ===========================================
	// Authentication/Authorization Errors
	// ===========================================

	// ErrAccessDenied indicates the caller does not have permission.
	ErrAccessDenied = errors.New("access denied")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., blob id, owner id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// WrapError wraps an error with domain context if it's not already a DomainError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	return &DomainError{
		Err:     err,
		Message: message,
	}
}
