package simpletracking

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrDocumentNotFound indicates a document was not found
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEventNotFound indicates an access event was not found
	ErrEventNotFound = errors.New("event not found")

	// ErrEmptyBatch indicates a registration batch yielded no valid items
	ErrEmptyBatch = errors.New("registration batch contains no valid items")

	// ErrMissingRepository indicates the service was built without a repository
	ErrMissingRepository = errors.New("repository is required")
)

// DocumentError represents an error related to document registry operations
type DocumentError struct {
	CID string
	Op  string
	Err error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document operation %s failed for cid %q: %v", e.Op, e.CID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

// EventError represents an error related to access event operations
type EventError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event operation %s failed for endpoint %q: %v", e.Op, e.Endpoint, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}
