package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedExport is returned when a provider-native MIME type has
	// no export mapping. Raised before any network call.
	ErrUnsupportedExport = errors.New("unsupported export type")

	// ErrNoShareTargets is returned by the sharing step when neither domains
	// nor email addresses are configured. The file itself was still created.
	ErrNoShareTargets = errors.New("no sharing targets configured")

	// ErrBoundaryCollision is returned when caller-supplied content contains
	// the multipart boundary sequence.
	ErrBoundaryCollision = errors.New("content contains multipart boundary")
)

// SharingError reports a failed permission grant on a file that was created
// successfully. Distinct from a create/upload failure: the descriptor is valid.
type SharingError struct {
	FileID string
	Err    error
}

func (e *SharingError) Error() string {
	return fmt.Sprintf("sharing failed for file %s: %v", e.FileID, e.Err)
}

func (e *SharingError) Unwrap() error { return e.Err }
