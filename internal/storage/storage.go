package storage

import (
	"context"

	"github.com/mkondo/driveman/internal/model"
)

// Download is the result of a download operation: the bytes plus the filename
// and content type the caller should save them under.
type Download struct {
	Filename string
	MIMEType string
	Content  []byte
}

// Client defines the remote file operations the application drives.
// This abstraction keeps the handlers independent of the Drive SDK and lets
// tests substitute a fake.
type Client interface {
	// ListFiles returns the first page of file descriptors visible to the
	// signed-in user (or restricted to the configured parent folder).
	ListFiles(ctx context.Context) ([]model.FileDescriptor, error)

	// CreateFile creates a text file from the given content, then grants
	// write permission to the configured sharing targets. A sharing failure
	// is reported alongside the created descriptor.
	CreateFile(ctx context.Context, name, content string) (*model.FileDescriptor, error)

	// UploadFile uploads binary content under the given name, with the same
	// sharing step as CreateFile.
	UploadFile(ctx context.Context, name string, content []byte) (*model.FileDescriptor, error)

	// DownloadFile fetches the file's bytes, exporting provider-native
	// document types to their Office Open XML counterpart.
	DownloadFile(ctx context.Context, id, name, mimeType string) (*Download, error)

	// DeleteFile permanently deletes a file. No soft-delete, no undo.
	DeleteFile(ctx context.Context, id string) error
}
