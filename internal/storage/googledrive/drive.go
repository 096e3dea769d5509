// Package googledrive implements storage.Client against the Google Drive v3 API.
package googledrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mkondo/driveman/internal/model"
	"github.com/mkondo/driveman/internal/storage"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// listPageSize bounds list calls to a single small page; there is no
// pagination beyond the first page.
const listPageSize = 10

const listFields = "nextPageToken, files(id, name, mimeType)"

// Config carries the deployment-provided Drive settings.
type Config struct {
	// ParentFolderID optionally restricts listing and creation to one folder.
	ParentFolderID string

	// ShareDomains and ShareEmails receive write permission on every file
	// created or uploaded through this client.
	ShareDomains []string
	ShareEmails  []string

	// UploadURL overrides the multipart upload endpoint, for tests.
	UploadURL string
}

// Drive implements storage.Client for Google Drive.
type Drive struct {
	service    *drive.Service
	httpClient *http.Client
	cfg        Config
}

// New creates a Drive client. client must be an authenticated *http.Client
// carrying the session's bearer token; it is used both by the SDK service and
// for the hand-built multipart upload requests.
func New(ctx context.Context, client *http.Client, cfg Config, opts ...option.ClientOption) (*Drive, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = defaultUploadURL
	}
	return &Drive{service: srv, httpClient: client, cfg: cfg}, nil
}

// listQuery builds the server-side filter: trashed items are excluded and the
// scope is either the configured parent folder or the owner/shared set.
func (d *Drive) listQuery() string {
	if d.cfg.ParentFolderID != "" {
		return fmt.Sprintf("'%s' in parents and trashed = false", d.cfg.ParentFolderID)
	}
	return "trashed = false and ('me' in owners or sharedWithMe)"
}

// ListFiles returns the first page of descriptors in scope.
func (d *Drive) ListFiles(ctx context.Context) ([]model.FileDescriptor, error) {
	r, err := d.service.Files.List().
		Q(d.listQuery()).
		PageSize(listPageSize).
		Fields(googleapi.Field(listFields)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list files: %w", err)
	}

	files := make([]model.FileDescriptor, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, model.FileDescriptor{
			ID:       f.Id,
			Name:     f.Name,
			MIMEType: f.MimeType,
		})
	}
	return files, nil
}

// CreateFile creates a plain-text file and then runs the sharing step.
// A non-nil descriptor may be returned together with a sharing error.
func (d *Drive) CreateFile(ctx context.Context, name, content string) (*model.FileDescriptor, error) {
	body, err := buildMultipartBody(d.fileMetadata(name, "text/plain"), "text/plain", []byte(content), false)
	if err != nil {
		return nil, err
	}
	desc, err := d.doMultipartUpload(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("unable to create file: %w", err)
	}
	return desc, d.share(ctx, desc.ID)
}

// UploadFile uploads binary content base64-encoded and then runs the sharing
// step, with the same error contract as CreateFile.
func (d *Drive) UploadFile(ctx context.Context, name string, content []byte) (*model.FileDescriptor, error) {
	body, err := buildMultipartBody(d.fileMetadata(name, "application/octet-stream"), "application/octet-stream", content, true)
	if err != nil {
		return nil, err
	}
	desc, err := d.doMultipartUpload(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("unable to upload file: %w", err)
	}
	return desc, d.share(ctx, desc.ID)
}

func (d *Drive) fileMetadata(name, mimeType string) fileMetadata {
	meta := fileMetadata{Name: name, MIMEType: mimeType}
	if d.cfg.ParentFolderID != "" {
		meta.Parents = []string{d.cfg.ParentFolderID}
	}
	return meta
}

// share grants write permission to every configured domain and email address.
// Called after a successful create/upload; its failure leaves the file in place.
func (d *Drive) share(ctx context.Context, fileID string) error {
	if len(d.cfg.ShareDomains) == 0 && len(d.cfg.ShareEmails) == 0 {
		return storage.ErrNoShareTargets
	}
	for _, domain := range d.cfg.ShareDomains {
		perm := &drive.Permission{Type: "domain", Role: "writer", Domain: domain}
		if _, err := d.service.Permissions.Create(fileID, perm).Context(ctx).Do(); err != nil {
			return &storage.SharingError{FileID: fileID, Err: err}
		}
	}
	for _, email := range d.cfg.ShareEmails {
		perm := &drive.Permission{Type: "user", Role: "writer", EmailAddress: email}
		if _, err := d.service.Permissions.Create(fileID, perm).Context(ctx).Do(); err != nil {
			return &storage.SharingError{FileID: fileID, Err: err}
		}
	}
	return nil
}

// DownloadFile fetches a file's bytes. Provider-native document types are
// exported to their Office Open XML format and the filename gets the matching
// extension; everything else is fetched verbatim from the media endpoint.
func (d *Drive) DownloadFile(ctx context.Context, id, name, mimeType string) (*storage.Download, error) {
	if strings.HasPrefix(mimeType, nativeTypePrefix) {
		format, ok := exportFormats[mimeType]
		if !ok {
			return nil, fmt.Errorf("%w: %s", storage.ErrUnsupportedExport, mimeType)
		}
		resp, err := d.service.Files.Export(id, format.MIMEType).Context(ctx).Download()
		if err != nil {
			return nil, fmt.Errorf("unable to export file: %w", err)
		}
		return readDownload(resp, ensureExtension(name, format.Extension), format.MIMEType)
	}

	resp, err := d.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("unable to download file: %w", err)
	}
	return readDownload(resp, name, mimeType)
}

func readDownload(resp *http.Response, filename, mimeType string) (*storage.Download, error) {
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read file content: %w", err)
	}
	return &storage.Download{Filename: filename, MIMEType: mimeType, Content: content}, nil
}

// DeleteFile permanently deletes a file by ID.
func (d *Drive) DeleteFile(ctx context.Context, id string) error {
	if err := d.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to delete file: %w", err)
	}
	return nil
}
