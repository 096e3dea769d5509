package googledrive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mkondo/driveman/internal/storage"
	"google.golang.org/api/option"
)

// fakeDriveServer records requests and serves canned Drive API responses.
type fakeDriveServer struct {
	mu         sync.Mutex
	requests   []*http.Request
	bodies     []string
	permStatus int // status for permission creates, default 200
}

func (f *fakeDriveServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, r.Clone(context.Background()))
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()

		switch {
		case r.URL.Path == "/upload" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{
				"id": "created-1", "name": "created.txt", "mimeType": "text/plain",
			})
		case strings.HasSuffix(r.URL.Path, "/permissions") && r.Method == http.MethodPost:
			status := f.permStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			if status == http.StatusOK {
				w.Write([]byte(`{"id":"perm-1"}`))
			}
		case strings.HasSuffix(r.URL.Path, "/export"):
			w.Write([]byte("exported-bytes"))
		case strings.HasSuffix(r.URL.Path, "/files") && r.Method == http.MethodGet:
			w.Write([]byte(`{"files":[{"id":"f1","name":"a.txt","mimeType":"text/plain"},{"id":"f2","name":"b","mimeType":"application/vnd.google-apps.document"}]}`))
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Query().Get("alt") == "media":
			w.Write([]byte("raw-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeDriveServer) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestDrive(t *testing.T, cfg Config) (*Drive, *fakeDriveServer) {
	t.Helper()
	fake := &fakeDriveServer{}
	ts := httptest.NewServer(fake.handler())
	t.Cleanup(ts.Close)

	cfg.UploadURL = ts.URL + "/upload"
	d, err := New(context.Background(), &http.Client{}, cfg, option.WithEndpoint(ts.URL+"/"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d, fake
}

func TestDrive_ListFiles(t *testing.T) {
	d, fake := newTestDrive(t, Config{})

	files, err := d.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(files))
	}
	if files[0].ID != "f1" || files[0].Name != "a.txt" || files[0].MIMEType != "text/plain" {
		t.Errorf("unexpected first descriptor: %+v", files[0])
	}

	fake.mu.Lock()
	req := fake.requests[0]
	fake.mu.Unlock()
	q := req.URL.Query()
	if q.Get("pageSize") != "10" {
		t.Errorf("expected pageSize=10, got %q", q.Get("pageSize"))
	}
	if !strings.Contains(q.Get("q"), "trashed = false") {
		t.Errorf("query must exclude trashed items, got %q", q.Get("q"))
	}
	if !strings.Contains(q.Get("q"), "'me' in owners or sharedWithMe") {
		t.Errorf("query must restrict to owner/shared scope, got %q", q.Get("q"))
	}
	if q.Get("fields") != listFields {
		t.Errorf("expected fields %q, got %q", listFields, q.Get("fields"))
	}
}

func TestDrive_ListFiles_ParentFolderRestriction(t *testing.T) {
	d, fake := newTestDrive(t, Config{ParentFolderID: "folder-9"})

	if _, err := d.ListFiles(context.Background()); err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}

	fake.mu.Lock()
	q := fake.requests[0].URL.Query().Get("q")
	fake.mu.Unlock()
	if !strings.Contains(q, "'folder-9' in parents") {
		t.Errorf("expected parent folder restriction, got %q", q)
	}
}

func TestDrive_CreateFile_NoShareTargets(t *testing.T) {
	d, fake := newTestDrive(t, Config{})

	desc, err := d.CreateFile(context.Background(), "note.txt", "hello")
	if desc == nil || desc.ID != "created-1" {
		t.Fatalf("expected created descriptor, got %+v", desc)
	}
	// The file was created; only the sharing step is reported.
	if !errors.Is(err, storage.ErrNoShareTargets) {
		t.Errorf("expected ErrNoShareTargets, got %v", err)
	}
	if fake.requestCount() != 1 {
		t.Errorf("expected only the upload request, got %d", fake.requestCount())
	}
}

func TestDrive_CreateFile_SharesWithEachTarget(t *testing.T) {
	d, fake := newTestDrive(t, Config{
		ShareDomains: []string{"example.com"},
		ShareEmails:  []string{"a@example.com", "b@example.com"},
	})

	desc, err := d.CreateFile(context.Background(), "note.txt", "hello")
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if desc.ID != "created-1" {
		t.Errorf("unexpected descriptor: %+v", desc)
	}

	// 1 upload + 1 domain grant + 2 email grants.
	if fake.requestCount() != 4 {
		t.Fatalf("expected 4 requests, got %d", fake.requestCount())
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !strings.Contains(fake.bodies[1], `"domain":"example.com"`) || !strings.Contains(fake.bodies[1], `"role":"writer"`) {
		t.Errorf("unexpected domain grant body: %s", fake.bodies[1])
	}
	if !strings.Contains(fake.bodies[2], `"emailAddress":"a@example.com"`) {
		t.Errorf("unexpected email grant body: %s", fake.bodies[2])
	}
	if !strings.Contains(fake.bodies[3], `"emailAddress":"b@example.com"`) {
		t.Errorf("unexpected email grant body: %s", fake.bodies[3])
	}
}

func TestDrive_CreateFile_SharingFailureIsDistinct(t *testing.T) {
	d, fake := newTestDrive(t, Config{ShareDomains: []string{"example.com"}})
	fake.permStatus = http.StatusForbidden

	desc, err := d.CreateFile(context.Background(), "note.txt", "hello")
	if desc == nil {
		t.Fatal("expected descriptor even when sharing fails")
	}
	var shareErr *storage.SharingError
	if !errors.As(err, &shareErr) {
		t.Fatalf("expected SharingError, got %v", err)
	}
	if shareErr.FileID != "created-1" {
		t.Errorf("sharing error names file %q, want created-1", shareErr.FileID)
	}
}

func TestDrive_CreateFile_MultipartBody(t *testing.T) {
	d, fake := newTestDrive(t, Config{ShareEmails: []string{"x@example.com"}})

	if _, err := d.CreateFile(context.Background(), "note.txt", "hello"); err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}

	fake.mu.Lock()
	req := fake.requests[0]
	body := fake.bodies[0]
	fake.mu.Unlock()

	if ct := req.Header.Get("Content-Type"); !strings.Contains(ct, "multipart/related") || !strings.Contains(ct, Boundary) {
		t.Errorf("unexpected upload content type: %q", ct)
	}
	if parts := strings.Split(body, "--"+Boundary); len(parts) != 4 {
		t.Errorf("expected 2-part multipart body, got %d segments", len(parts))
	}
	if !strings.Contains(body, `"name":"note.txt"`) {
		t.Errorf("metadata part missing name: %s", body)
	}
	if !strings.Contains(body, `"mimeType":"text/plain"`) {
		t.Errorf("metadata part missing MIME type: %s", body)
	}
}

func TestDrive_UploadFile_Base64Content(t *testing.T) {
	d, fake := newTestDrive(t, Config{ShareEmails: []string{"x@example.com"}})

	content := []byte{0x01, 0x02, 0xfe}
	if _, err := d.UploadFile(context.Background(), "bin.dat", content); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}

	fake.mu.Lock()
	body := fake.bodies[0]
	fake.mu.Unlock()
	if !strings.Contains(body, "Content-Transfer-Encoding: base64") {
		t.Errorf("upload body missing transfer-encoding header: %s", body)
	}
}

func TestDrive_DownloadFile_Media(t *testing.T) {
	d, _ := newTestDrive(t, Config{})

	dl, err := d.DownloadFile(context.Background(), "f1", "a.txt", "text/plain")
	if err != nil {
		t.Fatalf("DownloadFile failed: %v", err)
	}
	if string(dl.Content) != "raw-bytes" {
		t.Errorf("expected media bytes, got %q", dl.Content)
	}
	if dl.Filename != "a.txt" || dl.MIMEType != "text/plain" {
		t.Errorf("unexpected download result: %+v", dl)
	}
}

func TestDrive_DownloadFile_Export(t *testing.T) {
	tests := []struct {
		mimeType     string
		name         string
		wantFilename string
	}{
		{"application/vnd.google-apps.document", "Report", "Report.docx"},
		{"application/vnd.google-apps.spreadsheet", "Sheet", "Sheet.xlsx"},
		{"application/vnd.google-apps.presentation", "Deck", "Deck.pptx"},
		{"application/vnd.google-apps.document", "Report.docx", "Report.docx"},
	}
	for _, tt := range tests {
		t.Run(tt.mimeType+"/"+tt.name, func(t *testing.T) {
			d, fake := newTestDrive(t, Config{})

			dl, err := d.DownloadFile(context.Background(), "f2", tt.name, tt.mimeType)
			if err != nil {
				t.Fatalf("DownloadFile failed: %v", err)
			}
			if dl.Filename != tt.wantFilename {
				t.Errorf("filename = %q, want %q", dl.Filename, tt.wantFilename)
			}
			if string(dl.Content) != "exported-bytes" {
				t.Errorf("expected export bytes, got %q", dl.Content)
			}

			fake.mu.Lock()
			req := fake.requests[0]
			fake.mu.Unlock()
			if !strings.HasSuffix(req.URL.Path, "/export") {
				t.Errorf("expected export endpoint, got %s", req.URL.Path)
			}
			if got := req.URL.Query().Get("mimeType"); got != exportFormats[tt.mimeType].MIMEType {
				t.Errorf("export target = %q, want %q", got, exportFormats[tt.mimeType].MIMEType)
			}
		})
	}
}

func TestDrive_DownloadFile_UnsupportedExport(t *testing.T) {
	d, fake := newTestDrive(t, Config{})

	_, err := d.DownloadFile(context.Background(), "f3", "Drawing", "application/vnd.google-apps.drawing")
	if !errors.Is(err, storage.ErrUnsupportedExport) {
		t.Fatalf("expected ErrUnsupportedExport, got %v", err)
	}
	// Raised before any network call.
	if fake.requestCount() != 0 {
		t.Errorf("expected no requests, got %d", fake.requestCount())
	}
}

func TestDrive_DeleteFile(t *testing.T) {
	d, fake := newTestDrive(t, Config{})

	if err := d.DeleteFile(context.Background(), "f1"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}

	fake.mu.Lock()
	req := fake.requests[0]
	fake.mu.Unlock()
	if req.Method != http.MethodDelete || !strings.HasSuffix(req.URL.Path, "/files/f1") {
		t.Errorf("unexpected delete request: %s %s", req.Method, req.URL.Path)
	}
}
