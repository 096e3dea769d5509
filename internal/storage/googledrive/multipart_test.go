package googledrive

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/mkondo/driveman/internal/storage"
)

func TestBuildMultipartBody_TwoPartsAndClosingDelimiter(t *testing.T) {
	tests := []struct {
		name         string
		content      []byte
		base64Encode bool
	}{
		{"plain text content", []byte("hello world"), false},
		{"empty content", nil, false},
		{"binary content", []byte{0x00, 0xff, 0x10}, true},
		{"content resembling headers", []byte("Content-Type: evil\r\n\r\nbody"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := buildMultipartBody(fileMetadata{Name: "f.txt"}, "text/plain", tt.content, tt.base64Encode)
			if err != nil {
				t.Fatalf("buildMultipartBody failed: %v", err)
			}

			parts := strings.Split(body, "--"+Boundary)
			// Leading empty segment, two parts, then the closing "--".
			if len(parts) != 4 {
				t.Fatalf("expected 2 parts plus closing delimiter, got %d segments", len(parts))
			}
			if parts[0] != "" {
				t.Errorf("body must start with the boundary, got prefix %q", parts[0])
			}
			if parts[3] != "--" {
				t.Errorf("body must end with the closing delimiter, got %q", parts[3])
			}
			if !strings.Contains(parts[1], "Content-Type: application/json; charset=UTF-8") {
				t.Errorf("first part is not the JSON metadata part: %q", parts[1])
			}
			if !strings.Contains(parts[2], "Content-Type: text/plain") {
				t.Errorf("second part is not the content part: %q", parts[2])
			}
		})
	}
}

func TestBuildMultipartBody_Base64TransferEncoding(t *testing.T) {
	content := []byte{0xde, 0xad, 0xbe, 0xef}

	body, err := buildMultipartBody(fileMetadata{Name: "bin"}, "application/octet-stream", content, true)
	if err != nil {
		t.Fatalf("buildMultipartBody failed: %v", err)
	}
	if !strings.Contains(body, "Content-Transfer-Encoding: base64") {
		t.Error("expected Content-Transfer-Encoding header on the content part")
	}
	if !strings.Contains(body, base64.StdEncoding.EncodeToString(content)) {
		t.Error("expected base64-encoded payload in the content part")
	}
}

func TestBuildMultipartBody_NoTransferEncodingForText(t *testing.T) {
	body, err := buildMultipartBody(fileMetadata{Name: "t.txt"}, "text/plain", []byte("plain"), false)
	if err != nil {
		t.Fatalf("buildMultipartBody failed: %v", err)
	}
	if strings.Contains(body, "Content-Transfer-Encoding") {
		t.Error("text bodies must not carry a transfer-encoding header")
	}
	if !strings.Contains(body, "plain") {
		t.Error("expected raw payload in the content part")
	}
}

func TestBuildMultipartBody_MetadataPart(t *testing.T) {
	meta := fileMetadata{Name: "doc.txt", MIMEType: "text/plain", Parents: []string{"folder-1"}}
	body, err := buildMultipartBody(meta, "text/plain", []byte("x"), false)
	if err != nil {
		t.Fatalf("buildMultipartBody failed: %v", err)
	}
	if !strings.Contains(body, `"name":"doc.txt"`) {
		t.Errorf("metadata part missing name: %q", body)
	}
	if !strings.Contains(body, `"mimeType":"text/plain"`) {
		t.Errorf("metadata part missing MIME type: %q", body)
	}
	if !strings.Contains(body, `"parents":["folder-1"]`) {
		t.Errorf("metadata part missing parent assignment: %q", body)
	}
}

func TestBuildMultipartBody_BoundaryCollision(t *testing.T) {
	tests := []struct {
		name    string
		meta    fileMetadata
		content []byte
	}{
		{"boundary in content", fileMetadata{Name: "f"}, []byte("x" + Boundary + "y")},
		{"boundary in name", fileMetadata{Name: Boundary}, []byte("x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildMultipartBody(tt.meta, "text/plain", tt.content, false)
			if !errors.Is(err, storage.ErrBoundaryCollision) {
				t.Errorf("expected ErrBoundaryCollision, got %v", err)
			}
		})
	}
}

func TestBuildMultipartBody_Base64HidesCollision(t *testing.T) {
	// Raw bytes containing the boundary are safe once base64 encoded.
	content := []byte("x" + Boundary + "y")
	if _, err := buildMultipartBody(fileMetadata{Name: "f"}, "application/octet-stream", content, true); err != nil {
		t.Errorf("base64-encoded content cannot collide with the boundary, got %v", err)
	}
}
