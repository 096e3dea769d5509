package googledrive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mkondo/driveman/internal/model"
	"github.com/mkondo/driveman/internal/storage"
)

// Boundary is the fixed multipart boundary shared by all upload requests.
// Bodies are scan-guarded against containing it, so a collision fails the
// request instead of silently corrupting it.
const Boundary = "driveman_boundary_1492ad5c"

const defaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart&fields=id%2Cname%2CmimeType"

// fileMetadata is the JSON metadata part of a multipart upload.
type fileMetadata struct {
	Name     string   `json:"name"`
	MIMEType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// buildMultipartBody assembles the two-part multipart/related body: a JSON
// metadata part and a content part, joined by Boundary and terminated by the
// closing delimiter. When base64Encode is set the content part is encoded and
// carries a Content-Transfer-Encoding header.
func buildMultipartBody(meta fileMetadata, contentType string, content []byte, base64Encode bool) (string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal file metadata: %w", err)
	}

	payload := string(content)
	if base64Encode {
		payload = base64.StdEncoding.EncodeToString(content)
	}

	if strings.Contains(string(metaJSON), Boundary) || strings.Contains(payload, Boundary) {
		return "", storage.ErrBoundaryCollision
	}

	var b strings.Builder
	b.WriteString("--" + Boundary + "\r\n")
	b.WriteString("Content-Type: application/json; charset=UTF-8\r\n\r\n")
	b.Write(metaJSON)
	b.WriteString("\r\n--" + Boundary + "\r\n")
	b.WriteString("Content-Type: " + contentType + "\r\n")
	if base64Encode {
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(payload)
	b.WriteString("\r\n--" + Boundary + "--")
	return b.String(), nil
}

// doMultipartUpload posts a prepared body to the multipart upload endpoint and
// decodes the created file's descriptor.
func (d *Drive) doMultipartUpload(ctx context.Context, body string) (*model.FileDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.UploadURL, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", `multipart/related; boundary="`+Boundary+`"`)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("upload request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var desc model.FileDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &desc, nil
}
