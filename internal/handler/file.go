package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/mkondo/driveman/internal/model"
	"github.com/mkondo/driveman/internal/session"
	"github.com/mkondo/driveman/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FileHandler drives the remote file operations for the signed-in session.
type FileHandler struct {
	storage    storage.Client
	controller *session.Controller
	jwtSecret  string
	log        *logrus.Entry
}

// NewFileHandler creates a FileHandler.
func NewFileHandler(client storage.Client, controller *session.Controller, jwtSecret string, logger *logrus.Logger) *FileHandler {
	return &FileHandler{
		storage:    client,
		controller: controller,
		jwtSecret:  jwtSecret,
		log:        logger.WithField("component", "handler.file"),
	}
}

// requireSession gates every file operation: a valid session cookie AND the
// signed-in flag. While signed out, storage is never reached.
func (h *FileHandler) requireSession(req events.APIGatewayProxyRequest) *events.APIGatewayProxyResponse {
	if _, err := GetSessionSubject(req, h.jwtSecret); err != nil {
		resp := events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized, Body: "Unauthorized"}
		return &resp
	}
	if !h.controller.SignedIn() {
		resp := events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized, Body: "Not signed in"}
		return &resp
	}
	return nil
}

// List returns the current file descriptors.
func (h *FileHandler) List(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if resp := h.requireSession(req); resp != nil {
		return *resp, nil
	}

	files, err := h.storage.ListFiles(ctx)
	if err != nil {
		h.log.WithError(err).Error("list files failed")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to load files. Please try again."}, nil
	}

	body, _ := json.Marshal(files)
	return jsonResponse(http.StatusOK, string(body)), nil
}

type fileResult struct {
	File         *model.FileDescriptor `json:"file"`
	SharingError string                `json:"sharingError,omitempty"`
}

// Create creates a text file from the request body.
func (h *FileHandler) Create(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if resp := h.requireSession(req); resp != nil {
		return *resp, nil
	}

	var payload struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Invalid request body"}, nil
	}
	if payload.Name == "" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "File name is required"}, nil
	}

	desc, err := h.storage.CreateFile(ctx, payload.Name, payload.Content)
	if desc == nil && err != nil {
		h.log.WithError(err).Error("create file failed")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to create file. Please try again."}, nil
	}

	result := fileResult{File: desc}
	if err != nil {
		// The file exists; only the permission step failed.
		h.log.WithError(err).Warn("sharing step failed")
		result.SharingError = sharingMessage(err)
	}

	body, _ := json.Marshal(result)
	return jsonResponse(http.StatusCreated, string(body)), nil
}

type uploadRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"` // base64
}

// Upload uploads a batch of files concurrently; any single failure fails the
// whole batch. Files that already made it remain on the remote side.
func (h *FileHandler) Upload(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if resp := h.requireSession(req); resp != nil {
		return *resp, nil
	}

	var payload []uploadRequest
	if err := json.Unmarshal([]byte(req.Body), &payload); err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Invalid request body"}, nil
	}
	if len(payload) == 0 {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "No files to upload"}, nil
	}

	contents := make([][]byte, len(payload))
	for i, f := range payload {
		if f.Name == "" {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "File name is required"}, nil
		}
		data, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: fmt.Sprintf("Invalid content encoding for %q", f.Name)}, nil
		}
		contents[i] = data
	}

	results := make([]fileResult, len(payload))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range payload {
		g.Go(func() error {
			desc, err := h.storage.UploadFile(gctx, f.Name, contents[i])
			if desc == nil && err != nil {
				return fmt.Errorf("upload %q: %w", f.Name, err)
			}
			mu.Lock()
			results[i] = fileResult{File: desc}
			if err != nil {
				results[i].SharingError = sharingMessage(err)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.log.WithError(err).Error("batch upload failed")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to upload files. Please try again."}, nil
	}

	body, _ := json.Marshal(results)
	return jsonResponse(http.StatusCreated, string(body)), nil
}

// Download streams a file's bytes as a browser attachment.
func (h *FileHandler) Download(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if resp := h.requireSession(req); resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Missing file ID"}, nil
	}
	name := req.QueryStringParameters["name"]
	mimeType := req.QueryStringParameters["mimeType"]

	dl, err := h.storage.DownloadFile(ctx, id, name, mimeType)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedExport) {
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "This file type cannot be exported."}, nil
		}
		h.log.WithError(err).Error("download failed")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to download file. Please try again."}, nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":        dl.MIMEType,
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", dl.Filename),
		},
		Body:            base64.StdEncoding.EncodeToString(dl.Content),
		IsBase64Encoded: true,
	}, nil
}

// Delete permanently deletes a file.
func (h *FileHandler) Delete(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if resp := h.requireSession(req); resp != nil {
		return *resp, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Missing file ID"}, nil
	}

	if err := h.storage.DeleteFile(ctx, id); err != nil {
		h.log.WithError(err).Error("delete failed")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Failed to delete file. Please try again."}, nil
	}
	return jsonResponse(http.StatusOK, `{"success":true}`), nil
}

// sharingMessage maps the two sharing outcomes to their user-facing messages.
func sharingMessage(err error) string {
	if errors.Is(err, storage.ErrNoShareTargets) {
		return "No sharing targets configured."
	}
	return "File created, but sharing failed."
}
