package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

func newDevApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("DEV_MODE", "true")
	t.Setenv("TOKEN_DIR", t.TempDir())
	t.Setenv("JWT_SECRET", "test-secret")
	return NewApp(context.Background())
}

func TestApp_CORSPreflight(t *testing.T) {
	app := newDevApp(t)

	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "OPTIONS",
		Path:       "/files",
	})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.Headers["Access-Control-Allow-Origin"] == "" {
		t.Error("missing CORS origin header")
	}
	if resp.Headers["Access-Control-Allow-Credentials"] != "true" {
		t.Error("missing CORS credentials header")
	}
}

func TestApp_SessionEndpoint(t *testing.T) {
	app := newDevApp(t)

	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/auth/session",
	})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d %s", resp.StatusCode, resp.Body)
	}

	var status struct {
		State    string `json:"state"`
		SignedIn bool   `json:"signedIn"`
	}
	if err := json.Unmarshal([]byte(resp.Body), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.State != "ready" || status.SignedIn {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestApp_StripsAPIPrefix(t *testing.T) {
	app := newDevApp(t)

	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/api/auth/session",
	})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Body)
	}
}

func TestApp_LoginRedirect(t *testing.T) {
	app := newDevApp(t)

	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/auth/login",
	})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Headers["Location"], "accounts.google.com") {
		t.Errorf("unexpected consent URL: %q", resp.Headers["Location"])
	}
}

func TestApp_FileRoutesRequireSession(t *testing.T) {
	app := newDevApp(t)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/files"},
		{"POST", "/files"},
		{"POST", "/files/upload"},
		{"GET", "/files/abc123/download"},
		{"DELETE", "/files/abc123"},
	}
	for _, r := range routes {
		resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: r.method,
			Path:       r.path,
		})
		if err != nil {
			t.Fatalf("%s %s failed: %v", r.method, r.path, err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: status %d, want 401", r.method, r.path, resp.StatusCode)
		}
	}
}

func TestApp_UnknownRoute(t *testing.T) {
	app := newDevApp(t)

	resp, err := app.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: "GET",
		Path:       "/nope",
	})
	if err != nil {
		t.Fatalf("HandleRequest failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func TestApp_WrapHandlerResult(t *testing.T) {
	app := newDevApp(t)

	resp := app.wrap(events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "ok"}, nil)
	if resp.StatusCode != http.StatusOK || resp.Body != "ok" {
		t.Errorf("successful results must pass through, got %d %q", resp.StatusCode, resp.Body)
	}

	resp = app.wrap(events.APIGatewayProxyResponse{}, errors.New("boom"))
	if resp.StatusCode != http.StatusInternalServerError || resp.Body != "Internal Server Error" {
		t.Errorf("handler errors must become a 500, got %d %q", resp.StatusCode, resp.Body)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a@example.com", []string{"a@example.com"}},
		{"a@example.com, b@example.com ,", []string{"a@example.com", "b@example.com"}},
	}
	for _, tt := range tests {
		got := splitList(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitList(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
