package serve

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/plugkit/plugkit/pkg/extension"
)

func TestFilesClientFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/files/f1" {
			t.Errorf("path = %s, want /files/f1", r.URL.Path)
		}
		io.WriteString(w, "file bytes")
	}))
	defer ts.Close()

	c := NewFilesClient(ts.URL)
	got, err := c.Fetch(context.Background(), &extension.File{ID: "f1", URI: "spot://f1"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != "file bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestFilesClientFetchMissingID(t *testing.T) {
	c := NewFilesClient("http://unused.invalid")

	if _, err := c.Fetch(context.Background(), &extension.File{URI: "https://example.com/a.txt"}); err == nil {
		t.Error("Fetch accepted a file reference with no id")
	}
	if _, err := c.Fetch(context.Background(), nil); err == nil {
		t.Error("Fetch accepted a nil file reference")
	}
}

func TestFilesClientFetchServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	c := NewFilesClient(ts.URL)
	if _, err := c.Fetch(context.Background(), &extension.File{ID: "f1"}); err == nil {
		t.Error("Fetch did not surface the server's error status")
	}
}

func TestFilesClientUpload(t *testing.T) {
	var got uploadPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/files/upload" {
			t.Errorf("request = %s %s, want POST /files/upload", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding upload payload: %v", err)
		}
		json.NewEncoder(w).Encode(extension.UploadResult{ID: "new1", URI: "spot://new1"})
	}))
	defer ts.Close()

	c := NewFilesClient(ts.URL)
	out, err := c.Upload(context.Background(), extension.UploadRequest{
		Name:        "report.txt",
		Content:     []byte("hello"),
		ContentType: "text/plain",
		GroupID:     "g1",
		SourceType:  extension.SourceTypeCustom,
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if out.ID != "new1" || out.URI != "spot://new1" {
		t.Errorf("result = %+v", out)
	}
	if got.Filename != "report.txt" || got.ContentType != "text/plain" {
		t.Errorf("payload = %+v", got)
	}
	if got.ContentBase64 != base64.StdEncoding.EncodeToString([]byte("hello")) {
		t.Errorf("content_base64 = %q", got.ContentBase64)
	}
	if got.GroupID != "g1" || got.SourceType != extension.SourceTypeCustom {
		t.Errorf("payload = %+v", got)
	}
}

func TestFilesClientUploadDefaults(t *testing.T) {
	var got uploadPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(extension.UploadResult{ID: "new1", URI: "spot://new1"})
	}))
	defer ts.Close()

	c := NewFilesClient(ts.URL)
	if _, err := c.Upload(context.Background(), extension.UploadRequest{Name: "a", Content: []byte("x")}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if got.GroupID != extension.DefaultGroupID {
		t.Errorf("group_id = %q, want the default group", got.GroupID)
	}
	if got.SourceType != extension.SourceTypeDocument {
		t.Errorf("source_type = %q, want %q", got.SourceType, extension.SourceTypeDocument)
	}
}

func TestNewFilesClientDefaultURL(t *testing.T) {
	c := NewFilesClient("")
	if c.BaseURL != DefaultFilesURL {
		t.Errorf("BaseURL = %q, want %q", c.BaseURL, DefaultFilesURL)
	}

	c = NewFilesClient("http://files.local/")
	if c.BaseURL != "http://files.local" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", c.BaseURL)
	}
}
