package serve

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/plugkit/plugkit/pkg/extension"
)

// DefaultFilesURL is the file-content service endpoint used when
// $PLUGKIT_SERVER_URL is unset.
const DefaultFilesURL = "http://localhost:8500"

// fileTimeout bounds every file fetch and upload.
const fileTimeout = 60 * time.Second

// FilesClient implements the file-content service contract over HTTP.
// A fresh handle is cheap; the server injects one per request.
type FilesClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

var _ extension.FileService = (*FilesClient)(nil)

// NewFilesClient returns a client for the file-content service at
// baseURL (DefaultFilesURL when empty).
func NewFilesClient(baseURL string) *FilesClient {
	if baseURL == "" {
		baseURL = DefaultFilesURL
	}
	return &FilesClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: fileTimeout},
	}
}

// Fetch downloads the content of a file reference.
func (c *FilesClient) Fetch(ctx context.Context, file *extension.File) ([]byte, error) {
	if file == nil || file.ID == "" {
		return nil, fmt.Errorf("file reference has no id")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/files/"+file.ID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching file %s: %w", file.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching file %s: %s", file.ID, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// uploadPayload is the wire shape of an upload request. Content
// travels base64-encoded inside the JSON document.
type uploadPayload struct {
	Filename       string         `json:"filename"`
	ContentType    string         `json:"content_type"`
	ContentBase64  string         `json:"content_base64"`
	GroupID        string         `json:"group_id"`
	SourceType     string         `json:"source_type"`
	SourceMetadata map[string]any `json:"source_metadata,omitempty"`
}

// Upload stores new file content and returns its identity.
func (c *FilesClient) Upload(ctx context.Context, up extension.UploadRequest) (*extension.UploadResult, error) {
	groupID := up.GroupID
	if groupID == "" {
		groupID = extension.DefaultGroupID
	}
	sourceType := up.SourceType
	if sourceType == "" {
		sourceType = extension.SourceTypeDocument
	}

	body, err := json.Marshal(uploadPayload{
		Filename:       up.Name,
		ContentType:    up.ContentType,
		ContentBase64:  base64.StdEncoding.EncodeToString(up.Content),
		GroupID:        groupID,
		SourceType:     sourceType,
		SourceMetadata: up.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding upload payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/files/upload", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploading file %s: %w", up.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("uploading file %s: %s", up.Name, resp.Status)
	}

	out := &extension.UploadResult{}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return out, nil
}
