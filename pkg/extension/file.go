package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
)

// SpotScheme is the URI scheme of platform-managed file content.
const SpotScheme = "spot://"

// Well-known source types for uploaded files.
const (
	SourceTypeDocument = "Document"
	SourceTypeWebsite  = "Website"
	SourceTypeCustom   = "Custom"
)

// File is a reference to platform-managed file content. It carries no
// bytes itself; content moves through the execution context's file
// service.
type File struct {
	ID             string         `json:"id,omitempty"`
	URI            string         `json:"uri"`
	Name           string         `json:"name,omitempty"`
	ContentType    string         `json:"content_type,omitempty"`
	SourceType     string         `json:"source_type,omitempty"`
	SourceMetadata map[string]any `json:"source_metadata,omitempty"`
}

// FileFromMap coerces a mapping-shaped value into a File, filling
// derivable fields (name, content type, spot ID) from the URI. The
// second return is false when the value does not decode as a file
// reference; callers then pass the raw value through.
func FileFromMap(m map[string]any) (*File, bool) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}

	f := &File{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, false
	}

	f.normalize()
	return f, true
}

// FileFromSpotURI constructs a File reference from a spot:// URI.
func FileFromSpotURI(uri, name string) (*File, error) {
	if !strings.HasPrefix(uri, SpotScheme) {
		return nil, fmt.Errorf("invalid spot URI: %s", uri)
	}

	id := strings.SplitN(strings.TrimPrefix(uri, SpotScheme), "/", 2)[0]
	if name == "" {
		name = "file_" + id
	}

	return &File{
		ID:   id,
		URI:  uri,
		Name: name,
	}, nil
}

// normalize derives missing fields from the URI: the basename becomes
// the name, the extension guesses the content type, and spot URIs
// yield the file ID.
func (f *File) normalize() {
	if f.URI == "" {
		return
	}

	if f.Name == "" {
		if u, err := url.Parse(f.URI); err == nil {
			f.Name = path.Base(u.Path)
		}
		if f.Name == "" || f.Name == "." || f.Name == "/" {
			f.Name = "unknown"
		}
	}

	if f.ContentType == "" {
		if t := mime.TypeByExtension(path.Ext(f.Name)); t != "" {
			f.ContentType = t
		} else {
			f.ContentType = "application/octet-stream"
		}
	}

	if f.ID == "" && strings.HasPrefix(f.URI, SpotScheme) {
		parts := strings.Split(f.URI, "/")
		f.ID = parts[len(parts)-1]
	}
}

// Content fetches the file's bytes through the execution context's
// file service.
func (f *File) Content(ctx context.Context, ec *ExecutionContext) ([]byte, error) {
	fs, err := ec.Files()
	if err != nil {
		return nil, err
	}
	return fs.Fetch(ctx, f)
}

// NewFileFromBytes uploads data through the execution context's file
// service and returns a reference to the stored file.
func NewFileFromBytes(ctx context.Context, ec *ExecutionContext, name string, data []byte, contentType string) (*File, error) {
	fs, err := ec.Files()
	if err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = "text/plain"
	}

	out, err := fs.Upload(ctx, UploadRequest{
		Name:        name,
		Content:     data,
		ContentType: contentType,
		SourceType:  SourceTypeDocument,
		GroupID:     ec.Group(),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", name, err)
	}

	return &File{
		ID:          out.ID,
		URI:         out.URI,
		Name:        name,
		ContentType: contentType,
		SourceType:  SourceTypeDocument,
	}, nil
}
