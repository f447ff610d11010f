package extension

import (
	"context"
	"errors"
)

// DefaultGroupID is used when a request carries no logical group.
const DefaultGroupID = "00000000-0000-0000-0000-000000000000"

// FileService is the injected collaborator capability code uses to
// fetch and upload file content without knowing the transport.
type FileService interface {
	Fetch(ctx context.Context, file *File) ([]byte, error)
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// UploadRequest describes a file upload.
type UploadRequest struct {
	Name        string
	Content     []byte
	ContentType string
	SourceType  string
	Metadata    map[string]any
	GroupID     string
}

// UploadResult identifies an uploaded file.
type UploadResult struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

// ErrFilesUnbound is returned when capability code asks for the file
// service before the server has injected one. That is a programming
// error on the invocation path, not a recoverable condition.
var ErrFilesUnbound = errors.New("file service not bound to execution context")

// ExecutionContext carries the caller-scoped state for one invocation:
// extension configuration, per-integration credentials, the logical
// group, and the late-bound file service handle. A fresh context is
// constructed per inbound request and shared with nothing else.
type ExecutionContext struct {
	Config                 map[string]any            `json:"config"`
	IntegrationCredentials map[string]map[string]any `json:"integration_credentials"`
	GroupID                string                    `json:"group_id"`

	files FileService
}

// BindFiles injects the file service. The server calls this before
// invoking any handler.
func (ec *ExecutionContext) BindFiles(fs FileService) {
	ec.files = fs
}

// Files returns the injected file service, or ErrFilesUnbound when the
// binding has not happened yet.
func (ec *ExecutionContext) Files() (FileService, error) {
	if ec.files == nil {
		return nil, ErrFilesUnbound
	}
	return ec.files, nil
}

// Credentials returns the credentials supplied for the named
// integration, or nil when none were provided.
func (ec *ExecutionContext) Credentials(integration string) map[string]any {
	if ec.IntegrationCredentials == nil {
		return nil
	}
	return ec.IntegrationCredentials[integration]
}

// Group returns the logical group identifier, falling back to
// DefaultGroupID.
func (ec *ExecutionContext) Group() string {
	if ec.GroupID == "" {
		return DefaultGroupID
	}
	return ec.GroupID
}
