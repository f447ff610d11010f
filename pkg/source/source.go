package source

import (
	"net/url"
	"strings"
)

// DefaultRef is the ref used when a descriptor does not name one.
const DefaultRef = "main"

// Credential holds authentication material for a repository. The zero
// value means anonymous access. Token takes precedence over
// username+password when both are set.
type Credential struct {
	Token    string
	Username string
	Password string
}

// APIToken returns the token to use for hosted content-API calls.
// The dedicated token wins; a password doubling as a personal access
// token is the fallback.
func (c Credential) APIToken() string {
	if c.Token != "" {
		return c.Token
	}
	return c.Password
}

// IsZero reports whether no authentication material is set.
func (c Credential) IsZero() bool {
	return c.Token == "" && c.Username == "" && c.Password == ""
}

// Descriptor describes where extension code lives. It is a value
// object: constructed once per acquisition and never mutated.
type Descriptor struct {
	// RepoURL is the repository URL (HTTPS or SSH).
	RepoURL string
	// Ref is the branch or tag to check out. Empty means DefaultRef.
	Ref string
	// Commit optionally pins an exact commit. When set it takes
	// precedence over Ref for checkout; Ref still selects the branch
	// for the initial shallow clone.
	Commit string
	// Path optionally restricts acquisition to a subdirectory of the
	// repository.
	Path string

	Credential Credential
}

// ref returns the effective ref, applying the default.
func (d Descriptor) ref() string {
	if d.Ref == "" {
		return DefaultRef
	}
	return d.Ref
}

// Name returns the directory name the extension materializes under:
// the last path element of the subdirectory if one is set, otherwise
// the repository name.
func (d Descriptor) Name() string {
	if d.Path != "" {
		parts := strings.Split(strings.Trim(d.Path, "/"), "/")
		return parts[len(parts)-1]
	}
	parts := strings.Split(strings.TrimSuffix(d.RepoURL, "/"), "/")
	return strings.TrimSuffix(parts[len(parts)-1], ".git")
}

// AuthenticatedURL builds the URL used for git operations. A token is
// embedded as the sole principal; otherwise username+password are
// embedded together. Non-http(s) URLs (e.g. SSH) pass through
// unmodified since embedding credentials in them is meaningless.
func (d Descriptor) AuthenticatedURL() string {
	if !strings.HasPrefix(d.RepoURL, "http://") && !strings.HasPrefix(d.RepoURL, "https://") {
		return d.RepoURL
	}

	u, err := url.Parse(d.RepoURL)
	if err != nil {
		return d.RepoURL
	}

	switch {
	case d.Credential.Token != "":
		u.User = url.User(d.Credential.Token)
	case d.Credential.Username != "" && d.Credential.Password != "":
		u.User = url.UserPassword(d.Credential.Username, d.Credential.Password)
	default:
		return d.RepoURL
	}

	return u.String()
}
