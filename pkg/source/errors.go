package source

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a machine-readable acquisition error category.
type Kind string

const (
	// KindAuthFailed means the remote rejected the credentials (or a
	// private repository was accessed anonymously).
	KindAuthFailed Kind = "AUTHENTICATION_FAILED"
	// KindRepoNotFound means the repository does not exist or is
	// inaccessible.
	KindRepoNotFound Kind = "REPOSITORY_NOT_FOUND"
	// KindNetworkUnreachable means the repository host could not be
	// reached.
	KindNetworkUnreachable Kind = "NETWORK_UNREACHABLE"
	// KindDestinationOccupied means the acquisition target directory
	// already exists.
	KindDestinationOccupied Kind = "DESTINATION_OCCUPIED"
	// KindSubdirNotFound means the requested subdirectory is absent
	// from the checked-out tree.
	KindSubdirNotFound Kind = "SUBDIRECTORY_NOT_FOUND"
	// KindManifestNotFound means the acquired tree holds no manifest:
	// the repository is not a valid extension package.
	KindManifestNotFound Kind = "MANIFEST_NOT_FOUND"
	// KindUnknown is the residual category; the original error text is
	// preserved for diagnostics.
	KindUnknown Kind = "UNKNOWN"
)

// Error is a classified acquisition failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classified kind of err, or KindUnknown when err
// carries no classification.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

var (
	authPatterns = []string{
		"authentication",
		"could not read username",
		"invalid credentials",
		"permission denied",
		"access denied",
	}
	notFoundPatterns = []string{
		"not found",
		"does not exist",
		"does not appear to be a git repository",
		"404",
		"unable to access",
		"no such repository",
	}
	networkPatterns = []string{
		"could not resolve host",
	}
)

// Classify maps raw transport/version-control error text (combined
// stderr and stdout) to an error kind. It is pure: substring matching
// over the case-folded text, nothing else. Network errors are checked
// before not-found because git prefixes DNS failures with "unable to
// access".
func Classify(text string) Kind {
	folded := strings.ToLower(text)

	for _, p := range authPatterns {
		if strings.Contains(folded, p) {
			return KindAuthFailed
		}
	}
	for _, p := range networkPatterns {
		if strings.Contains(folded, p) {
			return KindNetworkUnreachable
		}
	}
	for _, p := range notFoundPatterns {
		if strings.Contains(folded, p) {
			return KindRepoNotFound
		}
	}
	return KindUnknown
}

// classifyGitError converts raw git output into a user-facing Error
// for the repository at repoURL. Unknown failures keep the original
// output so operators can diagnose them.
func classifyGitError(repoURL, output string) *Error {
	switch Classify(output) {
	case KindAuthFailed:
		return &Error{
			Kind: KindAuthFailed,
			Msg:  "authentication failed; this may be a private repository, provide credentials",
		}
	case KindNetworkUnreachable:
		return &Error{
			Kind: KindNetworkUnreachable,
			Msg:  fmt.Sprintf("could not resolve host for %s; check your network connection", repoURL),
		}
	case KindRepoNotFound:
		return &Error{
			Kind: KindRepoNotFound,
			Msg:  fmt.Sprintf("repository not found: %s; check that the URL is correct and the repository exists", repoURL),
		}
	default:
		return &Error{
			Kind: KindUnknown,
			Msg:  fmt.Sprintf("git operation on %s failed: %s", repoURL, strings.TrimSpace(output)),
		}
	}
}
