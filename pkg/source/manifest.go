package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/plugkit/plugkit/pkg/github"
	"github.com/plugkit/plugkit/pkg/manifest"
)

// GetManifest resolves the extension manifest for the descriptor.
//
// The strategy chain is explicit: for GitHub-hosted repositories the
// contents API is tried first, fetching only the manifest file. On any
// fast-path failure the error is logged and acquisition takes over
// unconditionally; the fast path is an optimization and never a single
// point of failure. Non-GitHub hosts go straight to acquisition.
func (d Descriptor) GetManifest(ctx context.Context) (*manifest.Manifest, error) {
	return d.getManifest(ctx, github.NewClient())
}

func (d Descriptor) getManifest(ctx context.Context, api *github.Client) (*manifest.Manifest, error) {
	if github.IsRepoURL(d.RepoURL) {
		m, err := d.manifestViaAPI(ctx, api)
		if err == nil {
			return m, nil
		}
		slog.Warn("content-API manifest fetch failed, falling back to acquisition",
			"repo", d.RepoURL, "kind", KindOf(err), "error", err)
	}

	return d.manifestViaAcquisition(ctx)
}

// manifestViaAPI fetches exactly the manifest file at the descriptor's
// ref via the hosted contents API. It never clones.
func (d Descriptor) manifestViaAPI(ctx context.Context, api *github.Client) (*manifest.Manifest, error) {
	path := manifest.Filename
	if d.Path != "" {
		path = d.Path + "/" + manifest.Filename
	}

	ref := d.ref()
	if d.Commit != "" {
		ref = d.Commit
	}

	data, err := api.GetFile(ctx, d.RepoURL, path, ref, d.Credential.APIToken())
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data)
}

// manifestViaAcquisition acquires the source into a scratch directory
// and reads the manifest from the materialized tree. A tree without a
// manifest is not a valid extension package, which is distinct from
// any transport failure.
func (d Descriptor) manifestViaAcquisition(ctx context.Context) (*manifest.Manifest, error) {
	scratch, err := os.MkdirTemp("", "plugkit-manifest-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	dir, err := d.Download(ctx, scratch)
	if err != nil {
		return nil, err
	}

	m, err := manifest.Load(dir)
	if os.IsNotExist(err) {
		return nil, &Error{
			Kind: KindManifestNotFound,
			Msg:  fmt.Sprintf("no %s found in repository %s; this does not appear to be a valid extension package", manifest.Filename, d.RepoURL),
		}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
