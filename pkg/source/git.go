package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Download acquires the extension source into outputDir/<Name()> and
// returns the materialized path. A subdirectory descriptor uses a
// sparse, blob-deferred checkout; otherwise the full tree is cloned
// shallowly. Acquisition is atomic: on any failure no target directory
// exists afterward, so a retry with the same output directory cannot
// fail with KindDestinationOccupied.
func (d Descriptor) Download(ctx context.Context, outputDir string) (string, error) {
	start := time.Now()
	slog.Debug("downloading extension source", "repo", d.RepoURL, "ref", d.ref(), "path", d.Path)

	target := filepath.Join(outputDir, d.Name())
	if _, err := os.Stat(target); err == nil {
		return "", &Error{
			Kind: KindDestinationOccupied,
			Msg:  fmt.Sprintf("destination %s already exists", target),
		}
	}

	// Each acquisition gets its own working directory; concurrent
	// acquisitions share no state.
	workDir, err := os.MkdirTemp("", "plugkit-git-")
	if err != nil {
		return "", fmt.Errorf("creating working directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	var src string
	if d.Path != "" {
		src, err = d.checkoutSparse(ctx, workDir)
	} else {
		src, err = d.checkoutFull(ctx, workDir)
	}
	if err != nil {
		return "", err
	}

	if err := materialize(src, target); err != nil {
		return "", err
	}

	slog.Debug("extension source downloaded", "target", target, "elapsed", time.Since(start))
	return target, nil
}

// checkoutFull performs a shallow, blob-deferred clone of the whole
// repository into workDir and returns the tree root.
func (d Descriptor) checkoutFull(ctx context.Context, workDir string) (string, error) {
	args := []string{
		"clone", "--depth", "1", "--filter=blob:none",
		"--branch", d.ref(), d.AuthenticatedURL(), workDir,
	}
	if err := d.git(ctx, args...); err != nil {
		return "", err
	}

	if err := d.checkoutCommit(ctx, workDir); err != nil {
		return "", err
	}
	return workDir, nil
}

// checkoutSparse performs a shallow, blob-deferred clone with
// cone-mode sparse checkout restricted to the requested subdirectory,
// then checks out the ref explicitly. Returns the subdirectory path.
func (d Descriptor) checkoutSparse(ctx context.Context, workDir string) (string, error) {
	args := []string{
		"clone", "--depth", "1", "--filter=blob:none", "--sparse", "--no-checkout",
		"--branch", d.ref(), d.AuthenticatedURL(), workDir,
	}
	if err := d.git(ctx, args...); err != nil {
		return "", err
	}

	for _, args := range [][]string{
		{"-C", workDir, "sparse-checkout", "init", "--cone"},
		{"-C", workDir, "sparse-checkout", "set", d.Path},
		{"-C", workDir, "checkout", "-B", d.ref(), "origin/" + d.ref()},
	} {
		if err := d.git(ctx, args...); err != nil {
			return "", err
		}
	}

	if err := d.checkoutCommit(ctx, workDir); err != nil {
		return "", err
	}

	src := filepath.Join(workDir, filepath.FromSlash(d.Path))
	if _, err := os.Stat(src); err != nil {
		return "", &Error{
			Kind: KindSubdirNotFound,
			Msg:  fmt.Sprintf("subdirectory %q not found in repository %s", d.Path, d.RepoURL),
		}
	}
	return src, nil
}

// checkoutCommit pins the working tree to d.Commit when one is set.
// The shallow clone may not contain the commit, so it is fetched by
// SHA first (servers hosting extensions allow reachable-SHA fetches).
func (d Descriptor) checkoutCommit(ctx context.Context, workDir string) error {
	if d.Commit == "" {
		return nil
	}
	for _, args := range [][]string{
		{"-C", workDir, "fetch", "--depth", "1", "origin", d.Commit},
		{"-C", workDir, "checkout", d.Commit},
	} {
		if err := d.git(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// git runs a git command, classifying any failure. Combined output is
// scrubbed of embedded credentials before it can reach a log line or
// an error message.
func (d Descriptor) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return classifyGitError(d.RepoURL, d.redact(string(out)))
	}
	return nil
}

// redact removes credential material from git output.
func (d Descriptor) redact(s string) string {
	if authURL := d.AuthenticatedURL(); authURL != d.RepoURL {
		s = strings.ReplaceAll(s, authURL, d.RepoURL)
	}
	for _, secret := range []string{d.Credential.Token, d.Credential.Password} {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, "***")
		}
	}
	return s
}

// materialize copies the checked-out tree at src to target. The copy
// is staged in a sibling directory and renamed into place, so a failed
// copy never leaves a partially-populated target.
func materialize(src, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", parent, err)
	}

	stage, err := os.MkdirTemp(parent, "."+filepath.Base(target)+"-")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	if err := copyTree(src, stage); err != nil {
		return fmt.Errorf("copying source tree: %w", err)
	}

	// MkdirTemp creates the stage 0700; the target should match the
	// directories copyTree creates.
	if err := os.Chmod(stage, 0o755); err != nil {
		return fmt.Errorf("setting staging directory permissions: %w", err)
	}

	if err := os.Rename(stage, target); err != nil {
		return fmt.Errorf("moving source tree into place: %w", err)
	}
	return nil
}

// copyTree recursively copies src into dst (which must exist),
// skipping version-control internals.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := os.Mkdir(dstPath, 0o755); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
