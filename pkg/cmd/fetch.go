package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/plugkit/plugkit/pkg/source"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <repo-url>",
		Short: "Download extension source from a repository",
		Long: `Downloads an extension's source tree from a git repository.

When --path names a subdirectory, only that subdirectory is
materialized (sparse checkout); otherwise the whole tree is fetched.
Both strategies use shallow, blob-deferred clones for bandwidth
efficiency.`,
		Args: cobra.ExactArgs(1),
		RunE: runFetch,
	}

	addSourceFlags(cmd)
	cmd.Flags().StringP("output", "o", ".", "directory to materialize the extension under")
	return cmd
}

// addSourceFlags registers the flags shared by fetch and manifest.
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("ref", "", "branch or tag to check out (default \"main\")")
	cmd.Flags().String("commit", "", "exact commit to pin (overrides --ref for checkout)")
	cmd.Flags().String("path", "", "subdirectory within the repository")
	cmd.Flags().String("username", "", "git username for authentication")
	cmd.Flags().String("password", "", "git password or personal access token")
	cmd.Flags().Bool("interactive", false, "prompt for a token when authentication fails")
}

// descriptorFromFlags builds a source descriptor from the command's
// flags, falling back to the configured default token.
func descriptorFromFlags(cmd *cobra.Command, repoURL string) source.Descriptor {
	ref, _ := cmd.Flags().GetString("ref")
	commit, _ := cmd.Flags().GetString("commit")
	path, _ := cmd.Flags().GetString("path")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")

	token := flagToken
	if token == "" && username == "" {
		token = DevCfg.Token
	}

	return source.Descriptor{
		RepoURL: repoURL,
		Ref:     ref,
		Commit:  commit,
		Path:    path,
		Credential: source.Credential{
			Token:    token,
			Username: username,
			Password: password,
		},
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	desc := descriptorFromFlags(cmd, args[0])
	output, _ := cmd.Flags().GetString("output")

	dir, err := fetchWithRetry(cmd, desc, func(ctx context.Context, d source.Descriptor) (string, error) {
		return d.Download(ctx, output)
	})
	if err != nil {
		return err
	}

	integrity, err := source.HashDir(dir)
	if err != nil {
		return fmt.Errorf("computing integrity hash: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Fetched %s\n", dir)
	fmt.Fprintf(cmd.OutOrStdout(), "Integrity %s\n", integrity)
	return nil
}

// fetchWithRetry runs op and, when it fails with an authentication
// error and --interactive is set, prompts for a token once and
// retries.
func fetchWithRetry[T any](cmd *cobra.Command, desc source.Descriptor, op func(context.Context, source.Descriptor) (T, error)) (T, error) {
	out, err := op(cmd.Context(), desc)
	if err == nil {
		return out, nil
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	var srcErr *source.Error
	if !interactive || !errors.As(err, &srcErr) || srcErr.Kind != source.KindAuthFailed {
		return out, err
	}

	token, promptErr := promptToken()
	if promptErr != nil {
		return out, promptErr
	}

	desc.Credential = source.Credential{Token: token}
	return op(cmd.Context(), desc)
}

// promptToken collects an access token without echoing it.
func promptToken() (string, error) {
	var token string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Access token").
				Description("The repository rejected anonymous access. Provide a personal access token.").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
	).Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}
	return token, nil
}
