package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plugkit/plugkit/pkg/manifest"
	"github.com/plugkit/plugkit/pkg/source"
	"github.com/spf13/cobra"
)

func newManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest <repo-url>",
		Short: "Resolve an extension's manifest",
		Long: `Resolves the manifest of an extension hosted in a git repository.

For GitHub-hosted repositories the manifest file is fetched directly
through the contents API; any fast-path failure falls back to a full
acquisition, so the result is the same either way.`,
		Args: cobra.ExactArgs(1),
		RunE: runManifest,
	}

	addSourceFlags(cmd)
	return cmd
}

func runManifest(cmd *cobra.Command, args []string) error {
	desc := descriptorFromFlags(cmd, args[0])

	m, err := fetchWithRetry(cmd, desc, func(ctx context.Context, d source.Descriptor) (*manifest.Manifest, error) {
		return d.GetManifest(ctx)
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
