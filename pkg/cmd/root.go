package cmd

import (
	"os"

	"github.com/plugkit/plugkit/pkg/config"
	"github.com/spf13/cobra"
)

var (
	flagToken string

	// DevCfg holds the resolved developer configuration, available to
	// all subcommands after PersistentPreRunE completes.
	DevCfg *config.DevConfig
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "plugkit",
		Short: "Extension toolkit for the platform",
		Long:  "plugkit fetches extension source from version-controlled repositories and serves extension capabilities behind the platform's invocation boundary.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadDevConfig(flagToken)
			if err != nil {
				return err
			}
			DevCfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagToken, "token", "", "access token for private repositories")

	root.AddCommand(newFetchCmd())
	root.AddCommand(newManifestCmd())
	root.AddCommand(newAuthCmd())

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
