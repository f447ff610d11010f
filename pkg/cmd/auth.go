package cmd

import (
	"fmt"

	"github.com/plugkit/plugkit/pkg/config"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth [token]",
		Short: "Store a default access token",
		Long: `Stores an access token in ~/.plugkit/config.toml for use as the
default credential on fetch and manifest commands.

When no token argument is given, an interactive prompt collects it
without echoing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		var err error
		token, err = promptToken()
		if err != nil {
			return err
		}
	}

	if token == "" {
		return fmt.Errorf("no token provided")
	}

	cfg := &config.DevConfig{
		Token:     token,
		ServerURL: DevCfg.ServerURL,
	}
	if err := config.WriteGlobalDevConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Token saved")
	return nil
}
