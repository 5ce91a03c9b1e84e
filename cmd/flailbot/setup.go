package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/util"
)

func setupCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively edit the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			util.InitConsoleLogger("warn", os.Stderr)

			cfg, err := config.Load(*configDir)
			if err != nil {
				return err
			}
			return config.RunSetupWizard(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
