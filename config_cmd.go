package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ircup/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		shown := *cc.Cfg
		if shown.IRC.Password != "" {
			shown.IRC.Password = "(set)"
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(&shown)
	}

	return config.RenderEffective(cc.Cfg, cc.CfgPath, os.Stdout)
}
