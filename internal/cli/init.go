package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize linkgraph storage",
		Long:  "Create the configuration and data directories, then initialize the storage backend.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := a.dataDir()
			if err != nil {
				return err
			}
			// Pin an explicit --data-dir in config.yaml so later runs find it.
			if a.v.GetString(cfgKeyDataDir) == "" && a.flags.dataDir != "" {
				if err := recordDataDir(filepath.Join(a.configDir, configFileExt), dataDir); err != nil {
					return systemError("write config: %w", err)
				}
			}

			g, err := a.openGraph()
			if err != nil {
				return err
			}
			if err := g.Detach(); err != nil {
				return systemError("finalize storage: %w", err)
			}

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"config": a.configDir, "data": dataDir})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "linkgraph initialized successfully")
			fmt.Fprintln(cmd.OutOrStdout(), "  config:", a.configDir)
			fmt.Fprintln(cmd.OutOrStdout(), "  data:  ", dataDir)
			return nil
		},
	}
}
