package main

import (
	"fmt"

	"github.com/abelbrown/livefeed/internal/logging"
	"github.com/spf13/cobra"
)

var (
	configWrite  bool
	configFormat string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print or save the effective settings",
	Long: `config prints the settings livefeed runs with once the config file,
LIVEFEED_* variables and flags are applied. With --write it saves them to the
config file instead, in the format its extension names.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVarP(&configWrite, "write", "w", false, "save to the config file instead of printing")
	configCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format: json, yaml or toml")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configWrite {
		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		logging.Info("config written", "path", cfgPath)
		return nil
	}
	data, err := cfg.Encode(configFormat)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
