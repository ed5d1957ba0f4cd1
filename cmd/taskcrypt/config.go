package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/taskcrypt/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage taskcrypt configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example config file",
	Long: `Init writes the default settings to path (taskcrypt.json by default).
The format follows the extension: .json, .yaml or .toml. An existing
file is never overwritten.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipClient: "true"},
	RunE:        runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "taskcrypt.json"
	if len(args) == 1 {
		path = args[0]
	}

	if err := config.SaveExample(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "path": path})
		return nil
	}

	printSuccess("Wrote %s", path)
	printInfo("Set api.token there, or export %s_API_TOKEN", config.EnvPrefix)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	shown := *cfg
	if shown.API.Token != "" {
		shown.API.Token = "********"
	}
	shown.Crypto.MasterPassword = ""

	printJSON(shown)
	if !jsonOutput {
		printInfo("Encryption enabled: %t", apiClient.Crypto.HasPassword())
	}
	return nil
}
