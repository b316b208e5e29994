package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/gcloud-commander/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration operations",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [commander.yaml]",
	Short: "Validate a configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		cfg, err := config.Resolve(path)
		if err != nil {
			return err
		}
		errs := config.Validate(cfg)
		if len(errs) > 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errs))
			for i, e := range errs {
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errs))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ configuration is valid (backend %s, mode %s)\n", cfg.Execution.Backend, cfg.Execution.Mode)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the configuration JSON Schema to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	schemaCmd.AddCommand(schemaExportCmd)
}
