package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/gcloud-commander/pkg/config"
	"github.com/ormasoftchile/gcloud-commander/pkg/scripts"
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Manage stored scripts",
}

var scriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scripts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		list, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintf(out, "No scripts in %s. Run 'commander scripts seed' to add the samples.\n", store.Dir)
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tNAME\tDESCRIPTION")
		for _, sc := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", sc.Key, sc.Name, sc.Description)
		}
		return tw.Flush()
	},
}

var scriptsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy the bundled sample scripts into an empty scripts directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		n, err := store.SeedBuiltins()
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not empty, nothing seeded\n", store.Dir)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Seeded %d files into %s\n", n, store.Dir)
		return nil
	},
}

func openStore() (*scripts.Store, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	return scripts.NewStore(cfg.Server.ScriptsDir, nil), nil
}

func init() {
	scriptsCmd.AddCommand(scriptsListCmd)
	scriptsCmd.AddCommand(scriptsSeedCmd)
}
