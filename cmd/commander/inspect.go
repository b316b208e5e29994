package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/gcloud-commander/pkg/config"
	"github.com/ormasoftchile/gcloud-commander/pkg/diagram"
	"github.com/ormasoftchile/gcloud-commander/pkg/script"
)

var (
	paramsJSON bool
	flowFormat string
	flowOut    string
)

var paramsCmd = &cobra.Command{
	Use:   "params <script>",
	Short: "List the parameters a script takes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(configPath)
		if err != nil {
			return err
		}
		_, content, err := loadScript(args[0], cfg.Server.ScriptsDir, cmd.InOrStdin())
		if err != nil {
			return err
		}
		params := script.ExtractParameters(content)
		out := cmd.OutOrStdout()

		if paramsJSON {
			if params == nil {
				params = []script.Parameter{}
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(params)
		}
		if len(params) == 0 {
			fmt.Fprintln(out, "No parameters.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tLABEL\tDEFAULT\tSOURCE")
		for _, p := range params {
			source := string(p.Origin)
			if p.FlagName != "" {
				source += " (--" + p.FlagName + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Label, p.DefaultValue, source)
		}
		return tw.Flush()
	},
}

var flowCmd = &cobra.Command{
	Use:   "flow <script>",
	Short: "Render the step flow of a script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Resolve(configPath)
		if err != nil {
			return err
		}
		name, content, err := loadScript(args[0], cfg.Server.ScriptsDir, cmd.InOrStdin())
		if err != nil {
			return err
		}
		out, err := diagram.Generate(diagram.Parse(name, content), diagram.Format(flowFormat))
		if err != nil {
			return err
		}
		if flowOut != "" {
			if err := os.WriteFile(flowOut, []byte(out), 0o644); err != nil {
				return fmt.Errorf("write diagram: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Diagram written to %s\n", flowOut)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	paramsCmd.Flags().BoolVar(&paramsJSON, "json", false, "Output as JSON")
	flowCmd.Flags().StringVar(&flowFormat, "format", string(diagram.FormatASCII), "Diagram format: ascii or mermaid")
	flowCmd.Flags().StringVar(&flowOut, "out", "", "Write the diagram to a file instead of stdout")
}
