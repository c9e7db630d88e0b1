package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"variantcore/internal/cli"
	"variantcore/internal/client"
)

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Inspect experiments",
}

var experimentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all experiments",
	Long: `List all experiments known to the server.

Examples:
  variantctl experiments list --env production
  variantctl experiments list --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, _, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)
		experiments, err := c.ListExperiments(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		if quiet {
			return nil
		}
		if len(experiments) == 0 {
			fmt.Println("No experiments found")
			return nil
		}
		return cli.PrintExperiments(experiments, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(experimentsCmd)
	experimentsCmd.AddCommand(experimentsListCmd)
}
