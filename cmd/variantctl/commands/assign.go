package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"variantcore/internal/cli"
	"variantcore/internal/client"
)

var assignCmd = &cobra.Command{
	Use:   "assign <experiment-id>",
	Short: "Assign a variant for an experiment",
	Long: `Run the assignment pipeline for one experiment against a user context.

Examples:
  variantctl assign exp-pricing --user u42
  variantctl assign exp-pricing --session s-1 --device mobile`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, _, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		ec, err := buildContext()
		if err != nil {
			return err
		}

		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)
		result, err := c.Assign(context.Background(), args[0], ec)
		if err != nil {
			return fmt.Errorf("assignment failed: %w", err)
		}

		if quiet {
			return nil
		}
		return cli.PrintJSON(result)
	},
}

func init() {
	rootCmd.AddCommand(assignCmd)
	registerContextFlags(assignCmd)
}
