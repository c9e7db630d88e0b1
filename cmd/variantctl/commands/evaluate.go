package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"variantcore/internal/cli"
	"variantcore/internal/client"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <flag-key>",
	Short: "Evaluate a feature flag against a context",
	Long: `Evaluate one feature flag against a user context built from flags.

Examples:
  variantctl evaluate new-checkout --user u42
  variantctl evaluate new-checkout --user u42 --role admin --country US
  variantctl evaluate new-checkout --session s-1 --device mobile --prop plan=pro`,
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
		eval, err := c.EvaluateFlag(context.Background(), args[0], ec)
		if err != nil {
			return fmt.Errorf("evaluation failed: %w", err)
		}

		if quiet {
			return nil
		}
		return cli.PrintJSON(eval)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	registerContextFlags(evaluateCmd)
}
