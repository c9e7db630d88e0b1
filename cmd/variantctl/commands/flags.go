package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"variantcore/internal/cli"
	"variantcore/internal/client"
	"variantcore/internal/feature"
)

var flagsEnabledOnly bool

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Inspect feature flags",
}

var flagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all feature flags",
	Long: `List all feature flags known to the server.

Examples:
  variantctl flags list --env production
  variantctl flags list --format json
  variantctl flags list --enabled-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, _, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)
		flags, err := c.ListFlags(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list flags: %w", err)
		}

		if flagsEnabledOnly {
			var enabled []feature.Flag
			for _, f := range flags {
				if f.Enabled {
					enabled = append(enabled, f)
				}
			}
			flags = enabled
		}

		if quiet {
			return nil
		}
		if len(flags) == 0 {
			fmt.Println("No flags found")
			return nil
		}
		return cli.PrintFlags(flags, cli.OutputFormat(format))
	},
}

var flagsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a single feature flag",
	Long: `Show one feature flag by key.

Examples:
  variantctl flags get new-checkout
  variantctl flags get new-checkout --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, _, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)
		flag, err := c.GetFlag(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get flag: %w", err)
		}

		if quiet {
			return nil
		}
		return cli.PrintFlag(flag, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(flagsCmd)
	flagsCmd.AddCommand(flagsListCmd)
	flagsCmd.AddCommand(flagsGetCmd)

	flagsListCmd.Flags().BoolVar(&flagsEnabledOnly, "enabled-only", false, "Show only enabled flags")
}
