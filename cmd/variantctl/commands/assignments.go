package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"variantcore/internal/cli"
	"variantcore/internal/client"
)

var assignmentsCmd = &cobra.Command{
	Use:   "assignments <user-id>",
	Short: "List experiment assignments for a user",
	Long: `List all experiment assignments recorded for one user.

Examples:
  variantctl assignments u42
  variantctl assignments u42 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		envCfg, _, err := cli.GetEnvConfig(env, baseURL, apiKey)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		c := client.NewClient(envCfg.BaseURL, envCfg.APIKey)
		assignments, err := c.ListAssignments(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list assignments: %w", err)
		}

		if quiet {
			return nil
		}
		if len(assignments) == 0 {
			fmt.Println("No assignments found")
			return nil
		}
		return cli.PrintAssignments(assignments, cli.OutputFormat(format))
	},
}

func init() {
	rootCmd.AddCommand(assignmentsCmd)
}
