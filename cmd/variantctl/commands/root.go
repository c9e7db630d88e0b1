package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL string
	apiKey  string
	env     string
	format  string
	quiet   bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "variantctl",
	Short: "CLI tool for flag evaluation and experiment assignment",
	Long: `Variantctl is a command-line tool for working with a variantcore server.

It provides commands for inspecting flags and experiments, evaluating flags
against a user context, and running experiment assignments.

Examples:
  variantctl flags list --env production
  variantctl flags get new-checkout
  variantctl evaluate new-checkout --user u42 --role admin
  variantctl assign exp-pricing --user u42
  variantctl assignments u42`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Base URL of the variantcore API")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "Environment (development, staging, production)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress output")
}
