package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "dqctl",
		Short:        "Data quality test runner client",
		Long:         "dqctl analyzes date/count series offline and drives the validation API.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("api", getenv("DQ_API_URL", "http://localhost:8000"), "Base URL of the validation API")

	rootCmd.AddCommand(newAnomaliesCommand())
	rootCmd.AddCommand(newYoYCommand())
	rootCmd.AddCommand(newFetchCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newRunCommand())
	return rootCmd
}

func getenv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
