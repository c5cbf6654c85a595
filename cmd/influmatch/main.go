package main

import (
	"fmt"
	"os"

	"github.com/boddenberg/influmatch-bfa-go/internal/config"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile string
	asJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "influmatch",
	Short: "Influmatch backend: marketplace API and data maintenance",
	Long: `Influmatch connects companies running marketing campaigns with influencers.

Commands:
  serve            Start the HTTP API
  diagnose         Report stored records that break a data invariant
  repair           Run every repair (use --dry-run to preview)
  restore-company  Fill empty fields of a company from a registration form
  create-admin     Create an admin account`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadDotEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file (existing variables win)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print reports as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
