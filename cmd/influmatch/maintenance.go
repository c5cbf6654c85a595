package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/boddenberg/influmatch-bfa-go/internal/domain"

	"github.com/spf13/cobra"
)

var (
	// Repair flags
	dryRun bool

	// Restore flags
	companyID string
	formPath  string
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report stored records that break a data invariant",
	Long: `Scan every user, company, campaign and collaboration request and list
the records that break a data invariant. Nothing is written.

Exits with status 2 when violations are found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "warn")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.repairs.Diagnose(cmd.Context())
		if err != nil {
			return err
		}
		if err := printReport(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		if !report.Healthy() {
			a.Close()
			os.Exit(2)
		}
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Run every repair in order",
	Long: `Run the repairs in order: user types, campaign ownership, orphaned
collaboration requests. Each repair is idempotent.

Examples:
  influmatch repair --dry-run   # Show what would change
  influmatch repair             # Apply`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "warn")
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.repairs.RepairAll(cmd.Context(), dryRun)
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), results)
	},
}

var restoreCompanyCmd = &cobra.Command{
	Use:   "restore-company",
	Short: "Fill empty fields of a company from a registration form",
	Long: `Restore a company whose fields were lost, using the JSON registration
form it was created from. Only empty fields are filled.

Example:
  influmatch restore-company --id 3f2c... --form acme.json --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if companyID == "" || formPath == "" {
			return fmt.Errorf("--id and --form are required")
		}
		data, err := os.ReadFile(formPath)
		if err != nil {
			return fmt.Errorf("read form: %w", err)
		}
		var form domain.CompanyRegistrationForm
		if err := json.Unmarshal(data, &form); err != nil {
			return fmt.Errorf("parse form: %w", err)
		}

		a, err := newApp(cmd.Context(), "warn")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.repairs.RestoreCompanyFields(cmd.Context(), companyID, &form, dryRun)
		if err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), []domain.RepairResult{*result})
	},
}

func init() {
	rootCmd.AddCommand(diagnoseCmd, repairCmd, restoreCompanyCmd)

	repairCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing them")
	restoreCompanyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing them")
	restoreCompanyCmd.Flags().StringVar(&companyID, "id", "", "Company id")
	restoreCompanyCmd.Flags().StringVar(&formPath, "form", "", "Path to the registration form JSON")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, report *domain.DiagnosticReport) error {
	if asJSON {
		return printJSON(w, report)
	}
	fmt.Fprintf(w, "users=%d companies=%d campaigns=%d requests=%d\n",
		report.Users, report.Companies, report.Campaigns, report.Requests)
	if report.Healthy() {
		fmt.Fprintln(w, "no violations found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tKEY\tRECORD\tDETAIL")
	for _, issue := range report.Issues {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", issue.Kind, issue.Key, issue.RecordID, issue.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d violation(s)\n", len(report.Issues))
	return nil
}

func printResults(w io.Writer, results []domain.RepairResult) error {
	if asJSON {
		return printJSON(w, results)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		mode := "applied"
		if r.DryRun {
			mode = "dry run"
		}
		fmt.Fprintf(tw, "== %s (%s): %d change(s), %d skipped\n", r.Repair, mode, len(r.Changes), len(r.Skipped))
		for _, c := range r.Changes {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%q -> %q\n", c.Key, c.RecordID, c.Field, c.Before, c.After)
		}
		for _, s := range r.Skipped {
			fmt.Fprintf(tw, "  skipped\t%s\t%s\t%s\n", s.Key, s.Kind, s.Detail)
		}
	}
	return tw.Flush()
}
