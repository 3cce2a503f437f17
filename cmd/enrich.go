package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/giada-tronca/cold-outreach/internal/model"
)

var (
	enrichEmail    string
	enrichFirst    string
	enrichLast     string
	enrichCompany  string
	enrichWebsite  string
	enrichLinkedIn string
)

// enrichCmd runs a single prospect through the pipeline as a one-off batch.
// Useful for debugging provider configuration before a real import.
var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single prospect",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		prospect := model.Prospect{
			Email:       enrichEmail,
			FirstName:   enrichFirst,
			LastName:    enrichLast,
			Company:     enrichCompany,
			Website:     enrichWebsite,
			LinkedInURL: enrichLinkedIn,
		}

		jobID, err := env.Orch.Submit(ctx, "adhoc", []model.Prospect{prospect}, model.JobConfig{Concurrency: 1})
		if err != nil {
			return err
		}
		if err := followBatch(ctx, env, jobID); err != nil {
			return err
		}

		prospects, err := env.Store.ListProspects(ctx, jobID)
		if err != nil {
			return err
		}
		for _, p := range prospects {
			fmt.Printf("\nStatus: %s\n", p.Status)
			for stage, raw := range p.Results {
				fmt.Printf("\n== %s ==\n%s\n", stage, raw)
			}
			for _, e := range p.Errors {
				fmt.Printf("error: %s\n", e)
			}
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichEmail, "email", "", "prospect email (required)")
	enrichCmd.Flags().StringVar(&enrichFirst, "first", "", "first name")
	enrichCmd.Flags().StringVar(&enrichLast, "last", "", "last name")
	enrichCmd.Flags().StringVar(&enrichCompany, "company", "", "company name")
	enrichCmd.Flags().StringVar(&enrichWebsite, "website", "", "company website")
	enrichCmd.Flags().StringVar(&enrichLinkedIn, "linkedin", "", "linkedin profile url")
	enrichCmd.MarkFlagRequired("email") //nolint:errcheck
	rootCmd.AddCommand(enrichCmd)
}
