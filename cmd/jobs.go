package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/giada-tronca/cold-outreach/internal/model"
	"github.com/giada-tronca/cold-outreach/internal/store"
)

var (
	jobsStatus   string
	jobsCampaign string
	jobsLimit    int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List batch enrichment jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		filter := store.BatchFilter{
			Status:     model.JobStatus(jobsStatus),
			CampaignID: jobsCampaign,
			Limit:      jobsLimit,
		}
		jobs, err := st.ListBatches(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "jobs list")
		}

		if len(jobs) == 0 {
			fmt.Fprintln(os.Stderr, "No batches found.")
			return nil
		}

		formatJobsList(os.Stdout, jobs)
		return nil
	},
}

func formatJobsList(w io.Writer, jobs []model.BatchJob) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCAMPAIGN\tSTATUS\tPROGRESS\tOK\tFAIL\tDUP\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%d\t%d\t%d\t%s\n",
			j.ID, j.CampaignID, j.Status, j.Counters.Progress(),
			j.Counters.Succeeded, j.Counters.Failed, j.Counters.Duplicates,
			j.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status")
	jobsCmd.Flags().StringVar(&jobsCampaign, "campaign", "", "filter by campaign")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum rows")
	rootCmd.AddCommand(jobsCmd)
}
