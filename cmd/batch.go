package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/giada-tronca/cold-outreach/internal/importer"
	"github.com/giada-tronca/cold-outreach/internal/model"
)

var (
	batchFile        string
	batchCampaign    string
	batchConcurrency int
	batchStages      []string
	batchRetryBudget int
	batchNoWait      bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Import a prospect CSV and run a batch enrichment job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		f, err := os.Open(batchFile)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		result, err := importer.ReadCSV(ctx, f, batchCampaign)
		f.Close() //nolint:errcheck
		if err != nil {
			return err
		}
		if len(result.Rejected) > 0 {
			fmt.Fprintf(os.Stderr, "Rejected %d rows:\n", len(result.Rejected))
			for _, re := range result.Rejected {
				fmt.Fprintf(os.Stderr, "  row %d: %s\n", re.Row, re.Reason)
			}
		}
		if len(result.Prospects) == 0 {
			return eris.New("no valid prospects in file")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.DefaultConcurrency
		}
		jobCfg := model.JobConfig{
			Concurrency:   concurrency,
			EnabledStages: batchStages,
			RetryBudget:   batchRetryBudget,
			SuccessThreshold: cfg.Batch.SuccessThreshold,
			PausePolicy:      model.PausePolicy(cfg.Batch.PausePolicy),
		}

		jobID, err := env.Orch.Submit(ctx, batchCampaign, result.Prospects, jobCfg)
		if err != nil {
			return err
		}
		fmt.Printf("Submitted batch %s (%d prospects)\n", jobID, len(result.Prospects))

		if batchNoWait {
			return nil
		}
		return followBatch(ctx, env, jobID)
	},
}

// followBatch subscribes to the job's progress stream and prints events until
// the batch reaches a terminal status.
func followBatch(ctx context.Context, env *appEnv, jobID string) error {
	sub := env.Bus.Subscribe(jobID)
	defer env.Bus.Unsubscribe(sub)

	// the job may have finished before we subscribed
	if batch, err := env.Manager.Get(ctx, jobID); err == nil && batch.Status.Terminal() {
		printTerminal(batch)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			zap.L().Warn("interrupted while following batch", zap.String("job_id", jobID))
			return ctx.Err()
		case event, ok := <-sub.C:
			if !ok {
				return eris.New("progress stream closed")
			}
			switch event.Type {
			case model.EventBatchProgress:
				fmt.Printf("  progress: %d%%\n", event.Progress)
			case model.EventEntityTerminal:
				fmt.Printf("  prospect %s: %s\n", event.ProspectID, event.Outcome)
			case model.EventBatchTerminal:
				fmt.Printf("Batch %s: %s (success rate %.0f%%)\n",
					jobID, event.Status, event.SuccessRate*100)
				return nil
			}
		}
	}
}

func printTerminal(batch *model.BatchJob) {
	fmt.Printf("Batch %s: %s (%d/%d succeeded)\n",
		batch.ID, batch.Status, batch.Counters.Succeeded, batch.Counters.Total)
}

func init() {
	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "prospect CSV file (required)")
	batchCmd.Flags().StringVar(&batchCampaign, "campaign", "", "campaign identifier")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel pipelines (default from config)")
	batchCmd.Flags().StringSliceVar(&batchStages, "stages", nil,
		"stages to run (default: "+strings.Join(model.StageOrder, ",")+")")
	batchCmd.Flags().IntVar(&batchRetryBudget, "retry-budget", 0, "per-stage retry attempts override")
	batchCmd.Flags().BoolVar(&batchNoWait, "no-wait", false, "submit and exit without following progress")
	batchCmd.MarkFlagRequired("file") //nolint:errcheck
	rootCmd.AddCommand(batchCmd)
}
