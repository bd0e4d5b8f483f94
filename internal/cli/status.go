package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/OneClickTag/tracksync/internal/core/config"
	"github.com/OneClickTag/tracksync/internal/core/domain"
	"github.com/OneClickTag/tracksync/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status [batch_id]",
	Short: "Show batch progress, or the jobs of one batch",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := postgres.NewStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	if len(args) == 1 {
		printBatchJobs(ctx, store, args[0])
		return
	}
	printBatches(ctx, store)
}

func printBatches(ctx context.Context, store *postgres.Store) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BATCH\tSTATUS\tTOTAL\tDONE\tFAILED\tRESUME AFTER")

	for _, status := range []domain.BatchStatus{
		domain.BatchStatusProcessing,
		domain.BatchStatusPaused,
		domain.BatchStatusCompleted,
	} {
		batches, err := store.Batches().ListByStatus(ctx, status)
		if err != nil {
			slog.Error("Failed to list batches", "status", status, "error", err)
			os.Exit(1)
		}
		for _, b := range batches {
			resume := "-"
			if b.ResumeAfter != nil {
				resume = b.ResumeAfter.Format(time.RFC3339)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
				b.ID, b.Status, b.TotalJobs, b.CompletedJobs, b.FailedJobs, resume)
		}
	}
	_ = w.Flush()
}

func printBatchJobs(ctx context.Context, store *postgres.Store, batchID string) {
	jobs, err := store.Jobs().ListByBatch(ctx, batchID)
	if err != nil {
		slog.Error("Failed to list jobs", "batch_id", batchID, "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "JOB\tTRACKING\tSTATUS\tATTEMPTS\tNEXT RETRY\tLAST ERROR")

	for _, j := range jobs {
		next := "-"
		if j.NextRetryAt != nil {
			next = j.NextRetryAt.Format(time.RFC3339)
		}
		lastErr := j.LastError
		if len(lastErr) > 60 {
			lastErr = lastErr[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			j.ID, j.TrackingID, j.Status, j.Attempts, j.MaxAttempts, next, lastErr)
	}
	_ = w.Flush()
}
