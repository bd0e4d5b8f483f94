package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/OneClickTag/tracksync/internal/core/config"
	"github.com/OneClickTag/tracksync/internal/infra/storage/postgres"
)

var olderThanFlag time.Duration

var requeueStuckCmd = &cobra.Command{
	Use:   "requeue-stuck",
	Short: "Requeue jobs stuck in processing (manual recovery)",
	Run:   runRequeueStuck,
}

func init() {
	requeueStuckCmd.Flags().DurationVar(&olderThanFlag, "older-than", 0,
		"override the stuck threshold (default: config stuck_threshold)")
	rootCmd.AddCommand(requeueStuckCmd)
}

func runRequeueStuck(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	threshold := cfg.Queue.StuckThreshold
	if olderThanFlag > 0 {
		threshold = olderThanFlag
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

	n, err := store.Jobs().ResetStuck(ctx, time.Now().Add(-threshold))
	if err != nil {
		slog.Error("Failed to requeue stuck jobs", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Requeued %d stuck job(s) older than %s\n", n, threshold)
}
