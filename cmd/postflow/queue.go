package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"postflow/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Queue management commands",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	RunE:  runQueueStats,
}

var queueReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Return expired in-flight tasks to the ready queue",
	RunE:  runQueueReap,
}

func init() {
	queueCmd.AddCommand(queueStatsCmd, queueReapCmd)
	rootCmd.AddCommand(queueCmd)
}

func openQueueStorage() (*queue.BoltStorage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	storage, err := queue.NewBoltStorage(cfg.Storage.QueuePath, cfg.Queue.VisibilityTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}
	return storage, nil
}

func runQueueStats(cmd *cobra.Command, args []string) error {
	storage, err := openQueueStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get queue stats: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Ready:\t%d\n", stats.Ready)
	fmt.Fprintf(w, "Due:\t%d\n", stats.Due)
	fmt.Fprintf(w, "In flight:\t%d\n", stats.InFlight)
	fmt.Fprintf(w, "Total:\t%d\n", stats.Total)
	for class, n := range stats.ByClass {
		fmt.Fprintf(w, "  %s:\t%d\n", class, n)
	}
	return w.Flush()
}

func runQueueReap(cmd *cobra.Command, args []string) error {
	storage, err := openQueueStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	reaped, err := storage.Reap(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to reap queue: %w", err)
	}

	fmt.Printf("Reaped %d expired task(s)\n", reaped)
	return nil
}
