package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/palletline-systems/palletline-stack/internal/database"
	"github.com/palletline-systems/palletline-stack/internal/outbox"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Outbox queue inspection and repair",
}

var outboxStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outbox entry counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, repo, cleanup, err := outboxRepo()
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := repo.Stats(ctx)
		if err != nil {
			return fmt.Errorf("load stats: %w", err)
		}
		return printJSON(stats)
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue <entry-id>",
	Short: "Reset a FAILED entry for immediate re-publication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, repo, cleanup, err := outboxRepo()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := repo.Requeue(ctx, args[0]); err != nil {
			return fmt.Errorf("requeue %s: %w", args[0], err)
		}
		fmt.Printf("entry %s requeued\n", args[0])
		return nil
	},
}

var gcDays int

var outboxGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete PUBLISHED entries older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, repo, cleanup, err := outboxRepo()
		if err != nil {
			return err
		}
		defer cleanup()

		cutoff := time.Now().UTC().AddDate(0, 0, -gcDays)
		removed, err := repo.GC(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("gc: %w", err)
		}
		fmt.Printf("removed %d published entries older than %s\n", removed, cutoff.Format(time.RFC3339))
		return nil
	},
}

func init() {
	outboxGCCmd.Flags().IntVar(&gcDays, "days", 7, "minimum age in days of PUBLISHED entries to delete")
	outboxCmd.AddCommand(outboxStatsCmd)
	outboxCmd.AddCommand(outboxRequeueCmd)
	outboxCmd.AddCommand(outboxGCCmd)
}

func outboxRepo() (context.Context, outbox.Repository, func(), error) {
	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.Database.URL(), 2)
	if err != nil {
		return nil, nil, nil, err
	}
	return ctx, outbox.NewPostgresRepository(pool), pool.Close, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
