package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/identity"
	"github.com/your-org/facegate/internal/jobs"
	"github.com/your-org/facegate/internal/lock"
)

var sweepAsync bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire observed identities whose access window has passed",
	Long: `Runs one lifecycle sweep against the datastore. With --async the sweep is
enqueued for the worker instead; duplicate requests within one sweep interval
collapse into the pending task.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepAsync, "async", false, "enqueue the sweep on the job queue")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if sweepAsync {
		client := jobs.NewClient(jobs.RedisOpts(cfg.Redis))
		defer client.Close()

		info, err := client.EnqueueSweep(ctx, cfg.Sweeper.Interval)
		if err != nil {
			return fmt.Errorf("enqueue sweep: %w", err)
		}
		fmt.Fprintf(out, "sweep enqueued: %s (queue %s)\n", info.ID, info.Queue)
		return nil
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var locker identity.Locker
	rdb, err := lock.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, sweeping without the distributed lock", "error", err)
	} else {
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
	}

	res, err := identity.NewSweeper(store, locker, cfg.Sweeper.Interval, cfg.Sweeper.LockTTL).Sweep(ctx)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Fprintln(out, "sweep skipped: another process holds the sweep lock")
		return nil
	}
	fmt.Fprintf(out, "expired %d observed identities\n", res.Expired)
	return nil
}
