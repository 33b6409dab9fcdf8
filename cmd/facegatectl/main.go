// Command facegatectl is the operator CLI for a facegate deployment.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "facegatectl",
	Short: "Operate the facegate identity resolution engine",
	Long: `facegatectl talks directly to the facegate datastore, job queue and message
bus. It applies migrations, runs or schedules lifecycle sweeps, applies operator
actions to observed identities and tails the live decision feed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		observability.SetupLogger(cfg.Logging.Level, "text")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the shared datastore. The memory driver is per-process and has
// nothing to operate on from here.
func openStore(ctx context.Context) (storage.Store, error) {
	if cfg.Database.Driver == "memory" {
		return nil, errors.New("facegatectl needs database.driver=postgres")
	}
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	return store, nil
}
