package main

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/identity"
	"github.com/your-org/facegate/internal/queue"
)

var actionCmd = &cobra.Command{
	Use:   "action <observed-id> <block|extend|register>",
	Short: "Apply an operator action to an observed identity",
	Args:  cobra.ExactArgs(2),
	RunE:  runAction,
}

func init() {
	rootCmd.AddCommand(actionCmd)
}

func runAction(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid observed id %q: %w", args[0], err)
	}
	action, err := identity.ParseAction(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	handler := identity.NewActionHandler(store, cfg.Observed.ExtendTTL)
	if action == identity.ActionRegister && cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, promotion will not be published", "error", err)
		} else {
			defer producer.Close()
			handler.Promotions = producer
		}
	}

	res, err := handler.Apply(ctx, id, action)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (status %s)\n", res.Message, res.Identity.Status)
	return nil
}
