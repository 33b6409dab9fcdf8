package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/pkg/dto"
)

var tailZone string

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print access decisions as they are made",
	Args:  cobra.NoArgs,
	RunE:  runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailZone, "zone", "", "only show decisions for this zone")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	if cfg.NATS.URL == "" {
		return errors.New("tail needs nats.url")
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer consumer.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	name := fmt.Sprintf("ctl-tail-%d", os.Getpid())
	err = consumer.ConsumeDecisions(cmd.Context(), name, tailZone, func(_ context.Context, d models.AccessDecision) error {
		return enc.Encode(dto.NewDecisionResponse(d))
	})
	if err != nil {
		return err
	}

	<-cmd.Context().Done()
	return nil
}
