package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
)

type DecisionHandler func(ctx context.Context, d models.AccessDecision) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeDecisions delivers new decisions to handler until ctx is cancelled. Each
// consumerName gets its own copy of the stream; zone narrows delivery to one zone
// when non-empty. The consumer is removed by the server after an hour idle.
func (c *Consumer) ConsumeDecisions(ctx context.Context, consumerName, zone string, handler DecisionHandler) error {
	stream, err := c.js.Stream(ctx, DecisionsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", DecisionsStreamName, err)
	}

	filter := DecisionsSubjectBase + ".>"
	if zone != "" {
		filter = DecisionsSubjectBase + "." + SubjectToken(zone)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              consumerName,
		Durable:           consumerName,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        3,
		FilterSubject:     filter,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch decisions error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var d models.AccessDecision
				if err := json.Unmarshal(msg.Data(), &d); err != nil {
					slog.Error("decode decision", "subject", msg.Subject(), "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, d); err != nil {
					slog.Error("process decision error", "error", err)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("decision consumer started", "consumer", consumerName, "filter", filter)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
