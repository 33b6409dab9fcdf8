package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

const (
	DecisionsStreamName  = "DECISIONS"
	DecisionsSubjectBase = "decisions"
	DoorStreamName       = "DOOR"
	DoorSubjectBase      = "door"
	PromotionsStreamName = "PROMOTIONS"
	PromotionsSubject    = "identity.promote"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        DecisionsStreamName,
			Subjects:    []string{DecisionsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  time.Minute,
			Description: "Access decisions for live dashboards",
		},
		{
			Name:        DoorStreamName,
			Subjects:    []string{DoorSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      30 * time.Second,
			Storage:     jetstream.MemoryStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  10 * time.Second,
			Description: "Door open commands for granted decisions",
		},
		{
			Name:        PromotionsStreamName,
			Subjects:    []string{PromotionsSubject},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      7 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  time.Hour,
			Description: "Observed identities registered by an operator, awaiting enrolment",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// SubjectToken turns a zone name into a single NATS subject token.
func SubjectToken(zone string) string {
	if zone == "" {
		return "_none"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, zone)
}

// PublishDecision publishes an access decision on decisions.<zone>.
func (p *Producer) PublishDecision(ctx context.Context, d models.AccessDecision) error {
	return p.publish(ctx, DecisionsSubjectBase+"."+SubjectToken(d.Zone), d.ID.String(), d)
}

// DoorCommand asks the actuator of a zone to open.
type DoorCommand struct {
	DecisionID string    `json:"decision_id"`
	Zone       string    `json:"zone"`
	IssuedAt   time.Time `json:"issued_at"`
}

// PublishGrant publishes a door open command on door.<zone>.
func (p *Producer) PublishGrant(ctx context.Context, d models.AccessDecision) error {
	cmd := DoorCommand{DecisionID: d.ID.String(), Zone: d.Zone, IssuedAt: d.Timestamp}
	return p.publish(ctx, DoorSubjectBase+"."+SubjectToken(d.Zone), "door-"+cmd.DecisionID, cmd)
}

// PublishPromotion hands a registered observed identity to the enrolment workflow.
func (p *Producer) PublishPromotion(ctx context.Context, obs models.ObservedIdentity) error {
	req, err := promotionRequest(obs)
	if err != nil {
		return err
	}
	return p.publish(ctx, PromotionsSubject, "promote-"+obs.ID.String(), req)
}

// promotionRequest refuses identities without an embedding; the enrolment workflow
// cannot build a registered identity from one.
func promotionRequest(obs models.ObservedIdentity) (dto.PromotionRequest, error) {
	if len(obs.Embedding) == 0 {
		return dto.PromotionRequest{}, fmt.Errorf("promote observed %s: %w: missing embedding", obs.ID, models.ErrValidation)
	}
	return dto.NewPromotionRequest(obs), nil
}

func (p *Producer) publish(ctx context.Context, subject, msgID string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
