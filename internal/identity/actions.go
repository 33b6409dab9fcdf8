package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

type Action string

const (
	ActionBlock    Action = "block"
	ActionExtend   Action = "extend"
	ActionRegister Action = "register"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionBlock, ActionExtend, ActionRegister:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", models.ErrValidation, s)
	}
}

type ActionResult struct {
	Identity *models.ObservedIdentity
	Message  string
}

// ActionHandler applies operator transitions to observed identities.
//
// Transition policy:
//   - block:    any non-registered status -> blocked.
//   - extend:   any non-registered status, blocked included -> active_temporal with a
//     fresh expiry. This is the only way to lift a block.
//   - register: new_observed, active_temporal or expired -> is_registered, status active.
//     Blocked identities must be extended first.
//
// Registered identities accept no further actions.
type ActionHandler struct {
	store     TransitionStore
	extendTTL time.Duration
	// Promotions is optional; it receives identities after a successful register.
	Promotions PromotionPublisher
	clock      func() time.Time
}

func NewActionHandler(store TransitionStore, extendTTL time.Duration) *ActionHandler {
	return &ActionHandler{
		store:     store,
		extendTTL: extendTTL,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Apply runs action against the observed identity id. Nothing is written when an
// error is returned.
func (h *ActionHandler) Apply(ctx context.Context, id uuid.UUID, action Action) (*ActionResult, error) {
	var (
		mutate  func(*models.ObservedIdentity) error
		message func(*models.ObservedIdentity) string
	)
	switch action {
	case ActionBlock:
		mutate = setStatus(models.ObservedStatusBlocked)
		message = func(*models.ObservedIdentity) string { return "Observed user blocked" }
	case ActionExtend:
		mutate = extendExpiry(h.clock().Add(h.extendTTL))
		message = func(o *models.ObservedIdentity) string {
			return "Observed user access extended until " + o.ExpiresAt.Format(time.RFC3339)
		}
	case ActionRegister:
		mutate = markRegistered
		message = func(*models.ObservedIdentity) string { return "Observed user registered" }
	default:
		return nil, fmt.Errorf("%w: unknown action %q", models.ErrValidation, action)
	}

	updated, err := h.store.UpdateObserved(ctx, id, mutate)
	if err != nil {
		observability.AdminActions.WithLabelValues(string(action), resultLabel(err)).Inc()
		return nil, fmt.Errorf("%s observed %s: %w", action, id, err)
	}
	observability.AdminActions.WithLabelValues(string(action), "ok").Inc()
	slog.Info("observed identity action applied", "id", id, "action", action, "status", updated.Status)

	if action == ActionRegister && h.Promotions != nil {
		if err := h.Promotions.PublishPromotion(ctx, *updated); err != nil {
			slog.Error("publish promotion", "id", id, "error", err)
		}
	}
	return &ActionResult{Identity: updated, Message: message(updated)}, nil
}

func setStatus(status models.ObservedStatus) func(*models.ObservedIdentity) error {
	return func(o *models.ObservedIdentity) error {
		if o.IsRegistered {
			return fmt.Errorf("%w: identity already registered", models.ErrInvalidTransition)
		}
		o.Status = status
		return nil
	}
}

func extendExpiry(expiresAt time.Time) func(*models.ObservedIdentity) error {
	return func(o *models.ObservedIdentity) error {
		if o.IsRegistered {
			return fmt.Errorf("%w: identity already registered", models.ErrInvalidTransition)
		}
		o.Status = models.ObservedStatusActiveTemporal
		o.ExpiresAt = expiresAt
		return nil
	}
}

func markRegistered(o *models.ObservedIdentity) error {
	if o.IsRegistered {
		return fmt.Errorf("%w: identity already registered", models.ErrInvalidTransition)
	}
	if o.Status == models.ObservedStatusBlocked {
		return fmt.Errorf("%w: blocked identity cannot be registered", models.ErrInvalidTransition)
	}
	o.IsRegistered = true
	o.Status = models.ObservedStatusActive
	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
