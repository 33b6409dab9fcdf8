package identity

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// DecisionLogger appends one audit row per resolution. It is best-effort: failures
// are counted and logged but never change the outcome returned to the caller.
type DecisionLogger struct {
	store DecisionStore
	// Publisher is optional.
	Publisher DecisionPublisher
}

func NewDecisionLogger(store DecisionStore) *DecisionLogger {
	return &DecisionLogger{store: store}
}

// Record persists and publishes the decision for out and returns the written record.
func (l *DecisionLogger) Record(ctx context.Context, out Outcome) models.AccessDecision {
	rec := NewDecisionRecord(out)

	if err := l.store.InsertDecision(ctx, &rec); err != nil {
		observability.DecisionLogFailures.Inc()
		slog.Error("record access decision",
			"match_status", rec.MatchStatus,
			"decision", rec.Decision,
			"zone", rec.Zone,
			"error", err,
		)
	}

	if l.Publisher == nil {
		return rec
	}
	if err := l.Publisher.PublishDecision(ctx, rec); err != nil {
		slog.Warn("publish access decision", "error", err)
	}
	if rec.Decision == models.DecisionGranted {
		if err := l.Publisher.PublishGrant(ctx, rec); err != nil {
			slog.Warn("publish door grant", "zone", rec.Zone, "error", err)
		}
	}
	return rec
}

// NewDecisionRecord maps an outcome onto an audit row without re-deriving anything.
func NewDecisionRecord(out Outcome) models.AccessDecision {
	attempt := out.Attempt()
	rec := models.AccessDecision{
		ID:          uuid.New(),
		Timestamp:   attempt.At,
		Zone:        attempt.Zone,
		Decision:    out.Decision(),
		MatchStatus: out.MatchStatus(),
		Reason:      out.Reason(),
		UserType:    models.UserTypeUnknown,
	}

	switch o := out.(type) {
	case *RegisteredOutcome:
		id := o.Identity.ID
		rec.RegisteredUserID = &id
		rec.ConfidenceScore = o.Similarity()
		rec.UserType = models.UserTypeRegistered
	case *ObservedOutcome:
		id := o.Identity.ID
		rec.ObservedUserID = &id
		rec.ConfidenceScore = o.Similarity()
		rec.UserType = models.UserTypeObserved
	case *NoMatchOutcome, *ErrorOutcome:
	}
	return rec
}
