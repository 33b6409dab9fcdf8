package identity

import (
	"context"
	"errors"
	"time"

	"github.com/your-org/facegate/internal/models"
)

// Outcome is the result of one resolution. It is one of *RegisteredOutcome,
// *ObservedOutcome, *NoMatchOutcome or *ErrorOutcome.
type Outcome interface {
	Decision() models.Decision
	MatchStatus() models.MatchStatus
	Reason() string
	Attempt() Attempt
	isOutcome()
}

// Attempt holds the request-level facts shared by every outcome.
type Attempt struct {
	Zone string
	At   time.Time
}

type RegisteredOutcome struct {
	attempt  Attempt
	Identity *models.RegisteredIdentity
	Distance float64
	Granted  bool
	reason   string
}

func (o *RegisteredOutcome) Decision() models.Decision {
	if o.Granted {
		return models.DecisionGranted
	}
	return models.DecisionDenied
}

func (o *RegisteredOutcome) MatchStatus() models.MatchStatus {
	if o.Granted {
		return models.MatchRegistered
	}
	return models.MatchRegisteredDenied
}

func (o *RegisteredOutcome) Reason() string      { return o.reason }
func (o *RegisteredOutcome) Attempt() Attempt    { return o.attempt }
func (o *RegisteredOutcome) Similarity() float64 { return Similarity(o.Distance) }
func (*RegisteredOutcome) isOutcome()            {}

type ObservedOutcome struct {
	attempt  Attempt
	Identity *models.ObservedIdentity
	// Distance is 0 for a freshly created identity.
	Distance float64
	Created  bool
	Granted  bool
	reason   string
}

func (o *ObservedOutcome) Decision() models.Decision {
	if o.Granted {
		return models.DecisionGranted
	}
	return models.DecisionDenied
}

func (o *ObservedOutcome) MatchStatus() models.MatchStatus {
	switch {
	case o.Created:
		return models.MatchNewObserved
	case o.Granted:
		return models.MatchObservedUpdated
	case o.Identity != nil && o.Identity.Status == models.ObservedStatusBlocked:
		return models.MatchObservedDeniedBlocked
	default:
		return models.MatchObservedDeniedExpired
	}
}

func (o *ObservedOutcome) Reason() string      { return o.reason }
func (o *ObservedOutcome) Attempt() Attempt    { return o.attempt }
func (o *ObservedOutcome) Similarity() float64 { return Similarity(o.Distance) }
func (*ObservedOutcome) isOutcome()            {}

// NoMatchOutcome is produced only when auto-enrolment is disabled.
type NoMatchOutcome struct {
	attempt Attempt
}

func (*NoMatchOutcome) Decision() models.Decision       { return models.DecisionDenied }
func (*NoMatchOutcome) MatchStatus() models.MatchStatus { return models.MatchNone }
func (*NoMatchOutcome) Reason() string {
	return "no matching identity and auto-enrolment disabled"
}
func (o *NoMatchOutcome) Attempt() Attempt { return o.attempt }
func (*NoMatchOutcome) isOutcome()         {}

// ErrorOutcome aborts a resolution. No identity was created or mutated.
type ErrorOutcome struct {
	attempt Attempt
	Err     error
}

func (*ErrorOutcome) Decision() models.Decision       { return models.DecisionError }
func (*ErrorOutcome) MatchStatus() models.MatchStatus { return models.MatchUnknown }
func (o *ErrorOutcome) Reason() string {
	return "resolution aborted: " + ErrorKind(o.Err)
}
func (o *ErrorOutcome) Attempt() Attempt { return o.attempt }
func (*ErrorOutcome) isOutcome()         {}

// ErrorKind names the taxonomy bucket of err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, models.ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrDatastoreUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return "datastore_unavailable"
	default:
		return "unclassified"
	}
}
