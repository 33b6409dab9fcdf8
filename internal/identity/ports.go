package identity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// RegisteredReader fetches registered profiles after a registered-pool hit.
type RegisteredReader interface {
	GetRegistered(ctx context.Context, id uuid.UUID) (*models.RegisteredIdentity, error)
}

// ObservedStore is the only writer of observed identity rows.
type ObservedStore interface {
	// FindOrCreate serializes first sightings of similar embeddings. Under the creation
	// lock it re-queries the observed pool: a hit within threshold is touched and
	// returned with created=false, otherwise a new row is inserted.
	FindOrCreate(ctx context.Context, n models.NewObserved, threshold float64) (obs *models.ObservedIdentity, distance float64, created bool, err error)
	// Touch bumps access_count and last_seen_at, records the zone and updates the
	// denial counter in one conditional write. Returns ErrNotFound for unknown or
	// registered rows.
	Touch(ctx context.Context, id uuid.UUID, t models.Touch) (*models.ObservedIdentity, error)
	GetObserved(ctx context.Context, id uuid.UUID) (*models.ObservedIdentity, error)
	SetFaceImage(ctx context.Context, id uuid.UUID, key string) error
}

// TransitionStore applies an administrative mutation atomically. mutate runs against
// the locked current row; a non-nil error from mutate aborts without writing.
type TransitionStore interface {
	UpdateObserved(ctx context.Context, id uuid.UUID, mutate func(*models.ObservedIdentity) error) (*models.ObservedIdentity, error)
}

// ExpiryStore performs the bulk active_temporal -> expired transition.
type ExpiryStore interface {
	ExpireElapsed(ctx context.Context, now time.Time) (int64, error)
}

// ObservedLister pages observed identities for the dashboard.
type ObservedLister interface {
	ListObserved(ctx context.Context, q models.ObservedQuery) (*models.ObservedPage, error)
}

// DecisionStore appends audit rows.
type DecisionStore interface {
	InsertDecision(ctx context.Context, d *models.AccessDecision) error
}

// DecisionPublisher fans decisions out to side channels: the live feed and the
// door actuator on grants.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, d models.AccessDecision) error
	PublishGrant(ctx context.Context, d models.AccessDecision) error
}

// PromotionPublisher hands a registered observed identity to the enrolment workflow.
type PromotionPublisher interface {
	PublishPromotion(ctx context.Context, obs models.ObservedIdentity) error
}

// BlobStore persists face snapshots.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Locker provides a cross-process mutex with a lease. ok=false means another holder
// owns the lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}
