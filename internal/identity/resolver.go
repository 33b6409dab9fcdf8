package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

// ResolverConfig holds the matching policy.
type ResolverConfig struct {
	EmbeddingDim            int
	RegisteredThreshold     float64
	ObservedThreshold       float64
	PotentialMatchThreshold float64
	TTL                     time.Duration
	QueryTimeout            time.Duration
	EligibleStatuses        []string
	AutoEnroll              bool
}

func NewResolverConfig(cfg *config.Config) ResolverConfig {
	return ResolverConfig{
		EmbeddingDim:            cfg.Matching.EmbeddingDim,
		RegisteredThreshold:     cfg.Matching.RegisteredThreshold,
		ObservedThreshold:       cfg.Matching.ObservedThreshold,
		PotentialMatchThreshold: cfg.Matching.PotentialMatchThreshold,
		TTL:                     cfg.Observed.TTL,
		QueryTimeout:            cfg.Matching.QueryTimeout,
		EligibleStatuses:        cfg.Matching.EligibleStatuses,
		AutoEnroll:              cfg.Observed.AutoEnrollEnabled(),
	}
}

// Request is one capture event.
type Request struct {
	Embedding []float32
	Zone      string
	// Snapshot is an optional JPEG of the face, persisted best-effort.
	Snapshot []byte
}

// Resolver runs the registered -> observed -> create cascade.
type Resolver struct {
	cfg        ResolverConfig
	matcher    Matcher
	registered RegisteredReader
	observed   ObservedStore
	decisions  *DecisionLogger
	// Snapshots is optional. When nil, request snapshots are dropped.
	Snapshots BlobStore
	clock     func() time.Time
}

func NewResolver(cfg ResolverConfig, matcher Matcher, registered RegisteredReader, observed ObservedStore, decisions *DecisionLogger) *Resolver {
	if cfg.ObservedThreshold < cfg.RegisteredThreshold {
		slog.Warn("observed-pool threshold is tighter than registered-pool threshold",
			"observed_threshold", cfg.ObservedThreshold,
			"registered_threshold", cfg.RegisteredThreshold,
		)
	}
	return &Resolver{
		cfg:        cfg,
		matcher:    matcher,
		registered: registered,
		observed:   observed,
		decisions:  decisions,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Resolve classifies the embedding and records the decision. It always returns an
// outcome; failures are reported as *ErrorOutcome and never fall through to creation.
func (r *Resolver) Resolve(ctx context.Context, req Request) Outcome {
	attempt := Attempt{Zone: req.Zone, At: r.clock()}

	out := r.resolve(ctx, req, attempt)
	if e, ok := out.(*ErrorOutcome); ok {
		slog.Warn("resolution failed", "zone", req.Zone, "kind", ErrorKind(e.Err), "error", e.Err)
	}
	observability.Resolutions.WithLabelValues(string(out.MatchStatus()), string(out.Decision())).Inc()

	// Audit and snapshot writes outlive a disconnected agent.
	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.sideEffectTimeout())
	defer cancel()
	if r.decisions != nil {
		r.decisions.Record(sideCtx, out)
	}
	if len(req.Snapshot) > 0 {
		r.storeSnapshot(sideCtx, out, req.Snapshot)
	}
	return out
}

func (r *Resolver) sideEffectTimeout() time.Duration {
	if r.cfg.QueryTimeout > 0 {
		return r.cfg.QueryTimeout
	}
	return 3 * time.Second
}

func (r *Resolver) resolve(ctx context.Context, req Request, attempt Attempt) Outcome {
	if err := ValidateEmbedding(req.Embedding, r.cfg.EmbeddingDim); err != nil {
		return &ErrorOutcome{attempt: attempt, Err: err}
	}

	if r.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.QueryTimeout)
		defer cancel()
	}

	// 1. Registered pool.
	reg, err := r.findClosest(ctx, PoolRegistered, req.Embedding, r.cfg.RegisteredThreshold)
	if err != nil {
		return &ErrorOutcome{attempt: attempt, Err: err}
	}
	if reg != nil {
		profile, err := r.registered.GetRegistered(ctx, reg.ID)
		if err != nil {
			return &ErrorOutcome{attempt: attempt, Err: fmt.Errorf("get registered %s: %w", reg.ID, err)}
		}
		granted, reason := r.authorize(profile, req.Zone)
		return &RegisteredOutcome{
			attempt:  attempt,
			Identity: profile,
			Distance: reg.Distance,
			Granted:  granted,
			reason:   reason,
		}
	}

	// 2. Observed pool.
	obs, err := r.findClosest(ctx, PoolObserved, req.Embedding, r.cfg.ObservedThreshold)
	if err != nil {
		return &ErrorOutcome{attempt: attempt, Err: err}
	}
	if obs != nil {
		touched, err := r.observed.Touch(ctx, obs.ID, models.Touch{SeenAt: attempt.At, Zone: req.Zone})
		if err != nil {
			return &ErrorOutcome{attempt: attempt, Err: fmt.Errorf("touch observed %s: %w", obs.ID, err)}
		}
		return observedOutcome(attempt, touched, obs.Distance)
	}

	// 3. First sighting.
	if !r.cfg.AutoEnroll {
		return &NoMatchOutcome{attempt: attempt}
	}

	potential, err := r.findClosest(ctx, PoolRegistered, req.Embedding, r.cfg.PotentialMatchThreshold)
	if err != nil {
		return &ErrorOutcome{attempt: attempt, Err: err}
	}
	var potentialID *uuid.UUID
	if potential != nil {
		id := potential.ID
		potentialID = &id
	}

	created, distance, isNew, err := r.observed.FindOrCreate(ctx, models.NewObserved{
		Embedding:            req.Embedding,
		Zone:                 req.Zone,
		SeenAt:               attempt.At,
		ExpiresAt:            attempt.At.Add(r.cfg.TTL),
		PotentialMatchUserID: potentialID,
	}, r.cfg.ObservedThreshold)
	if err != nil {
		return &ErrorOutcome{attempt: attempt, Err: fmt.Errorf("create observed: %w", err)}
	}
	if !isNew {
		// Another request created this person between our miss and the lock.
		observability.ObservedCreateRaces.Inc()
		return observedOutcome(attempt, created, distance)
	}

	observability.ObservedCreated.Inc()
	return &ObservedOutcome{
		attempt:  attempt,
		Identity: created,
		Created:  true,
		Granted:  true,
		reason:   "first sighting; temporary access until " + created.ExpiresAt.Format(time.RFC3339),
	}
}

func (r *Resolver) findClosest(ctx context.Context, pool Pool, embedding []float32, threshold float64) (*Match, error) {
	start := time.Now()
	m, err := r.matcher.FindClosest(ctx, pool, embedding, threshold)
	observability.MatcherDuration.WithLabelValues(string(pool)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("match %s pool: %w", pool, err)
	}
	return m, nil
}

func (r *Resolver) authorize(profile *models.RegisteredIdentity, zone string) (bool, string) {
	if !slices.Contains(r.cfg.EligibleStatuses, profile.StatusName) {
		return false, fmt.Sprintf("identity status %q is not eligible for access", profile.StatusName)
	}
	if !profile.CanEnter(zone) {
		return false, fmt.Sprintf("zone %q is not among authorized zones", zone)
	}
	return true, "registered identity authorized"
}

func observedOutcome(attempt Attempt, obs *models.ObservedIdentity, distance float64) *ObservedOutcome {
	out := &ObservedOutcome{
		attempt:  attempt,
		Identity: obs,
		Distance: distance,
		Granted:  obs.HasAccess(attempt.At),
	}
	switch {
	case out.Granted:
		out.reason = "temporary access window open until " + obs.ExpiresAt.Format(time.RFC3339)
	case obs.Status == models.ObservedStatusBlocked:
		out.reason = "observed identity is blocked"
	default:
		out.reason = "temporary access window lapsed at " + obs.ExpiresAt.Format(time.RFC3339)
	}
	return out
}

func (r *Resolver) storeSnapshot(ctx context.Context, out Outcome, image []byte) {
	if r.Snapshots == nil {
		return
	}
	var (
		key        string
		observedID *uuid.UUID
	)
	stamp := out.Attempt().At.Format("20060102_150405.000000")
	switch o := out.(type) {
	case *RegisteredOutcome:
		key = fmt.Sprintf("registered/%s/%s.jpg", o.Identity.ID, stamp)
	case *ObservedOutcome:
		key = fmt.Sprintf("observed/%s/%s.jpg", o.Identity.ID, stamp)
		observedID = &o.Identity.ID
	default:
		return
	}

	if err := r.Snapshots.PutObject(ctx, key, image, "image/jpeg"); err != nil {
		slog.Warn("store face snapshot", "key", key, "error", err)
		return
	}
	if observedID != nil {
		if err := r.observed.SetFaceImage(ctx, *observedID, key); err != nil && !errors.Is(err, models.ErrNotFound) {
			slog.Warn("link face snapshot", "observed_id", *observedID, "error", err)
		}
	}
}
