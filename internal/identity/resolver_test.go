package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/models"
)

func TestResolve_RegisteredGranted(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	reg := f.store.AddRegistered(models.RegisteredIdentity{
		FullName:    "Grace Hopper",
		StatusName:  "active",
		AccessZones: []string{"lobby"},
		Embedding:   []float32{1, 0, 0},
	})

	out := f.resolver.Resolve(context.Background(), Request{Embedding: []float32{1, 0, 0}, Zone: "lobby"})

	ro, ok := out.(*RegisteredOutcome)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, reg.ID, ro.Identity.ID)
	assert.Equal(t, models.DecisionGranted, out.Decision())
	assert.Equal(t, models.MatchRegistered, out.MatchStatus())
	assert.InDelta(t, 1.0, ro.Similarity(), 1e-9)
	assert.Zero(t, f.observedCount())

	ds := f.decisions()
	require.Len(t, ds, 1)
	assert.Equal(t, reg.ID, *ds[0].RegisteredUserID)
	assert.Nil(t, ds[0].ObservedUserID)
	assert.Equal(t, models.UserTypeRegistered, ds[0].UserType)
}

func TestResolve_RegisteredDenied(t *testing.T) {
	tests := []struct {
		name   string
		status string
		zones  []string
		zone   string
	}{
		{"zone not authorized", "active", []string{"lobby"}, "server-room"},
		{"status not eligible", "suspended", []string{"lobby"}, "lobby"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResolverFixture(testResolverConfig())
			f.store.AddRegistered(models.RegisteredIdentity{
				FullName:    "Alan",
				StatusName:  tt.status,
				AccessZones: tt.zones,
				Embedding:   []float32{0, 1, 0},
			})

			out := f.resolver.Resolve(context.Background(), Request{Embedding: []float32{0, 1, 0}, Zone: tt.zone})

			require.IsType(t, &RegisteredOutcome{}, out)
			assert.Equal(t, models.DecisionDenied, out.Decision())
			assert.Equal(t, models.MatchRegisteredDenied, out.MatchStatus())
			assert.Zero(t, f.observedCount(), "registered hit never touches the observed pool")
		})
	}
}

func TestResolve_EmptyZoneSkipsZoneCheck(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	f.store.AddRegistered(models.RegisteredIdentity{StatusName: "active", Embedding: []float32{0, 0, 1}})

	out := f.resolver.Resolve(context.Background(), Request{Embedding: []float32{0, 0, 1}})
	assert.Equal(t, models.DecisionGranted, out.Decision())
}

func TestResolve_ThresholdIsInclusive(t *testing.T) {
	cfg := testResolverConfig()
	cfg.RegisteredThreshold = 1.0
	f := newResolverFixture(cfg)
	reg := f.store.AddRegistered(models.RegisteredIdentity{StatusName: "active", Embedding: []float32{0, 1, 0}})

	// Orthogonal: distance exactly 1.0.
	out := f.resolver.Resolve(context.Background(), Request{Embedding: []float32{1, 0, 0}})
	ro, ok := out.(*RegisteredOutcome)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, reg.ID, ro.Identity.ID)
	assert.InDelta(t, 0.5, ro.Similarity(), 1e-9)

	// Just past the boundary falls through to the observed path.
	out = f.resolver.Resolve(context.Background(), Request{Embedding: []float32{1, -0.001, 0}})
	assert.Equal(t, models.MatchNewObserved, out.MatchStatus())
}

func TestResolve_RepeatedSubmissionsTouchOneIdentity(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	ctx := context.Background()
	emb := []float32{0.2, 0.9, 0.4}

	first := f.resolver.Resolve(ctx, Request{Embedding: emb, Zone: "lobby"})
	created, ok := first.(*ObservedOutcome)
	require.True(t, ok, "got %T", first)
	assert.True(t, created.Created)
	assert.Equal(t, models.MatchNewObserved, first.MatchStatus())
	assert.Equal(t, models.DecisionGranted, first.Decision())
	assert.Equal(t, 1, created.Identity.AccessCount)
	assert.Equal(t, models.ObservedStatusActiveTemporal, created.Identity.Status)
	assert.Equal(t, t0.Add(testTTL), created.Identity.ExpiresAt)
	assert.InDelta(t, 1.0, created.Similarity(), 1e-9)

	for i := 2; i <= 3; i++ {
		f.clock.Advance(time.Minute)
		out := f.resolver.Resolve(ctx, Request{Embedding: emb, Zone: "garage"})
		oo, ok := out.(*ObservedOutcome)
		require.True(t, ok, "got %T", out)
		assert.Equal(t, created.Identity.ID, oo.Identity.ID)
		assert.Equal(t, models.MatchObservedUpdated, out.MatchStatus())
		assert.Equal(t, i, oo.Identity.AccessCount)
		assert.Zero(t, oo.Identity.ConsecutiveDeniedAccesses)
	}

	assert.Equal(t, 1, f.observedCount())
	o, err := f.store.GetObserved(ctx, created.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lobby", "garage"}, o.LastAccessedZones)
	assert.Equal(t, t0, o.FirstSeenAt)
	assert.Equal(t, t0.Add(2*time.Minute), o.LastSeenAt)
	assert.Equal(t, 3, o.AccessCount)
	assert.Len(t, f.decisions(), 3)
}

func TestResolve_ExpiredIdentityDeniedNotRecreated(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	ctx := context.Background()
	emb := []float32{0.5, 0.5, 0.7}

	first := f.resolver.Resolve(ctx, Request{Embedding: emb}).(*ObservedOutcome)

	// Window elapsed but not yet swept.
	f.clock.Advance(testTTL + time.Second)
	out := f.resolver.Resolve(ctx, Request{Embedding: emb})
	assert.Equal(t, models.MatchObservedDeniedExpired, out.MatchStatus())
	assert.Equal(t, models.DecisionDenied, out.Decision())
	assert.Equal(t, 1, out.(*ObservedOutcome).Identity.ConsecutiveDeniedAccesses)

	sweeper := NewSweeper(f.store, nil, time.Minute, time.Minute)
	sweeper.clock = f.clock.Now
	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Expired)

	out = f.resolver.Resolve(ctx, Request{Embedding: emb})
	oo := out.(*ObservedOutcome)
	assert.Equal(t, first.Identity.ID, oo.Identity.ID)
	assert.Equal(t, models.MatchObservedDeniedExpired, out.MatchStatus())
	assert.Equal(t, models.ObservedStatusExpired, oo.Identity.Status)
	assert.Equal(t, 2, oo.Identity.ConsecutiveDeniedAccesses)
	assert.Equal(t, 1, f.observedCount())
}

func TestResolve_BlockedIdentityDenied(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	ctx := context.Background()
	emb := []float32{0.1, 0.1, 1}

	first := f.resolver.Resolve(ctx, Request{Embedding: emb}).(*ObservedOutcome)
	_, err := NewActionHandler(f.store, testTTL).Apply(ctx, first.Identity.ID, ActionBlock)
	require.NoError(t, err)

	out := f.resolver.Resolve(ctx, Request{Embedding: emb})
	assert.Equal(t, models.MatchObservedDeniedBlocked, out.MatchStatus())
	assert.Equal(t, models.DecisionDenied, out.Decision())
}

func TestResolve_PromotedObservedIsNotMatched(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	ctx := context.Background()
	emb := []float32{1, 1, 0}

	first := f.resolver.Resolve(ctx, Request{Embedding: emb}).(*ObservedOutcome)
	_, err := NewActionHandler(f.store, testTTL).Apply(ctx, first.Identity.ID, ActionRegister)
	require.NoError(t, err)

	out := f.resolver.Resolve(ctx, Request{Embedding: emb})
	oo, ok := out.(*ObservedOutcome)
	require.True(t, ok, "got %T", out)
	assert.True(t, oo.Created)
	assert.NotEqual(t, first.Identity.ID, oo.Identity.ID)
}

func TestResolve_PotentialMatchRecorded(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	// Distance ~0.219: outside the registered threshold, inside the potential one.
	reg := f.store.AddRegistered(models.RegisteredIdentity{StatusName: "active", Embedding: []float32{1, 0.8, 0}})

	out := f.resolver.Resolve(context.Background(), Request{Embedding: []float32{1, 0, 0}})
	oo, ok := out.(*ObservedOutcome)
	require.True(t, ok, "got %T", out)
	require.NotNil(t, oo.Identity.PotentialMatchUserID)
	assert.Equal(t, reg.ID, *oo.Identity.PotentialMatchUserID)
}

func TestResolve_AutoEnrollDisabled(t *testing.T) {
	cfg := testResolverConfig()
	cfg.AutoEnroll = false
	f := newResolverFixture(cfg)

	out := f.resolver.Resolve(context.Background(), Request{Embedding: []float32{1, 2, 3}})

	require.IsType(t, &NoMatchOutcome{}, out)
	assert.Equal(t, models.DecisionDenied, out.Decision())
	assert.Equal(t, models.MatchNone, out.MatchStatus())
	assert.Zero(t, f.observedCount())
	require.Len(t, f.decisions(), 1)
	assert.Equal(t, models.UserTypeUnknown, f.decisions()[0].UserType)
}

func TestResolve_DatastoreErrorFailsClosed(t *testing.T) {
	cfg := testResolverConfig()
	store := newResolverFixture(cfg).store
	matcher := &failingMatcher{}
	r := NewResolver(cfg, matcher, store, store, NewDecisionLogger(store))

	out := r.Resolve(context.Background(), Request{Embedding: []float32{1, 0, 0}, Zone: "lobby"})

	eo, ok := out.(*ErrorOutcome)
	require.True(t, ok, "got %T", out)
	assert.ErrorIs(t, eo.Err, errBackend)
	assert.Equal(t, models.DecisionError, out.Decision())
	assert.Equal(t, models.MatchUnknown, out.MatchStatus())
	assert.Equal(t, 1, matcher.calls, "no fall-through to later stages")

	page, err := store.ListObserved(context.Background(), models.ObservedQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Counts.AbsoluteTotal)

	ds, _, err := store.ListDecisions(context.Background(), models.DecisionQuery{})
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, models.DecisionError, ds[0].Decision)
	assert.Equal(t, models.MatchUnknown, ds[0].MatchStatus)
}

func TestResolve_ShapeMismatch(t *testing.T) {
	cfg := testResolverConfig()
	store := newResolverFixture(cfg).store
	matcher := &failingMatcher{}
	r := NewResolver(cfg, matcher, store, store, NewDecisionLogger(store))

	out := r.Resolve(context.Background(), Request{Embedding: []float32{1, 0}})

	eo, ok := out.(*ErrorOutcome)
	require.True(t, ok, "got %T", out)
	assert.ErrorIs(t, eo.Err, models.ErrShapeMismatch)
	assert.Equal(t, "shape_mismatch", ErrorKind(eo.Err))
	assert.Zero(t, matcher.calls)
}

func TestResolve_DecisionLogFailureKeepsOutcome(t *testing.T) {
	cfg := testResolverConfig()
	f := newResolverFixture(cfg)
	r := NewResolver(cfg, f.store, f.store, f.store, NewDecisionLogger(failingDecisionStore{}))

	out := r.Resolve(context.Background(), Request{Embedding: []float32{3, 2, 1}})
	assert.Equal(t, models.MatchNewObserved, out.MatchStatus())
	assert.Equal(t, models.DecisionGranted, out.Decision())
}

func TestResolve_ConcurrentFirstSightingsCreateOneIdentity(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	emb := []float32{0.7, 0.1, 0.7}
	const workers = 16

	outs := make([]Outcome, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = f.resolver.Resolve(context.Background(), Request{Embedding: emb, Zone: "lobby"})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.observedCount())
	var created int
	for _, out := range outs {
		oo, ok := out.(*ObservedOutcome)
		require.True(t, ok, "got %T", out)
		assert.Equal(t, models.DecisionGranted, out.Decision())
		if oo.Created {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestResolve_SnapshotStoredAndLinked(t *testing.T) {
	f := newResolverFixture(testResolverConfig())
	blobs := &recordingBlobs{}
	f.resolver.Snapshots = blobs

	out := f.resolver.Resolve(context.Background(), Request{
		Embedding: []float32{0, 0.3, 1},
		Snapshot:  []byte{0xff, 0xd8, 0xff},
	})
	oo := out.(*ObservedOutcome)

	require.Len(t, blobs.keys, 1)
	assert.Contains(t, blobs.keys[0], "observed/"+oo.Identity.ID.String()+"/")

	o, err := f.store.GetObserved(context.Background(), oo.Identity.ID)
	require.NoError(t, err)
	assert.Equal(t, blobs.keys[0], o.FaceImageKey)
}
