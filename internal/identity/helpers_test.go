package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const testTTL = 7 * 24 * time.Hour

func testResolverConfig() ResolverConfig {
	return ResolverConfig{
		EmbeddingDim:            3,
		RegisteredThreshold:     0.15,
		ObservedThreshold:       0.08,
		PotentialMatchThreshold: 0.35,
		TTL:                     testTTL,
		QueryTimeout:            time.Second,
		EligibleStatuses:        []string{"active"},
		AutoEnroll:              true,
	}
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type resolverFixture struct {
	store    *storage.MemoryStore
	resolver *Resolver
	clock    *fixedClock
}

func newResolverFixture(cfg ResolverConfig) *resolverFixture {
	store := storage.NewMemoryStore(cfg.EmbeddingDim)
	clock := &fixedClock{now: t0}
	r := NewResolver(cfg, store, store, store, NewDecisionLogger(store))
	r.clock = clock.Now
	return &resolverFixture{store: store, resolver: r, clock: clock}
}

func (f *resolverFixture) observedCount() int {
	page, err := f.store.ListObserved(context.Background(), models.ObservedQuery{Page: 1, PageSize: 1000})
	if err != nil {
		panic(err)
	}
	return page.Counts.AbsoluteTotal
}

func (f *resolverFixture) decisions() []models.AccessDecision {
	ds, _, err := f.store.ListDecisions(context.Background(), models.DecisionQuery{Limit: 500})
	if err != nil {
		panic(err)
	}
	return ds
}

var errBackend = errors.New("connection refused")

type failingMatcher struct{ calls int }

func (m *failingMatcher) FindClosest(context.Context, Pool, []float32, float64) (*Match, error) {
	m.calls++
	return nil, errBackend
}

type failingDecisionStore struct{}

func (failingDecisionStore) InsertDecision(context.Context, *models.AccessDecision) error {
	return errBackend
}

type recordingBlobs struct {
	mu   sync.Mutex
	keys []string
}

func (b *recordingBlobs) PutObject(_ context.Context, key string, _ []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	decisions  []models.AccessDecision
	grants     []models.AccessDecision
	promotions []uuid.UUID
	promoted   []models.ObservedIdentity
	err        error
}

func (p *recordingPublisher) PublishDecision(_ context.Context, d models.AccessDecision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions = append(p.decisions, d)
	return p.err
}

func (p *recordingPublisher) PublishGrant(_ context.Context, d models.AccessDecision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants = append(p.grants, d)
	return p.err
}

func (p *recordingPublisher) PublishPromotion(_ context.Context, o models.ObservedIdentity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.promotions = append(p.promotions, o.ID)
	p.promoted = append(p.promoted, o)
	return p.err
}
