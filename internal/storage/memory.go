package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// MemoryStore is an in-process implementation of every identity port. It backs
// tests and the "memory" database driver for local development.
type MemoryStore struct {
	mu         sync.RWMutex
	dim        int
	registered map[uuid.UUID]*models.RegisteredIdentity
	observed   map[uuid.UUID]*models.ObservedIdentity
	decisions  []models.AccessDecision
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:        dim,
		registered: make(map[uuid.UUID]*models.RegisteredIdentity),
		observed:   make(map[uuid.UUID]*models.ObservedIdentity),
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() {}

// AddRegistered inserts a registered identity. Registration itself lives outside
// this service; this exists for development seeding and tests.
func (s *MemoryStore) AddRegistered(r models.RegisteredIdentity) *models.RegisteredIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.Embedding = slices.Clone(r.Embedding)
	r.AccessZones = slices.Clone(r.AccessZones)
	s.registered[r.ID] = &r
	out := r
	return &out
}

// PutObserved stores a row as-is, overwriting any row with the same id.
func (s *MemoryStore) PutObserved(o models.ObservedIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneObserved(&o)
	s.observed[o.ID] = c
}

// --- Matcher ---

func (s *MemoryStore) FindClosest(ctx context.Context, pool models.Pool, embedding []float32, threshold float64) (*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("find closest", err)
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: got %d values, want %d", models.ErrShapeMismatch, len(embedding), s.dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	switch pool {
	case models.PoolRegistered:
		return nearest(s.registeredCandidates(), embedding, threshold), nil
	case models.PoolObserved:
		return nearest(s.observedCandidates(), embedding, threshold), nil
	default:
		return nil, fmt.Errorf("%w: unknown pool %q", models.ErrValidation, pool)
	}
}

type candidate struct {
	id        uuid.UUID
	embedding []float32
}

func (s *MemoryStore) registeredCandidates() []candidate {
	out := make([]candidate, 0, len(s.registered))
	for _, r := range s.registered {
		out = append(out, candidate{id: r.ID, embedding: r.Embedding})
	}
	return out
}

func (s *MemoryStore) observedCandidates() []candidate {
	out := make([]candidate, 0, len(s.observed))
	for _, o := range s.observed {
		if o.IsRegistered {
			continue
		}
		out = append(out, candidate{id: o.ID, embedding: o.Embedding})
	}
	return out
}

// nearest returns the closest candidate with distance <= threshold. Ties break on id
// so results are deterministic.
func nearest(cands []candidate, embedding []float32, threshold float64) *models.Match {
	var best *models.Match
	for _, c := range cands {
		d := CosineDistance(embedding, c.embedding)
		if d > threshold {
			continue
		}
		if best == nil || d < best.Distance || (d == best.Distance && c.id.String() < best.ID.String()) {
			best = &models.Match{ID: c.id, Distance: d}
		}
	}
	return best
}

// --- Registered ---

func (s *MemoryStore) GetRegistered(ctx context.Context, id uuid.UUID) (*models.RegisteredIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registered[id]
	if !ok {
		return nil, fmt.Errorf("registered %s: %w", id, models.ErrNotFound)
	}
	out := *r
	out.AccessZones = slices.Clone(r.AccessZones)
	return &out, nil
}

// --- Observed ---

func (s *MemoryStore) FindOrCreate(ctx context.Context, n models.NewObserved, threshold float64) (*models.ObservedIdentity, float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, false, unavailable("find or create observed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m := nearest(s.observedCandidates(), n.Embedding, threshold); m != nil {
		o := s.observed[m.ID]
		touch(o, models.Touch{SeenAt: n.SeenAt, Zone: n.Zone})
		return cloneObserved(o), m.Distance, false, nil
	}

	o := &models.ObservedIdentity{
		ID:                   uuid.New(),
		Embedding:            slices.Clone(n.Embedding),
		FirstSeenAt:          n.SeenAt,
		LastSeenAt:           n.SeenAt,
		AccessCount:          1,
		Status:               models.ObservedStatusActiveTemporal,
		ExpiresAt:            n.ExpiresAt,
		PotentialMatchUserID: n.PotentialMatchUserID,
		LastAccessedZones:    []string{},
		CreatedAt:            n.SeenAt,
		UpdatedAt:            n.SeenAt,
	}
	if n.Zone != "" {
		o.LastAccessedZones = []string{n.Zone}
	}
	s.observed[o.ID] = o
	return cloneObserved(o), 0, true, nil
}

func (s *MemoryStore) Touch(ctx context.Context, id uuid.UUID, t models.Touch) (*models.ObservedIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("touch observed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.observed[id]
	if !ok || o.IsRegistered {
		return nil, fmt.Errorf("observed %s: %w", id, models.ErrNotFound)
	}
	touch(o, t)
	return cloneObserved(o), nil
}

// touch mirrors the single conditional UPDATE of the Postgres store.
func touch(o *models.ObservedIdentity, t models.Touch) {
	if o.HasAccess(t.SeenAt) {
		o.ConsecutiveDeniedAccesses = 0
	} else {
		o.ConsecutiveDeniedAccesses++
	}
	o.AccessCount++
	o.LastSeenAt = t.SeenAt
	o.UpdatedAt = t.SeenAt
	if t.Zone != "" && !slices.Contains(o.LastAccessedZones, t.Zone) {
		o.LastAccessedZones = append(o.LastAccessedZones, t.Zone)
	}
}

func (s *MemoryStore) GetObserved(ctx context.Context, id uuid.UUID) (*models.ObservedIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.observed[id]
	if !ok {
		return nil, fmt.Errorf("observed %s: %w", id, models.ErrNotFound)
	}
	return cloneObserved(o), nil
}

func (s *MemoryStore) SetFaceImage(ctx context.Context, id uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.observed[id]
	if !ok {
		return fmt.Errorf("observed %s: %w", id, models.ErrNotFound)
	}
	o.FaceImageKey = key
	return nil
}

func (s *MemoryStore) UpdateObserved(ctx context.Context, id uuid.UUID, mutate func(*models.ObservedIdentity) error) (*models.ObservedIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("update observed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.observed[id]
	if !ok {
		return nil, fmt.Errorf("observed %s: %w", id, models.ErrNotFound)
	}
	draft := cloneObserved(o)
	if err := mutate(draft); err != nil {
		return nil, err
	}
	o.Status = draft.Status
	o.ExpiresAt = draft.ExpiresAt
	o.IsRegistered = o.IsRegistered || draft.IsRegistered
	o.UpdatedAt = time.Now().UTC()
	return cloneObserved(o), nil
}

func (s *MemoryStore) ExpireElapsed(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("expire observed", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, o := range s.observed {
		if o.Status == models.ObservedStatusActiveTemporal && !o.IsRegistered && o.ExpiresAt.Before(now) {
			o.Status = models.ObservedStatusExpired
			o.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListObserved(ctx context.Context, q models.ObservedQuery) (*models.ObservedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := &models.ObservedPage{}
	term := strings.ToLower(q.SearchTerm)
	var rows []*models.ObservedIdentity
	for _, o := range s.observed {
		if o.IsRegistered {
			continue
		}
		countObserved(&page.Counts, o, q.HighRiskDenials)
		if !matchesFilter(o, q.Filter, q.HighRiskDenials) || !matchesSearch(o, term) {
			continue
		}
		rows = append(rows, o)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		less := compareObserved(rows[i], rows[j], q.SortField)
		if less == 0 {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		if q.SortDescending {
			return less > 0
		}
		return less < 0
	})

	page.FilteredTotal = len(rows)
	start, end := pageBounds(q.Page, q.PageSize, len(rows))
	for i := start; i < end; i++ {
		page.Items = append(page.Items, *cloneObserved(rows[i]))
	}
	return page, nil
}

// pageBounds returns the [start, end) window of page over n rows without
// overflowing on large page numbers.
func pageBounds(page, size, n int) (int, int) {
	if page < 1 || size < 1 || page-1 > n/size {
		return n, n
	}
	start := min((page-1)*size, n)
	return start, min(start+size, n)
}

func countObserved(c *models.ObservedCounts, o *models.ObservedIdentity, highRiskDenials int) {
	c.AbsoluteTotal++
	if matchesFilter(o, models.FilterPendingReview, highRiskDenials) {
		c.PendingReview++
	}
	if matchesFilter(o, models.FilterHighRisk, highRiskDenials) {
		c.HighRisk++
	}
	if matchesFilter(o, models.FilterActiveTemporal, highRiskDenials) {
		c.ActiveTemporal++
	}
	if matchesFilter(o, models.FilterExpired, highRiskDenials) {
		c.Expired++
	}
}

func matchesFilter(o *models.ObservedIdentity, f models.ObservedFilter, highRiskDenials int) bool {
	switch f {
	case models.FilterPendingReview:
		return o.PotentialMatchUserID != nil
	case models.FilterHighRisk:
		return o.AlertTriggered || o.ConsecutiveDeniedAccesses >= highRiskDenials
	case models.FilterActiveTemporal:
		return o.Status == models.ObservedStatusActiveTemporal
	case models.FilterExpired:
		return o.Status == models.ObservedStatusExpired
	default:
		return true
	}
}

func matchesSearch(o *models.ObservedIdentity, term string) bool {
	if term == "" {
		return true
	}
	if strings.Contains(o.ID.String(), term) || strings.Contains(string(o.Status), term) {
		return true
	}
	for _, z := range o.LastAccessedZones {
		if strings.Contains(strings.ToLower(z), term) {
			return true
		}
	}
	return false
}

func compareObserved(a, b *models.ObservedIdentity, field string) int {
	switch field {
	case "first_seen_at":
		return a.FirstSeenAt.Compare(b.FirstSeenAt)
	case "access_count":
		return a.AccessCount - b.AccessCount
	case "expires_at":
		return a.ExpiresAt.Compare(b.ExpiresAt)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "consecutive_denied_accesses":
		return a.ConsecutiveDeniedAccesses - b.ConsecutiveDeniedAccesses
	default:
		return a.LastSeenAt.Compare(b.LastSeenAt)
	}
}

// --- Decisions ---

func (s *MemoryStore) InsertDecision(ctx context.Context, d *models.AccessDecision) error {
	if err := ctx.Err(); err != nil {
		return unavailable("insert decision", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.decisions = append(s.decisions, *d)
	return nil
}

func (s *MemoryStore) ListDecisions(ctx context.Context, q models.DecisionQuery) ([]models.AccessDecision, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.AccessDecision
	for i := len(s.decisions) - 1; i >= 0; i-- {
		d := s.decisions[i]
		if q.Zone != "" && d.Zone != q.Zone {
			continue
		}
		if q.Decision != "" && d.Decision != q.Decision {
			continue
		}
		if q.UserType != "" && d.UserType != q.UserType {
			continue
		}
		if q.From != nil && d.Timestamp.Before(*q.From) {
			continue
		}
		if q.To != nil && d.Timestamp.After(*q.To) {
			continue
		}
		matched = append(matched, d)
	}

	limit, offset := decisionWindow(q)
	total := len(matched)
	if offset >= total {
		return []models.AccessDecision{}, total, nil
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func decisionWindow(q models.DecisionQuery) (limit, offset int) {
	limit = q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset = max(q.Offset, 0)
	return limit, offset
}

func cloneObserved(o *models.ObservedIdentity) *models.ObservedIdentity {
	c := *o
	c.Embedding = slices.Clone(o.Embedding)
	c.LastAccessedZones = slices.Clone(o.LastAccessedZones)
	if o.PotentialMatchUserID != nil {
		id := *o.PotentialMatchUserID
		c.PotentialMatchUserID = &id
	}
	return &c
}
