package identity

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/storage"
)

type captureLister struct {
	got models.ObservedQuery
}

func (l *captureLister) ListObserved(_ context.Context, q models.ObservedQuery) (*models.ObservedPage, error) {
	l.got = q
	return &models.ObservedPage{}, nil
}

func TestDirectory_Defaults(t *testing.T) {
	l := &captureLister{}
	d := NewDirectory(l, 3)
	d.clock = func() time.Time { return t0 }

	_, q, err := d.List(context.Background(), ListParams{SearchTerm: "  lobby "})
	require.NoError(t, err)
	assert.Equal(t, models.ObservedQuery{
		SearchTerm:      "lobby",
		Page:            1,
		PageSize:        20,
		SortField:       "last_seen_at",
		SortDescending:  true,
		HighRiskDenials: 3,
		Now:             t0,
	}, q)
	assert.Equal(t, q, l.got)
}

func TestDirectory_MapsParameters(t *testing.T) {
	l := &captureLister{}
	_, q, err := NewDirectory(l, 3).List(context.Background(), ListParams{
		Page:          3,
		PageSize:      500,
		SortField:     "consecutiveDeniedAccesses",
		SortDirection: "ASC",
		FilterType:    "highRisk",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Page)
	assert.Equal(t, 100, q.PageSize)
	assert.Equal(t, "consecutive_denied_accesses", q.SortField)
	assert.False(t, q.SortDescending)
	assert.Equal(t, models.FilterHighRisk, q.Filter)
}

func TestDirectory_RejectsInvalidParameters(t *testing.T) {
	for name, p := range map[string]ListParams{
		"sort field":     {SortField: "embedding"},
		"sort direction": {SortDirection: "sideways"},
		"filter":         {FilterType: "everything"},
		"page overflow":  {Page: math.MaxInt64/20 + 2, PageSize: 20},
	} {
		t.Run(name, func(t *testing.T) {
			l := &captureLister{}
			_, _, err := NewDirectory(l, 3).List(context.Background(), p)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestDirectory_HugePageAgainstMemoryStore(t *testing.T) {
	store := storage.NewMemoryStore(3)
	store.PutObserved(models.ObservedIdentity{
		ID:        uuid.New(),
		Embedding: []float32{1, 0, 0},
		Status:    models.ObservedStatusActiveTemporal,
		ExpiresAt: t0.Add(time.Hour),
	})
	d := NewDirectory(store, 3)

	_, _, err := d.List(context.Background(), ListParams{Page: math.MaxInt64/20 + 2, PageSize: 20})
	assert.ErrorIs(t, err, models.ErrValidation)

	page, _, err := d.List(context.Background(), ListParams{Page: maxPage, PageSize: 20})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.FilteredTotal)
}
