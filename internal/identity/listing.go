package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/facegate/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// maxPage keeps (page-1)*pageSize far from integer overflow.
const maxPage = 1_000_000

// sortColumns maps dashboard sort fields to store columns.
var sortColumns = map[string]string{
	"firstSeenAt":               "first_seen_at",
	"lastSeenAt":                "last_seen_at",
	"accessCount":               "access_count",
	"expiresAt":                 "expires_at",
	"status":                    "status",
	"consecutiveDeniedAccesses": "consecutive_denied_accesses",
}

// ListParams are the raw dashboard listing parameters.
type ListParams struct {
	SearchTerm    string
	Page          int
	PageSize      int
	SortField     string
	SortDirection string
	FilterType    string
}

// Directory serves observed-identity listings. It never sweeps; expiry is owned by
// the Sweeper, so an elapsed-but-unswept row is listed with its stored status.
type Directory struct {
	store           ObservedLister
	highRiskDenials int
	clock           func() time.Time
}

func NewDirectory(store ObservedLister, highRiskDenials int) *Directory {
	return &Directory{
		store:           store,
		highRiskDenials: highRiskDenials,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (d *Directory) List(ctx context.Context, p ListParams) (*models.ObservedPage, models.ObservedQuery, error) {
	q, err := d.query(p)
	if err != nil {
		return nil, q, err
	}
	page, err := d.store.ListObserved(ctx, q)
	if err != nil {
		return nil, q, fmt.Errorf("list observed: %w", err)
	}
	return page, q, nil
}

func (d *Directory) query(p ListParams) (models.ObservedQuery, error) {
	q := models.ObservedQuery{
		SearchTerm:      strings.TrimSpace(p.SearchTerm),
		Page:            p.Page,
		PageSize:        p.PageSize,
		SortField:       "last_seen_at",
		SortDescending:  true,
		HighRiskDenials: d.highRiskDenials,
		Now:             d.clock(),
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Page > maxPage {
		return q, fmt.Errorf("%w: page must not exceed %d", models.ErrValidation, maxPage)
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}

	if p.SortField != "" {
		col, ok := sortColumns[p.SortField]
		if !ok {
			return q, fmt.Errorf("%w: unsupported sortField %q", models.ErrValidation, p.SortField)
		}
		q.SortField = col
	}
	switch strings.ToLower(p.SortDirection) {
	case "", "desc":
		q.SortDescending = true
	case "asc":
		q.SortDescending = false
	default:
		return q, fmt.Errorf("%w: sortDirection must be asc or desc", models.ErrValidation)
	}

	switch f := models.ObservedFilter(p.FilterType); f {
	case models.FilterNone, models.FilterPendingReview, models.FilterHighRisk,
		models.FilterActiveTemporal, models.FilterExpired:
		q.Filter = f
	default:
		return q, fmt.Errorf("%w: unsupported filterType %q", models.ErrValidation, p.FilterType)
	}
	return q, nil
}
