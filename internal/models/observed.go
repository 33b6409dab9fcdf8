package models

import (
	"time"

	"github.com/google/uuid"
)

type ObservedStatus string

const (
	ObservedStatusNew            ObservedStatus = "new_observed"
	ObservedStatusActiveTemporal ObservedStatus = "active_temporal"
	ObservedStatusExpired        ObservedStatus = "expired"
	ObservedStatusBlocked        ObservedStatus = "blocked"

	// ObservedStatusActive is set when the identity is promoted to a registered one.
	ObservedStatusActive ObservedStatus = "active"
)

// ObservedIdentity is a subject seen by a capture agent but not enrolled by an administrator.
// Rows are never deleted; IsRegistered hides them from matching and listings.
type ObservedIdentity struct {
	ID                        uuid.UUID      `json:"id" db:"id"`
	Embedding                 []float32      `json:"-" db:"embedding"`
	FirstSeenAt               time.Time      `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt                time.Time      `json:"last_seen_at" db:"last_seen_at"`
	AccessCount               int            `json:"access_count" db:"access_count"`
	Status                    ObservedStatus `json:"status" db:"status"`
	ExpiresAt                 time.Time      `json:"expires_at" db:"expires_at"`
	AlertTriggered            bool           `json:"alert_triggered" db:"alert_triggered"`
	ConsecutiveDeniedAccesses int            `json:"consecutive_denied_accesses" db:"consecutive_denied_accesses"`
	PotentialMatchUserID      *uuid.UUID     `json:"potential_match_user_id,omitempty" db:"potential_match_user_id"`
	LastAccessedZones         []string       `json:"last_accessed_zones" db:"last_accessed_zones"`
	IsRegistered              bool           `json:"is_registered" db:"is_registered"`
	FaceImageKey              string         `json:"face_image_key,omitempty" db:"face_image_key"`
	CreatedAt                 time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at" db:"updated_at"`
}

// HasAccess reports whether the temporary access window is open at now.
func (o *ObservedIdentity) HasAccess(now time.Time) bool {
	return o.Status == ObservedStatusActiveTemporal && o.ExpiresAt.After(now)
}

// NewObserved describes a first sighting to persist.
type NewObserved struct {
	Embedding            []float32
	Zone                 string
	SeenAt               time.Time
	ExpiresAt            time.Time
	PotentialMatchUserID *uuid.UUID
}

// Touch describes a re-match of an existing observed identity.
type Touch struct {
	SeenAt time.Time
	Zone   string
}

type ObservedFilter string

const (
	FilterNone           ObservedFilter = ""
	FilterPendingReview  ObservedFilter = "pendingReview"
	FilterHighRisk       ObservedFilter = "highRisk"
	FilterActiveTemporal ObservedFilter = "activeTemporal"
	FilterExpired        ObservedFilter = "expired"
)

// ObservedQuery is a page request over non-registered observed identities.
type ObservedQuery struct {
	SearchTerm      string
	Page            int
	PageSize        int
	SortField       string
	SortDescending  bool
	Filter          ObservedFilter
	HighRiskDenials int
	Now             time.Time
}

// ObservedCounts are aggregates over the whole unfiltered non-registered pool.
type ObservedCounts struct {
	AbsoluteTotal  int `json:"absoluteTotalCount"`
	PendingReview  int `json:"pendingReviewCount"`
	HighRisk       int `json:"highRiskCount"`
	ActiveTemporal int `json:"activeTemporalCount"`
	Expired        int `json:"expiredCount"`
}

type ObservedPage struct {
	Items         []ObservedIdentity
	FilteredTotal int
	Counts        ObservedCounts
}
