package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

type ObservedQuery struct {
	SearchTerm    string `form:"searchTerm"`
	Page          int    `form:"page"`
	PageSize      int    `form:"pageSize"`
	SortField     string `form:"sortField"`
	SortDirection string `form:"sortDirection"`
	FilterType    string `form:"filterType"`
}

// ObservedUserResponse is the dashboard projection of an observed identity.
type ObservedUserResponse struct {
	ID                        uuid.UUID  `json:"id"`
	Status                    string     `json:"status"`
	FirstSeenAt               string     `json:"firstSeenAt"`
	LastSeenAt                string     `json:"lastSeenAt"`
	AccessCount               int        `json:"accessCount"`
	ExpiresAt                 string     `json:"expiresAt"`
	AlertTriggered            bool       `json:"alertTriggered"`
	ConsecutiveDeniedAccesses int        `json:"consecutiveDeniedAccesses"`
	PotentialMatchUserID      *uuid.UUID `json:"potentialMatchUserId,omitempty"`
	LastAccessedZones         []string   `json:"lastAccessedZones"`
	HasSnapshot               bool       `json:"hasSnapshot"`
}

type ObservedListResponse struct {
	Items      []ObservedUserResponse `json:"items"`
	TotalCount int                    `json:"totalCount"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pageSize"`
	models.ObservedCounts
}

type ObservedActionRequest struct {
	ObservedUserID uuid.UUID `json:"observedUserId" binding:"required"`
	ActionType     string    `json:"actionType" binding:"required"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type SweepResponse struct {
	Expired int64 `json:"expired"`
	Skipped bool  `json:"skipped"`
}
