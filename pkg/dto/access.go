package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// ResolveRequest is sent by a capture agent for every detected face.
type ResolveRequest struct {
	FaceEmbedding []float32 `json:"faceEmbedding" binding:"required"`
	Zone          string    `json:"zone"`
	// Snapshot is an optional base64-encoded JPEG of the face crop.
	Snapshot string `json:"snapshot,omitempty"`
}

type MatchedUser struct {
	ID          uuid.UUID `json:"id"`
	FullName    string    `json:"full_name"`
	RoleName    string    `json:"role_name"`
	StatusName  string    `json:"status_name"`
	AccessZones []string  `json:"access_zones"`
	Distance    float64   `json:"distance"`
}

type ObservedUser struct {
	ID         uuid.UUID `json:"id"`
	StatusName string    `json:"status_name"`
	Distance   float64   `json:"distance"`
	ExpiresAt  string    `json:"expires_at"`
}

// ResolveResponse carries exactly one of MatchedUser or ObservedUser, or neither for
// a no-match denial.
type ResolveResponse struct {
	MatchedUser     *MatchedUser  `json:"matchedUser,omitempty"`
	ObservedUser    *ObservedUser `json:"observedUser,omitempty"`
	Decision        string        `json:"decision"`
	MatchStatus     string        `json:"matchStatus"`
	Reason          string        `json:"reason"`
	ConfidenceScore float64       `json:"confidenceScore"`
}

type DecisionResponse struct {
	ID               uuid.UUID  `json:"id"`
	Timestamp        string     `json:"timestamp"`
	RegisteredUserID *uuid.UUID `json:"registered_user_id,omitempty"`
	ObservedUserID   *uuid.UUID `json:"observed_user_id,omitempty"`
	Zone             string     `json:"zone"`
	Decision         string     `json:"decision"`
	MatchStatus      string     `json:"match_status"`
	Reason           string     `json:"reason"`
	ConfidenceScore  float64    `json:"confidence_score"`
	UserType         string     `json:"user_type"`
}

// NewDecisionResponse converts an audit row to its wire form.
func NewDecisionResponse(d models.AccessDecision) DecisionResponse {
	return DecisionResponse{
		ID:               d.ID,
		Timestamp:        d.Timestamp.Format(time.RFC3339Nano),
		RegisteredUserID: d.RegisteredUserID,
		ObservedUserID:   d.ObservedUserID,
		Zone:             d.Zone,
		Decision:         string(d.Decision),
		MatchStatus:      string(d.MatchStatus),
		Reason:           d.Reason,
		ConfidenceScore:  d.ConfidenceScore,
		UserType:         string(d.UserType),
	}
}

type DecisionListResponse struct {
	Decisions []DecisionResponse `json:"decisions"`
	Total     int                `json:"total"`
}

type DecisionQuery struct {
	Zone     string `form:"zone"`
	Decision string `form:"decision"`
	UserType string `form:"user_type"`
	From     string `form:"from"`
	To       string `form:"to"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// WSDecision is a WebSocket message for real-time decision delivery.
type WSDecision struct {
	Type string           `json:"type"` // access_decision
	Data DecisionResponse `json:"data"`
}
