package models

import (
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionGranted Decision = "granted"
	DecisionDenied  Decision = "denied"
	DecisionError   Decision = "error"
	DecisionUnknown Decision = "unknown"
)

type MatchStatus string

const (
	MatchRegistered            MatchStatus = "registered_user_matched"
	MatchRegisteredDenied      MatchStatus = "registered_user_access_denied"
	MatchObservedUpdated       MatchStatus = "observed_user_updated"
	MatchObservedDeniedExpired MatchStatus = "observed_user_access_denied_expired"
	MatchObservedDeniedBlocked MatchStatus = "observed_user_access_denied_blocked"
	MatchNewObserved           MatchStatus = "new_observed_user_registered"
	MatchNone                  MatchStatus = "no_match"
	MatchUnknown               MatchStatus = "unknown"
)

type UserType string

const (
	UserTypeRegistered UserType = "registered"
	UserTypeObserved   UserType = "observed"
	UserTypeUnknown    UserType = "unknown"
)

// AccessDecision is one immutable audit row per resolution attempt.
// At most one of RegisteredUserID and ObservedUserID is set.
type AccessDecision struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	Timestamp        time.Time   `json:"timestamp" db:"timestamp"`
	RegisteredUserID *uuid.UUID  `json:"registered_user_id,omitempty" db:"registered_user_id"`
	ObservedUserID   *uuid.UUID  `json:"observed_user_id,omitempty" db:"observed_user_id"`
	Zone             string      `json:"zone" db:"zone"`
	Decision         Decision    `json:"decision" db:"decision"`
	MatchStatus      MatchStatus `json:"match_status" db:"match_status"`
	Reason           string      `json:"reason" db:"reason"`
	ConfidenceScore  float64     `json:"confidence_score" db:"confidence_score"`
	UserType         UserType    `json:"user_type" db:"user_type"`
}

// DecisionQuery filters the audit log. Zero values mean "any".
type DecisionQuery struct {
	Zone     string
	Decision Decision
	UserType UserType
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
