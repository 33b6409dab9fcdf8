package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// PromotionRequest is published on identity.promote after an operator registers an
// observed identity. The enrolment workflow creates the registered identity from it.
type PromotionRequest struct {
	ObservedUserID       uuid.UUID  `json:"observedUserId"`
	Embedding            []float32  `json:"embedding"`
	FirstSeenAt          time.Time  `json:"firstSeenAt"`
	AccessCount          int        `json:"accessCount"`
	LastAccessedZones    []string   `json:"lastAccessedZones"`
	PotentialMatchUserID *uuid.UUID `json:"potentialMatchUserId,omitempty"`
	FaceImageKey         string     `json:"faceImageKey,omitempty"`
}

func NewPromotionRequest(obs models.ObservedIdentity) PromotionRequest {
	zones := obs.LastAccessedZones
	if zones == nil {
		zones = []string{}
	}
	return PromotionRequest{
		ObservedUserID:       obs.ID,
		Embedding:            obs.Embedding,
		FirstSeenAt:          obs.FirstSeenAt,
		AccessCount:          obs.AccessCount,
		LastAccessedZones:    zones,
		PotentialMatchUserID: obs.PotentialMatchUserID,
		FaceImageKey:         obs.FaceImageKey,
	}
}
