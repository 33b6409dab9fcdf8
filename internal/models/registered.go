package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// RegisteredIdentity is an administrator-enrolled person. Read-only to the resolver.
type RegisteredIdentity struct {
	ID          uuid.UUID `json:"id" db:"id"`
	FullName    string    `json:"full_name" db:"full_name"`
	RoleName    string    `json:"role_name" db:"role_name"`
	StatusName  string    `json:"status_name" db:"status_name"`
	AccessZones []string  `json:"access_zones" db:"access_zones"`
	Embedding   []float32 `json:"-" db:"embedding"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// CanEnter reports whether the identity's zones include zone. An empty zone means
// the agent did not request a specific zone.
func (r *RegisteredIdentity) CanEnter(zone string) bool {
	return zone == "" || slices.Contains(r.AccessZones, zone)
}
