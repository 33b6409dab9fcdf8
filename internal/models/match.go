package models

import "github.com/google/uuid"

// Pool selects which identity population a match query runs against.
type Pool string

const (
	PoolRegistered Pool = "registered"
	PoolObserved   Pool = "observed"
)

// Match is the nearest identity within a distance threshold.
type Match struct {
	ID       uuid.UUID
	Distance float64
}
