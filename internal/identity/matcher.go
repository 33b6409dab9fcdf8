// Package identity resolves face embeddings to registered or observed identities
// and owns the observed-identity lifecycle.
package identity

import (
	"context"
	"fmt"
	"math"

	"github.com/your-org/facegate/internal/models"
)

// Pool and Match are re-exported so callers of this package rarely need models.
type (
	Pool  = models.Pool
	Match = models.Match
)

const (
	PoolRegistered = models.PoolRegistered
	PoolObserved   = models.PoolObserved
)

// Similarity maps a cosine distance in [0, 2] to a display score in [0, 1].
// It is a presentation convention, not a probability.
func Similarity(distance float64) float64 {
	return 1 - distance/2
}

// Matcher finds the single closest identity in a pool with distance <= threshold.
// It returns nil, nil when nothing is within threshold or the pool is empty.
// Observed-pool queries never return registered (promoted) observed identities.
type Matcher interface {
	FindClosest(ctx context.Context, pool Pool, embedding []float32, threshold float64) (*Match, error)
}

// ValidateEmbedding checks length and that every component is finite.
func ValidateEmbedding(embedding []float32, dim int) error {
	if len(embedding) != dim {
		return fmt.Errorf("%w: got %d values, want %d", models.ErrShapeMismatch, len(embedding), dim)
	}
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is not finite", models.ErrValidation, i)
		}
	}
	return nil
}
