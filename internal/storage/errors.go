package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/your-org/facegate/internal/models"
)

// unavailable tags infrastructure failures so the resolver fails closed on them.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrDatastoreUnavailable, err)
}

// notFoundOr maps pgx.ErrNoRows to models.ErrNotFound and everything else to
// ErrDatastoreUnavailable.
func notFoundOr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return unavailable(op, err)
}
