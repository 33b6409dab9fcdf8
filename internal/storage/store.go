package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
)

// Store is the full persistence surface shared by every entrypoint.
type Store interface {
	FindClosest(ctx context.Context, pool models.Pool, embedding []float32, threshold float64) (*models.Match, error)
	GetRegistered(ctx context.Context, id uuid.UUID) (*models.RegisteredIdentity, error)

	FindOrCreate(ctx context.Context, n models.NewObserved, threshold float64) (*models.ObservedIdentity, float64, bool, error)
	Touch(ctx context.Context, id uuid.UUID, t models.Touch) (*models.ObservedIdentity, error)
	GetObserved(ctx context.Context, id uuid.UUID) (*models.ObservedIdentity, error)
	SetFaceImage(ctx context.Context, id uuid.UUID, key string) error
	UpdateObserved(ctx context.Context, id uuid.UUID, mutate func(*models.ObservedIdentity) error) (*models.ObservedIdentity, error)
	ExpireElapsed(ctx context.Context, now time.Time) (int64, error)
	ListObserved(ctx context.Context, q models.ObservedQuery) (*models.ObservedPage, error)

	InsertDecision(ctx context.Context, d *models.AccessDecision) error
	ListDecisions(ctx context.Context, q models.DecisionQuery) ([]models.AccessDecision, int, error)

	Ping(ctx context.Context) error
	Close()
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Open returns the store selected by cfg.Database.Driver. Postgres migrations run
// when cfg.Database.Migrate is set.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		return NewMemoryStore(cfg.Matching.EmbeddingDim), nil
	case "postgres":
		pg, err := NewPostgresStore(ctx, cfg.Database, cfg.Observed.CreationLockPartitions)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
