package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/config"
)

func TestOpenMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "memory"
	cfg.Matching.EmbeddingDim = 4

	store, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	mem, ok := store.(*MemoryStore)
	require.True(t, ok)
	assert.Equal(t, 4, mem.dim)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"

	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "sqlite")
}
