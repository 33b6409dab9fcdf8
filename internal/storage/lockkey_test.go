package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreationLockKey_SinglePartitionIsGlobal(t *testing.T) {
	a := CreationLockKey([]float32{1, 2, 3}, 1)
	b := CreationLockKey([]float32{-1, -2, -3}, 0)
	assert.Equal(t, a, b)
}

func TestCreationLockKey_Partitioned(t *testing.T) {
	emb := []float32{0.1, -0.2, 0.3, -0.4}
	key := CreationLockKey(emb, 16)
	assert.Equal(t, key, CreationLockKey(emb, 16), "deterministic")

	// Same sign pattern, different magnitudes.
	assert.Equal(t, key, CreationLockKey([]float32{0.5, -0.01, 0.9, -0.7}, 16))

	bucket := key & 0xffffffff
	assert.Less(t, bucket, int64(16))
	assert.Equal(t, creationLockNamespace, key>>32)
}
