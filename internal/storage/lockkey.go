package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// creationLockNamespace keeps observed-creation advisory locks apart from any other
// advisory lock users of the same database.
const creationLockNamespace int64 = 0x66676f62 // "fgob"

// signatureDims is how many leading components form the coarse embedding signature.
const signatureDims = 32

// CreationLockKey maps an embedding to one of partitions advisory-lock keys. Nearby
// embeddings usually share a sign pattern and therefore a key; with partitions <= 1
// every first sighting shares one key.
func CreationLockKey(embedding []float32, partitions int) int64 {
	if partitions <= 1 {
		return creationLockNamespace << 32
	}
	n := min(signatureDims, len(embedding))
	var sig uint64
	for i := 0; i < n; i++ {
		if embedding[i] >= 0 {
			sig |= 1 << uint(i)
		}
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], sig)
	bucket := xxhash.Sum64(buf[:]) % uint64(partitions)
	return creationLockNamespace<<32 | int64(bucket)
}
