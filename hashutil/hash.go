// Package hashutil implements the pairwise SHA-256 hashing primitive that
// underlies SSZ Merkleization and the persistent Merkle-tree node pool, plus
// a precomputed table of zero-subtree hashes by depth.
//
// Hoisted into a standalone package so both ssz and pool share one
// zero-hash table instead of each keeping a private copy.
package hashutil

import "crypto/sha256"

// ChunkSize is the number of bytes in one Merkle leaf / PMT leaf.
const ChunkSize = 32

// MaxDepth is the depth up to which the zero-hash table is precomputed at
// package init. 64 comfortably covers every balanced subtree depth used by
// mainnet beacon-state SSZ types (validator registry, historical roots,
// slashings vector, etc.).
const MaxDepth = 64

// Hash combines two 32-byte inputs with SHA-256, as required by the SSZ
// Merkleization algorithm: H(left || right).
func Hash(a, b [32]byte) [32]byte {
	var combined [2 * ChunkSize]byte
	copy(combined[:ChunkSize], a[:])
	copy(combined[ChunkSize:], b[:])
	return sha256.Sum256(combined[:])
}

// zeroHashTable holds zeroHashTable[d] = hash of an all-zero subtree of
// depth d, for d in [0, MaxDepth]. Computed once at package init and never
// mutated afterward.
var zeroHashTable [MaxDepth + 1][32]byte

func init() {
	for d := 1; d <= MaxDepth; d++ {
		zeroHashTable[d] = Hash(zeroHashTable[d-1], zeroHashTable[d-1])
	}
}

// ZeroHash returns the cached hash of an all-zero subtree of the given
// depth. Depths beyond MaxDepth are rejected by panicking: the table is a
// process-wide, statically sized resource, and a request past its bound
// signals a broken invariant in the caller rather than a recoverable error.
func ZeroHash(depth int) [32]byte {
	if depth < 0 || depth > MaxDepth {
		panic("hashutil: zero-hash depth out of range")
	}
	return zeroHashTable[depth]
}

// NextPowerOfTwo returns the smallest power of two that is >= n. NextPowerOfTwo(0)
// and NextPowerOfTwo(1) both return 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// DepthOf returns the number of binary-tree levels needed to hold limit
// leaves, i.e. the smallest d such that 1<<d >= limit.
func DepthOf(limit int) int {
	d := 0
	for (1 << uint(d)) < limit {
		d++
	}
	return d
}
