// bitfield.go implements SSZ bitfield types: Bitlist and Bitvector.
//
// A Bitlist is a variable-length sequence of bits with a trailing length bit
// (sentinel) in the serialized form. It is used in the consensus layer for
// aggregation bitfields in attestations (e.g., which validators participated).
//
// A Bitvector is a fixed-length sequence of bits. It is used for fixed-size
// bitfields like sync committee participation.
//
// Both types are backed by github.com/bits-and-blooms/bitset for storage and
// bitwise operations (OR/AND/population count); only the SSZ byte packing at
// the edges (Marshal/Unmarshal, hash tree root) is bespoke, since SSZ's
// little-endian bit-within-byte layout does not match bitset's internal word
// layout.
//
// Spec: https://github.com/ethereum/consensus-specs/blob/dev/ssz/simple-serialize.md
package ssz

import (
	"errors"

	"github.com/bits-and-blooms/bitset"
)

// Bitfield errors.
var (
	ErrBitlistZeroLength       = errors.New("bitfield: bitlist length must be positive")
	ErrBitlistIndexOOB         = errors.New("bitfield: bit index out of bounds")
	ErrBitlistLengthMismatch   = errors.New("bitfield: bitlist length mismatch for OR")
	ErrBitvectorZeroLength     = errors.New("bitfield: bitvector length must be positive")
	ErrBitvectorIndexOOB       = errors.New("bitfield: bitvector index out of bounds")
	ErrBitvectorLengthMismatch = errors.New("bitfield: bitvector length mismatch")
)

// Bitlist is a variable-length bit array. The serialized form appends a
// sentinel bit just past the last usable bit to encode the length.
type Bitlist struct {
	bits   *bitset.BitSet
	length int // number of usable bits (excludes sentinel)
}

// NewBitlist creates a new Bitlist with the given number of usable bits, all
// initially unset.
func NewBitlist(length int) (Bitlist, error) {
	if length <= 0 {
		return Bitlist{}, ErrBitlistZeroLength
	}
	return Bitlist{bits: bitset.New(uint(length)), length: length}, nil
}

// BitlistFromBytes creates a Bitlist from raw serialized bytes (with
// sentinel). Returns an error if no sentinel bit is found.
func BitlistFromBytes(data []byte) (Bitlist, error) {
	if len(data) == 0 {
		return Bitlist{}, ErrBitlistZeroLength
	}
	lastByte := data[len(data)-1]
	if lastByte == 0 {
		return Bitlist{}, errors.New("bitfield: no sentinel bit found")
	}
	sentinelBitInByte := 0
	for b := lastByte; b > 1; b >>= 1 {
		sentinelBitInByte++
	}
	length := (len(data)-1)*8 + sentinelBitInByte

	b := bitset.New(uint(length))
	for i := 0; i < length; i++ {
		if data[i/8]&(1<<uint(i%8)) != 0 {
			b.Set(uint(i))
		}
	}
	return Bitlist{bits: b, length: length}, nil
}

// Set sets the bit at the given index. Out-of-bounds indices are ignored.
func (b Bitlist) Set(index int) {
	if index < 0 || index >= b.length {
		return
	}
	b.bits.Set(uint(index))
}

// Clear unsets the bit at the given index.
func (b Bitlist) Clear(index int) {
	if index < 0 || index >= b.length {
		return
	}
	b.bits.Clear(uint(index))
}

// Get returns true if the bit at the given index is set.
func (b Bitlist) Get(index int) bool {
	if index < 0 || index >= b.length {
		return false
	}
	return b.bits.Test(uint(index))
}

// Len returns the number of usable bits (excludes sentinel).
func (b Bitlist) Len() int {
	return b.length
}

// Count returns the number of set bits (population count), excluding sentinel.
func (b Bitlist) Count() int {
	return int(b.bits.Count())
}

// Bytes returns the SSZ serialized form (packed bits plus sentinel bit).
func (b Bitlist) Bytes() []byte {
	totalBits := b.length + 1
	numBytes := (totalBits + 7) / 8
	data := make([]byte, numBytes)
	for i := 0; i < b.length; i++ {
		if b.bits.Test(uint(i)) {
			data[i/8] |= 1 << uint(i%8)
		}
	}
	data[b.length/8] |= 1 << uint(b.length%8)
	return data
}

// OR performs bitwise OR of two bitlists. Both must have the same length.
func (b Bitlist) OR(other Bitlist) (Bitlist, error) {
	if b.length != other.length {
		return Bitlist{}, ErrBitlistLengthMismatch
	}
	result, _ := NewBitlist(b.length)
	result.bits = b.bits.Union(other.bits)
	return result, nil
}

// AND performs bitwise AND of two bitlists. Both must have the same length.
func (b Bitlist) AND(other Bitlist) (Bitlist, error) {
	if b.length != other.length {
		return Bitlist{}, ErrBitlistLengthMismatch
	}
	result, _ := NewBitlist(b.length)
	result.bits = b.bits.Intersection(other.bits)
	return result, nil
}

// Overlaps returns true if any bit is set in both bitlists.
func (b Bitlist) Overlaps(other Bitlist) bool {
	if b.length != other.length {
		return false
	}
	return b.bits.IntersectionCardinality(other.bits) > 0
}

// IsZero returns true if no bits are set (excluding sentinel).
func (b Bitlist) IsZero() bool {
	return b.bits.None()
}

// BitlistHashTreeRoot computes the SSZ hash tree root of a bitlist.
// The bitfield is packed (without sentinel) into chunks, Merkleized with
// a limit derived from maxLength, and mixed in with the actual bit count.
func BitlistHashTreeRoot(b Bitlist, maxLength int) [32]byte {
	packed := packBitsWithoutSentinel(b)
	chunks := Pack(packed)
	maxChunks := ChunkCount(maxLength)
	root := Merkleize(chunks, nextPowerOfTwo(maxChunks))
	return MixInLength(root, uint64(b.length))
}

// packBitsWithoutSentinel extracts the data bits (excluding sentinel) as bytes.
func packBitsWithoutSentinel(b Bitlist) []byte {
	numBytes := (b.length + 7) / 8
	if numBytes == 0 {
		return nil
	}
	result := make([]byte, numBytes)
	for i := 0; i < b.length; i++ {
		if b.bits.Test(uint(i)) {
			result[i/8] |= 1 << uint(i%8)
		}
	}
	return result
}

// --- Bitvector ---

// Bitvector is a fixed-length bit array. Unlike Bitlist, it has no sentinel
// bit: the length is always known at construction time.
type Bitvector struct {
	bits   *bitset.BitSet
	length int
}

// NewBitvector creates a new Bitvector with the given length, all bits unset.
func NewBitvector(length int) (Bitvector, error) {
	if length <= 0 {
		return Bitvector{}, ErrBitvectorZeroLength
	}
	return Bitvector{bits: bitset.New(uint(length)), length: length}, nil
}

// BitvectorFromBytes creates a Bitvector from raw bytes with the given bit length.
func BitvectorFromBytes(data []byte, length int) (Bitvector, error) {
	if length <= 0 {
		return Bitvector{}, ErrBitvectorZeroLength
	}
	expectedBytes := (length + 7) / 8
	if len(data) < expectedBytes {
		return Bitvector{}, ErrBitvectorLengthMismatch
	}
	b := bitset.New(uint(length))
	for i := 0; i < length; i++ {
		if data[i/8]&(1<<uint(i%8)) != 0 {
			b.Set(uint(i))
		}
	}
	return Bitvector{bits: b, length: length}, nil
}

// Set sets the bit at the given index.
func (bv Bitvector) Set(index int) {
	if index < 0 || index >= bv.length {
		return
	}
	bv.bits.Set(uint(index))
}

// Clear unsets the bit at the given index.
func (bv Bitvector) Clear(index int) {
	if index < 0 || index >= bv.length {
		return
	}
	bv.bits.Clear(uint(index))
}

// Get returns true if the bit at the given index is set.
func (bv Bitvector) Get(index int) bool {
	if index < 0 || index >= bv.length {
		return false
	}
	return bv.bits.Test(uint(index))
}

// Len returns the fixed bit length of the bitvector.
func (bv Bitvector) Len() int {
	return bv.length
}

// Count returns the number of set bits (population count).
func (bv Bitvector) Count() int {
	return int(bv.bits.Count())
}

// Bytes returns the packed SSZ serialized form (no sentinel).
func (bv Bitvector) Bytes() []byte {
	numBytes := (bv.length + 7) / 8
	data := make([]byte, numBytes)
	for i := 0; i < bv.length; i++ {
		if bv.bits.Test(uint(i)) {
			data[i/8] |= 1 << uint(i%8)
		}
	}
	return data
}

// OR performs bitwise OR of two bitvectors. Both must have the same length.
func (bv Bitvector) OR(other Bitvector) (Bitvector, error) {
	if bv.length != other.length {
		return Bitvector{}, ErrBitvectorLengthMismatch
	}
	result, _ := NewBitvector(bv.length)
	result.bits = bv.bits.Union(other.bits)
	return result, nil
}

// AND performs bitwise AND of two bitvectors.
func (bv Bitvector) AND(other Bitvector) (Bitvector, error) {
	if bv.length != other.length {
		return Bitvector{}, ErrBitvectorLengthMismatch
	}
	result, _ := NewBitvector(bv.length)
	result.bits = bv.bits.Intersection(other.bits)
	return result, nil
}

// Overlaps returns true if any bit is set in both bitvectors.
func (bv Bitvector) Overlaps(other Bitvector) bool {
	if bv.length != other.length {
		return false
	}
	return bv.bits.IntersectionCardinality(other.bits) > 0
}

// IsZero returns true if no bits are set.
func (bv Bitvector) IsZero() bool {
	return bv.bits.None()
}

// BitvectorHashTreeRoot computes the SSZ hash tree root of a bitvector.
// The bits are packed into bytes, then packed into 32-byte chunks and Merkleized.
func BitvectorHashTreeRoot(bv Bitvector) [32]byte {
	chunks := Pack(bv.Bytes())
	return Merkleize(chunks, 0)
}

// ChunkCount returns the number of 32-byte chunks needed for a bitfield
// of the given bit length. Each chunk holds 256 bits.
func ChunkCount(bitLength int) int {
	if bitLength <= 0 {
		return 1
	}
	return (bitLength + 255) / 256
}

// --- Bitlist/Bitvector equality ---

// BitlistEqual returns true if two bitlists have the same length and bits.
func BitlistEqual(a, b Bitlist) bool {
	if a.length != b.length {
		return false
	}
	return a.bits.Equal(b.bits)
}

// BitvectorEqual returns true if two bitvectors have the same length and bits.
func BitvectorEqual(a, b Bitvector) bool {
	if a.length != b.length {
		return false
	}
	return a.bits.Equal(b.bits)
}

// --- Bitlist serialization helpers ---

// BitlistMarshalSSZ serializes a bitlist with its sentinel bit.
func BitlistMarshalSSZ(b Bitlist) []byte {
	return b.Bytes()
}

// BitlistUnmarshalSSZ deserializes a bitlist from SSZ bytes.
func BitlistUnmarshalSSZ(data []byte) (Bitlist, error) {
	return BitlistFromBytes(data)
}

// BitvectorMarshalSSZ serializes a bitvector as packed bytes.
func BitvectorMarshalSSZ(bv Bitvector) []byte {
	return bv.Bytes()
}

// BitvectorUnmarshalSSZ deserializes a bitvector from SSZ bytes.
func BitvectorUnmarshalSSZ(data []byte, length int) (Bitvector, error) {
	return BitvectorFromBytes(data, length)
}
