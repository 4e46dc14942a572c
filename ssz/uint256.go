package ssz

import "github.com/holiman/uint256"

// Uint256 is the SSZ uint256 basic type, backed by holiman/uint256 for
// arithmetic.
type Uint256 struct {
	Value *uint256.Int
}

// NewUint256 wraps a *uint256.Int, defaulting to zero if nil.
func NewUint256(v *uint256.Int) Uint256 {
	if v == nil {
		v = new(uint256.Int)
	}
	return Uint256{Value: v}
}

// MarshalSSZ serializes as 32 little-endian bytes.
func (u Uint256) MarshalSSZ() ([]byte, error) {
	b := u.Value.Bytes32()
	out := make([]byte, 32)
	for i := 0; i < 32; i++ {
		out[i] = b[31-i]
	}
	return out, nil
}

// SizeSSZ is always 32 bytes.
func (u Uint256) SizeSSZ() int { return 32 }

// UnmarshalSSZ reads 32 little-endian bytes into a fresh *uint256.Int.
func (u *Uint256) UnmarshalSSZ(data []byte) error {
	if len(data) != 32 {
		return ErrSize
	}
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = data[31-i]
	}
	u.Value = new(uint256.Int).SetBytes(be[:])
	return nil
}

// HashTreeRoot of a uint256 is its little-endian byte representation,
// already exactly one chunk.
func (u Uint256) HashTreeRoot() ([32]byte, error) {
	b, err := u.MarshalSSZ()
	if err != nil {
		return [32]byte{}, err
	}
	var chunk [32]byte
	copy(chunk[:], b)
	return chunk, nil
}
