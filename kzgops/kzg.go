// Package kzgops implements process_blob_kzg_commitments: structural validation of a block's blob KZG commitment list,
// plus the underlying commitment/proof verification primitives backed by
// crate-crypto/go-eth-kzg against the real Ethereum ceremony setup.
package kzgops

import (
	"errors"
	"fmt"

	goethkzg "github.com/crate-crypto/go-eth-kzg"
)

// Wire sizes per EIP-4844.
const (
	BytesPerBlob       = 131072
	BytesPerCommitment = 48
	BytesPerProof      = 48
	MaxBlobCommitmentsPerBlock = 6
)

var (
	ErrInvalidBlobSize       = errors.New("kzgops: invalid blob size")
	ErrInvalidCommitmentSize = errors.New("kzgops: invalid commitment size")
	ErrInvalidProofSize      = errors.New("kzgops: invalid proof size")
	ErrTooManyCommitments    = errors.New("kzgops: blob commitment count exceeds per-block maximum")
	ErrBatchLengthMismatch   = errors.New("kzgops: blobs/commitments/proofs length mismatch")
)

// Context wraps a go-eth-kzg trusted-setup context. Construction is
// expensive (loads the ceremony SRS), so callers build one at process
// start and share it.
type Context struct {
	ctx *goethkzg.Context
}

// NewContext initializes a Context from the embedded Ethereum ceremony
// trusted setup.
func NewContext() (*Context, error) {
	ctx, err := goethkzg.NewContext4096Secure()
	if err != nil {
		return nil, fmt.Errorf("kzgops: failed to initialize go-eth-kzg context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// ValidateCommitmentList performs the structural checks process_blob_kzg_
// commitments runs on a block body's blob_kzg_commitments list: each entry
// must be exactly BytesPerCommitment bytes, and the list length must not
// exceed the per-block maximum. This never touches the trusted setup.
func ValidateCommitmentList(commitments [][]byte) error {
	if len(commitments) > MaxBlobCommitmentsPerBlock {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyCommitments, len(commitments), MaxBlobCommitmentsPerBlock)
	}
	for i, c := range commitments {
		if len(c) != BytesPerCommitment {
			return fmt.Errorf("%w: commitment %d is %d bytes", ErrInvalidCommitmentSize, i, len(c))
		}
	}
	return nil
}

// BlobToCommitment computes the KZG commitment for a blob.
func (c *Context) BlobToCommitment(blob []byte) ([BytesPerCommitment]byte, error) {
	var out [BytesPerCommitment]byte
	if len(blob) != BytesPerBlob {
		return out, ErrInvalidBlobSize
	}
	var blobArr goethkzg.Blob
	copy(blobArr[:], blob)
	comm, err := c.ctx.BlobToKZGCommitment(&blobArr, 0)
	if err != nil {
		return out, fmt.Errorf("kzgops: BlobToKZGCommitment: %w", err)
	}
	return [BytesPerCommitment]byte(comm), nil
}

// VerifyBlobProof verifies a single blob's KZG proof against its
// commitment.
func (c *Context) VerifyBlobProof(blob, commitment, proof []byte) (bool, error) {
	if len(blob) != BytesPerBlob {
		return false, ErrInvalidBlobSize
	}
	if len(commitment) != BytesPerCommitment {
		return false, ErrInvalidCommitmentSize
	}
	if len(proof) != BytesPerProof {
		return false, ErrInvalidProofSize
	}
	var blobArr goethkzg.Blob
	copy(blobArr[:], blob)
	var comm goethkzg.KZGCommitment
	copy(comm[:], commitment)
	var p goethkzg.KZGProof
	copy(p[:], proof)
	if err := c.ctx.VerifyBlobKZGProof(&blobArr, comm, p); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyBlobProofBatch verifies a batch of blob proofs against their
// commitments in one call, used when a block carries multiple blobs.
func (c *Context) VerifyBlobProofBatch(blobs [][]byte, commitments, proofs [][BytesPerCommitment]byte) (bool, error) {
	n := len(blobs)
	if n != len(commitments) || n != len(proofs) {
		return false, ErrBatchLengthMismatch
	}
	blobPtrs := make([]*goethkzg.Blob, n)
	comms := make([]goethkzg.KZGCommitment, n)
	kzgProofs := make([]goethkzg.KZGProof, n)
	for i := 0; i < n; i++ {
		if len(blobs[i]) != BytesPerBlob {
			return false, fmt.Errorf("%w: blob %d is %d bytes", ErrInvalidBlobSize, i, len(blobs[i]))
		}
		blobPtrs[i] = new(goethkzg.Blob)
		copy(blobPtrs[i][:], blobs[i])
		comms[i] = goethkzg.KZGCommitment(commitments[i])
		kzgProofs[i] = goethkzg.KZGProof(proofs[i])
	}
	if err := c.ctx.VerifyBlobKZGProofBatch(blobPtrs, comms, kzgProofs); err != nil {
		return false, nil
	}
	return true, nil
}
