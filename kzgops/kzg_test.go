package kzgops

import "testing"

func TestValidateCommitmentListSizes(t *testing.T) {
	good := make([][]byte, 2)
	good[0] = make([]byte, BytesPerCommitment)
	good[1] = make([]byte, BytesPerCommitment)
	if err := ValidateCommitmentList(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := [][]byte{make([]byte, BytesPerCommitment-1)}
	if err := ValidateCommitmentList(bad); err == nil {
		t.Fatal("expected error for wrong-size commitment")
	}
}

func TestValidateCommitmentListTooMany(t *testing.T) {
	over := make([][]byte, MaxBlobCommitmentsPerBlock+1)
	for i := range over {
		over[i] = make([]byte, BytesPerCommitment)
	}
	if err := ValidateCommitmentList(over); err == nil {
		t.Fatal("expected error for too many commitments")
	}
}

func TestBlobToCommitmentRejectsWrongSize(t *testing.T) {
	c := &Context{}
	if _, err := c.BlobToCommitment(make([]byte, BytesPerBlob-1)); err != ErrInvalidBlobSize {
		t.Fatalf("expected ErrInvalidBlobSize, got %v", err)
	}
}

func TestVerifyBlobProofBatchLengthMismatch(t *testing.T) {
	c := &Context{}
	_, err := c.VerifyBlobProofBatch([][]byte{make([]byte, BytesPerBlob)}, nil, nil)
	if err != ErrBatchLengthMismatch {
		t.Fatalf("expected ErrBatchLengthMismatch, got %v", err)
	}
}
