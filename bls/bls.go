// Package bls implements the BLS oracle the state transition verifies
// signatures through: Verify and AggregateVerify, backed by the MinPk scheme
// (pubkeys in G1, signatures in G2) via supranational/blst.
//
package bls

import (
	"bytes"
	"errors"

	blst "github.com/supranational/blst/bindings/go"
)

// dst is the domain separation tag mandated for Ethereum consensus BLS
// signatures.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_")

// Sizes for the MinPk scheme.
const (
	PubkeySize   = 48 // compressed G1
	SignatureSize = 96 // compressed G2
)

var (
	ErrInvalidPubkey    = errors.New("bls: invalid public key encoding")
	ErrInvalidSignature = errors.New("bls: invalid signature encoding")
	ErrLengthMismatch   = errors.New("bls: pubkeys/messages length mismatch")
)

// infinitySignature is the all-zero 96-byte encoding of the point at
// infinity in G2.
var infinitySignature [SignatureSize]byte

// IsInfinity reports whether sig is the 96-zero-byte infinity signature.
func IsInfinity(sig []byte) bool {
	return len(sig) == SignatureSize && bytes.Equal(sig, infinitySignature[:])
}

// Verify checks a single BLS signature. The infinity
// signature is rejected here: single-signature contexts never permit it.
func Verify(pubkey, message, signature []byte) (bool, error) {
	if IsInfinity(signature) {
		return false, nil
	}
	pk := new(blst.P1Affine).Uncompress(pubkey)
	if pk == nil {
		return false, ErrInvalidPubkey
	}
	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false, ErrInvalidSignature
	}
	return sig.Verify(true, pk, true, message, dst), nil
}

// AggregateVerify checks an aggregate signature where pubkeys[i] signed
// messages[i]. Rejects the infinity signature, matching Verify.
func AggregateVerify(pubkeys, messages [][]byte, signature []byte) (bool, error) {
	n := len(pubkeys)
	if n != len(messages) {
		return false, ErrLengthMismatch
	}
	if IsInfinity(signature) {
		return false, nil
	}
	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false, ErrInvalidSignature
	}
	pks := make([]*blst.P1Affine, n)
	for i, pkBytes := range pubkeys {
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return false, ErrInvalidPubkey
		}
	}
	blstMsgs := make([]blst.Message, n)
	for i, m := range messages {
		blstMsgs[i] = m
	}
	return sig.AggregateVerify(true, pks, true, blstMsgs, dst), nil
}

// FastAggregateVerifyAllowingInfinity checks an aggregate signature where
// every signer signed the same message, special-casing the sync-aggregate
// committee: an empty committee is required to use the
// infinity signature, which is accepted only when pubkeys is empty.
func FastAggregateVerifyAllowingInfinity(pubkeys [][]byte, message, signature []byte) (bool, error) {
	if len(pubkeys) == 0 {
		return IsInfinity(signature), nil
	}
	if IsInfinity(signature) {
		return false, nil
	}
	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false, ErrInvalidSignature
	}
	pks := make([]*blst.P1Affine, len(pubkeys))
	for i, pkBytes := range pubkeys {
		pks[i] = new(blst.P1Affine).Uncompress(pkBytes)
		if pks[i] == nil {
			return false, ErrInvalidPubkey
		}
	}
	return sig.FastAggregateVerify(true, pks, message, dst), nil
}
