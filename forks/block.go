package forks

import (
	"fmt"

	"github.com/beacon-stf/corestate/ssz"
)

// BeaconBlockBody holds the operations processed by process_operations
// plus the per-fork appendages (sync aggregate, execution payload).
// Like BeaconState, fork-gated sections are nil until upgraded to.
type BeaconBlockBody struct {
	RandaoReveal      [96]byte
	Eth1Data          Eth1Data
	Graffiti          Root
	ProposerSlashings []ProposerSlashing
	AttesterSlashings []AttesterSlashing
	Attestations      []Attestation
	Deposits          []Deposit
	VoluntaryExits    []SignedVoluntaryExit

	SyncAggregate *SyncAggregate // Altair+

	ExecutionPayload *ExecutionPayload // Bellatrix+

	BlsToExecutionChanges []SignedBLSToExecutionChange // Capella+

	BlobKZGCommitments [][48]byte // Deneb+

	// Electra+
	ExecutionRequests *ExecutionRequests
}

// BeaconBlock is the unsigned block; AnySignedBeaconBlock wraps it with a
// signature and dispatches on ForkTag the same way BeaconState does.
type BeaconBlock struct {
	ForkTag       Fork
	Slot          uint64
	ProposerIndex uint64
	ParentRoot    Root
	StateRoot     Root
	Body          BeaconBlockBody
}

// SignedBeaconBlock is the AnySignedBeaconBlock tagged union:
// Block.ForkTag is the tag, and fork-gated body sections are accessed via
// the BeaconBlockBody's nil-checked fields exactly as BeaconState does.
type SignedBeaconBlock struct {
	Block     BeaconBlock
	Signature [96]byte
}

// SyncAggregate requires SyncCommitteeBits to be present even when the
// committee had no participants.
type SyncAggregate struct {
	SyncCommitteeBits      ssz.Bitvector
	SyncCommitteeSignature [96]byte
}

// ExecutionPayload is the full (non-header) execution-layer payload
// carried in a block body from Bellatrix on.
type ExecutionPayload struct {
	Header       ExecutionPayloadHeader
	Transactions [][]byte
	Withdrawals  []Withdrawal // Capella+
}

// Withdrawal (Capella+) is one validator withdrawal performed automatically
// at the end of process_withdrawals.
type Withdrawal struct {
	Index          uint64
	ValidatorIndex uint64
	Address        [20]byte
	Amount         uint64
}

func (w Withdrawal) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootUint64(w.Index),
		ssz.HashTreeRootUint64(w.ValidatorIndex),
		ssz.HashTreeRootAddress(w.Address),
		ssz.HashTreeRootUint64(w.Amount),
	)
}

// ExecutionRequests (Electra+) carries the deposit/withdrawal/consolidation
// requests surfaced by the execution layer.
type ExecutionRequests struct {
	Deposits       []DepositRequest
	Withdrawals    []WithdrawalRequest
	Consolidations []ConsolidationRequest
}

type DepositRequest struct {
	Pubkey                [48]byte
	WithdrawalCredentials Root
	Amount                uint64
	Signature             [96]byte
	Index                 uint64
}

type WithdrawalRequest struct {
	SourceAddress   [20]byte
	ValidatorPubkey [48]byte
	Amount          uint64
}

type ConsolidationRequest struct {
	SourceAddress [20]byte
	SourcePubkey  [48]byte
	TargetPubkey  [48]byte
}

// ProposerSlashing, AttesterSlashing, Attestation, Deposit,
// SignedVoluntaryExit, SignedBLSToExecutionChange are the operation
// envelopes consumed by process_operations; only the fields the STF reads
// are modelled here (signatures are opaque byte arrays checked via the BLS
// oracle, never parsed).
type SignedHeader struct {
	Header    BeaconBlockHeader
	Signature [96]byte
}

type ProposerSlashing struct {
	SignedHeader1 SignedHeader
	SignedHeader2 SignedHeader
}

type IndexedAttestation struct {
	AttestingIndices []uint64
	Data             AttestationData
	Signature        [96]byte
}

type AttesterSlashing struct {
	Attestation1 IndexedAttestation
	Attestation2 IndexedAttestation
}

type AttestationData struct {
	Slot            uint64
	Index           uint64
	BeaconBlockRoot Root
	Source          Checkpoint
	Target          Checkpoint
}

type Attestation struct {
	AggregationBits ssz.Bitlist
	Data            AttestationData
	Signature       [96]byte
	// Electra+: attestations carry an explicit committee bitfield instead
	// of being scoped to a single committee index.
	CommitteeBits ssz.Bitvector
}

type DepositData struct {
	Pubkey                [48]byte
	WithdrawalCredentials Root
	Amount                uint64
	Signature             [96]byte
}

type Deposit struct {
	Proof [33]Root
	Data  DepositData
}

type VoluntaryExit struct {
	Epoch          uint64
	ValidatorIndex uint64
}

type SignedVoluntaryExit struct {
	Exit      VoluntaryExit
	Signature [96]byte
}

type BLSToExecutionChange struct {
	ValidatorIndex     uint64
	FromBlsPubkey      [48]byte
	ToExecutionAddress [20]byte
}

type SignedBLSToExecutionChange struct {
	Change    BLSToExecutionChange
	Signature [96]byte
}

// CreatePayloadHeader is the computed header accessor: it
// fills a fork-matched ExecutionPayloadHeader by copying scalars from the
// full payload and hash-tree-rooting the variable-length fields
// (transactions, withdrawals).
func CreatePayloadHeader(fork Fork, payload *ExecutionPayload) (*ExecutionPayloadHeader, error) {
	if fork.Before(Bellatrix) {
		return nil, fmt.Errorf("%w: execution payload on %s block", ErrInvalidFork, fork)
	}
	header := payload.Header // scalar fields copied by value

	txRoots := make([]Root, len(payload.Transactions))
	for i, tx := range payload.Transactions {
		txRoots[i] = ssz.HashTreeRootByteList(tx, maxBytesPerTransaction)
	}
	header.TransactionsRoot = ssz.HashTreeRootList(txRoots, maxTransactionsPerPayload)

	if fork.AtLeast(Capella) {
		wRoots := make([]Root, len(payload.Withdrawals))
		for i, w := range payload.Withdrawals {
			r, err := w.HashTreeRoot()
			if err != nil {
				return nil, err
			}
			wRoots[i] = r
		}
		header.WithdrawalsRoot = ssz.HashTreeRootList(wRoots, maxWithdrawalsPerPayload)
	}
	return &header, nil
}

const (
	maxBytesPerTransaction    = 1 << 30
	maxTransactionsPerPayload = 1 << 20
	maxWithdrawalsPerPayload  = 16
)
