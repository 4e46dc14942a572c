package forks

import (
	"github.com/beacon-stf/corestate/ssz"
	"github.com/ethereum/go-ethereum/common"
)

// Root is a 32-byte SSZ hash tree root, reused throughout the consensus
// types to avoid importing go-ethereum's common.Hash where the value is a
// pure Merkle root rather than an execution-layer hash.
type Root = [32]byte

// Checkpoint identifies an epoch boundary block.
type Checkpoint struct {
	Epoch uint64
	Root  Root
}

// HashTreeRoot Merkleizes {epoch, root}.
func (c Checkpoint) HashTreeRoot() (Root, error) {
	return containerRoot(ssz.HashTreeRootUint64(c.Epoch), c.Root)
}

// Eth1Data tracks the deposit contract's view as voted on by proposers.
type Eth1Data struct {
	DepositRoot  Root
	DepositCount uint64
	BlockHash    Root
}

func (e Eth1Data) HashTreeRoot() (Root, error) {
	return containerRoot(e.DepositRoot, ssz.HashTreeRootUint64(e.DepositCount), e.BlockHash)
}

// BeaconBlockHeader is the header-only view of a beacon block, retained
// in BeaconState.latest_block_header.
type BeaconBlockHeader struct {
	Slot          uint64
	ProposerIndex uint64
	ParentRoot    Root
	StateRoot     Root
	BodyRoot      Root
}

func (h BeaconBlockHeader) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootUint64(h.Slot),
		ssz.HashTreeRootUint64(h.ProposerIndex),
		h.ParentRoot,
		h.StateRoot,
		h.BodyRoot,
	)
}

// Validator is one registry entry.
type Validator struct {
	Pubkey                     [48]byte
	WithdrawalCredentials      Root
	EffectiveBalance           uint64
	Slashed                    bool
	ActivationEligibilityEpoch uint64
	ActivationEpoch            uint64
	ExitEpoch                  uint64
	WithdrawableEpoch          uint64
}

func (v Validator) HashTreeRoot() (Root, error) {
	return containerRoot(
		ssz.HashTreeRootBytes48(v.Pubkey),
		v.WithdrawalCredentials,
		ssz.HashTreeRootUint64(v.EffectiveBalance),
		ssz.HashTreeRootBool(v.Slashed),
		ssz.HashTreeRootUint64(v.ActivationEligibilityEpoch),
		ssz.HashTreeRootUint64(v.ActivationEpoch),
		ssz.HashTreeRootUint64(v.ExitEpoch),
		ssz.HashTreeRootUint64(v.WithdrawableEpoch),
	)
}

// IsActive reports whether the validator is active at the given epoch.
func (v Validator) IsActive(epoch uint64) bool {
	return v.ActivationEpoch <= epoch && epoch < v.ExitEpoch
}

// SyncCommittee (Altair+) holds the current or next sync committee.
type SyncCommittee struct {
	Pubkeys         [][48]byte
	AggregatePubkey [48]byte
}

func (s SyncCommittee) HashTreeRoot() (Root, error) {
	leaves := make([]Root, len(s.Pubkeys))
	for i, pk := range s.Pubkeys {
		leaves[i] = ssz.HashTreeRootBytes48(pk)
	}
	vecRoot := ssz.HashTreeRootVector(leaves)
	aggRoot := ssz.HashTreeRootBytes48(s.AggregatePubkey)
	return containerRoot(vecRoot, aggRoot)
}

// ExecutionPayloadHeader (Bellatrix+) mirrors the execution-layer block
// header fields relevant to consensus; execution-layer types (hash,
// address) come straight from go-ethereum rather than being re-typed.
type ExecutionPayloadHeader struct {
	ParentHash       common.Hash
	FeeRecipient     common.Address
	StateRoot        common.Hash
	ReceiptsRoot     common.Hash
	LogsBloom        [256]byte
	PrevRandao       common.Hash
	BlockNumber      uint64
	GasLimit         uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	BaseFeePerGas    [32]byte // little-endian uint256
	BlockHash        common.Hash
	TransactionsRoot Root
	WithdrawalsRoot  Root // Capella+
	BlobGasUsed      uint64 // Deneb+
	ExcessBlobGas    uint64 // Deneb+
}

func (h ExecutionPayloadHeader) HashTreeRoot(fork Fork) (Root, error) {
	fields := []Root{
		Root(h.ParentHash),
		ssz.HashTreeRootAddress(h.FeeRecipient),
		Root(h.StateRoot),
		Root(h.ReceiptsRoot),
		ssz.HashTreeRootBasicVector(h.LogsBloom[:]),
		Root(h.PrevRandao),
		ssz.HashTreeRootUint64(h.BlockNumber),
		ssz.HashTreeRootUint64(h.GasLimit),
		ssz.HashTreeRootUint64(h.GasUsed),
		ssz.HashTreeRootUint64(h.Timestamp),
		ssz.HashTreeRootByteList(h.ExtraData, 32),
		h.BaseFeePerGas,
		Root(h.BlockHash),
		h.TransactionsRoot,
	}
	if fork.AtLeast(Capella) {
		fields = append(fields, h.WithdrawalsRoot)
	}
	if fork.AtLeast(Deneb) {
		fields = append(fields,
			ssz.HashTreeRootUint64(h.BlobGasUsed),
			ssz.HashTreeRootUint64(h.ExcessBlobGas),
		)
	}
	return ssz.HashTreeRootContainer(fields), nil
}

// containerRoot is a small helper merkleizing a fixed list of field roots.
func containerRoot(fields ...Root) (Root, error) {
	return ssz.HashTreeRootContainer(fields), nil
}
