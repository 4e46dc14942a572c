package forks

import (
	"fmt"

	"github.com/beacon-stf/corestate/ssz"
)

// BeaconState is the fork-variant beacon state container. Rather
// than one Go type per fork, fields introduced by a later fork live behind
// a pointer that is nil until the state has upgraded past that fork's
// activation epoch: a flat struct keyed by fork rather than one
// monomorphised type per fork. It doubles as a tagged union over every
// fork's state shape. The ForkTag field is the
// tag, and field accessors below implement the common/from-fork/computed
// dispatch rules directly instead of routing through a separate wrapper
// type.
type BeaconState struct {
	ForkTag Fork

	GenesisTime           uint64
	GenesisValidatorsRoot Root
	Slot                  uint64
	CurrentVersionFork    Fork // consensus Fork{previous_version,current_version,epoch}, collapsed
	LatestBlockHeader     BeaconBlockHeader
	BlockRoots            []Root
	StateRoots            []Root
	HistoricalRoots       []Root
	Eth1Data              Eth1Data
	Eth1DataVotes         []Eth1Data
	Eth1DepositIndex      uint64
	Validators            []Validator
	Balances              []uint64
	RandaoMixes           []Root
	Slashings             []uint64
	JustificationBits     ssz.Bitvector
	PreviousJustified     Checkpoint
	CurrentJustified      Checkpoint
	FinalizedCheckpoint   Checkpoint

	// Altair+
	PreviousEpochParticipation []byte
	CurrentEpochParticipation  []byte
	InactivityScores           []uint64
	CurrentSyncCommittee       *SyncCommittee
	NextSyncCommittee          *SyncCommittee

	// Bellatrix+
	LatestExecutionPayloadHeader *ExecutionPayloadHeader

	// Capella+
	NextWithdrawalIndex          uint64
	NextWithdrawalValidatorIndex uint64
	HistoricalSummaries          []HistoricalSummary

	// Electra+
	Electra *ElectraFields
}

// HistoricalSummary (Capella+) replaces appending to HistoricalRoots.
type HistoricalSummary struct {
	BlockSummaryRoot Root
	StateSummaryRoot Root
}

func (s HistoricalSummary) HashTreeRoot() (Root, error) {
	return containerRoot(s.BlockSummaryRoot, s.StateSummaryRoot)
}

// PendingDeposit, PendingPartialWithdrawal, PendingConsolidation, and the
// Electra-only scalar churn-accounting fields.
type PendingDeposit struct {
	Pubkey                [48]byte
	WithdrawalCredentials Root
	Amount                uint64
	Signature             [96]byte
	Slot                  uint64
}

type PendingPartialWithdrawal struct {
	ValidatorIndex    uint64
	Amount            uint64
	WithdrawableEpoch uint64
}

type PendingConsolidation struct {
	SourceIndex uint64
	TargetIndex uint64
}

// ElectraFields groups the fields introduced at the Electra fork.
type ElectraFields struct {
	DepositRequestsStartIndex     uint64
	DepositBalanceToConsume       uint64
	ExitBalanceToConsume          uint64
	EarliestExitEpoch             uint64
	ConsolidationBalanceToConsume uint64
	EarliestConsolidationEpoch    uint64
	PendingDeposits               []PendingDeposit
	PendingPartialWithdrawals     []PendingPartialWithdrawal
	PendingConsolidations         []PendingConsolidation

	// Fulu+: proposer lookahead committed into state instead of being
	// recomputed from the shuffling each epoch.
	ProposerLookahead []uint64
}

// RequireAltair returns ErrInvalidFork if the state predates Altair.
func (s *BeaconState) RequireAltair() error {
	if s.ForkTag.Before(Altair) {
		return fmt.Errorf("%w: altair-only field on %s state", ErrInvalidFork, s.ForkTag)
	}
	return nil
}

// RequireBellatrix returns ErrInvalidFork if the state predates Bellatrix.
func (s *BeaconState) RequireBellatrix() error {
	if s.ForkTag.Before(Bellatrix) {
		return fmt.Errorf("%w: bellatrix-only field on %s state", ErrInvalidFork, s.ForkTag)
	}
	return nil
}

// RequireCapella returns ErrInvalidFork if the state predates Capella.
func (s *BeaconState) RequireCapella() error {
	if s.ForkTag.Before(Capella) {
		return fmt.Errorf("%w: capella-only field on %s state", ErrInvalidFork, s.ForkTag)
	}
	return nil
}

// RequireElectra returns ErrInvalidFork if the state predates Electra.
func (s *BeaconState) RequireElectra() error {
	if s.ForkTag.Before(Electra) {
		return fmt.Errorf("%w: electra-only field on %s state", ErrInvalidFork, s.ForkTag)
	}
	return nil
}

// SyncCommittees returns the current/next sync committees, or ErrInvalidFork
// pre-Altair.
func (s *BeaconState) SyncCommittees() (current, next *SyncCommittee, err error) {
	if err := s.RequireAltair(); err != nil {
		return nil, nil, err
	}
	return s.CurrentSyncCommittee, s.NextSyncCommittee, nil
}

// ExecutionPayloadHeaderField returns the latest execution payload header, or
// ErrInvalidFork pre-Bellatrix.
func (s *BeaconState) ExecutionPayloadHeaderField() (*ExecutionPayloadHeader, error) {
	if err := s.RequireBellatrix(); err != nil {
		return nil, err
	}
	return s.LatestExecutionPayloadHeader, nil
}

// HashTreeRoot Merkleizes the container over exactly the fields present at
// s.ForkTag, in spec field order.
func (s *BeaconState) HashTreeRoot() (Root, error) {
	fields, err := s.fieldRoots()
	if err != nil {
		return Root{}, err
	}
	return ssz.HashTreeRootContainer(fields), nil
}

func (s *BeaconState) fieldRoots() ([]Root, error) {
	lbh, err := s.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	eth1, err := s.Eth1Data.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	prevJ, err := s.PreviousJustified.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	currJ, err := s.CurrentJustified.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	finalized, err := s.FinalizedCheckpoint.HashTreeRoot()
	if err != nil {
		return nil, err
	}

	validatorRoots := make([]Root, len(s.Validators))
	for i, v := range s.Validators {
		r, err := v.HashTreeRoot()
		if err != nil {
			return nil, err
		}
		validatorRoots[i] = r
	}
	eth1VoteRoots := make([]Root, len(s.Eth1DataVotes))
	for i, v := range s.Eth1DataVotes {
		r, err := v.HashTreeRoot()
		if err != nil {
			return nil, err
		}
		eth1VoteRoots[i] = r
	}
	balancesPacked := packUint64s(s.Balances)
	slashingsPacked := packUint64s(s.Slashings)

	fields := []Root{
		ssz.HashTreeRootUint64(s.GenesisTime),
		s.GenesisValidatorsRoot,
		ssz.HashTreeRootUint64(s.Slot),
		lbh,
		ssz.HashTreeRootVector(s.BlockRoots),
		ssz.HashTreeRootVector(s.StateRoots),
		ssz.HashTreeRootList(s.HistoricalRoots, len(s.HistoricalRoots)+1),
		eth1,
		ssz.HashTreeRootList(eth1VoteRoots, len(eth1VoteRoots)+1),
		ssz.HashTreeRootUint64(s.Eth1DepositIndex),
		ssz.HashTreeRootList(validatorRoots, len(validatorRoots)+1),
		ssz.HashTreeRootBasicList(balancesPacked, len(s.Balances), 8, len(s.Balances)+1),
		ssz.HashTreeRootVector(s.RandaoMixes),
		ssz.HashTreeRootBasicVector(slashingsPacked),
		ssz.BitvectorHashTreeRoot(s.JustificationBits),
		prevJ,
		currJ,
		finalized,
	}

	if s.ForkTag.AtLeast(Altair) {
		fields = append(fields,
			ssz.HashTreeRootByteList(s.PreviousEpochParticipation, len(s.PreviousEpochParticipation)+1),
			ssz.HashTreeRootByteList(s.CurrentEpochParticipation, len(s.CurrentEpochParticipation)+1),
			ssz.HashTreeRootBasicList(packUint64s(s.InactivityScores), len(s.InactivityScores), 8, len(s.InactivityScores)+1),
		)
		curSC, err := syncCommitteeRootOrZero(s.CurrentSyncCommittee)
		if err != nil {
			return nil, err
		}
		nextSC, err := syncCommitteeRootOrZero(s.NextSyncCommittee)
		if err != nil {
			return nil, err
		}
		fields = append(fields, curSC, nextSC)
	}
	if s.ForkTag.AtLeast(Bellatrix) {
		var payloadRoot Root
		if s.LatestExecutionPayloadHeader != nil {
			r, err := s.LatestExecutionPayloadHeader.HashTreeRoot(s.ForkTag)
			if err != nil {
				return nil, err
			}
			payloadRoot = r
		}
		fields = append(fields, payloadRoot)
	}
	if s.ForkTag.AtLeast(Capella) {
		summaryRoots := make([]Root, len(s.HistoricalSummaries))
		for i, hs := range s.HistoricalSummaries {
			r, err := hs.HashTreeRoot()
			if err != nil {
				return nil, err
			}
			summaryRoots[i] = r
		}
		fields = append(fields,
			ssz.HashTreeRootUint64(s.NextWithdrawalIndex),
			ssz.HashTreeRootUint64(s.NextWithdrawalValidatorIndex),
			ssz.HashTreeRootList(summaryRoots, len(summaryRoots)+1),
		)
	}
	if s.ForkTag.AtLeast(Electra) && s.Electra != nil {
		e := s.Electra
		fields = append(fields,
			ssz.HashTreeRootUint64(e.DepositRequestsStartIndex),
			ssz.HashTreeRootUint64(e.DepositBalanceToConsume),
			ssz.HashTreeRootUint64(e.ExitBalanceToConsume),
			ssz.HashTreeRootUint64(e.EarliestExitEpoch),
			ssz.HashTreeRootUint64(e.ConsolidationBalanceToConsume),
			ssz.HashTreeRootUint64(e.EarliestConsolidationEpoch),
		)
		if s.ForkTag.AtLeast(Fulu) {
			fields = append(fields, ssz.HashTreeRootBasicList(packUint64s(e.ProposerLookahead), len(e.ProposerLookahead), 8, len(e.ProposerLookahead)+1))
		}
	}
	return fields, nil
}

func syncCommitteeRootOrZero(sc *SyncCommittee) (Root, error) {
	if sc == nil {
		return Root{}, nil
	}
	return sc.HashTreeRoot()
}

func packUint64s(vs []uint64) []byte {
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		for b := 0; b < 8; b++ {
			out[8*i+b] = byte(v >> (8 * b))
		}
	}
	return out
}
