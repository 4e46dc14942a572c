package forks

import "fmt"

// Upgrade applies exactly one upgrade_to_<fork> step, mapping s (currently
// at fork s.ForkTag) to the next fork in sequence. It is an error to call
// this out of sequence (upgrading across a skipped fork is
// ErrUnexpectedForkSeq); callers that need to cross several forks must call
// Upgrade repeatedly, once per boundary crossed, exactly as process_slots
// does at each fork-epoch boundary.
func Upgrade(s *BeaconState, target Fork) error {
	next, ok := Next(s.ForkTag)
	if !ok || next != target {
		return fmt.Errorf("%w: state at %s, requested upgrade to %s", ErrUnexpectedForkSeq, s.ForkTag, target)
	}
	switch target {
	case Altair:
		upgradeToAltair(s)
	case Bellatrix:
		upgradeToBellatrix(s)
	case Capella:
		upgradeToCapella(s)
	case Deneb:
		upgradeToDeneb(s)
	case Electra:
		upgradeToElectra(s)
	case Fulu:
		upgradeToFulu(s)
	default:
		return fmt.Errorf("%w: unknown target fork %s", ErrUnexpectedForkSeq, target)
	}
	s.ForkTag = target
	return nil
}

// upgradeToAltair zero-initialises participation tracking and inactivity
// scores (slices sized to the registry, zero-filled). The sync committees
// are left nil here; the caller's shuffling logic assigns them afterward.
func upgradeToAltair(s *BeaconState) {
	s.PreviousEpochParticipation = make([]byte, len(s.Validators))
	s.CurrentEpochParticipation = make([]byte, len(s.Validators))
	s.InactivityScores = make([]uint64, len(s.Validators))
}

// upgradeToBellatrix introduces the empty execution payload header; it
// stays empty until the first post-merge block is processed.
func upgradeToBellatrix(s *BeaconState) {
	s.LatestExecutionPayloadHeader = &ExecutionPayloadHeader{}
}

// upgradeToCapella adds withdrawal bookkeeping and historical summaries,
// replacing further HistoricalRoots growth.
func upgradeToCapella(s *BeaconState) {
	s.NextWithdrawalIndex = 0
	s.NextWithdrawalValidatorIndex = 0
	s.HistoricalSummaries = nil
}

// upgradeToDeneb adds no new BeaconState fields (blob fields live on the
// execution payload header, not the state); process_execution_payload
// starts populating BlobGasUsed/ExcessBlobGas from this point on.
func upgradeToDeneb(s *BeaconState) {}

// upgradeToElectra introduces the Electra churn-accounting fields and
// pending-operation queues, all zero/empty initially.
func upgradeToElectra(s *BeaconState) {
	s.Electra = &ElectraFields{
		EarliestExitEpoch:          0,
		EarliestConsolidationEpoch: 0,
	}
}

// upgradeToFulu adds the committed proposer-lookahead vector, left empty;
// callers populate it from the shuffling right after upgrade.
func upgradeToFulu(s *BeaconState) {
	if s.Electra == nil {
		s.Electra = &ElectraFields{}
	}
	s.Electra.ProposerLookahead = nil
}
