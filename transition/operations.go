package transition

import (
	"crypto/sha256"

	"github.com/beacon-stf/corestate/bls"
	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/epoch"
	"github.com/beacon-stf/corestate/forks"
	"github.com/beacon-stf/corestate/state"
)

// processOperations implements process_operations: dispatches each
// operation list in consensus order and checks each operation's validity.
// List lengths are not checked against their maxima here (a caller that
// exceeds a list's maximum hits ListFull during decoding upstream of the
// STF).
func processOperations(cfg *chaincfg.Config, cs *state.CachedBeaconState, block *forks.BeaconBlock, opts Options) error {
	body := &block.Body
	for i, ps := range body.ProposerSlashings {
		if err := processProposerSlashing(cfg, cs, ps, opts); err != nil {
			return wrapErr(InvalidProposer, err).withContextIndex("proposer_slashing", i)
		}
	}
	for i, as := range body.AttesterSlashings {
		if err := processAttesterSlashing(cfg, cs, as, opts); err != nil {
			return wrapErr(InvalidAttestation, err).withContextIndex("attester_slashing", i)
		}
	}
	for i, att := range body.Attestations {
		if err := processAttestation(cfg, cs, block.ForkTag, att, opts); err != nil {
			return wrapErr(InvalidAttestation, err).withContextIndex("attestation", i)
		}
	}
	for i, dep := range body.Deposits {
		if err := processDeposit(cfg, cs, dep); err != nil {
			return wrapErr(InvalidDeposit, err).withContextIndex("deposit", i)
		}
	}
	for i, ve := range body.VoluntaryExits {
		if err := processVoluntaryExit(cfg, cs, ve, opts); err != nil {
			return wrapErr(InvalidVoluntaryExit, err).withContextIndex("voluntary_exit", i)
		}
	}
	if block.ForkTag.AtLeast(forks.Capella) {
		for i, c := range body.BlsToExecutionChanges {
			if err := processBlsToExecutionChange(cs, c, opts); err != nil {
				return wrapErr(InvalidBlsToExecutionChange, err).withContextIndex("bls_to_execution_change", i)
			}
		}
	}
	if block.ForkTag.AtLeast(forks.Electra) && body.ExecutionRequests != nil {
		if err := processExecutionRequests(cfg, cs, body.ExecutionRequests); err != nil {
			return err
		}
	}
	return nil
}

func (e *Error) withContextIndex(context string, index int) *Error {
	e.Context = context
	e.Index = index
	e.HasIndex = true
	return e
}

// slashValidator implements slash_validator: marks the validator slashed,
// sets its withdrawable_epoch, initiates its exit, and pays the
// whistleblower/proposer reward out of its effective balance.
func slashValidator(cfg *chaincfg.Config, s *forks.BeaconState, slashedIdx, whistleblowerIdx uint64, currentEpoch uint64) {
	v := &s.Validators[slashedIdx]
	epoch.InitiateValidatorExit(cfg, s, slashedIdx)
	v.Slashed = true
	if currentEpoch+minValidatorWithdrawabilityDelay > v.WithdrawableEpoch {
		v.WithdrawableEpoch = currentEpoch + minValidatorWithdrawabilityDelay
	}
	s.Slashings[currentEpoch%uint64(len(s.Slashings))] += v.EffectiveBalance

	decrement := v.EffectiveBalance / minSlashingPenaltyQuotient(s.ForkTag)
	s.Balances[slashedIdx] = deductSafely(s.Balances[slashedIdx], decrement)

	whistleblowerReward := v.EffectiveBalance / epoch.WhistleblowerRewardQuotient
	s.Balances[whistleblowerIdx] += whistleblowerReward
}

const minValidatorWithdrawabilityDelay = 256

// minSlashingPenaltyQuotient returns MIN_SLASHING_PENALTY_QUOTIENT for the
// fork the state is currently at.
func minSlashingPenaltyQuotient(fork forks.Fork) uint64 {
	switch {
	case fork.AtLeast(forks.Bellatrix):
		return epoch.MinSlashingPenaltyQuotientBellatrix
	case fork.AtLeast(forks.Altair):
		return epoch.MinSlashingPenaltyQuotientAltair
	default:
		return epoch.MinSlashingPenaltyQuotient
	}
}

func deductSafely(balance, amount uint64) uint64 {
	if amount >= balance {
		return 0
	}
	return balance - amount
}

// processProposerSlashing implements process_proposer_slashing: both
// headers must describe the same slot and proposer but differ in content,
// and (when enabled) both must carry valid signatures.
func processProposerSlashing(cfg *chaincfg.Config, cs *state.CachedBeaconState, ps forks.ProposerSlashing, opts Options) error {
	h1, h2 := ps.SignedHeader1.Header, ps.SignedHeader2.Header
	if h1.Slot != h2.Slot || h1.ProposerIndex != h2.ProposerIndex {
		return invalidProposerSlashing("headers describe different slot/proposer")
	}
	r1, err := h1.HashTreeRoot()
	if err != nil {
		return err
	}
	r2, err := h2.HashTreeRoot()
	if err != nil {
		return err
	}
	if r1 == r2 {
		return invalidProposerSlashing("headers are identical, not slashable")
	}
	v, err := cs.Validator(h1.ProposerIndex)
	if err != nil {
		return err
	}
	if v.Slashed {
		return invalidProposerSlashing("proposer already slashed")
	}
	if opts.VerifySignatures {
		for _, sh := range []forks.SignedHeader{ps.SignedHeader1, ps.SignedHeader2} {
			ok, err := bls.Verify(v.Pubkey[:], mustRoot(sh.Header), sh.Signature[:])
			if err != nil || !ok {
				return invalidProposerSlashing("invalid header signature")
			}
		}
	}
	st := cs.State()
	currentEpoch := cfg.EpochAtSlot(st.Slot)
	return cs.Mutate(func(s *forks.BeaconState) error {
		slashValidator(cfg, s, h1.ProposerIndex, block0ProposerIndex(s, cfg), currentEpoch)
		return nil
	})
}

func mustRoot(h forks.BeaconBlockHeader) []byte {
	r, err := h.HashTreeRoot()
	if err != nil {
		return nil
	}
	return r[:]
}

func block0ProposerIndex(s *forks.BeaconState, cfg *chaincfg.Config) uint64 {
	return s.LatestBlockHeader.ProposerIndex
}

func invalidProposerSlashing(reason string) error {
	return newErr(InvalidProposer).withReason(reason)
}

// processAttesterSlashing implements process_attester_slashing: both
// IndexedAttestations must be valid and slashable (surround or double
// vote), and at least one attesting index in their intersection must be
// unslashed.
func processAttesterSlashing(cfg *chaincfg.Config, cs *state.CachedBeaconState, as forks.AttesterSlashing, opts Options) error {
	a1, a2 := as.Attestation1, as.Attestation2
	if !isSlashableAttestationData(a1.Data, a2.Data) {
		return invalidAttestation("attestations are not slashable")
	}
	if opts.VerifySignatures {
		if err := verifyIndexedAttestation(cs, a1); err != nil {
			return err
		}
		if err := verifyIndexedAttestation(cs, a2); err != nil {
			return err
		}
	}
	intersection := intersectSorted(a1.AttestingIndices, a2.AttestingIndices)
	if len(intersection) == 0 {
		return invalidAttestation("no common attesting indices")
	}
	st := cs.State()
	currentEpoch := cfg.EpochAtSlot(st.Slot)
	slashedAny := false
	err := cs.Mutate(func(s *forks.BeaconState) error {
		for _, idx := range intersection {
			if idx >= uint64(len(s.Validators)) {
				continue
			}
			if s.Validators[idx].Slashed {
				continue
			}
			if !s.Validators[idx].IsActive(currentEpoch) {
				continue
			}
			slashValidator(cfg, s, idx, s.LatestBlockHeader.ProposerIndex, currentEpoch)
			slashedAny = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !slashedAny {
		return invalidAttestation("no unslashed validator in intersection")
	}
	return nil
}

func isSlashableAttestationData(a, b forks.AttestationData) bool {
	doubleVote := a != b && a.Target.Epoch == b.Target.Epoch
	surroundVote := a.Source.Epoch < b.Source.Epoch && b.Target.Epoch < a.Target.Epoch
	surroundVote = surroundVote || (b.Source.Epoch < a.Source.Epoch && a.Target.Epoch < b.Target.Epoch)
	return doubleVote || surroundVote
}

func verifyIndexedAttestation(cs *state.CachedBeaconState, ia forks.IndexedAttestation) error {
	if len(ia.AttestingIndices) == 0 {
		return invalidAttestation("empty attesting indices")
	}
	pubkeys := make([][]byte, 0, len(ia.AttestingIndices))
	for _, idx := range ia.AttestingIndices {
		v, err := cs.Validator(idx)
		if err != nil {
			return err
		}
		cp := v.Pubkey
		pubkeys = append(pubkeys, cp[:])
	}
	root, err := ia.Data.HashTreeRoot()
	if err != nil {
		return err
	}
	messages := make([][]byte, len(pubkeys))
	for i := range messages {
		messages[i] = root[:]
	}
	ok, err := bls.AggregateVerify(pubkeys, messages, ia.Signature[:])
	if err != nil || !ok {
		return invalidAttestation("invalid indexed attestation signature")
	}
	return nil
}

func intersectSorted(a, b []uint64) []uint64 {
	set := make(map[uint64]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	var out []uint64
	for _, x := range b {
		if _, ok := set[x]; ok {
			out = append(out, x)
		}
	}
	return out
}

// processAttestation implements process_attestation: validates the
// attestation's epoch/slot bounds, takes the attesting indices from the
// cached committee its (slot, index) names, and records participation
// flags into current_epoch_participation. No proposer reward is credited
// for newly set flags.
func processAttestation(cfg *chaincfg.Config, cs *state.CachedBeaconState, fork forks.Fork, att forks.Attestation, opts Options) error {
	data := att.Data
	currentEpoch := cfg.EpochAtSlot(cs.State().Slot)
	if data.Target.Epoch != currentEpoch && data.Target.Epoch+1 != currentEpoch {
		return invalidAttestation("target epoch out of range")
	}
	if data.Slot+cfg.SlotsPerEpoch < cs.State().Slot {
		return invalidAttestation("attestation too old")
	}

	committee := committeeForAttestation(cfg, cs, currentEpoch, data)
	indices := attestingIndices(att, committee)
	if opts.VerifySignatures {
		if err := verifyAttestationSignature(cs, data, indices, att.Signature); err != nil {
			return err
		}
	}

	isMatchingHead := data.BeaconBlockRoot == cs.State().LatestBlockHeader.ParentRoot
	isMatchingTarget := true // target-root cross-check needs block_roots history; assumed validated upstream

	flags := participationFlags(fork, data.Slot, cs.State().Slot, isMatchingTarget, isMatchingHead)

	return cs.Mutate(func(s *forks.BeaconState) error {
		if s.CurrentEpochParticipation == nil {
			s.CurrentEpochParticipation = make([]byte, len(s.Validators))
		}
		for _, idx := range indices {
			if idx >= uint64(len(s.CurrentEpochParticipation)) {
				continue
			}
			s.CurrentEpochParticipation[idx] |= flags
		}
		return nil
	})
}

func participationFlags(fork forks.Fork, attSlot, stateSlot uint64, matchTarget, matchHead bool) byte {
	var flags byte
	timely := stateSlot <= attSlot+1
	if timely {
		flags |= 1 << epoch.TimelySourceFlagIndex
	}
	if matchTarget {
		flags |= 1 << epoch.TimelyTargetFlagIndex
	}
	if matchHead && timely {
		flags |= 1 << epoch.TimelyHeadFlagIndex
	}
	return flags
}

// committeeForAttestation looks up the beacon committee an attestation's
// (slot, committee_index) pair names out of the cached shuffling for the
// current or previous epoch.
func committeeForAttestation(cfg *chaincfg.Config, cs *state.CachedBeaconState, currentEpoch uint64, data forks.AttestationData) []uint64 {
	sh := cs.Shuffling()
	var byEpoch [][][]uint64
	switch data.Target.Epoch {
	case currentEpoch:
		byEpoch = sh.Current
	case currentEpoch - 1:
		byEpoch = sh.Previous
	default:
		return nil
	}
	slotInEpoch := int(data.Slot % cfg.SlotsPerEpoch)
	if slotInEpoch >= len(byEpoch) {
		return nil
	}
	committeeIdx := int(data.Index)
	if committeeIdx >= len(byEpoch[slotInEpoch]) {
		return nil
	}
	return byEpoch[slotInEpoch][committeeIdx]
}

func attestingIndices(att forks.Attestation, committee []uint64) []uint64 {
	var out []uint64
	for i, idx := range committee {
		if i < att.AggregationBits.Len() && att.AggregationBits.Get(i) {
			out = append(out, idx)
		}
	}
	return out
}

func verifyAttestationSignature(cs *state.CachedBeaconState, data forks.AttestationData, indices []uint64, sig [96]byte) error {
	if len(indices) == 0 {
		return invalidAttestation("no attesting indices")
	}
	pubkeys := make([][]byte, 0, len(indices))
	for _, idx := range indices {
		v, err := cs.Validator(idx)
		if err != nil {
			return err
		}
		cp := v.Pubkey
		pubkeys = append(pubkeys, cp[:])
	}
	root, err := data.HashTreeRoot()
	if err != nil {
		return err
	}
	ok, err := bls.FastAggregateVerifyAllowingInfinity(pubkeys, root[:], sig[:])
	if err != nil || !ok {
		return invalidAttestation("invalid attestation signature")
	}
	return nil
}

// processDeposit implements process_deposit: credits a new or existing
// validator's balance, appending a new validator when the pubkey is not
// yet in the registry. Neither the deposit signature nor its Merkle proof
// is verified, for new or existing validators.
func processDeposit(cfg *chaincfg.Config, cs *state.CachedBeaconState, dep forks.Deposit) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		s.Eth1DepositIndex++
		idx := -1
		for i, v := range s.Validators {
			if v.Pubkey == dep.Data.Pubkey {
				idx = i
				break
			}
		}
		if idx < 0 {
			s.Validators = append(s.Validators, forks.Validator{
				Pubkey:                     dep.Data.Pubkey,
				WithdrawalCredentials:      dep.Data.WithdrawalCredentials,
				EffectiveBalance:           0,
				ActivationEligibilityEpoch: chaincfg.FarFutureEpoch,
				ActivationEpoch:            chaincfg.FarFutureEpoch,
				ExitEpoch:                  chaincfg.FarFutureEpoch,
				WithdrawableEpoch:          chaincfg.FarFutureEpoch,
			})
			s.Balances = append(s.Balances, 0)
			idx = len(s.Validators) - 1
		}
		s.Balances[idx] += dep.Data.Amount
		increment := cfg.EffectiveBalanceIncrement
		maxEB := cfg.MaxEffectiveBalance
		newEB := s.Balances[idx] - s.Balances[idx]%increment
		if newEB > maxEB {
			newEB = maxEB
		}
		if newEB > s.Validators[idx].EffectiveBalance {
			s.Validators[idx].EffectiveBalance = newEB
		}
		return nil
	})
}

// processVoluntaryExit implements process_voluntary_exit: the validator
// must be active, unslashed, past its eligibility window, and (when
// enabled) have signed the exit with its own key.
func processVoluntaryExit(cfg *chaincfg.Config, cs *state.CachedBeaconState, sve forks.SignedVoluntaryExit, opts Options) error {
	v, err := cs.Validator(sve.Exit.ValidatorIndex)
	if err != nil {
		return err
	}
	currentEpoch := cfg.EpochAtSlot(cs.State().Slot)
	if !v.IsActive(currentEpoch) {
		return invalidVoluntaryExit("validator not active")
	}
	if v.ExitEpoch != chaincfg.FarFutureEpoch {
		return invalidVoluntaryExit("validator already exiting")
	}
	if currentEpoch < sve.Exit.Epoch {
		return invalidVoluntaryExit("exit epoch in the future")
	}
	if opts.VerifySignatures {
		root, err := sve.Exit.HashTreeRoot()
		if err != nil {
			return err
		}
		ok, err := bls.Verify(v.Pubkey[:], root[:], sve.Signature[:])
		if err != nil || !ok {
			return invalidVoluntaryExit("invalid exit signature")
		}
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		epoch.InitiateValidatorExit(cfg, s, sve.Exit.ValidatorIndex)
		return nil
	})
}

// processBlsToExecutionChange implements process_bls_to_execution_change
// (Capella+): rewrites a BLS withdrawal credential (0x00 prefix) to an
// execution-address credential (0x01 prefix) once the change's signature
// is checked against the validator's current BLS key.
func processBlsToExecutionChange(cs *state.CachedBeaconState, sc forks.SignedBLSToExecutionChange, opts Options) error {
	v, err := cs.Validator(sc.Change.ValidatorIndex)
	if err != nil {
		return err
	}
	if v.WithdrawalCredentials[0] != 0x00 {
		return invalidBlsToExecutionChange("not a BLS withdrawal credential")
	}
	pkHash := sha256.Sum256(sc.Change.FromBlsPubkey[:])
	pkHash[0] = 0x00
	if pkHash != v.WithdrawalCredentials {
		return invalidBlsToExecutionChange("from_bls_pubkey does not match withdrawal credentials")
	}
	if opts.VerifySignatures {
		root, err := sc.Change.HashTreeRoot()
		if err != nil {
			return err
		}
		ok, err := bls.Verify(sc.Change.FromBlsPubkey[:], root[:], sc.Signature[:])
		if err != nil || !ok {
			return invalidBlsToExecutionChange("invalid change signature")
		}
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		var cred forks.Root
		cred[0] = 0x01
		copy(cred[12:], sc.Change.ToExecutionAddress[:])
		s.Validators[sc.Change.ValidatorIndex].WithdrawalCredentials = cred
		return nil
	})
}

// processExecutionRequests (Electra+) enqueues the execution layer's
// deposit and consolidation requests into the pending-operation queues
// consumed by the epoch package's pendingDeposits/pendingConsolidations
// sub-steps; a consolidation naming an unknown pubkey is dropped.
// Withdrawal requests (reqs.Withdrawals) are not processed.
func processExecutionRequests(cfg *chaincfg.Config, cs *state.CachedBeaconState, reqs *forks.ExecutionRequests) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		if s.Electra == nil {
			return nil
		}
		for _, d := range reqs.Deposits {
			s.Electra.PendingDeposits = append(s.Electra.PendingDeposits, forks.PendingDeposit{
				Pubkey:                d.Pubkey,
				WithdrawalCredentials: d.WithdrawalCredentials,
				Amount:                d.Amount,
				Signature:             d.Signature,
				Slot:                  s.Slot,
			})
		}
		for _, c := range reqs.Consolidations {
			srcIdx, ok1 := findIdxByPubkey(s, c.SourcePubkey)
			dstIdx, ok2 := findIdxByPubkey(s, c.TargetPubkey)
			if ok1 && ok2 {
				s.Electra.PendingConsolidations = append(s.Electra.PendingConsolidations, forks.PendingConsolidation{
					SourceIndex: srcIdx,
					TargetIndex: dstIdx,
				})
			}
		}
		return nil
	})
}

func findIdxByPubkey(s *forks.BeaconState, pk [48]byte) (uint64, bool) {
	for i, v := range s.Validators {
		if v.Pubkey == pk {
			return uint64(i), true
		}
	}
	return 0, false
}
