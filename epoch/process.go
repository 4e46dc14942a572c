package epoch

import (
	"sort"
	"time"

	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/forks"
	"github.com/beacon-stf/corestate/metrics"
	"github.com/beacon-stf/corestate/ssz"
	"github.com/beacon-stf/corestate/state"
)

// Process runs process_epoch: builds a fresh TransitionCache and dispatches
// every sub-step in the fork-dependent consensus order (Electra has the
// full list; earlier forks omit sub-steps their fork predates), timing
// each one into sink's epoch_transition_step_seconds{step} series.
func Process(cfg *chaincfg.Config, cs *state.CachedBeaconState, sink metrics.STFSink) error {
	if sink == nil {
		sink = metrics.NoopSTFSink
	}
	epochStart := time.Now()
	defer func() {
		d := time.Since(epochStart)
		sink.EpochTransitionSeconds().Observe(d.Seconds())
		metrics.EpochsProcessed.Inc()
		metrics.EpochProcessTime.Observe(float64(d.Milliseconds()))
	}()

	tc := New(cfg, cs)
	fork := cs.Fork()

	steps := []struct {
		name string
		fn   func(*chaincfg.Config, *state.CachedBeaconState, *TransitionCache) error
	}{
		{"justification_and_finalization", justificationAndFinalization},
	}
	if fork.AtLeast(forks.Altair) {
		steps = append(steps, struct {
			name string
			fn   func(*chaincfg.Config, *state.CachedBeaconState, *TransitionCache) error
		}{"inactivity_updates", inactivityUpdates})
	}
	steps = append(steps,
		kv("rewards_and_penalties", rewardsAndPenalties),
		kv("registry_updates", registryUpdates),
		kv("slashings", processSlashings),
		kv("eth1_data_reset", eth1DataReset),
		kv("effective_balance_updates", effectiveBalanceUpdates),
		kv("slashings_reset", slashingsReset),
		kv("randao_mixes_reset", randaoMixesReset),
	)
	if fork.AtLeast(forks.Capella) {
		steps = append(steps, kv("historical_summaries_update", historicalSummariesUpdate))
	} else {
		steps = append(steps, kv("historical_roots_update", historicalRootsUpdate))
	}
	if fork.AtLeast(forks.Altair) {
		steps = append(steps,
			kv("participation_flag_updates", participationFlagUpdates),
			kv("sync_committee_updates", syncCommitteeUpdates),
		)
	}
	if fork.AtLeast(forks.Electra) {
		steps = append(steps,
			kv("pending_deposits", pendingDeposits),
			kv("pending_consolidations", pendingConsolidations),
		)
	}
	if fork.AtLeast(forks.Fulu) {
		steps = append(steps, kv("proposer_lookahead", proposerLookahead))
	}

	for _, step := range steps {
		start := time.Now()
		err := step.fn(cfg, cs, tc)
		sink.EpochTransitionStepSeconds(step.name).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
	}

	commitStart := time.Now()
	if _, err := cs.Commit(); err != nil {
		return err
	}
	sink.EpochTransitionCommitSeconds().Observe(time.Since(commitStart).Seconds())
	return nil
}

func kv(name string, fn func(*chaincfg.Config, *state.CachedBeaconState, *TransitionCache) error) struct {
	name string
	fn   func(*chaincfg.Config, *state.CachedBeaconState, *TransitionCache) error
} {
	return struct {
		name string
		fn   func(*chaincfg.Config, *state.CachedBeaconState, *TransitionCache) error
	}{name, fn}
}

// justificationAndFinalization implements get_matching_target checkpoint
// bookkeeping: rotate the justification bitfield, and advance
// previous/current justified and finalized checkpoints per the four
// standard finality rules (k-of-n consecutive justified epochs).
func justificationAndFinalization(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	if tc.CurrentEpoch() <= chaincfg.GenesisEpoch+1 {
		return nil
	}
	prevTargetBalance := tc.FlagTotalBalance(-1, TimelyTargetFlagIndex)
	currTargetBalance := tc.FlagTotalBalance(0, TimelyTargetFlagIndex)

	return cs.Mutate(func(s *forks.BeaconState) error {
		oldPrevJustified := s.PreviousJustified
		oldCurrJustified := s.CurrentJustified

		s.PreviousJustified = s.CurrentJustified

		bits := s.JustificationBits
		// Shift the 4-bit justification history left by one, dropping the
		// oldest bit, to make room for a new current-epoch entry.
		shifted, err := ssz.NewBitvector(4)
		if err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if bits.Get(i) {
				shifted.Set(i + 1)
			}
		}

		if isSupermajority(prevTargetBalance, tc.TotalActiveBalance()) {
			s.CurrentJustified = forks.Checkpoint{Epoch: tc.PreviousEpoch(), Root: s.BlockRoots[cfg.StartSlotAtEpoch(tc.PreviousEpoch())%cfg.SlotsPerHistoricalRoot]}
			shifted.Set(1)
		}
		if isSupermajority(currTargetBalance, tc.TotalActiveBalance()) {
			s.CurrentJustified = forks.Checkpoint{Epoch: tc.CurrentEpoch(), Root: s.BlockRoots[cfg.StartSlotAtEpoch(tc.CurrentEpoch())%cfg.SlotsPerHistoricalRoot]}
			shifted.Set(0)
		}
		s.JustificationBits = shifted

		// Finalization rules: 2nd/3rd/4th consecutive justified epochs
		// finalize the oldest of the run.
		if shifted.Get(1) && shifted.Get(2) && shifted.Get(3) && oldPrevJustified.Epoch+3 == tc.CurrentEpoch() {
			s.FinalizedCheckpoint = oldPrevJustified
		} else if shifted.Get(1) && shifted.Get(2) && oldPrevJustified.Epoch+2 == tc.CurrentEpoch() {
			s.FinalizedCheckpoint = oldPrevJustified
		} else if shifted.Get(0) && shifted.Get(1) && shifted.Get(2) && oldCurrJustified.Epoch+2 == tc.CurrentEpoch() {
			s.FinalizedCheckpoint = oldCurrJustified
		} else if shifted.Get(0) && shifted.Get(1) && oldCurrJustified.Epoch+1 == tc.CurrentEpoch() {
			s.FinalizedCheckpoint = oldCurrJustified
		}
		return nil
	})
}

func isSupermajority(numerator, denominator uint64) bool {
	return numerator*3 >= denominator*2
}

// inactivityUpdates implements get_inactivity_penalty_deltas' score side
// (Altair+): validators not timely-target-participating accrue score,
// everyone else decays it, with an extra recovery decay while finality is
// not stalled (no inactivity leak).
func inactivityUpdates(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	if tc.CurrentEpoch() == chaincfg.GenesisEpoch {
		return nil
	}
	leaking := isInactivityLeak(cfg, tc)
	targetSet := tc.UnslashedParticipating(-1, TimelyTargetFlagIndex)
	return cs.Mutate(func(s *forks.BeaconState) error {
		for i := range s.Validators {
			idx := uint64(i)
			if !tc.IsEligible(idx) {
				continue
			}
			_, participated := targetSet[idx]
			if !participated {
				s.InactivityScores[i] += inactivityScoreBias
			} else if s.InactivityScores[i] > 0 {
				s.InactivityScores[i]--
			}
			if !leaking {
				dec := uint64(inactivityScoreRecoveryRate)
				if s.InactivityScores[i] < dec {
					dec = s.InactivityScores[i]
				}
				s.InactivityScores[i] -= dec
			}
		}
		return nil
	})
}

const inactivityScoreBias = 4
const inactivityScoreRecoveryRate = 16

func isInactivityLeak(cfg *chaincfg.Config, tc *TransitionCache) bool {
	return tc.FinalityDelay() > MinEpochsToInactivityPenalty
}

// FinalityDelay returns previous_epoch - finalized_checkpoint.epoch, the
// distance the leak predicate and the inactivity penalties key on. Kept as
// a TransitionCache method so rewardsAndPenalties and inactivityUpdates
// agree on one determination per epoch.
func (tc *TransitionCache) FinalityDelay() uint64 {
	if tc.previousEpoch < tc.finalizedEpoch {
		return 0
	}
	return tc.previousEpoch - tc.finalizedEpoch
}

// rewardsAndPenalties implements get_rewards_and_penalties: for every
// eligible validator, sum the timely-source/target/head deltas and, while
// leaking on Altair+ states, the inactivity penalty, accumulating into tc's
// reward/penalty buffers; no inclusion-delay component is computed. It then
// applies them to
// state.Balances in one pass (the accumulated deltas
// must equal the per-validator rewards/penalties arrays).
func rewardsAndPenalties(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	if tc.CurrentEpoch() == chaincfg.GenesisEpoch {
		return nil
	}
	leaking := isInactivityLeak(cfg, tc)
	st := cs.State()
	for i := range st.Validators {
		idx := uint64(i)
		if !tc.IsEligible(idx) {
			continue
		}
		base := tc.BaseReward(cfg, idx)
		for flag := 0; flag < 3; flag++ {
			weight := FlagWeights[flag]
			set := tc.UnslashedParticipating(-1, flag)
			if _, ok := set[idx]; ok && !leaking {
				tc.AddReward(idx, base*weight/WeightDenominator)
			} else if flag != TimelyHeadFlagIndex {
				tc.AddPenalty(idx, base*weight/WeightDenominator)
			}
		}
		if leaking && st.ForkTag.AtLeast(forks.Altair) {
			penaltyDenominator := InactivityPenaltyQuotientAltair
			if st.ForkTag.AtLeast(forks.Bellatrix) {
				penaltyDenominator = InactivityPenaltyQuotientBellatrix
			}
			penaltyNumerator := tc.EffectiveBalance(idx) * uint64(st.InactivityScores[i])
			tc.AddPenalty(idx, penaltyNumerator/uint64(penaltyDenominator))
		}
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		rewards, penalties := tc.Rewards(), tc.Penalties()
		for i := range s.Balances {
			s.Balances[i] += rewards[i]
			if penalties[i] >= s.Balances[i] {
				s.Balances[i] = 0
			} else {
				s.Balances[i] -= penalties[i]
			}
		}
		return nil
	})
}

// registryUpdates implements process_registry_updates: validators whose
// effective balance has dropped below ejection triggers an exit, and
// validators eligible for activation and within the churn limit get
// activated, ordered by (activation_eligibility_epoch, index).
func registryUpdates(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		var activationQueue []int
		for i := range s.Validators {
			v := &s.Validators[i]
			if tc.IsActive(0, uint64(i)) && v.EffectiveBalance <= ejectionBalance(cfg) {
				InitiateValidatorExit(cfg, s, uint64(i))
			}
			if v.ActivationEligibilityEpoch == chaincfg.FarFutureEpoch &&
				v.EffectiveBalance >= cfg.MaxEffectiveBalance {
				v.ActivationEligibilityEpoch = tc.CurrentEpoch() + 1
			}
			if isEligibleForActivation(v, tc) {
				activationQueue = append(activationQueue, i)
			}
		}
		sort.Slice(activationQueue, func(a, b int) bool {
			ea := s.Validators[activationQueue[a]].ActivationEligibilityEpoch
			eb := s.Validators[activationQueue[b]].ActivationEligibilityEpoch
			if ea != eb {
				return ea < eb
			}
			return activationQueue[a] < activationQueue[b]
		})
		churn := tc.ActivationChurnLimit()
		for n, i := range activationQueue {
			if uint64(n) >= churn {
				break
			}
			s.Validators[i].ActivationEpoch = computeActivationExitEpoch(cfg, tc.CurrentEpoch())
		}
		return nil
	})
}

func ejectionBalance(cfg *chaincfg.Config) uint64 { return cfg.EjectionBalance }

func isEligibleForActivation(v *forks.Validator, tc *TransitionCache) bool {
	return v.ActivationEligibilityEpoch <= tc.PreviousEpoch() && v.ActivationEpoch == chaincfg.FarFutureEpoch
}

func computeActivationExitEpoch(cfg *chaincfg.Config, epoch uint64) uint64 {
	return epoch + 1 + MaxSeedLookahead
}

// InitiateValidatorExit implements initiate_validator_exit: assigns the
// validator the next available exit epoch respecting the churn limit,
// computed via the earliest-exit-epoch ratchet used across every
// registry-update and voluntary-exit call site.
func InitiateValidatorExit(cfg *chaincfg.Config, s *forks.BeaconState, idx uint64) {
	v := &s.Validators[idx]
	if v.ExitEpoch != chaincfg.FarFutureEpoch {
		return
	}
	exitEpochs := make(map[uint64]int)
	maxExit := computeActivationExitEpoch(cfg, 0)
	for _, other := range s.Validators {
		if other.ExitEpoch != chaincfg.FarFutureEpoch {
			exitEpochs[other.ExitEpoch]++
			if other.ExitEpoch > maxExit {
				maxExit = other.ExitEpoch
			}
		}
	}
	churn := churnLimit(cfg, uint64(len(s.Validators)))
	exitQueueEpoch := maxExit
	for uint64(exitEpochs[exitQueueEpoch]) >= churn {
		exitQueueEpoch++
	}
	v.ExitEpoch = exitQueueEpoch
	v.WithdrawableEpoch = exitQueueEpoch + minValidatorWithdrawabilityDelay
}

const minValidatorWithdrawabilityDelay = 256

// processSlashings implements process_slashings: every slashed validator
// whose withdrawable epoch is exactly minValidatorWithdrawabilityDelay/2
// epochs after the current epoch is penalized proportionally to the total
// slashed balance over this epoch's window.
func processSlashings(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	st := cs.State()
	var totalSlashed uint64
	for _, amt := range st.Slashings {
		totalSlashed += amt
	}
	multiplier := uint64(ProportionalSlashingMultiplier)
	if st.ForkTag.AtLeast(forks.Bellatrix) {
		multiplier = ProportionalSlashingMultiplierBellatrix
	} else if st.ForkTag.AtLeast(forks.Altair) {
		multiplier = ProportionalSlashingMultiplierAltair
	}
	adjustedTotal := min64(totalSlashed*multiplier, tc.TotalActiveBalance())
	increment := cfg.EffectiveBalanceIncrement

	return cs.Mutate(func(s *forks.BeaconState) error {
		for i := range s.Validators {
			v := &s.Validators[i]
			if !v.Slashed || tc.CurrentEpoch()+minValidatorWithdrawabilityDelay/2 != v.WithdrawableEpoch {
				continue
			}
			penaltyNumerator := (v.EffectiveBalance / increment) * adjustedTotal
			penalty := (penaltyNumerator / tc.TotalActiveBalance()) * increment
			if penalty >= s.Balances[i] {
				s.Balances[i] = 0
			} else {
				s.Balances[i] -= penalty
			}
		}
		return nil
	})
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func eth1DataReset(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	if (tc.CurrentEpoch()+1)%chaincfg.EpochsPerEth1VotingPeriod != 0 {
		return nil
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		s.Eth1DataVotes = nil
		return nil
	})
}

// effectiveBalanceUpdates applies the hysteresis-bounded effective-balance
// rounding rule, then invalidates CachedBeaconState's effective-balance
// increments cache.
func effectiveBalanceUpdates(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	increment := cfg.EffectiveBalanceIncrement
	downward := increment / HysteresisQuotient * HysteresisDownwardMultiplier
	upward := increment / HysteresisQuotient * HysteresisUpwardMultiplier
	maxBalance := cfg.MaxEffectiveBalance
	err := cs.Mutate(func(s *forks.BeaconState) error {
		maxEB := maxBalance
		for i := range s.Validators {
			v := &s.Validators[i]
			if st := s.ForkTag; st.AtLeast(forks.Electra) {
				maxEB = effectiveBalanceCapElectra(cfg, v)
			}
			bal := s.Balances[i]
			if bal+downward < v.EffectiveBalance || v.EffectiveBalance+upward < bal {
				newEB := bal - bal%increment
				if newEB > maxEB {
					newEB = maxEB
				}
				v.EffectiveBalance = newEB
			}
		}
		return nil
	})
	cs.InvalidateEffectiveBalanceIncrements()
	return err
}

func effectiveBalanceCapElectra(cfg *chaincfg.Config, v *forks.Validator) uint64 {
	if hasCompoundingWithdrawalCredentials(v) {
		return cfg.MaxEffectiveBalanceElectra
	}
	return cfg.MaxEffectiveBalance
}

func hasCompoundingWithdrawalCredentials(v *forks.Validator) bool {
	return v.WithdrawalCredentials[0] == 0x02
}

func slashingsReset(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		idx := (tc.CurrentEpoch() + 1) % (uint64(len(s.Slashings)))
		s.Slashings[idx] = 0
		return nil
	})
}

func randaoMixesReset(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		n := uint64(len(s.RandaoMixes))
		cur := tc.CurrentEpoch() % n
		next := (tc.CurrentEpoch() + 1) % n
		s.RandaoMixes[next] = s.RandaoMixes[cur]
		return nil
	})
}

// historicalRootsUpdate (phase0..bellatrix): appends a historical_batch
// root every SLOTS_PER_HISTORICAL_ROOT // SLOTS_PER_EPOCH epochs.
func historicalRootsUpdate(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	period := cfg.SlotsPerHistoricalRoot / cfg.SlotsPerEpoch
	if period == 0 || (tc.CurrentEpoch()+1)%period != 0 {
		return nil
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		batchRoot := ssz.HashTreeRootContainer([][32]byte{
			ssz.HashTreeRootVector(s.BlockRoots),
			ssz.HashTreeRootVector(s.StateRoots),
		})
		s.HistoricalRoots = append(s.HistoricalRoots, batchRoot)
		return nil
	})
}

// historicalSummariesUpdate (Capella+): same cadence, but appends a
// {block_summary_root, state_summary_root} pair instead of a combined
// hash, avoiding HistoricalRoots' unbounded growth.
func historicalSummariesUpdate(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	period := cfg.SlotsPerHistoricalRoot / cfg.SlotsPerEpoch
	if period == 0 || (tc.CurrentEpoch()+1)%period != 0 {
		return nil
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		s.HistoricalSummaries = append(s.HistoricalSummaries, forks.HistoricalSummary{
			BlockSummaryRoot: ssz.HashTreeRootVector(s.BlockRoots),
			StateSummaryRoot: ssz.HashTreeRootVector(s.StateRoots),
		})
		return nil
	})
}

// participationFlagUpdates rotates current -> previous and resets current
// to zero, ready for the new epoch's blocks to populate.
func participationFlagUpdates(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		s.PreviousEpochParticipation = s.CurrentEpochParticipation
		s.CurrentEpochParticipation = make([]byte, len(s.Validators))
		return nil
	})
}

// syncCommitteeUpdates (Altair+) rotates the sync committee every
// EPOCHS_PER_SYNC_COMMITTEE_PERIOD boundary; actual committee selection is
// owned by the shuffling cache populated via SetShuffling/SetSyncCommitteeIndices
// ahead of this call.
func syncCommitteeUpdates(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	const epochsPerSyncCommitteePeriod = 256
	if (tc.CurrentEpoch()+1)%epochsPerSyncCommitteePeriod != 0 {
		return nil
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		if s.CurrentSyncCommittee == nil || s.NextSyncCommittee == nil {
			return nil
		}
		s.CurrentSyncCommittee = s.NextSyncCommittee
		nextIndices := cs.SyncCommitteeIndices(false)
		committee, err := buildSyncCommittee(s, nextIndices)
		if err != nil {
			return err
		}
		s.NextSyncCommittee = committee
		return nil
	})
}

func buildSyncCommittee(s *forks.BeaconState, indices []uint64) (*forks.SyncCommittee, error) {
	pubkeys := make([][48]byte, len(indices))
	for i, vi := range indices {
		if vi >= uint64(len(s.Validators)) {
			return nil, state.ErrIndexOutOfBounds
		}
		pubkeys[i] = s.Validators[vi].Pubkey
	}
	return &forks.SyncCommittee{Pubkeys: pubkeys}, nil
}

// pendingDeposits (Electra+) drains the pending-deposit queue against
// DepositBalanceToConsume, popping from the queue head until the next
// deposit no longer fits and crediting the balance of the validator whose
// pubkey matches. No churn limit is added to the available balance, no
// validator is activated, and a deposit whose pubkey matches no validator
// is consumed without creating one.
func pendingDeposits(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		if s.Electra == nil || len(s.Electra.PendingDeposits) == 0 {
			return nil
		}
		available := s.Electra.DepositBalanceToConsume
		var processed int
		for _, pd := range s.Electra.PendingDeposits {
			if pd.Amount > available {
				break
			}
			available -= pd.Amount
			idx := findValidatorByPubkey(s, pd.Pubkey)
			if idx >= 0 {
				s.Balances[idx] += pd.Amount
			}
			processed++
		}
		s.Electra.PendingDeposits = s.Electra.PendingDeposits[processed:]
		s.Electra.DepositBalanceToConsume = available
		return nil
	})
}

func findValidatorByPubkey(s *forks.BeaconState, pk [48]byte) int {
	for i, v := range s.Validators {
		if v.Pubkey == pk {
			return i
		}
	}
	return -1
}

// pendingConsolidations (Electra+) moves each source validator's whole
// balance to its target, in queue order; entries whose source is already
// exiting are dropped, and the queue stops at the first out-of-range index.
// No consolidation churn limit is applied.
func pendingConsolidations(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	return cs.Mutate(func(s *forks.BeaconState) error {
		if s.Electra == nil || len(s.Electra.PendingConsolidations) == 0 {
			return nil
		}
		var processed int
		for _, pc := range s.Electra.PendingConsolidations {
			if pc.SourceIndex >= uint64(len(s.Validators)) || pc.TargetIndex >= uint64(len(s.Validators)) {
				break
			}
			if s.Validators[pc.SourceIndex].ExitEpoch != chaincfg.FarFutureEpoch {
				processed++
				continue
			}
			amount := s.Balances[pc.SourceIndex]
			s.Balances[pc.SourceIndex] = 0
			s.Balances[pc.TargetIndex] += amount
			processed++
		}
		s.Electra.PendingConsolidations = s.Electra.PendingConsolidations[processed:]
		return nil
	})
}

// proposerLookahead (Fulu+) recomputes the committed lookahead vector from
// the shuffling cache's per-slot proposer
// selection.
func proposerLookahead(cfg *chaincfg.Config, cs *state.CachedBeaconState, tc *TransitionCache) error {
	next := cs.ProposerIndices()
	return cs.Mutate(func(s *forks.BeaconState) error {
		if s.Electra == nil {
			return nil
		}
		s.Electra.ProposerLookahead = append(s.Electra.ProposerLookahead[:0], next...)
		return nil
	})
}
