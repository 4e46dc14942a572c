package epoch

import (
	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/forks"
	"github.com/beacon-stf/corestate/state"
)

// TransitionCache is the per-epoch working memory of epoch processing:
// validator flags, per-flag attesting-balance sums, churn limits, and the
// rewards/penalties buffers every process_epoch sub-step reads and writes.
// Built at the top of epoch processing, consumed by the sub-steps in
// process.go, and discarded after commit.
type TransitionCache struct {
	currentEpoch   uint64
	previousEpoch  uint64
	finalizedEpoch uint64

	isActivePrev []bool
	isActiveCurr []bool
	isActiveNext []bool
	isEligible   []bool

	// unslashedParticipating[epochIdx][flag] is the set of validator
	// indices that were both unslashed and had the flag set, epochIdx 0 =
	// previous epoch, 1 = current epoch. Filled only for Altair+ states;
	// for phase0 states the sets stay empty.
	unslashedParticipating [2][3]map[uint64]struct{}

	effectiveBalance []uint64

	rewards   []uint64
	penalties []uint64

	totalActiveBalance   uint64
	prevEpochTotalBalance [3]uint64 // per-flag attesting balance, previous epoch
	currEpochTotalBalance [3]uint64 // per-flag attesting balance, current epoch

	churnLimit           uint64
	activationChurnLimit uint64
}

// New builds a TransitionCache sized to cs.State().Validators, computing
// the active/eligible flags and per-flag attesting balances needed by
// every sub-step below. cfg supplies SLOTS_PER_EPOCH and
// EFFECTIVE_BALANCE_INCREMENT; the churn-limit constants are this
// package's own.
func New(cfg *chaincfg.Config, cs *state.CachedBeaconState) *TransitionCache {
	st := cs.State()
	n := len(st.Validators)
	curEpoch := cfg.EpochAtSlot(st.Slot)
	prevEpoch := uint64(0)
	if curEpoch > 0 {
		prevEpoch = curEpoch - 1
	}

	tc := &TransitionCache{
		currentEpoch:     curEpoch,
		previousEpoch:    prevEpoch,
		finalizedEpoch:   st.FinalizedCheckpoint.Epoch,
		isActivePrev:     make([]bool, n),
		isActiveCurr:     make([]bool, n),
		isActiveNext:     make([]bool, n),
		isEligible:       make([]bool, n),
		effectiveBalance: make([]uint64, n),
		rewards:          make([]uint64, n),
		penalties:        make([]uint64, n),
	}
	for f := 0; f < 3; f++ {
		tc.unslashedParticipating[0][f] = make(map[uint64]struct{})
		tc.unslashedParticipating[1][f] = make(map[uint64]struct{})
	}

	var activeCount uint64
	for i, v := range st.Validators {
		tc.effectiveBalance[i] = v.EffectiveBalance
		tc.isActivePrev[i] = v.IsActive(prevEpoch)
		tc.isActiveCurr[i] = v.IsActive(curEpoch)
		tc.isActiveNext[i] = v.IsActive(curEpoch + 1)
		// is_eligible: active in the previous epoch, or slashed-but-not-yet
		// withdrawable (still owed processing this epoch).
		tc.isEligible[i] = tc.isActivePrev[i] || (v.Slashed && prevEpoch+1 < v.WithdrawableEpoch)
		if tc.isActiveCurr[i] {
			activeCount += v.EffectiveBalance
		}
	}
	if activeCount < cfg.EffectiveBalanceIncrement {
		activeCount = cfg.EffectiveBalanceIncrement
	}
	tc.totalActiveBalance = activeCount
	cs.SetTotalActiveBalance(activeCount)

	tc.churnLimit = churnLimit(cfg, tc.activeValidatorCount(tc.isActiveCurr))
	tc.activationChurnLimit = tc.churnLimit

	if st.ForkTag.AtLeast(forks.Altair) {
		tc.populateParticipationAltair(cfg, st)
	}
	return tc
}

func (tc *TransitionCache) activeValidatorCount(active []bool) uint64 {
	var n uint64
	for _, a := range active {
		if a {
			n++
		}
	}
	return n
}

// churnLimit implements get_validator_churn_limit: max(MIN_PER_EPOCH_CHURN_LIMIT,
// active_validator_count // CHURN_LIMIT_QUOTIENT).
func churnLimit(cfg *chaincfg.Config, activeCount uint64) uint64 {
	limit := activeCount / ChurnLimitQuotient
	if limit < MinPerEpochChurnLimit {
		return MinPerEpochChurnLimit
	}
	return limit
}

// populateParticipationAltair reinterprets the Altair+ participation-flag
// byte vectors into the per-flag unslashed-participating index sets.
func (tc *TransitionCache) populateParticipationAltair(cfg *chaincfg.Config, st *forks.BeaconState) {
	for i, v := range st.Validators {
		if v.Slashed {
			continue
		}
		if i < len(st.PreviousEpochParticipation) && tc.isActivePrev[i] {
			b := st.PreviousEpochParticipation[i]
			for f := 0; f < 3; f++ {
				if b&(1<<uint(f)) != 0 {
					tc.unslashedParticipating[0][f][uint64(i)] = struct{}{}
					tc.prevEpochTotalBalance[f] += v.EffectiveBalance
				}
			}
		}
		if i < len(st.CurrentEpochParticipation) && tc.isActiveCurr[i] {
			b := st.CurrentEpochParticipation[i]
			for f := 0; f < 3; f++ {
				if b&(1<<uint(f)) != 0 {
					tc.unslashedParticipating[1][f][uint64(i)] = struct{}{}
					tc.currEpochTotalBalance[f] += v.EffectiveBalance
				}
			}
		}
	}
	for f := 0; f < 3; f++ {
		if tc.prevEpochTotalBalance[f] < cfg.EffectiveBalanceIncrement {
			tc.prevEpochTotalBalance[f] = cfg.EffectiveBalanceIncrement
		}
		if tc.currEpochTotalBalance[f] < cfg.EffectiveBalanceIncrement {
			tc.currEpochTotalBalance[f] = cfg.EffectiveBalanceIncrement
		}
	}
}

// --- named accessors rather than raw arrays, so sub-steps read through
// one stable surface ---

// CurrentEpoch returns the epoch this cache was built for.
func (tc *TransitionCache) CurrentEpoch() uint64 { return tc.currentEpoch }

// PreviousEpoch returns CurrentEpoch-1, saturating at 0.
func (tc *TransitionCache) PreviousEpoch() uint64 { return tc.previousEpoch }

// TotalActiveBalance returns the current epoch's total active balance,
// floored at EFFECTIVE_BALANCE_INCREMENT.
func (tc *TransitionCache) TotalActiveBalance() uint64 { return tc.totalActiveBalance }

// IsActive reports whether validator i was active at the given tracked
// epoch offset: -1 previous, 0 current, +1 next.
func (tc *TransitionCache) IsActive(offset int, i uint64) bool {
	switch offset {
	case -1:
		return tc.isActivePrev[i]
	case 1:
		return tc.isActiveNext[i]
	default:
		return tc.isActiveCurr[i]
	}
}

// IsEligible reports whether validator i is eligible for rewards/penalties
// this epoch.
func (tc *TransitionCache) IsEligible(i uint64) bool { return tc.isEligible[i] }

// UnslashedParticipating returns the set of validator indices that were
// unslashed and had participation flag `flag` set, for previous (epoch=-1)
// or current (epoch=0) epoch.
func (tc *TransitionCache) UnslashedParticipating(epochOffset int, flag int) map[uint64]struct{} {
	idx := 1
	if epochOffset < 0 {
		idx = 0
	}
	return tc.unslashedParticipating[idx][flag]
}

// FlagTotalBalance returns the summed effective balance of unslashed
// participating validators for the given flag and epoch offset.
func (tc *TransitionCache) FlagTotalBalance(epochOffset int, flag int) uint64 {
	if epochOffset < 0 {
		return tc.prevEpochTotalBalance[flag]
	}
	return tc.currEpochTotalBalance[flag]
}

// EffectiveBalance returns validator i's effective balance as captured at
// cache-build time (stable for the duration of epoch processing even if
// effective_balance_updates later changes the state).
func (tc *TransitionCache) EffectiveBalance(i uint64) uint64 { return tc.effectiveBalance[i] }

// AddReward accumulates a reward delta for validator i.
func (tc *TransitionCache) AddReward(i uint64, amount uint64) { tc.rewards[i] += amount }

// AddPenalty accumulates a penalty delta for validator i.
func (tc *TransitionCache) AddPenalty(i uint64, amount uint64) { tc.penalties[i] += amount }

// Rewards returns the accumulated per-validator reward deltas.
func (tc *TransitionCache) Rewards() []uint64 { return tc.rewards }

// Penalties returns the accumulated per-validator penalty deltas.
func (tc *TransitionCache) Penalties() []uint64 { return tc.penalties }

// ChurnLimit returns get_validator_churn_limit for the current epoch.
func (tc *TransitionCache) ChurnLimit() uint64 { return tc.churnLimit }

// ActivationChurnLimit returns get_validator_activation_churn_limit, which
// is identical to ChurnLimit for every fork; no balance-denominated
// (Electra) churn is computed.
func (tc *TransitionCache) ActivationChurnLimit() uint64 { return tc.activationChurnLimit }

// BaseReward implements get_base_reward: increments *
// get_base_reward_per_increment, where one increment's reward is
// EFFECTIVE_BALANCE_INCREMENT * BASE_REWARD_FACTOR // sqrt(total_active_balance).
func (tc *TransitionCache) BaseReward(cfg *chaincfg.Config, i uint64) uint64 {
	increments := tc.effectiveBalance[i] / cfg.EffectiveBalanceIncrement
	perIncrement := cfg.EffectiveBalanceIncrement * BaseRewardFactor / integerSqrt(tc.totalActiveBalance)
	return increments * perIncrement
}

// integerSqrt computes floor(sqrt(n)) using Newton's method, matching the
// consensus-spec's integer_squareroot helper.
func integerSqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
