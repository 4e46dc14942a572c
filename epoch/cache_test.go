package epoch

import (
	"testing"

	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/forks"
	"github.com/beacon-stf/corestate/ssz"
	"github.com/beacon-stf/corestate/state"
)

// altairTestConfig keeps Altair active from genesis but leaves the later
// forks unscheduled, so epoch tests can exercise the Altair step list
// without Electra's pending queues in play.
func altairTestConfig() *chaincfg.Config {
	cfg := chaincfg.Minimal()
	cfg.BellatrixForkEpoch = chaincfg.FarFutureEpoch
	cfg.CapellaForkEpoch = chaincfg.FarFutureEpoch
	cfg.DenebForkEpoch = chaincfg.FarFutureEpoch
	cfg.ElectraForkEpoch = chaincfg.FarFutureEpoch
	return cfg
}

func newAltairState(t *testing.T, cfg *chaincfg.Config, numValidators int, slot uint64) *state.CachedBeaconState {
	t.Helper()
	vs := make([]forks.Validator, numValidators)
	balances := make([]uint64, numValidators)
	for i := range vs {
		vs[i] = forks.Validator{
			EffectiveBalance:  32_000_000_000,
			ExitEpoch:         chaincfg.FarFutureEpoch,
			WithdrawableEpoch: chaincfg.FarFutureEpoch,
		}
		vs[i].Pubkey[0] = byte(i + 1)
		balances[i] = 32_000_000_000
	}
	bits, err := ssz.NewBitvector(4)
	if err != nil {
		t.Fatalf("NewBitvector: %v", err)
	}
	st := &forks.BeaconState{
		ForkTag:                    forks.Altair,
		Slot:                       slot,
		Validators:                 vs,
		Balances:                   balances,
		BlockRoots:                 make([]forks.Root, cfg.SlotsPerHistoricalRoot),
		StateRoots:                 make([]forks.Root, cfg.SlotsPerHistoricalRoot),
		RandaoMixes:                make([]forks.Root, 64),
		Slashings:                  make([]uint64, 64),
		JustificationBits:          bits,
		PreviousEpochParticipation: make([]byte, numValidators),
		CurrentEpochParticipation:  make([]byte, numValidators),
		InactivityScores:           make([]uint64, numValidators),
	}
	cs, err := state.InitFromState(cfg, st, forks.Altair, nil)
	if err != nil {
		t.Fatalf("InitFromState: %v", err)
	}
	return cs
}

func TestNewCacheActiveAndEligibleFlags(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 4, cfg.SlotsPerEpoch*3-1)
	st := cs.State()
	st.Validators[1].ActivationEpoch = chaincfg.FarFutureEpoch // never activated
	st.Validators[2].ExitEpoch = 1                             // exited before epoch 2
	st.Validators[3].Slashed = true
	st.Validators[3].ExitEpoch = 1
	st.Validators[3].WithdrawableEpoch = 100

	tc := New(cfg, cs)
	if tc.CurrentEpoch() != 2 || tc.PreviousEpoch() != 1 {
		t.Fatalf("epochs = %d/%d, want 2/1", tc.CurrentEpoch(), tc.PreviousEpoch())
	}
	if !tc.IsActive(0, 0) || tc.IsActive(0, 1) || tc.IsActive(0, 2) {
		t.Fatalf("active flags wrong: %v %v %v", tc.IsActive(0, 0), tc.IsActive(0, 1), tc.IsActive(0, 2))
	}
	if !tc.IsEligible(0) {
		t.Fatalf("validator 0 should be eligible")
	}
	if tc.IsEligible(1) {
		t.Fatalf("never-activated validator should not be eligible")
	}
	// Slashed but not yet withdrawable: still owed epoch processing.
	if !tc.IsEligible(3) {
		t.Fatalf("slashed, not-yet-withdrawable validator should be eligible")
	}
}

func TestNewCacheTotalActiveBalanceFloor(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 2, cfg.SlotsPerEpoch-1)
	st := cs.State()
	for i := range st.Validators {
		st.Validators[i].ActivationEpoch = chaincfg.FarFutureEpoch
	}
	tc := New(cfg, cs)
	if tc.TotalActiveBalance() != cfg.EffectiveBalanceIncrement {
		t.Fatalf("empty active set must floor total balance at one increment, got %d", tc.TotalActiveBalance())
	}
}

func TestNewCachePopulatesParticipationSets(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 4, cfg.SlotsPerEpoch*2-1)
	st := cs.State()
	// Validator 0 had all three flags last epoch; validator 1 only source;
	// validator 2 target but slashed (must be excluded).
	st.PreviousEpochParticipation[0] = 0b111
	st.PreviousEpochParticipation[1] = 1 << TimelySourceFlagIndex
	st.PreviousEpochParticipation[2] = 1 << TimelyTargetFlagIndex
	st.Validators[2].Slashed = true

	tc := New(cfg, cs)
	target := tc.UnslashedParticipating(-1, TimelyTargetFlagIndex)
	if _, ok := target[0]; !ok {
		t.Fatalf("validator 0 missing from target set")
	}
	if _, ok := target[1]; ok {
		t.Fatalf("validator 1 has no target flag but is in the set")
	}
	if _, ok := target[2]; ok {
		t.Fatalf("slashed validator must be excluded from participating sets")
	}
	if got := tc.FlagTotalBalance(-1, TimelyTargetFlagIndex); got != 32_000_000_000 {
		t.Fatalf("target balance = %d, want one validator's effective balance", got)
	}
}

func TestChurnLimitFloor(t *testing.T) {
	if got := churnLimit(chaincfg.Minimal(), 10); got != MinPerEpochChurnLimit {
		t.Fatalf("small registries must floor the churn limit at %d, got %d", MinPerEpochChurnLimit, got)
	}
	if got := churnLimit(chaincfg.Minimal(), 20*ChurnLimitQuotient); got != 20 {
		t.Fatalf("churn limit = %d, want 20", got)
	}
}

func TestBaseRewardUsesIntegerSqrt(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 4, cfg.SlotsPerEpoch-1)
	tc := New(cfg, cs)
	// total active balance = 4 * 32e9 = 128e9; floor(sqrt) = 357770.
	perIncrement := cfg.EffectiveBalanceIncrement * BaseRewardFactor / 357770
	want := 32 * perIncrement
	if got := tc.BaseReward(cfg, 0); got != want {
		t.Fatalf("BaseReward = %d, want %d", got, want)
	}
	if want == 0 {
		t.Fatalf("base reward must be nonzero for a funded validator")
	}
}

func TestRewardPenaltyAccumulators(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 2, cfg.SlotsPerEpoch-1)
	tc := New(cfg, cs)
	tc.AddReward(0, 10)
	tc.AddReward(0, 5)
	tc.AddPenalty(1, 7)
	if tc.Rewards()[0] != 15 || tc.Rewards()[1] != 0 {
		t.Fatalf("rewards = %v", tc.Rewards())
	}
	if tc.Penalties()[1] != 7 {
		t.Fatalf("penalties = %v", tc.Penalties())
	}
}
