package epoch

import (
	"testing"

	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/forks"
)

func TestProcessRunsAltairStepList(t *testing.T) {
	cfg := altairTestConfig()
	// Last slot of epoch 1, full previous-epoch participation.
	cs := newAltairState(t, cfg, 8, cfg.SlotsPerEpoch*2-1)
	st := cs.State()
	for i := range st.PreviousEpochParticipation {
		st.PreviousEpochParticipation[i] = 0b111
	}
	for i := range st.CurrentEpochParticipation {
		st.CurrentEpochParticipation[i] = 1 << TimelyTargetFlagIndex
	}
	st.RandaoMixes[1][0] = 0xaa

	if err := Process(cfg, cs, nil); err != nil {
		t.Fatalf("Process: %v", err)
	}

	post := cs.State()
	// participation_flag_updates: current rotated into previous, current zeroed.
	if post.PreviousEpochParticipation[0] != 1<<TimelyTargetFlagIndex {
		t.Fatalf("previous participation not rotated: %08b", post.PreviousEpochParticipation[0])
	}
	for i, p := range post.CurrentEpochParticipation {
		if p != 0 {
			t.Fatalf("current participation[%d] not reset: %08b", i, p)
		}
	}
	// randao_mixes_reset: next epoch's mix seeded from the current one.
	if post.RandaoMixes[2] != post.RandaoMixes[1] {
		t.Fatalf("randao mix for next epoch not copied forward")
	}
	// slashings_reset: the next epoch's slashings slot is zeroed.
	if post.Slashings[2] != 0 {
		t.Fatalf("slashings slot for next epoch not reset")
	}
}

func TestRewardsAndPenaltiesBalanceInvariant(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 8, cfg.SlotsPerEpoch*2-1)
	st := cs.State()
	// Half the validators participated fully last epoch, half not at all.
	for i := 0; i < 4; i++ {
		st.PreviousEpochParticipation[i] = 0b111
	}
	balancesBefore := append([]uint64(nil), st.Balances...)

	tc := New(cfg, cs)
	if err := rewardsAndPenalties(cfg, cs, tc); err != nil {
		t.Fatalf("rewardsAndPenalties: %v", err)
	}

	// The per-validator balance delta must equal the accumulated
	// rewards-minus-penalties buffers, validator by validator.
	post := cs.State()
	for i := range post.Balances {
		want := balancesBefore[i] + tc.Rewards()[i]
		if tc.Penalties()[i] >= want {
			want = 0
		} else {
			want -= tc.Penalties()[i]
		}
		if post.Balances[i] != want {
			t.Fatalf("balance[%d] = %d, want %d (reward %d, penalty %d)",
				i, post.Balances[i], want, tc.Rewards()[i], tc.Penalties()[i])
		}
	}
	// Non-participants must accrue penalties, never rewards.
	for i := 4; i < 8; i++ {
		if tc.Rewards()[i] != 0 {
			t.Fatalf("non-participant %d earned a reward", i)
		}
	}
}

func TestEffectiveBalanceHysteresis(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 3, cfg.SlotsPerEpoch-1)
	st := cs.State()
	// Validator 0: small dip, inside the hysteresis band, no update.
	st.Balances[0] = 31_800_000_000
	// Validator 1: deep dip, below the downward threshold, rounds down.
	st.Balances[1] = 20_300_000_000
	// Validator 2: balance growth beyond the upward threshold, capped at max.
	st.Balances[2] = 40_000_000_000
	st.Validators[2].EffectiveBalance = 30_000_000_000

	tc := New(cfg, cs)
	if err := effectiveBalanceUpdates(cfg, cs, tc); err != nil {
		t.Fatalf("effectiveBalanceUpdates: %v", err)
	}

	post := cs.State()
	if post.Validators[0].EffectiveBalance != 32_000_000_000 {
		t.Fatalf("hysteresis band breached: %d", post.Validators[0].EffectiveBalance)
	}
	if post.Validators[1].EffectiveBalance != 20_000_000_000 {
		t.Fatalf("downward update = %d, want 20_000_000_000", post.Validators[1].EffectiveBalance)
	}
	if post.Validators[2].EffectiveBalance != cfg.MaxEffectiveBalance {
		t.Fatalf("upward update must cap at MaxEffectiveBalance, got %d", post.Validators[2].EffectiveBalance)
	}
}

func TestInitiateValidatorExitRatchet(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 6, cfg.SlotsPerEpoch-1)
	st := cs.State()

	InitiateValidatorExit(cfg, st, 0)
	first := st.Validators[0].ExitEpoch
	if first == chaincfg.FarFutureEpoch {
		t.Fatalf("exit epoch not assigned")
	}
	if st.Validators[0].WithdrawableEpoch != first+minValidatorWithdrawabilityDelay {
		t.Fatalf("withdrawable epoch not offset from exit epoch")
	}

	// Re-initiating an exit must be a no-op.
	InitiateValidatorExit(cfg, st, 0)
	if st.Validators[0].ExitEpoch != first {
		t.Fatalf("second initiate changed the exit epoch")
	}

	// Fill the churn for the first exit epoch; the next exits spill over.
	for i := 1; i < 5; i++ {
		InitiateValidatorExit(cfg, st, uint64(i))
	}
	last := st.Validators[4].ExitEpoch
	if last <= first {
		t.Fatalf("churn-limited exits must ratchet the exit epoch forward: first=%d last=%d", first, last)
	}
}

func TestInactivityScoresDuringLeak(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 4, cfg.SlotsPerEpoch*10-1)
	st := cs.State()
	// Finality stalled well past the grace window: the leak is on and the
	// recovery decay does not apply.
	st.FinalizedCheckpoint.Epoch = 0
	// Validator 0 participated (target flag), validator 1 did not.
	st.PreviousEpochParticipation[0] = 1 << TimelyTargetFlagIndex
	st.InactivityScores[0] = 8
	st.InactivityScores[1] = 8

	tc := New(cfg, cs)
	if !isInactivityLeak(cfg, tc) {
		t.Fatalf("expected a leak with finality %d epochs behind", tc.FinalityDelay())
	}
	if err := inactivityUpdates(cfg, cs, tc); err != nil {
		t.Fatalf("inactivityUpdates: %v", err)
	}

	post := cs.State()
	if post.InactivityScores[0] != 7 {
		t.Fatalf("participant's score must decay by one, got %d", post.InactivityScores[0])
	}
	if post.InactivityScores[1] != 8+inactivityScoreBias {
		t.Fatalf("non-participant's score must grow by the bias, got %d", post.InactivityScores[1])
	}
}

func TestInactivityScoresRecoverOutsideLeak(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 4, cfg.SlotsPerEpoch*10-1)
	st := cs.State()
	// Finality is current enough: the recovery rate drains small scores.
	st.FinalizedCheckpoint.Epoch = 7
	st.PreviousEpochParticipation[0] = 1 << TimelyTargetFlagIndex
	st.InactivityScores[0] = 8
	st.InactivityScores[1] = 8

	tc := New(cfg, cs)
	if isInactivityLeak(cfg, tc) {
		t.Fatalf("unexpected leak with finality %d epochs behind", tc.FinalityDelay())
	}
	if err := inactivityUpdates(cfg, cs, tc); err != nil {
		t.Fatalf("inactivityUpdates: %v", err)
	}

	post := cs.State()
	if post.InactivityScores[0] != 0 || post.InactivityScores[1] != 0 {
		t.Fatalf("recovery must drain scores below the rate to zero, got %d/%d",
			post.InactivityScores[0], post.InactivityScores[1])
	}
}

func TestEpochStepListByFork(t *testing.T) {
	// The phase0 list must omit every Altair+ step; a phase0 state carries
	// no participation vectors, so Process reaching one would panic or error.
	cfg := altairTestConfig()
	cfg.AltairForkEpoch = chaincfg.FarFutureEpoch

	cs := newAltairState(t, cfg, 4, cfg.SlotsPerEpoch*2-1)
	if err := cs.Mutate(func(s *forks.BeaconState) error {
		s.ForkTag = forks.Phase0
		s.PreviousEpochParticipation = nil
		s.CurrentEpochParticipation = nil
		s.InactivityScores = nil
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if err := Process(cfg, cs, nil); err != nil {
		t.Fatalf("Process on phase0 state: %v", err)
	}
	if got := len(cs.State().HistoricalRoots); got != 0 {
		// Minimal config: 64/8 = 8 epoch period; epoch 1 is not a boundary.
		t.Fatalf("unexpected historical batch append: %d", got)
	}
}

func TestInactivityLeakPredicate(t *testing.T) {
	cfg := altairTestConfig()
	cs := newAltairState(t, cfg, 4, cfg.SlotsPerEpoch*10-1)
	// Finality is one epoch behind the previous epoch: no leak.
	cs.State().FinalizedCheckpoint.Epoch = 7
	tc := New(cfg, cs)
	if tc.FinalityDelay() != 1 {
		t.Fatalf("FinalityDelay = %d, want 1", tc.FinalityDelay())
	}
	if isInactivityLeak(cfg, tc) {
		t.Fatalf("one epoch behind finality must not count as a leak")
	}

	// Finality stalled for longer than the grace window: leaking.
	cs.State().FinalizedCheckpoint.Epoch = 2
	tc = New(cfg, cs)
	if !isInactivityLeak(cfg, tc) {
		t.Fatalf("finality %d epochs behind must count as a leak", tc.FinalityDelay())
	}
}
