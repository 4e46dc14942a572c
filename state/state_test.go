package state

import (
	"testing"

	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/forks"
	"github.com/beacon-stf/corestate/ssz"
)

func newPhase0State(t *testing.T, numValidators int) *forks.BeaconState {
	t.Helper()
	vs := make([]forks.Validator, numValidators)
	for i := range vs {
		vs[i] = forks.Validator{
			EffectiveBalance:  32_000_000_000,
			ExitEpoch:         chaincfg.FarFutureEpoch,
			WithdrawableEpoch: chaincfg.FarFutureEpoch,
		}
	}
	bits, err := ssz.NewBitvector(4)
	if err != nil {
		t.Fatalf("NewBitvector: %v", err)
	}
	return &forks.BeaconState{
		ForkTag:           forks.Phase0,
		Validators:        vs,
		Balances:          make([]uint64, numValidators),
		BlockRoots:        make([]forks.Root, 8192),
		StateRoots:        make([]forks.Root, 8192),
		RandaoMixes:       make([]forks.Root, 65536),
		Slashings:         make([]uint64, 8192),
		JustificationBits: bits,
	}
}

func TestCloneIsolatesMutations(t *testing.T) {
	cfg := chaincfg.Minimal()
	pre := newPhase0State(t, 4)
	cs, err := InitFromState(cfg, pre, forks.Phase0, nil)
	if err != nil {
		t.Fatalf("InitFromState: %v", err)
	}
	rootBefore, err := cs.StateRoot()
	if err != nil {
		t.Fatalf("StateRoot: %v", err)
	}

	clone := cs.Clone()
	if err := clone.Mutate(func(s *forks.BeaconState) error {
		s.Validators[1].ActivationEpoch = 5
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	rootAfterOriginal, err := cs.StateRoot()
	if err != nil {
		t.Fatalf("StateRoot original: %v", err)
	}
	if rootAfterOriginal != rootBefore {
		t.Fatalf("original state root changed after mutating clone: %x != %x", rootAfterOriginal, rootBefore)
	}

	cloneRoot, err := clone.StateRoot()
	if err != nil {
		t.Fatalf("StateRoot clone: %v", err)
	}
	if cloneRoot == rootBefore {
		t.Fatalf("clone root equals original after a mutation that should have changed it")
	}

	if cs.State().Validators[1].ActivationEpoch == 5 {
		t.Fatalf("original validator mutated by clone's write")
	}
}

func TestEffectiveBalanceIncrementsCachesAndInvalidates(t *testing.T) {
	cfg := chaincfg.Minimal()
	pre := newPhase0State(t, 3)
	pre.Validators[0].EffectiveBalance = 16_000_000_000
	cs, err := InitFromState(cfg, pre, forks.Phase0, nil)
	if err != nil {
		t.Fatalf("InitFromState: %v", err)
	}
	ebi := cs.EffectiveBalanceIncrements()
	if ebi[0] != 16 {
		t.Fatalf("expected 16 increments, got %d", ebi[0])
	}
	cs.InvalidateEffectiveBalanceIncrements()
	if err := cs.Mutate(func(s *forks.BeaconState) error {
		s.Validators[0].EffectiveBalance = 8_000_000_000
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	ebi = cs.EffectiveBalanceIncrements()
	if ebi[0] != 8 {
		t.Fatalf("expected 8 increments after invalidation, got %d", ebi[0])
	}
}

func TestValidatorAndBalanceBoundsChecked(t *testing.T) {
	cfg := chaincfg.Minimal()
	pre := newPhase0State(t, 2)
	cs, err := InitFromState(cfg, pre, forks.Phase0, nil)
	if err != nil {
		t.Fatalf("InitFromState: %v", err)
	}
	if _, err := cs.Validator(5); err == nil {
		t.Fatalf("expected ErrIndexOutOfBounds")
	}
	if _, err := cs.Balance(5); err == nil {
		t.Fatalf("expected ErrIndexOutOfBounds")
	}
}
