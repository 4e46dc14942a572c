// Package transition implements the top-level state-transition function:
// process_slots, process_block and their sub-steps,
// wired to the fork upgrade dispatcher in forks, the epoch sub-steps in
// epoch, and the copy-on-write CachedBeaconState in state.
package transition

import (
	"time"

	"github.com/beacon-stf/corestate/bls"
	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/epoch"
	"github.com/beacon-stf/corestate/forks"
	"github.com/beacon-stf/corestate/log"
	"github.com/beacon-stf/corestate/metrics"
	"github.com/beacon-stf/corestate/state"
)

// Options gates the optional validation steps of a state transition.
type Options struct {
	VerifySignatures bool
	VerifyProposer   bool
	VerifyStateRoot  bool
}

// StateTransition runs process_slots up to the block's slot, then
// process_block, then (if requested) verifies the resulting state root
// against the block's declared one. The pre-state handle remains valid
// and unmodified; the returned handle is always a fresh lineage obtained
// via Clone, so a failed transition never corrupts pre: every mutation
// lands behind the clone's copy-on-write boundary.
func StateTransition(cfg *chaincfg.Config, pre *state.CachedBeaconState, signedBlock *forks.SignedBeaconBlock, opts Options, sink metrics.STFSink) (*state.CachedBeaconState, error) {
	if sink == nil {
		sink = metrics.NoopSTFSink
	}
	logger := log.Default().Module("transition")
	start := time.Now()
	defer func() {
		d := time.Since(start)
		sink.ProcessBlockSeconds().Observe(d.Seconds())
		metrics.BlockProcessTime.Observe(float64(d.Milliseconds()))
	}()

	block := &signedBlock.Block
	post := pre.Clone()

	if err := ProcessSlots(cfg, post, block.Slot, sink); err != nil {
		return nil, rejected(logger, block, err)
	}

	if opts.VerifyProposer {
		if err := verifyProposerIndex(post, block); err != nil {
			return nil, rejected(logger, block, err)
		}
	}
	if opts.VerifySignatures {
		if err := verifyBlockSignature(post, signedBlock); err != nil {
			return nil, rejected(logger, block, err)
		}
	}

	if err := ProcessBlock(cfg, post, block, opts); err != nil {
		return nil, rejected(logger, block, err)
	}

	if opts.VerifyStateRoot {
		commitStart := time.Now()
		root, err := post.Commit()
		sink.ProcessBlockCommitSeconds().Observe(time.Since(commitStart).Seconds())
		if err != nil {
			return nil, err
		}
		if root != block.StateRoot {
			return nil, rejected(logger, block, newErr(InvalidStateRoot).withReason("computed root does not match block.state_root"))
		}
	}

	logger.Debug("applied block", "slot", block.Slot, "proposer_index", block.ProposerIndex)
	metrics.BlocksProcessed.Inc()
	return post, nil
}

// rejected records a failed block application on its way out.
func rejected(logger *log.Logger, block *forks.BeaconBlock, err error) error {
	logger.Warn("block rejected", "slot", block.Slot, "err", err)
	metrics.BlocksRejected.Inc()
	return err
}

// ProcessSlots implements process_slots: advances cs.State().Slot one at a
// time up to targetSlot, caching roots and running epoch processing and
// fork upgrades at the appropriate boundaries. A targetSlot at or before
// the current slot is SlotInPast; this function never runs process_block
// itself.
func ProcessSlots(cfg *chaincfg.Config, cs *state.CachedBeaconState, targetSlot uint64, sink metrics.STFSink) error {
	if sink == nil {
		sink = metrics.NoopSTFSink
	}
	if targetSlot <= cs.State().Slot {
		return newErr(SlotInPast).withReason("target slot does not advance past the current state slot")
	}
	for cs.State().Slot < targetSlot {
		if err := processSlot(cs); err != nil {
			return err
		}
		nextSlot := cs.State().Slot + 1
		if (nextSlot)%cfg.SlotsPerEpoch == 0 {
			if err := epoch.Process(cfg, cs, sink); err != nil {
				return err
			}
		}
		if err := cs.Mutate(func(s *forks.BeaconState) error {
			s.Slot = nextSlot
			return nil
		}); err != nil {
			return err
		}
		metrics.SlotsProcessed.Inc()
		if err := maybeUpgradeFork(cfg, cs); err != nil {
			return err
		}
	}
	return nil
}

// processSlot implements process_slot: caches the previous state root into
// state_roots[slot % SLOTS_PER_HISTORICAL_ROOT] and, if latest_block_header's
// state_root is the zero value (not yet backfilled by the just-processed
// block), fills it in; then caches the block root the same way.
func processSlot(cs *state.CachedBeaconState) error {
	root, err := cs.Commit()
	if err != nil {
		return err
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		idx := s.Slot % uint64(len(s.StateRoots))
		s.StateRoots[idx] = root
		if s.LatestBlockHeader.StateRoot == (forks.Root{}) {
			s.LatestBlockHeader.StateRoot = root
		}
		headerRoot, err := s.LatestBlockHeader.HashTreeRoot()
		if err != nil {
			return err
		}
		s.BlockRoots[idx] = headerRoot
		return nil
	})
}

// maybeUpgradeFork applies forks.Upgrade one fork at a time until the
// state's fork is the one scheduled for cs.State().Slot's epoch, so several
// forks scheduled at the same epoch are all applied.
func maybeUpgradeFork(cfg *chaincfg.Config, cs *state.CachedBeaconState) error {
	st := cs.State()
	epochNow := cfg.EpochAtSlot(st.Slot)
	target := forks.AtEpoch(cfg, epochNow)
	if target == st.ForkTag {
		return nil
	}
	return cs.Mutate(func(s *forks.BeaconState) error {
		for s.ForkTag != target {
			next, ok := forks.Next(s.ForkTag)
			if !ok {
				return newErr(UnexpectedForkSeq).withReason("no successor fork")
			}
			if err := forks.Upgrade(s, next); err != nil {
				return wrapErr(UnexpectedForkSeq, err)
			}
		}
		return nil
	})
}

// verifyBlockSignature checks the proposer's signature over the block
// root. The proposer's pubkey comes from
// the post-slots state, so this must run after ProcessSlots but before the
// block's operations are applied.
func verifyBlockSignature(cs *state.CachedBeaconState, signedBlock *forks.SignedBeaconBlock) error {
	v, err := cs.Validator(signedBlock.Block.ProposerIndex)
	if err != nil {
		return wrapErr(IndexOutOfBounds, err)
	}
	root, err := signedBlock.Block.HashTreeRoot()
	if err != nil {
		return wrapErr(InvalidSSZ, err)
	}
	ok, err := bls.Verify(v.Pubkey[:], root[:], signedBlock.Signature[:])
	if err != nil {
		return newErr(InvalidSignature).withContext("block").withCause(err)
	}
	if !ok {
		return newErr(InvalidSignature).withContext("block").withIndex(int(signedBlock.Block.ProposerIndex))
	}
	return nil
}

func verifyProposerIndex(cs *state.CachedBeaconState, block *forks.BeaconBlock) error {
	indices := cs.ProposerIndices()
	if len(indices) == 0 {
		return nil
	}
	slotInEpoch := block.Slot % cs.Config().SlotsPerEpoch
	if slotInEpoch >= uint64(len(indices)) || indices[slotInEpoch] != block.ProposerIndex {
		return newErr(InvalidProposer).withReason("block.proposer_index does not match computed proposer")
	}
	return nil
}
