// Package state implements CachedBeaconState: a
// BeaconState plus the derived caches (committee/shuffling, effective-
// balance increments, proposer lookahead, sync committee indices) that keep
// per-slot STF work bounded.
//
// BeaconState here is a native Go struct, so Clone shares one
// underlying *forks.BeaconState behind a refcount and
// only deep-copies it the first time a clone is mutated, mirroring the
// PMT's "if refcount == 1, mutate in place; otherwise allocate a copy"
// rule at state granularity instead of per-subtree granularity.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beacon-stf/corestate/chaincfg"
	"github.com/beacon-stf/corestate/forks"
	"github.com/beacon-stf/corestate/log"
	"github.com/beacon-stf/corestate/metrics"
	sszpkg "github.com/beacon-stf/corestate/ssz"
)

// ErrIndexOutOfBounds covers validator/
// balance index accesses that go through CachedBeaconState rather than a
// TreeView.
var ErrIndexOutOfBounds = errors.New("state: index out of bounds")

// core is the refcounted, shared BeaconState. Only CachedBeaconState
// touches it; callers never see a *core directly.
type core struct {
	mu   sync.Mutex
	refs int32
	st   *forks.BeaconState
}

func newCore(st *forks.BeaconState) *core {
	return &core{refs: 1, st: st}
}

func (c *core) ref() {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
}

func (c *core) unref() int32 {
	c.mu.Lock()
	c.refs--
	n := c.refs
	c.mu.Unlock()
	return n
}

func (c *core) shared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs > 1
}

// CachedBeaconState wraps a BeaconState lineage plus its derived caches.
type CachedBeaconState struct {
	cfg   *chaincfg.Config
	core  *core
	cache *Caches
	sink  metrics.STFSink
	log   *log.Logger
}

// InitFromState constructs a CachedBeaconState from a pre-state, walking
// any pending fork upgrades between the pre-state's fork and targetFork;
// construction is idempotent when the two are already aligned. Upgrades
// are keyed purely on fork sequence.
func InitFromState(cfg *chaincfg.Config, pre *forks.BeaconState, targetFork forks.Fork, sink metrics.STFSink) (*CachedBeaconState, error) {
	if sink == nil {
		sink = metrics.NoopSTFSink
	}
	st := pre
	for st.ForkTag != targetFork {
		next, ok := forks.Next(st.ForkTag)
		if !ok || st.ForkTag.AtLeast(targetFork) {
			return nil, fmt.Errorf("%w: cannot reach %s from %s", forks.ErrUnexpectedForkSeq, targetFork, st.ForkTag)
		}
		if err := forks.Upgrade(st, next); err != nil {
			return nil, err
		}
	}
	return &CachedBeaconState{
		cfg:   cfg,
		core:  newCore(st),
		cache: &Caches{},
		sink:  sink,
		log:   log.Default().Module("state"),
	}, nil
}

// Config returns the chain configuration this state was built with.
func (c *CachedBeaconState) Config() *chaincfg.Config { return c.cfg }

// Fork returns the state's current fork tag.
func (c *CachedBeaconState) Fork() forks.Fork { return c.core.st.ForkTag }

// State returns a read-only view of the underlying BeaconState. Callers
// must route mutations through Mutate so copy-on-write stays correct.
func (c *CachedBeaconState) State() *forks.BeaconState { return c.core.st }

// Clone returns a new handle sharing this state's underlying BeaconState
// (refcount bump) and a copy of the derived caches. Mutating the clone does not
// affect the original, and vice versa.
func (c *CachedBeaconState) Clone() *CachedBeaconState {
	c.core.ref()
	clone := &CachedBeaconState{
		cfg:   c.cfg,
		core:  c.core,
		cache: c.cache.shallowCopy(),
		sink:  c.sink,
		log:   c.log,
	}
	c.sink.StateClonedCount(int(c.core.refs))
	metrics.StateClones.Inc()
	return clone
}

// Mutate runs fn against a BeaconState this handle exclusively owns,
// detaching (deep-copying) from any shared lineage first if necessary.
// This is the state-level analogue of pool.SetChild's copy-on-write rule.
func (c *CachedBeaconState) Mutate(fn func(*forks.BeaconState) error) error {
	c.ensureOwned()
	return fn(c.core.st)
}

func (c *CachedBeaconState) ensureOwned() {
	if !c.core.shared() {
		return
	}
	cp := deepCopyState(c.core.st)
	c.core.unref()
	c.core = newCore(cp)
	c.log.Debug("detached shared state", "slot", cp.Slot, "validators", len(cp.Validators))
}

// Commit forces a hash-tree-root recomputation and returns the state
// root, timed into the metrics sink's hash_tree_root_seconds series with
// source="state".
func (c *CachedBeaconState) Commit() ([32]byte, error) {
	start := time.Now()
	defer func() { c.sink.HashTreeRootSeconds("state").Observe(time.Since(start).Seconds()) }()
	metrics.StateRootsComputed.Inc()
	metrics.ValidatorsTracked.Set(int64(len(c.core.st.Validators)))
	return c.core.st.HashTreeRoot()
}

// StateRoot is an alias for Commit kept for call-site readability where no
// mutation precedes the read.
func (c *CachedBeaconState) StateRoot() ([32]byte, error) { return c.Commit() }

// ClearCache drops every derived cache entry while preserving the
// underlying tree identity: the next access recomputes from the BeaconState,
// and must yield identical results to the cached path.
func (c *CachedBeaconState) ClearCache() { c.cache = &Caches{} }

// Validator returns validators[i], or ErrIndexOutOfBounds.
func (c *CachedBeaconState) Validator(i uint64) (*forks.Validator, error) {
	vs := c.core.st.Validators
	if i >= uint64(len(vs)) {
		return nil, fmt.Errorf("%w: validator %d of %d", ErrIndexOutOfBounds, i, len(vs))
	}
	return &vs[i], nil
}

// Balance returns balances[i], or ErrIndexOutOfBounds.
func (c *CachedBeaconState) Balance(i uint64) (uint64, error) {
	bs := c.core.st.Balances
	if i >= uint64(len(bs)) {
		return 0, fmt.Errorf("%w: balance %d of %d", ErrIndexOutOfBounds, i, len(bs))
	}
	return bs[i], nil
}

// Cache exposes the mutable derived-cache bundle for the epoch/transition
// packages to populate and consume.
func (c *CachedBeaconState) Cache() *Caches { return c.cache }

// deepCopyState clones every field of a BeaconState including nested
// slices, so a detached clone never observes further mutations through the
// original's backing arrays.
func deepCopyState(s *forks.BeaconState) *forks.BeaconState {
	cp := *s
	cp.BlockRoots = append([]forks.Root(nil), s.BlockRoots...)
	cp.StateRoots = append([]forks.Root(nil), s.StateRoots...)
	cp.HistoricalRoots = append([]forks.Root(nil), s.HistoricalRoots...)
	cp.Eth1DataVotes = append([]forks.Eth1Data(nil), s.Eth1DataVotes...)
	cp.Validators = append([]forks.Validator(nil), s.Validators...)
	cp.Balances = append([]uint64(nil), s.Balances...)
	cp.RandaoMixes = append([]forks.Root(nil), s.RandaoMixes...)
	cp.Slashings = append([]uint64(nil), s.Slashings...)
	if bv, err := sszpkg.BitvectorFromBytes(s.JustificationBits.Bytes(), s.JustificationBits.Len()); err == nil {
		cp.JustificationBits = bv
	}
	cp.PreviousEpochParticipation = append([]byte(nil), s.PreviousEpochParticipation...)
	cp.CurrentEpochParticipation = append([]byte(nil), s.CurrentEpochParticipation...)
	cp.InactivityScores = append([]uint64(nil), s.InactivityScores...)
	cp.HistoricalSummaries = append([]forks.HistoricalSummary(nil), s.HistoricalSummaries...)
	if s.CurrentSyncCommittee != nil {
		sc := *s.CurrentSyncCommittee
		sc.Pubkeys = append([][48]byte(nil), s.CurrentSyncCommittee.Pubkeys...)
		cp.CurrentSyncCommittee = &sc
	}
	if s.NextSyncCommittee != nil {
		sc := *s.NextSyncCommittee
		sc.Pubkeys = append([][48]byte(nil), s.NextSyncCommittee.Pubkeys...)
		cp.NextSyncCommittee = &sc
	}
	if s.LatestExecutionPayloadHeader != nil {
		h := *s.LatestExecutionPayloadHeader
		h.ExtraData = append([]byte(nil), s.LatestExecutionPayloadHeader.ExtraData...)
		cp.LatestExecutionPayloadHeader = &h
	}
	if s.Electra != nil {
		e := *s.Electra
		e.PendingDeposits = append([]forks.PendingDeposit(nil), s.Electra.PendingDeposits...)
		e.PendingPartialWithdrawals = append([]forks.PendingPartialWithdrawal(nil), s.Electra.PendingPartialWithdrawals...)
		e.PendingConsolidations = append([]forks.PendingConsolidation(nil), s.Electra.PendingConsolidations...)
		e.ProposerLookahead = append([]uint64(nil), s.Electra.ProposerLookahead...)
		cp.Electra = &e
	}
	return &cp
}
