package state

// Caches bundles every derived value hung off CachedBeaconState:
// the epoch context (shuffling, proposer indices, total active balance),
// effective-balance increments, and the populated/hit-miss flags used to
// tell a cache hit from a reconstruction.
//
// Grounded on the getter-cache shape of other_examples' beacon-state
// getters (committee/shuffling memoised per epoch, invalidated wholesale
// by ClearCache rather than per-entry).
type Caches struct {
	effectiveBalanceIncrements []uint16
	ebiPopulated               bool

	totalActiveBalance          uint64
	totalActiveBalancePopulated bool

	shuffling ShufflingCache

	// ProposerIndices holds one proposer validator index per slot of the
	// current epoch.
	proposerIndices []uint64

	// SyncCommitteeIndices[0] is the current sync committee's validator
	// indices, [1] is the next's (Altair+).
	syncCommitteeIndices [2][]uint64

	validatorsPopulated bool
	balancesPopulated   bool
}

// ShufflingCache holds the previous/current/next epoch committee
// assignments: ShufflingCache.Current[slotInEpoch][committeeIndex] is the
// list of validator indices in that committee.
type ShufflingCache struct {
	Previous [][][]uint64
	Current  [][][]uint64
	Next     [][][]uint64
}

func (s ShufflingCache) shallowCopy() ShufflingCache {
	return ShufflingCache{Previous: s.Previous, Current: s.Current, Next: s.Next}
}

// shallowCopy returns a new *Caches sharing this one's slice backing
// arrays, acting as a copy-on-write cell. The first write to
// either copy's mutable fields replaces the field's slice wholesale (the
// cache setters below never mutate an element in place), so sharing the
// backing array is safe.
func (c *Caches) shallowCopy() *Caches {
	cp := *c
	return &cp
}

// EffectiveBalanceIncrements returns every validator's effective balance
// in units of EFFECTIVE_BALANCE_INCREMENT, indexed by validator, computing
// and caching the whole vector on first access.
func (c *CachedBeaconState) EffectiveBalanceIncrements() []uint16 {
	if c.cache.ebiPopulated {
		return c.cache.effectiveBalanceIncrements
	}
	vs := c.core.st.Validators
	out := make([]uint16, len(vs))
	incr := c.cfg.EffectiveBalanceIncrement
	for i, v := range vs {
		out[i] = uint16(v.EffectiveBalance / incr)
	}
	c.cache.effectiveBalanceIncrements = out
	c.cache.ebiPopulated = true
	return out
}

// InvalidateEffectiveBalanceIncrements drops the cached vector, forcing a
// recompute on next access. Called by epoch processing after
// effective_balance_updates changes validator effective balances.
func (c *CachedBeaconState) InvalidateEffectiveBalanceIncrements() {
	c.cache.ebiPopulated = false
	c.cache.effectiveBalanceIncrements = nil
}

// SetTotalActiveBalance caches the total-active-balance sum computed by
// the epoch transition cache for the current epoch.
func (c *CachedBeaconState) SetTotalActiveBalance(total uint64) {
	c.cache.totalActiveBalance = total
	c.cache.totalActiveBalancePopulated = true
}

// TotalActiveBalance returns the cached total, and whether it was present.
func (c *CachedBeaconState) TotalActiveBalance() (uint64, bool) {
	return c.cache.totalActiveBalance, c.cache.totalActiveBalancePopulated
}

// SetShuffling installs the computed committee assignments for all three
// tracked epochs.
func (c *CachedBeaconState) SetShuffling(s ShufflingCache) { c.cache.shuffling = s }

// Shuffling returns the cached committee assignments.
func (c *CachedBeaconState) Shuffling() ShufflingCache { return c.cache.shuffling }

// SetProposerIndices installs one proposer validator index per slot of the
// current epoch.
func (c *CachedBeaconState) SetProposerIndices(indices []uint64) { c.cache.proposerIndices = indices }

// ProposerIndices returns the cached per-slot proposer indices.
func (c *CachedBeaconState) ProposerIndices() []uint64 { return c.cache.proposerIndices }

// SetSyncCommitteeIndices installs the validator indices making up the
// current (current=true) or next sync committee.
func (c *CachedBeaconState) SetSyncCommitteeIndices(current bool, indices []uint64) {
	if current {
		c.cache.syncCommitteeIndices[0] = indices
	} else {
		c.cache.syncCommitteeIndices[1] = indices
	}
}

// SyncCommitteeIndices returns the cached current/next sync committee
// validator indices.
func (c *CachedBeaconState) SyncCommitteeIndices(current bool) []uint64 {
	if current {
		return c.cache.syncCommitteeIndices[0]
	}
	return c.cache.syncCommitteeIndices[1]
}

// MarkValidatorsPopulated records whether the validators sub-tree leaves
// were already materialised when this state was built, feeding the
// pre_state_validators_nodes_populated_{hit,miss} metric.
func (c *CachedBeaconState) MarkValidatorsPopulated(populated bool, source string) {
	c.cache.validatorsPopulated = populated
	c.sink.PreStateNodesPopulated("validators", source, populated)
}

// MarkBalancesPopulated is the Balances-subtree analogue of
// MarkValidatorsPopulated.
func (c *CachedBeaconState) MarkBalancesPopulated(populated bool, source string) {
	c.cache.balancesPopulated = populated
	c.sink.PreStateNodesPopulated("balances", source, populated)
}
