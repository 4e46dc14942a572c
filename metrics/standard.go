package metrics

// Pre-defined metrics for the beacon state-transition core. All metrics
// live in DefaultRegistry so they are globally accessible without passing a
// registry around.

var (
	// ---- Transition metrics ----

	// BlocksProcessed counts beacon blocks successfully applied.
	BlocksProcessed = DefaultRegistry.Counter("transition.blocks_processed")
	// SlotsProcessed counts slots advanced by process_slots.
	SlotsProcessed = DefaultRegistry.Counter("transition.slots_processed")
	// BlocksRejected counts blocks that failed validation.
	BlocksRejected = DefaultRegistry.Counter("transition.blocks_rejected")
	// BlockProcessTime records block application duration in milliseconds.
	BlockProcessTime = DefaultRegistry.Histogram("transition.block_process_ms")

	// ---- Epoch metrics ----

	// EpochsProcessed counts completed epoch transitions.
	EpochsProcessed = DefaultRegistry.Counter("epoch.transitions")
	// EpochProcessTime records epoch transition duration in milliseconds.
	EpochProcessTime = DefaultRegistry.Histogram("epoch.process_ms")

	// ---- State metrics ----

	// StateClones counts CachedBeaconState clones taken.
	StateClones = DefaultRegistry.Counter("state.clones")
	// StateRootsComputed counts full state hash-tree-root computations.
	StateRootsComputed = DefaultRegistry.Counter("state.roots_computed")
	// ValidatorsTracked tracks the registry size of the last state touched.
	ValidatorsTracked = DefaultRegistry.Gauge("state.validators")

	// ---- Node pool metrics ----

	// PoolLiveNodes tracks live node slots across the process's pools.
	PoolLiveNodes = DefaultRegistry.Gauge("pool.live_nodes")
	// PoolAllocations counts node allocations (fresh or free-list reuse).
	PoolAllocations = DefaultRegistry.Counter("pool.allocations")
	// PoolFrees counts node slots released back to the free list.
	PoolFrees = DefaultRegistry.Counter("pool.frees")

	// ---- Queue gauges ----

	// ValidatorsActivationQueue tracks validators awaiting activation.
	ValidatorsActivationQueue = DefaultRegistry.Gauge("validators.activation_queue")
	// ValidatorsExitQueue tracks validators awaiting exit.
	ValidatorsExitQueue = DefaultRegistry.Gauge("validators.exit_queue")
)
