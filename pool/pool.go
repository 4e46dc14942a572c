package pool

import (
	"github.com/beacon-stf/corestate/hashutil"
	"github.com/beacon-stf/corestate/metrics"
)

// Pool is an arena of reference-counted PMT nodes. It is single-threaded:
// callers serialize access themselves or use one pool per
// goroutine/state lineage. Hash caches are not protected by locks.
type Pool struct {
	slots    []slot
	freeList []NodeId

	// MaxSlots bounds the arena; 0 means unbounded. Checked only on growth,
	// never on reuse of a freed slot.
	MaxSlots int

	leak      *leakDetector
	zeroCache map[int]NodeId
}

// New creates an empty pool. leakSampleEvery configures the sampled
// use-after-free/leak detector: 0 disables it, 1 means "paranoid"
// (track every allocation), and N>1 samples roughly 1-in-N allocations.
func New(leakSampleEvery int) *Pool {
	p := &Pool{
		// slot 0 is permanently reserved so NilNode (0) never aliases a
		// live node.
		slots:    make([]slot, 1, 256),
		freeList: nil,
	}
	if leakSampleEvery > 0 {
		p.leak = newLeakDetector(leakSampleEvery)
	}
	return p
}

func (p *Pool) alloc() (NodeId, *slot, error) {
	metrics.PoolAllocations.Inc()
	if n := len(p.freeList); n > 0 {
		id := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return id, &p.slots[id], nil
	}
	if p.MaxSlots > 0 && len(p.slots) >= p.MaxSlots {
		return NilNode, nil, ErrPoolExhausted
	}
	p.slots = append(p.slots, slot{})
	id := NodeId(len(p.slots) - 1)
	return id, &p.slots[id], nil
}

func (p *Pool) slotOf(id NodeId) (*slot, error) {
	if id == NilNode || int(id) >= len(p.slots) || p.slots[id].k == kindFree {
		return nil, ErrUseAfterFree
	}
	return &p.slots[id], nil
}

// NewLeaf allocates (or reuses a freed slot for) a 32-byte leaf with
// refcount 1.
func (p *Pool) NewLeaf(bytes32 [32]byte) (NodeId, error) {
	id, s, err := p.alloc()
	if err != nil {
		return NilNode, err
	}
	s.k = kindLeaf
	s.refs = 1
	s.dirty = false
	s.leaf = bytes32
	s.hash = bytes32
	if p.leak != nil {
		p.leak.onAlloc(id)
	}
	return id, nil
}

// NewBranch allocates a branch over left/right, bumping both children's
// refcounts. The branch's hash is computed lazily on first GetHash.
func (p *Pool) NewBranch(left, right NodeId) (NodeId, error) {
	if _, err := p.slotOf(left); err != nil {
		return NilNode, err
	}
	if _, err := p.slotOf(right); err != nil {
		return NilNode, err
	}
	id, s, err := p.alloc()
	if err != nil {
		return NilNode, err
	}
	s.k = kindBranch
	s.refs = 1
	s.dirty = true
	s.left = left
	s.right = right
	p.slots[left].refs++
	p.slots[right].refs++
	if p.leak != nil {
		p.leak.onAlloc(id)
	}
	return id, nil
}

// Ref bumps a node's refcount, used when an external holder (a TreeView
// cache entry, a cloned CachedBeaconState) takes a new reference to an
// already-live node.
func (p *Pool) Ref(id NodeId) error {
	s, err := p.slotOf(id)
	if err != nil {
		return err
	}
	s.refs++
	return nil
}

// Unref decrements a node's refcount. When it reaches zero, branches
// recursively unref their children and the slot is returned to the
// free-list, making its id reusable by a future allocation.
func (p *Pool) Unref(id NodeId) error {
	s, err := p.slotOf(id)
	if err != nil {
		return err
	}
	if s.refs == 0 {
		return ErrDoubleUnref
	}
	s.refs--
	if s.refs > 0 {
		return nil
	}
	left, right, wasBranch := s.left, s.right, s.isBranch()
	if p.leak != nil {
		p.leak.onFree(id)
	}
	*s = slot{}
	p.freeList = append(p.freeList, id)
	metrics.PoolFrees.Inc()
	if wasBranch {
		if err := p.Unref(left); err != nil {
			return err
		}
		if err := p.Unref(right); err != nil {
			return err
		}
	}
	return nil
}

// RefCount reports the current refcount of a live node, for tests and the
// leak detector's invariant checks.
func (p *Pool) RefCount(id NodeId) (uint32, error) {
	s, err := p.slotOf(id)
	if err != nil {
		return 0, err
	}
	return s.refs, nil
}

// GetHash returns a node's 32-byte hash, lazily recomputing and caching a
// branch's hash from its children on first read (or after a dirty mark).
// Recomputation is idempotent: calling GetHash twice in a row on a clean
// node never touches the children again.
func (p *Pool) GetHash(id NodeId) ([32]byte, error) {
	s, err := p.slotOf(id)
	if err != nil {
		return [32]byte{}, err
	}
	if s.isLeaf() || !s.dirty {
		return s.hash, nil
	}
	lh, err := p.GetHash(s.left)
	if err != nil {
		return [32]byte{}, err
	}
	rh, err := p.GetHash(s.right)
	if err != nil {
		return [32]byte{}, err
	}
	h := hashutil.Hash(lh, rh)
	s.hash = h
	s.dirty = false
	return h, nil
}

// IsLeaf reports whether id refers to a leaf node.
func (p *Pool) IsLeaf(id NodeId) (bool, error) {
	s, err := p.slotOf(id)
	if err != nil {
		return false, err
	}
	return s.isLeaf(), nil
}

// Children returns a branch's left and right child ids.
func (p *Pool) Children(id NodeId) (left, right NodeId, err error) {
	s, err := p.slotOf(id)
	if err != nil {
		return NilNode, NilNode, err
	}
	if !s.isBranch() {
		return NilNode, NilNode, ErrNotBranch
	}
	return s.left, s.right, nil
}

// LiveNodes returns the number of currently allocated (non-free) slots,
// used by tests asserting the pool's O(live_nodes) memory bound. It also
// refreshes the pool.live_nodes gauge.
func (p *Pool) LiveNodes() int {
	n := len(p.slots) - 1 - len(p.freeList)
	metrics.PoolLiveNodes.Set(int64(n))
	return n
}
