// treeview.go implements the TreeView façade: a
// typed handle over a PMT root that gives get/set/commit access to SSZ
// containers, vectors, and lists without fully materialising the native
// Go value on every read.
package ssz

import (
	"errors"
	"fmt"

	"github.com/beacon-stf/corestate/pool"
)

// TreeView errors.
var (
	ErrIndexOutOfBounds = errors.New("ssz: index out of bounds")
	ErrListFull         = errors.New("ssz: list is at capacity")
)

// Element is anything that can be read from and written to a PMT subtree:
// a leaf scalar, or a nested container/vector/list. Concrete SSZ types
// implement this by wrapping a [32]byte or a child TreeView.
type Element interface {
	// ToNode materialises this element as a PMT node under p, returning
	// its id with refcount 1 owned by the caller.
	ToNode(p *pool.Pool) (pool.NodeId, error)
}

// Layout describes the fixed shape of a composite SSZ type backing a
// TreeView: how many top-level children it has and at what depth they sit
// in the balanced tree (depth 0 means a single element that is the root
// itself; depth d means 2^d children).
type Layout struct {
	// Length is the number of logical elements (fields, for a container;
	// elements, for a vector; capacity, for a list backing store).
	Length int
	// Depth is ceil(log2(Length)), the depth of the balanced subtree
	// holding the Length elements.
	Depth int
}

// NewLayout derives a Layout for length elements.
func NewLayout(length int) Layout {
	return Layout{Length: length, Depth: depthFor(length)}
}

func depthFor(n int) int {
	if n <= 1 {
		return 0
	}
	d := 0
	for (1 << uint(d)) < n {
		d++
	}
	return d
}

// ContainerView is a TreeView over a fixed-arity container or fixed-length
// vector: {pool, root, layout} plus a sparse cache of already-materialised
// sub-views keyed by field/element index.
type ContainerView struct {
	p      *pool.Pool
	root   pool.NodeId
	layout Layout
	cache  map[int]pool.NodeId
	dirty  bool
}

// NewContainerView wraps an existing root with the given layout. The
// caller transfers ownership of one reference to root.
func NewContainerView(p *pool.Pool, root pool.NodeId, length int) *ContainerView {
	return &ContainerView{p: p, root: root, layout: NewLayout(length)}
}

// Root returns the view's current PMT root id.
func (v *ContainerView) Root() pool.NodeId { return v.root }

// Len returns the number of logical elements.
func (v *ContainerView) Len() int { return v.layout.Length }

// Get navigates to element i's subtree root and returns its node id. The
// returned id is NOT refcounted for the caller; it is borrowed from the
// view's own tree and only valid until the next Set/commit.
func (v *ContainerView) Get(i int) (pool.NodeId, error) {
	if i < 0 || i >= v.layout.Length {
		return pool.NilNode, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, i, v.layout.Length)
	}
	if v.cache != nil {
		if id, ok := v.cache[i]; ok {
			return id, nil
		}
	}
	gindex := uint64(1<<uint(v.layout.Depth)) + uint64(i)
	id, err := v.p.Navigate(v.root, gindex)
	if err != nil {
		return pool.NilNode, err
	}
	if v.cache == nil {
		v.cache = make(map[int]pool.NodeId)
	}
	v.cache[i] = id
	return id, nil
}

// Set replaces element i with sub (a previously constructed node, refcount
// owned by the caller and transferred to the view), marking the parent
// chain dirty and invalidating any cached sub-view at i.
func (v *ContainerView) Set(i int, sub pool.NodeId) error {
	if i < 0 || i >= v.layout.Length {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, i, v.layout.Length)
	}
	newRoot, err := setAtIndex(v.p, v.root, v.layout.Depth, i, sub)
	if err != nil {
		return err
	}
	v.root = newRoot
	v.dirty = true
	if v.cache != nil {
		delete(v.cache, i)
	}
	return nil
}

// setAtIndex performs the recursive copy-on-write descent-and-replace for
// a balanced tree of the given depth, element i replaced by newChild.
func setAtIndex(p *pool.Pool, root pool.NodeId, depth, i int, newChild pool.NodeId) (pool.NodeId, error) {
	if depth == 0 {
		// A depth-0 layout has exactly one slot and the root is that
		// element itself, so the new child replaces the root outright.
		return newChild, nil
	}
	isLeaf, err := p.IsLeaf(root)
	if err != nil {
		return pool.NilNode, err
	}
	if isLeaf {
		return pool.NilNode, ErrNotComposite
	}
	half := 1 << uint(depth-1)
	left, right, err := p.Children(root)
	if err != nil {
		return pool.NilNode, err
	}
	if i < half {
		newLeft, err := setAtIndex(p, left, depth-1, i, newChild)
		if err != nil {
			return pool.NilNode, err
		}
		return p.SetChild(root, pool.Left, newLeft)
	}
	newRight, err := setAtIndex(p, right, depth-1, i-half, newChild)
	if err != nil {
		return pool.NilNode, err
	}
	return p.SetChild(root, pool.Right, newRight)
}

// ErrNotComposite is returned when a TreeView descent hits a leaf where a
// branch was expected (the tree shape does not match the declared layout).
var ErrNotComposite = errors.New("ssz: tree shape does not match layout")

// Commit recomputes all dirty hashes bottom-up by asking the pool for the
// root's hash (the pool already does this lazily and caches the result);
// Commit's contract is that after it returns, HashTreeRoot is stable and
// any further structural Sets start from a clean dirty flag.
func (v *ContainerView) Commit() ([32]byte, error) {
	h, err := v.p.GetHash(v.root)
	if err != nil {
		return [32]byte{}, err
	}
	v.dirty = false
	return h, nil
}

// HashTreeRoot returns the Merkleization of this container/vector: the
// root hash of its balanced subtree. For containers this is already the
// field-root Merkleization; callers needing mix-in-length wrap this
// themselves (see ListView).
func (v *ContainerView) HashTreeRoot() ([32]byte, error) {
	return v.p.GetHash(v.root)
}

// ClearCache drops the element cache but preserves tree identity: the next
// Commit must produce the same root as if the cache had never been
// cleared.
func (v *ContainerView) ClearCache() {
	v.cache = nil
}

// ListView is a TreeView over a variable-length list: a ContainerView over
// the backing balanced tree (sized to Limit, not Length) plus a separate
// length field, since lists track length separately from capacity.
type ListView struct {
	backing *ContainerView
	limit   int
	length  int
}

// NewListView wraps an existing backing-tree root (sized for limit
// elements) with the given current length.
func NewListView(p *pool.Pool, root pool.NodeId, limit, length int) (*ListView, error) {
	if length > limit {
		return nil, fmt.Errorf("%w: length %d exceeds limit %d", ErrListFull, length, limit)
	}
	return &ListView{backing: NewContainerView(p, root, limit), limit: limit, length: length}, nil
}

// Len returns the current logical length (not capacity).
func (v *ListView) Len() int { return v.length }

// Get returns element i's node id; out of range (>= length) is
// IndexOutOfBounds even though the backing tree has capacity for it.
func (v *ListView) Get(i int) (pool.NodeId, error) {
	if i < 0 || i >= v.length {
		return pool.NilNode, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, i, v.length)
	}
	return v.backing.Get(i)
}

// Set replaces element i. i must be < length (use Push to grow).
func (v *ListView) Set(i int, sub pool.NodeId) error {
	if i < 0 || i >= v.length {
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfBounds, i, v.length)
	}
	return v.backing.Set(i, sub)
}

// Push appends sub as a new element, growing length by one. Fails with
// ListFull when length already equals limit.
func (v *ListView) Push(sub pool.NodeId) error {
	if v.length >= v.limit {
		return fmt.Errorf("%w: limit %d", ErrListFull, v.limit)
	}
	if err := v.backing.Set(v.length, sub); err != nil {
		return err
	}
	v.length++
	return nil
}

// Commit recomputes the backing tree's root hash and mixes in the length,
// per the list hash-tree-root rule.
func (v *ListView) Commit() ([32]byte, error) {
	innerRoot, err := v.backing.Commit()
	if err != nil {
		return [32]byte{}, err
	}
	return MixInLength(innerRoot, uint64(v.length)), nil
}

// HashTreeRoot returns mix_in_length(inner_root, length) without forcing a
// Commit first (reads the pool's current cached/lazily-computed hash).
func (v *ListView) HashTreeRoot() ([32]byte, error) {
	innerRoot, err := v.backing.HashTreeRoot()
	if err != nil {
		return [32]byte{}, err
	}
	return MixInLength(innerRoot, uint64(v.length)), nil
}

// ClearCache drops the backing container's element cache.
func (v *ListView) ClearCache() {
	v.backing.ClearCache()
}

// Root returns the backing tree's current root id (capacity-sized, not
// mixed with length).
func (v *ListView) Root() pool.NodeId { return v.backing.Root() }
