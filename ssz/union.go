package ssz

import "github.com/beacon-stf/corestate/pool"

// UnionView is the tree-backed counterpart to UnionCodec (union_codec.go):
// a PMT node shaped as hash(value_root, selector_chunk), following SSZ's
// `union` type and the HashTreeRootUnion rule in hash_tree.go. It holds
// the value's own subtree root directly rather than a serialized blob, so
// composite variants stay tree-addressable.
type UnionView struct {
	p        *pool.Pool
	selector byte
	value    pool.NodeId // subtree root of the active variant's value
}

// NewUnionView wraps a variant's already-built value subtree with its
// selector byte.
func NewUnionView(p *pool.Pool, selector byte, value pool.NodeId) *UnionView {
	return &UnionView{p: p, selector: selector, value: value}
}

// Selector returns the active variant's selector byte.
func (u *UnionView) Selector() byte { return u.selector }

// Value returns the active variant's subtree root.
func (u *UnionView) Value() pool.NodeId { return u.value }

// HashTreeRoot computes hash(hash_tree_root(value), selector_chunk).
func (u *UnionView) HashTreeRoot() ([32]byte, error) {
	valueRoot, err := u.p.GetHash(u.value)
	if err != nil {
		return [32]byte{}, err
	}
	return HashTreeRootUnion(valueRoot, u.selector), nil
}
