package pool

import "math/bits"

// SetChild performs a copy-on-write child replacement: if id's
// refcount is exactly 1 (no other holder can observe the mutation), the
// branch is updated in place and marked dirty; otherwise a new branch is
// allocated with the requested child replaced, and the caller's id is
// unrefed (its old reference is being replaced by the returned one).
//
// The returned NodeId is always the one the caller should use from now on;
// it may or may not equal id.
func (p *Pool) SetChild(id NodeId, side Side, newChild NodeId) (NodeId, error) {
	s, err := p.slotOf(id)
	if err != nil {
		return NilNode, err
	}
	if !s.isBranch() {
		return NilNode, ErrNotBranch
	}

	if s.refs == 1 {
		oldChild := s.left
		if side == Right {
			oldChild = s.right
		}
		if oldChild == newChild {
			return id, nil
		}
		if err := p.Ref(newChild); err != nil {
			return NilNode, err
		}
		if side == Left {
			s.left = newChild
		} else {
			s.right = newChild
		}
		s.dirty = true
		if err := p.Unref(oldChild); err != nil {
			return NilNode, err
		}
		return id, nil
	}

	left, right := s.left, s.right
	if side == Left {
		left = newChild
	} else {
		right = newChild
	}
	newID, err := p.NewBranch(left, right)
	if err != nil {
		return NilNode, err
	}
	if err := p.Unref(id); err != nil {
		return NilNode, err
	}
	return newID, nil
}

// FillWithContents builds a balanced subtree of the given depth from leaf
// values, padding any unused leaf slots with shared zero-subtrees rather
// than allocating them.
func (p *Pool) FillWithContents(depth int, leaves [][32]byte) (NodeId, error) {
	limit := 1 << uint(depth)
	if len(leaves) > limit {
		return NilNode, ErrInvalidGindex
	}

	nodes := make([]NodeId, limit)
	for i := 0; i < limit; i++ {
		if i < len(leaves) {
			id, err := p.NewLeaf(leaves[i])
			if err != nil {
				return NilNode, err
			}
			nodes[i] = id
		}
	}

	// Build bottom-up. A node whose id is still NilNode represents an
	// all-zero subtree at the current level; it is replaced by the shared
	// zero-subtree node for that depth, never materialized leaf-by-leaf.
	curDepth := 0
	for d := depth; d > 0; d-- {
		width := 1 << uint(d-1)
		next := make([]NodeId, width)
		for i := 0; i < width; i++ {
			l, r := nodes[2*i], nodes[2*i+1]
			if l == NilNode && r == NilNode {
				id, err := p.zeroSubtreeAt(curDepth + 1)
				if err != nil {
					return NilNode, err
				}
				next[i] = id
				continue
			}
			var err error
			if l == NilNode {
				if l, err = p.zeroSubtreeAt(curDepth); err != nil {
					return NilNode, err
				}
			}
			if r == NilNode {
				if r, err = p.zeroSubtreeAt(curDepth); err != nil {
					return NilNode, err
				}
			}
			id, err := p.NewBranch(l, r)
			if err != nil {
				return NilNode, err
			}
			next[i] = id
		}
		nodes = next
		curDepth++
	}
	if nodes[0] == NilNode {
		return p.zeroSubtreeAt(0)
	}
	return nodes[0], nil
}

// zeroSubtreeCache memoizes the single shared node id representing an
// all-zero subtree of a given depth, per pool. Sharing these avoids the
// O(2^depth) allocation for sparse trees.
type zeroCacheKey = int

func (p *Pool) zeroSubtreeAt(depth int) (NodeId, error) {
	if p.zeroCache == nil {
		p.zeroCache = make(map[zeroCacheKey]NodeId)
	}
	if id, ok := p.zeroCache[depth]; ok {
		return id, nil
	}
	var id NodeId
	var err error
	if depth == 0 {
		id, err = p.NewLeaf([32]byte{})
	} else {
		var child NodeId
		child, err = p.zeroSubtreeAt(depth - 1)
		if err != nil {
			return NilNode, err
		}
		id, err = p.NewBranch(child, child)
	}
	if err != nil {
		return NilNode, err
	}
	// Pin the zero subtree with an extra reference so looking it up again
	// doesn't risk it being freed out from under the cache by an unrelated
	// Unref elsewhere in the tree.
	if err := p.Ref(id); err != nil {
		return NilNode, err
	}
	p.zeroCache[depth] = id
	return id, nil
}

// Navigate descends from root by the bits of a generalized index
// (gindex 1 is the root, 2n/2n+1 are children), returning the node
// id at that position. gindex 0 is invalid; gindex 1 returns root itself.
func (p *Pool) Navigate(root NodeId, gindex uint64) (NodeId, error) {
	if gindex == 0 {
		return NilNode, ErrInvalidGindex
	}
	if gindex == 1 {
		return root, nil
	}
	// The path from root to gindex is given by the bits of gindex below its
	// highest set bit, most-significant-first; each bit selects left(0) or
	// right(1).
	highBit := bits.Len64(gindex) - 1
	cur := root
	for i := highBit - 1; i >= 0; i-- {
		s, err := p.slotOf(cur)
		if err != nil {
			return NilNode, err
		}
		if !s.isBranch() {
			return NilNode, ErrInvalidGindex
		}
		if (gindex>>uint(i))&1 == 0 {
			cur = s.left
		} else {
			cur = s.right
		}
	}
	return cur, nil
}
