package ssz

import "github.com/beacon-stf/corestate/pool"

// BuildContainer constructs a balanced PMT subtree over fieldRoots, one
// leaf per field, and returns a ContainerView over it. This is the
// `toTree` half of a container type's contract: callers
// compute each field's hash tree root first (recursively, for composite
// fields), then hand the flat list of 32-byte roots here.
func BuildContainer(p *pool.Pool, fieldRoots [][32]byte) (*ContainerView, error) {
	root, err := p.FillWithContents(depthFor(len(fieldRoots)), fieldRoots)
	if err != nil {
		return nil, err
	}
	return NewContainerView(p, root, len(fieldRoots)), nil
}

// BuildVector constructs a balanced PMT subtree over a fixed number of
// element roots (SSZ fixedVector(T,N)/variableVector), identical in
// shape to a container but addressed by element index rather than field
// index.
func BuildVector(p *pool.Pool, elementRoots [][32]byte) (*ContainerView, error) {
	return BuildContainer(p, elementRoots)
}

// BuildList constructs the backing tree for a list type sized to limit,
// with the first len(elementRoots) leaves populated and the remainder
// implicitly zero (SSZ fixedList(T,limit)/variableList), returning a
// ListView with length equal to len(elementRoots).
func BuildList(p *pool.Pool, elementRoots [][32]byte, limit int) (*ListView, error) {
	root, err := p.FillWithContents(depthFor(limit), elementRoots)
	if err != nil {
		return nil, err
	}
	return NewListView(p, root, limit, len(elementRoots))
}

// LeafRoots is a convenience for building fieldRoots/elementRoots slices
// out of values that already know their own hash tree root.
func LeafRoots(values []HashRoot) ([][32]byte, error) {
	roots := make([][32]byte, len(values))
	for i, v := range values {
		r, err := v.HashTreeRoot()
		if err != nil {
			return nil, err
		}
		roots[i] = r
	}
	return roots, nil
}
