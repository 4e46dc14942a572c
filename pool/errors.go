package pool

import "errors"

var (
	// ErrUseAfterFree indicates a caller referenced a NodeId whose slot has
	// already been freed. This is a broken-invariant condition,
	// not an ordinary validation failure, and callers are expected to treat
	// it as a programming error rather than recover from it in the hot path.
	ErrUseAfterFree = errors.New("pool: use after free")

	// ErrDoubleUnref indicates Unref found a live slot whose refcount was
	// already zero. Unref of a node that has already been freed reports
	// ErrUseAfterFree instead.
	ErrDoubleUnref = errors.New("pool: unref of node with zero refcount")

	// ErrInvalidGindex indicates Navigate was given a generalized index that
	// is zero, or that descends past the depth of the subtree it started in.
	ErrInvalidGindex = errors.New("pool: invalid generalized index")

	// ErrNotBranch indicates an operation requiring a branch node (SetChild,
	// Children) was given a leaf.
	ErrNotBranch = errors.New("pool: node is not a branch")

	// ErrPoolExhausted indicates the pool hit a caller-configured maximum
	// slot count. Pools are unbounded by default (MaxSlots == 0).
	ErrPoolExhausted = errors.New("pool: exhausted (max slots reached)")
)
